package navigator

import (
	"strconv"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blockedby/groupindex/internal/i18n"
	"github.com/blockedby/groupindex/internal/logger"
	"github.com/blockedby/groupindex/internal/models"
	"github.com/blockedby/groupindex/internal/store"
	"github.com/blockedby/groupindex/internal/token"
)

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Directory{},
		&models.Chat{},
		&models.Account{},
		&models.Session{},
		&models.PersistentVar{},
	))

	log := logger.Nop()
	dirs := store.NewDirectoryStore(db, log)
	chats := store.NewChatStore(db, dirs, log)
	accounts := store.NewAccountStore(db, log)

	catalog, err := i18n.Load("en")
	require.NoError(t, err)

	registry := token.NewRegistry(FixedCommands...)
	engine := NewEngine(dirs, chats, accounts, registry, catalog, "test_contact", log)

	rootID := models.RootDirectoryID
	_, err = dirs.CreateNode(ptr("Groups"), ptr("Gruppi"), &rootID, nil)
	require.NoError(t, err)

	return engine, db
}

func ptr[T any](v T) *T { return &v }

// tok registers a command and returns its wire token, the way a
// previously rendered keyboard would have carried it.
func tok(e *Engine, fields ...string) string {
	command := strings.Join(fields, token.FieldSeparator)
	e.registry.Register(command)
	return e.registry.Encode(command)
}

func makeAdmin(t *testing.T, e *Engine, userID int64) {
	t.Helper()
	_, err := e.accounts.Get(userID)
	require.NoError(t, err)
	require.NoError(t, e.accounts.SetFlag(userID, store.FlagBotAdmin, true))
}

func seedChat(t *testing.T, db *gorm.DB, chat models.Chat) {
	t.Helper()
	require.NoError(t, db.Create(&chat).Error)
}

func TestHandle_UnknownTokenGoesHome(t *testing.T) {
	engine, _ := newTestEngine(t)

	screen := engine.Handle(10, "en", "deadbeef")

	loc := engine.locales.Locale("en")
	assert.Equal(t, loc.GetString("main_menu.text"), screen.Text)
	assert.NotEmpty(t, screen.Keyboard)
}

func TestHandle_RefreshSessionIsHome(t *testing.T) {
	engine, _ := newTestEngine(t)

	screen := engine.Handle(10, "en", tok(engine, "refresh_session"))

	loc := engine.locales.Locale("en")
	assert.Equal(t, loc.GetString("main_menu.text"), screen.Text)
}

func TestHandle_UnauthorizedScreen(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.accounts.Get(10)
	require.NoError(t, err)
	require.NoError(t, engine.accounts.SetFlag(10, store.FlagViewGroups, false))

	screen := engine.Handle(10, "en", tok(engine, "explore_categories"))

	loc := engine.locales.Locale("en")
	assert.Equal(t, loc.GetString("unauthorized.text"), screen.Text)
}

func TestMainMenu_HidesEntriesWithoutPermission(t *testing.T) {
	engine, _ := newTestEngine(t)

	account, err := engine.accounts.Get(10)
	require.NoError(t, err)
	require.NoError(t, engine.accounts.SetFlag(10, store.FlagAddGroups, false))

	screen := engine.MainMenu(account)

	loc := engine.locales.Locale("en")
	for _, row := range screen.Keyboard {
		for _, b := range row {
			assert.NotEqual(t, loc.GetString("main_menu.my_chats_btn"), b.Text)
		}
	}
}

func TestHandle_BrowseShowsChildrenWithCounts(t *testing.T) {
	engine, db := newTestEngine(t)

	rootID := models.RootDirectoryID
	scienceID, err := engine.dirs.CreateNode(ptr("Science"), nil, nil, &rootID)
	require.NoError(t, err)
	seedChat(t, db, models.Chat{ID: -100, Title: "Physics", DirectoryID: &scienceID,
		InviteLink: ptr("https://t.me/+physics")})

	screen := engine.Handle(10, "en", tok(engine, "explore_categories"))

	assert.Contains(t, screen.Text, "Groups")

	var found bool
	for _, row := range screen.Keyboard {
		for _, b := range row {
			if b.Text == "Science [1]" {
				found = true
				assert.Equal(t, "cd"+token.FieldSeparator+strconv.FormatInt(scienceID, 10), b.Command)
			}
		}
	}
	assert.True(t, found, "expected a sub-category button with its chat count")
}

func TestHandle_BrowseListsChatJoinLinks(t *testing.T) {
	engine, db := newTestEngine(t)

	rootID := models.RootDirectoryID
	seedChat(t, db, models.Chat{ID: -100, Title: "Physics", DirectoryID: &rootID,
		InviteLink: ptr("https://t.me/+physics")})

	screen := engine.Handle(10, "en", tok(engine, "explore_categories"))

	assert.Contains(t, screen.Text, "Physics")
	assert.Contains(t, screen.Text, "https://t.me/+physics")
}

func TestHandle_HiddenCategorySkippedForRegularUsers(t *testing.T) {
	engine, _ := newTestEngine(t)

	rootID := models.RootDirectoryID
	hiddenID, err := engine.dirs.CreateNode(ptr("Hidden"), nil, nil, &rootID)
	require.NoError(t, err)
	require.NoError(t, engine.dirs.SetHidden(hiddenID, ptr(int64(99))))

	screen := engine.Handle(10, "en", tok(engine, "explore_categories"))
	for _, row := range screen.Keyboard {
		for _, b := range row {
			assert.NotContains(t, b.Text, "Hidden")
		}
	}

	makeAdmin(t, engine, 20)
	screen = engine.Handle(20, "en", tok(engine, "explore_categories"))
	var found bool
	for _, row := range screen.Keyboard {
		for _, b := range row {
			if strings.Contains(b.Text, "Hidden") {
				found = true
			}
		}
	}
	assert.True(t, found, "admins should still see hidden categories")
}

func TestHandle_IndexThenUnindexKeepsCountsConsistent(t *testing.T) {
	engine, db := newTestEngine(t)

	rootID := models.RootDirectoryID
	scienceID, err := engine.dirs.CreateNode(ptr("Science"), nil, nil, &rootID)
	require.NoError(t, err)
	seedChat(t, db, models.Chat{ID: -100, Title: "Physics", Admins: models.AdminList{10},
		InviteLink: ptr("https://t.me/+physics")})

	// warm the count caches first
	for _, id := range []int64{rootID, scienceID} {
		_, err := engine.dirs.GetChatCount(id, true, false)
		require.NoError(t, err)
	}

	chatField := strconv.FormatInt(int64(-100), 10)
	catField := strconv.FormatInt(scienceID, 10)

	screen := engine.Handle(10, "en", tok(engine, "idx", chatField, catField))
	assert.Contains(t, screen.Text, "Physics")

	for _, id := range []int64{rootID, scienceID} {
		warm, err := engine.dirs.GetChatCount(id, true, false)
		require.NoError(t, err)
		fresh, err := engine.dirs.GetChatCount(id, true, true)
		require.NoError(t, err)
		assert.Equal(t, fresh, warm, "warm count diverged for directory %d", id)
		assert.Equal(t, 1, fresh)
	}

	screen = engine.Handle(10, "en", tok(engine, "unidx", chatField))
	assert.Contains(t, screen.Text, "Physics")

	for _, id := range []int64{rootID, scienceID} {
		warm, err := engine.dirs.GetChatCount(id, true, false)
		require.NoError(t, err)
		assert.Equal(t, 0, warm)
	}
}

func TestHandle_IndexDeniedForStrangers(t *testing.T) {
	engine, db := newTestEngine(t)

	rootID := models.RootDirectoryID
	seedChat(t, db, models.Chat{ID: -100, Title: "Physics", Admins: models.AdminList{10}})

	screen := engine.Handle(11, "en",
		tok(engine, "idx", "-100", strconv.FormatInt(rootID, 10)))

	loc := engine.locales.Locale("en")
	assert.Equal(t, loc.GetString("unauthorized.text"), screen.Text)
}

func TestHandle_MyChatsPaging(t *testing.T) {
	engine, db := newTestEngine(t)

	for i := 0; i < myChatsPageSize+2; i++ {
		seedChat(t, db, models.Chat{
			ID:     int64(-100 - i),
			Title:  "Chat " + string(rune('A'+i)),
			Admins: models.AdminList{10},
		})
	}

	loc := engine.locales.Locale("en")

	screen := engine.Handle(10, "en", tok(engine, "mychats", "0"))
	var next, prev bool
	for _, row := range screen.Keyboard {
		for _, b := range row {
			next = next || b.Text == loc.GetString("my_chats.next_btn")
			prev = prev || b.Text == loc.GetString("my_chats.prev_btn")
		}
	}
	assert.True(t, next)
	assert.False(t, prev)

	screen = engine.Handle(10, "en", tok(engine, "mychats", strconv.Itoa(myChatsPageSize)))
	next, prev = false, false
	for _, row := range screen.Keyboard {
		for _, b := range row {
			next = next || b.Text == loc.GetString("my_chats.next_btn")
			prev = prev || b.Text == loc.GetString("my_chats.prev_btn")
		}
	}
	assert.False(t, next)
	assert.True(t, prev)
}

func TestHandle_DeleteCategory(t *testing.T) {
	engine, db := newTestEngine(t)
	makeAdmin(t, engine, 20)

	rootID := models.RootDirectoryID
	scienceID, err := engine.dirs.CreateNode(ptr("Science"), nil, nil, &rootID)
	require.NoError(t, err)
	seedChat(t, db, models.Chat{ID: -100, Title: "Physics", DirectoryID: &scienceID})

	loc := engine.locales.Locale("en")
	idField := strconv.FormatInt(scienceID, 10)

	screen := engine.Handle(20, "en", tok(engine, "rmdir", idField))
	assert.Equal(t, loc.GetString("curator.not_empty_alert"), screen.Alert)

	require.NoError(t, db.Delete(&models.Chat{}, "chat_id = ?", -100).Error)

	screen = engine.Handle(20, "en", tok(engine, "rmdir", idField))
	assert.Empty(t, screen.Alert)
	assert.Contains(t, screen.Text, "Science")

	screen = engine.Handle(20, "en", tok(engine, "rmdir!", idField))
	assert.Equal(t, loc.GetString("curator.deleted_text"), screen.Text)

	_, err = engine.dirs.GetNode(scienceID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandle_RootCannotBeDeleted(t *testing.T) {
	engine, _ := newTestEngine(t)
	makeAdmin(t, engine, 20)

	loc := engine.locales.Locale("en")
	rootField := strconv.FormatInt(models.RootDirectoryID, 10)

	screen := engine.Handle(20, "en", tok(engine, "rmdir", rootField))
	assert.Equal(t, loc.GetString("curator.root_delete_alert"), screen.Alert)

	screen = engine.Handle(20, "en", tok(engine, "rmdir!", rootField))
	assert.Equal(t, loc.GetString("curator.root_delete_alert"), screen.Alert)
}

func TestHandle_HideChatAdjustsCounts(t *testing.T) {
	engine, db := newTestEngine(t)
	makeAdmin(t, engine, 20)

	rootID := models.RootDirectoryID
	seedChat(t, db, models.Chat{ID: -100, Title: "Physics", DirectoryID: &rootID})

	count, err := engine.dirs.GetChatCount(rootID, true, false)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	engine.Handle(20, "en", tok(engine, "hidechat", "-100"))
	count, err = engine.dirs.GetChatCount(rootID, true, false)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	engine.Handle(20, "en", tok(engine, "showchat", "-100"))
	count, err = engine.dirs.GetChatCount(rootID, true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHandle_HideCategoryRefreshesAncestorCounts(t *testing.T) {
	engine, db := newTestEngine(t)
	makeAdmin(t, engine, 20)

	rootID := models.RootDirectoryID
	scienceID, err := engine.dirs.CreateNode(ptr("Science"), nil, nil, &rootID)
	require.NoError(t, err)
	seedChat(t, db, models.Chat{ID: -100, Title: "Physics", DirectoryID: &scienceID})

	count, err := engine.dirs.GetChatCount(rootID, true, false)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	engine.Handle(20, "en", tok(engine, "hidecat", strconv.FormatInt(scienceID, 10)))

	count, err = engine.dirs.GetChatCount(rootID, true, false)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAdmin_CreateRenameCategory(t *testing.T) {
	engine, _ := newTestEngine(t)

	reply := engine.CreateCategory(10, "en", models.RootDirectoryID, ptr("Science"), nil)
	loc := engine.locales.Locale("en")
	assert.Equal(t, loc.GetString("admin.not_allowed"), reply)

	makeAdmin(t, engine, 20)
	reply = engine.CreateCategory(20, "en", models.RootDirectoryID, ptr("Science"), ptr("Scienza"))
	assert.Contains(t, reply, "Created category")

	children, err := engine.dirs.GetChildren(models.RootDirectoryID)
	require.NoError(t, err)
	require.Len(t, children, 1)

	var scienceID int64
	for id := range children {
		scienceID = id
	}
	reply = engine.RenameCategory(20, "en", scienceID, ptr("Sciences"), ptr("Scienze"))
	assert.Contains(t, reply, "renamed")

	node, err := engine.dirs.GetNode(scienceID)
	require.NoError(t, err)
	assert.Equal(t, "Sciences", *node.NameEN)
}

func TestAdmin_MoveCategoryRejectsCycles(t *testing.T) {
	engine, _ := newTestEngine(t)
	makeAdmin(t, engine, 20)

	rootID := models.RootDirectoryID
	aID, err := engine.dirs.CreateNode(ptr("A"), nil, nil, &rootID)
	require.NoError(t, err)
	bID, err := engine.dirs.CreateNode(ptr("B"), nil, nil, &aID)
	require.NoError(t, err)

	loc := engine.locales.Locale("en")
	reply := engine.MoveCategory(20, "en", aID, bID)
	assert.Equal(t, loc.GetString("admin.cycle"), reply)

	reply = engine.MoveCategory(20, "en", bID, rootID)
	assert.Contains(t, reply, "moved")

	node, err := engine.dirs.GetNode(bID)
	require.NoError(t, err)
	assert.Equal(t, rootID, *node.ParentID)
}

func TestAdmin_MoveChat(t *testing.T) {
	engine, db := newTestEngine(t)
	makeAdmin(t, engine, 20)

	rootID := models.RootDirectoryID
	scienceID, err := engine.dirs.CreateNode(ptr("Science"), nil, nil, &rootID)
	require.NoError(t, err)
	seedChat(t, db, models.Chat{ID: -100, Title: "Physics"})

	reply := engine.MoveChat(20, "en", -100, scienceID)
	assert.Contains(t, reply, "filed under")

	chat, err := engine.chats.Get(-100)
	require.NoError(t, err)
	require.NotNil(t, chat.DirectoryID)
	assert.Equal(t, scienceID, *chat.DirectoryID)
}

func TestAdmin_SetPermission(t *testing.T) {
	engine, _ := newTestEngine(t)
	makeAdmin(t, engine, 20)

	reply := engine.SetPermission(20, "en", 30, "view", false)
	assert.Contains(t, reply, "updated")

	target, err := engine.accounts.Get(30)
	require.NoError(t, err)
	assert.False(t, target.CanViewGroups)

	// only the owner hands out curator rights
	loc := engine.locales.Locale("en")
	reply = engine.SetPermission(20, "en", 30, "admin", true)
	assert.Equal(t, loc.GetString("admin.not_allowed"), reply)

	require.NoError(t, engine.accounts.MarkOwner(40))
	reply = engine.SetPermission(40, "en", 30, "admin", true)
	assert.Contains(t, reply, "updated")

	reply = engine.SetPermission(20, "en", 30, "bogus", true)
	assert.Equal(t, loc.GetString("admin.bad_args"), reply)
}
