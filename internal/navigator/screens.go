package navigator

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blockedby/groupindex/internal/i18n"
	"github.com/blockedby/groupindex/internal/models"
	"github.com/blockedby/groupindex/internal/store"
)

const myChatsPageSize = 10

// MainMenu is the home screen. Buttons are filtered by the account's
// permissions so users never see entries they cannot open.
func (e *Engine) MainMenu(account *models.Account) Screen {
	loc := e.locales.Locale(e.userLang(account, e.locales.DefaultLang()))

	var keyboard [][]Button
	if allowed(account, reqViewGroups) {
		keyboard = append(keyboard, []Button{
			e.btn(loc.GetString("main_menu.explore_btn"), "explore_categories"),
		})
	}
	if allowed(account, reqAddGroups) {
		keyboard = append(keyboard, []Button{
			e.btn(loc.GetString("main_menu.my_chats_btn"), "mychats", "0"),
		})
	}
	keyboard = append(keyboard, []Button{
		e.btn(loc.GetString("main_menu.about_btn"), "about_menu"),
	})

	return Screen{Text: loc.GetString("main_menu.text"), Keyboard: keyboard}
}

func (e *Engine) aboutScreen(loc *i18n.Locale) Screen {
	return Screen{
		Text: loc.GetString("about_menu.text"),
		Keyboard: [][]Button{
			{e.btn(loc.GetString("about_menu.back_btn"), "main_menu")},
		},
	}
}

// ExpiredSessionScreen replaces a menu whose token state predates the
// current process. The refresh button carries a fixed command so it
// survives any number of restarts.
func (e *Engine) ExpiredSessionScreen(langCode string) Screen {
	loc := e.locales.Locale(langCode)
	return Screen{
		Text: loc.GetString("expired_session_menu.text"),
		Keyboard: [][]Button{
			{e.btn(loc.GetString("expired_session_menu.refresh_btn"), "refresh_session")},
			{e.btn("ℹ️", "expired_session_about_alert")},
		},
	}
}

func (e *Engine) databaseErrorScreen(loc *i18n.Locale) Screen {
	keyboard := [][]Button{}
	if e.contact != "" {
		keyboard = append(keyboard, []Button{
			urlBtn(loc.GetString("database_error.contact_us_btn"), "https://t.me/"+e.contact),
		})
	}
	keyboard = append(keyboard, []Button{
		e.btn(loc.GetString("database_error.back_btn"), "main_menu"),
	})
	return Screen{Text: loc.GetString("database_error.text"), Keyboard: keyboard}
}

func (e *Engine) unauthorizedScreen(loc *i18n.Locale) Screen {
	return Screen{
		Text: loc.GetString("unauthorized.text"),
		Keyboard: [][]Button{
			{e.btn(loc.GetString("unauthorized.back_btn"), "main_menu")},
		},
	}
}

// browseScreen renders one category: its path header, sub-category
// buttons with live chat counts, and the groups filed directly under it.
func (e *Engine) browseScreen(account *models.Account, loc *i18n.Locale, id int64) Screen {
	node, err := e.dirs.GetNode(id)
	if errors.Is(err, store.ErrNotFound) {
		return e.MainMenu(account)
	}
	if err != nil {
		e.log.Error().Err(err).Int64("directory_id", id).Msg("failed to load category")
		return e.databaseErrorScreen(loc)
	}

	path, err := e.dirs.GetFullPathName(loc.Lang(), e.locales.DefaultLang(), id)
	if err != nil {
		return e.databaseErrorScreen(loc)
	}

	var text strings.Builder
	text.WriteString("<b>" + html.EscapeString(path) + "</b>\n\n")

	children, err := e.visibleChildren(account, id)
	if err != nil {
		return e.databaseErrorScreen(loc)
	}

	var keyboard [][]Button
	if len(children) > 0 {
		text.WriteString(loc.GetString("explore_groups.category.sub_categories_line") + "\n")
		for _, child := range children {
			count, err := e.dirs.GetChatCount(child.ID, true, false)
			if err != nil {
				return e.databaseErrorScreen(loc)
			}
			label := store.NodeName(child, loc.Lang(), e.locales.DefaultLang())
			if child.Hidden() {
				label = "🙈 " + label
			}
			keyboard = append(keyboard, []Button{
				e.btn(fmt.Sprintf("%s [%d]", label, count), "cd", strconv.FormatInt(child.ID, 10)),
			})
		}
	}

	chats, err := e.chats.GetChildren(id, store.ChatFilters{
		IncludeHidden: account.IsAdmin,
		ViewerID:      account.ID,
	})
	if err != nil {
		return e.databaseErrorScreen(loc)
	}

	if len(chats) > 0 {
		if len(children) > 0 {
			text.WriteString("\n")
		}
		text.WriteString(loc.GetString("explore_groups.category.no_category_groups_line") + "\n")
		for _, chat := range sortedChats(chats) {
			text.WriteString("• " + html.EscapeString(chat.Title))
			if link := chat.JoinLink(); link != "" {
				text.WriteString(fmt.Sprintf(" <a href=%q>%s</a>",
					link, loc.GetString("explore_groups.join_href_text")))
			}
			text.WriteString("\n")
		}
		text.WriteString("\n" + e.generationDateLine(loc) + "\n")

		if account.IsAdmin {
			for _, chat := range sortedChats(chats) {
				family, key := "hidechat", "curator.hide_chat_btn"
				if chat.HiddenBy != nil {
					family, key = "showchat", "curator.unhide_chat_btn"
				}
				keyboard = append(keyboard, []Button{
					e.btn(loc.GetString(key)+" "+chat.Title, family, strconv.FormatInt(chat.ID, 10)),
				})
			}
		}
	}

	if len(children) == 0 && len(chats) == 0 {
		text.WriteString(loc.GetString("explore_groups.category.empty_line") + "\n")
	}

	if account.IsAdmin {
		keyboard = append(keyboard, e.curatorRows(loc, node)...)
	}
	keyboard = append(keyboard, []Button{e.backButton(loc, node)})

	return Screen{Text: text.String(), Keyboard: keyboard}
}

// curatorRows are the admin-only management buttons appended to every
// category screen.
func (e *Engine) curatorRows(loc *i18n.Locale, node *models.Directory) [][]Button {
	id := strconv.FormatInt(node.ID, 10)

	rows := [][]Button{{
		e.btn(loc.GetString("curator.new_category_btn"), "mkdir", id),
		e.btn(loc.GetString("curator.rename_btn"), "rename", id),
	}}

	if node.ID == models.RootDirectoryID {
		return rows
	}

	visibility := e.btn(loc.GetString("curator.hide_btn"), "hidecat", id)
	if node.Hidden() {
		visibility = e.btn(loc.GetString("curator.unhide_btn"), "showcat", id)
	}
	rows = append(rows, []Button{
		visibility,
		e.btn(loc.GetString("curator.delete_btn"), "rmdir", id),
	})
	return rows
}

func (e *Engine) backButton(loc *i18n.Locale, node *models.Directory) Button {
	if node.ParentID != nil {
		return e.btn(loc.GetString("explore_directories.sub_directory.back_btn"),
			"cd", strconv.FormatInt(*node.ParentID, 10))
	}
	return e.btn(loc.GetString("explore_directories.back_to_menu_btn"), "main_menu")
}

// myChatsScreen is the paged picker over the chats the user administers.
func (e *Engine) myChatsScreen(account *models.Account, loc *i18n.Locale, offset int) Screen {
	total, err := e.chats.GetAdminChatCount(account.ID, false)
	if err != nil {
		return e.databaseErrorScreen(loc)
	}

	if total == 0 {
		return Screen{
			Text: loc.GetString("my_chats.empty_text"),
			Keyboard: [][]Button{
				{e.btn(loc.GetString("my_chats.back_btn"), "main_menu")},
			},
		}
	}

	if offset < 0 || offset >= total {
		offset = 0
	}

	chats, err := e.chats.GetAdminChats(account.ID, offset, myChatsPageSize)
	if err != nil {
		return e.databaseErrorScreen(loc)
	}

	root := strconv.FormatInt(models.RootDirectoryID, 10)
	var keyboard [][]Button
	for _, chat := range chats {
		title := chat.Title
		if chat.Indexed() {
			title = "✅ " + title
		}
		keyboard = append(keyboard, []Button{
			e.btn(title, "selcat", strconv.FormatInt(chat.ID, 10), root),
		})
	}

	var pager []Button
	if offset > 0 {
		prev := offset - myChatsPageSize
		if prev < 0 {
			prev = 0
		}
		pager = append(pager, e.btn(loc.GetString("my_chats.prev_btn"), "mychats", strconv.Itoa(prev)))
	}
	if offset+myChatsPageSize < total {
		pager = append(pager, e.btn(loc.GetString("my_chats.next_btn"), "mychats", strconv.Itoa(offset+myChatsPageSize)))
	}
	if len(pager) > 0 {
		keyboard = append(keyboard, pager)
	}
	keyboard = append(keyboard, []Button{e.btn(loc.GetString("my_chats.back_btn"), "main_menu")})

	return Screen{Text: loc.GetString("my_chats.text"), Keyboard: keyboard}
}

// selectCategoryScreen lets a chat admin navigate the tree and pick the
// category their chat should be filed under.
func (e *Engine) selectCategoryScreen(account *models.Account, loc *i18n.Locale, chatID, catID int64) Screen {
	chat, screen, ok := e.ownChat(account, loc, chatID)
	if !ok {
		return screen
	}

	node, err := e.dirs.GetNode(catID)
	if errors.Is(err, store.ErrNotFound) {
		return e.MainMenu(account)
	}
	if err != nil {
		return e.databaseErrorScreen(loc)
	}

	text := strings.ReplaceAll(loc.GetString("select_category.text"),
		"[chat]", html.EscapeString(chat.Title))

	children, err := e.visibleChildren(account, catID)
	if err != nil {
		return e.databaseErrorScreen(loc)
	}

	chatField := strconv.FormatInt(chatID, 10)
	var keyboard [][]Button
	for _, child := range children {
		keyboard = append(keyboard, []Button{
			e.btn(store.NodeName(child, loc.Lang(), e.locales.DefaultLang()),
				"selcat", chatField, strconv.FormatInt(child.ID, 10)),
		})
	}

	fileHere := strings.ReplaceAll(loc.GetString("select_category.file_here_btn"),
		"[category]", store.NodeName(node, loc.Lang(), e.locales.DefaultLang()))
	keyboard = append(keyboard, []Button{
		e.btn(fileHere, "idx", chatField, strconv.FormatInt(catID, 10)),
	})

	if chat.Indexed() {
		keyboard = append(keyboard, []Button{
			e.btn(loc.GetString("select_category.unindex_btn"), "unidx", chatField),
		})
	}

	back := e.btn(loc.GetString("my_chats.back_btn"), "mychats", "0")
	if node.ParentID != nil {
		back = e.btn(loc.GetString("explore_directories.sub_directory.back_btn"),
			"selcat", chatField, strconv.FormatInt(*node.ParentID, 10))
	}
	keyboard = append(keyboard, []Button{back})

	return Screen{Text: text, Keyboard: keyboard}
}

func (e *Engine) indexChat(account *models.Account, loc *i18n.Locale, chatID, catID int64) Screen {
	chat, screen, ok := e.ownChat(account, loc, chatID)
	if !ok {
		return screen
	}

	if _, err := e.dirs.GetNode(catID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return e.MainMenu(account)
		}
		return e.databaseErrorScreen(loc)
	}

	if err := e.recategorize(chat, &catID); err != nil {
		e.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to file chat")
		return e.databaseErrorScreen(loc)
	}

	path, err := e.dirs.GetFullPathName(loc.Lang(), e.locales.DefaultLang(), catID)
	if err != nil {
		return e.databaseErrorScreen(loc)
	}

	text := strings.ReplaceAll(loc.GetString("index.success_text"),
		"[chat]", html.EscapeString(chat.Title))
	text = strings.ReplaceAll(text, "[category]", html.EscapeString(path))

	return Screen{
		Text: text,
		Keyboard: [][]Button{
			{e.btn(loc.GetString("index.back_btn"), "mychats", "0")},
		},
	}
}

func (e *Engine) unindexChat(account *models.Account, loc *i18n.Locale, chatID int64) Screen {
	chat, screen, ok := e.ownChat(account, loc, chatID)
	if !ok {
		return screen
	}

	if err := e.recategorize(chat, nil); err != nil {
		e.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to unindex chat")
		return e.databaseErrorScreen(loc)
	}

	text := strings.ReplaceAll(loc.GetString("unindex.success_text"),
		"[chat]", html.EscapeString(chat.Title))
	return Screen{
		Text: text,
		Keyboard: [][]Button{
			{e.btn(loc.GetString("index.back_btn"), "mychats", "0")},
		},
	}
}

// ownChat loads a chat and checks the user may manage its directory
// placement: its admins and owner may, as may bot admins.
func (e *Engine) ownChat(account *models.Account, loc *i18n.Locale, chatID int64) (*models.Chat, Screen, bool) {
	chat, err := e.chats.Get(chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, e.MainMenu(account), false
	}
	if err != nil {
		return nil, e.databaseErrorScreen(loc), false
	}

	if account.IsAdmin || account.IsOwner ||
		chat.Admins.Contains(account.ID) ||
		(chat.OwnerID != nil && *chat.OwnerID == account.ID) {
		return chat, Screen{}, true
	}
	return nil, e.unauthorizedScreen(loc), false
}

func (e *Engine) curatorHintScreen(loc *i18n.Locale, family string, id int64) Screen {
	key := "curator.mkdir_hint"
	if family == "rename" {
		key = "curator.rename_hint"
	}
	text := strings.ReplaceAll(loc.GetString(key), "[id]", strconv.FormatInt(id, 10))
	return Screen{
		Text: text,
		Keyboard: [][]Button{
			{e.btn(loc.GetString("explore_directories.sub_directory.back_btn"),
				"cd", strconv.FormatInt(id, 10))},
		},
	}
}

func (e *Engine) setCategoryHidden(account *models.Account, loc *i18n.Locale, id int64, hidden bool) Screen {
	if id == models.RootDirectoryID {
		return e.browseScreen(account, loc, id)
	}

	node, err := e.dirs.GetNode(id)
	if errors.Is(err, store.ErrNotFound) {
		return e.MainMenu(account)
	}
	if err != nil {
		return e.databaseErrorScreen(loc)
	}

	var hiddenBy *int64
	if hidden {
		hiddenBy = &account.ID
	}
	if err := e.dirs.SetHidden(id, hiddenBy); err != nil {
		e.log.Error().Err(err).Int64("directory_id", id).Msg("failed to change category visibility")
		return e.databaseErrorScreen(loc)
	}

	// cached ancestor counts exclude hidden subtrees, so they are stale now
	e.refreshAncestorCounts(node.ParentID)

	return e.browseScreen(account, loc, id)
}

func (e *Engine) deleteConfirmScreen(account *models.Account, loc *i18n.Locale, id int64) Screen {
	if id == models.RootDirectoryID {
		return Screen{Alert: loc.GetString("curator.root_delete_alert")}
	}

	node, err := e.dirs.GetNode(id)
	if errors.Is(err, store.ErrNotFound) {
		return e.MainMenu(account)
	}
	if err != nil {
		return e.databaseErrorScreen(loc)
	}

	empty, err := e.dirs.IsEmpty(id)
	if err != nil {
		return e.databaseErrorScreen(loc)
	}
	if !empty {
		return Screen{Alert: loc.GetString("curator.not_empty_alert")}
	}

	idField := strconv.FormatInt(id, 10)
	text := strings.ReplaceAll(loc.GetString("curator.delete_confirm_text"),
		"[category]", html.EscapeString(store.NodeName(node, loc.Lang(), e.locales.DefaultLang())))

	return Screen{
		Text: text,
		Keyboard: [][]Button{
			{e.btn(loc.GetString("curator.delete_confirm_btn"), "rmdir!", idField)},
			{e.btn(loc.GetString("curator.delete_cancel_btn"), "cd", idField)},
		},
	}
}

func (e *Engine) deleteCategory(account *models.Account, loc *i18n.Locale, id int64) Screen {
	if id == models.RootDirectoryID {
		return Screen{Alert: loc.GetString("curator.root_delete_alert")}
	}

	node, err := e.dirs.GetNode(id)
	if errors.Is(err, store.ErrNotFound) {
		return e.MainMenu(account)
	}
	if err != nil {
		return e.databaseErrorScreen(loc)
	}

	if err := e.dirs.DeleteNode(id); err != nil {
		if errors.Is(err, store.ErrNotEmpty) {
			return Screen{Alert: loc.GetString("curator.not_empty_alert")}
		}
		e.log.Error().Err(err).Int64("directory_id", id).Msg("failed to delete category")
		return e.databaseErrorScreen(loc)
	}

	back := e.btn(loc.GetString("explore_directories.back_to_menu_btn"), "main_menu")
	if node.ParentID != nil {
		back = e.btn(loc.GetString("explore_directories.sub_directory.back_btn"),
			"cd", strconv.FormatInt(*node.ParentID, 10))
	}

	return Screen{
		Text:     loc.GetString("curator.deleted_text"),
		Keyboard: [][]Button{{back}},
	}
}

func (e *Engine) setChatHidden(account *models.Account, loc *i18n.Locale, chatID int64, hidden bool) Screen {
	chat, err := e.chats.Get(chatID)
	if errors.Is(err, store.ErrNotFound) {
		return e.MainMenu(account)
	}
	if err != nil {
		return e.databaseErrorScreen(loc)
	}

	var hiddenBy *int64
	if hidden {
		hiddenBy = &account.ID
	}

	wasCounted := chat.Counted()
	if err := e.chats.SetHidden(chatID, hiddenBy); err != nil {
		e.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to change chat visibility")
		return e.databaseErrorScreen(loc)
	}
	nowCounted := hiddenBy == nil && !chat.MissingPermissions

	if chat.DirectoryID != nil && wasCounted != nowCounted {
		delta := 1
		if !nowCounted {
			delta = -1
		}
		e.dirs.IncrementChatCount(*chat.DirectoryID, delta)
	}

	if chat.DirectoryID != nil {
		return e.browseScreen(account, loc, *chat.DirectoryID)
	}
	return e.MainMenu(account)
}

// recategorize is the single place chats change category. It keeps the
// warm count caches of both the old and the new ancestor chain in step,
// but only for chats that contribute to counts at all.
func (e *Engine) recategorize(chat *models.Chat, newCategory *int64) error {
	if err := e.chats.SetCategory(chat.ID, newCategory); err != nil {
		return err
	}

	if chat.Counted() {
		if chat.DirectoryID != nil {
			e.dirs.IncrementChatCount(*chat.DirectoryID, -1)
		}
		if newCategory != nil {
			e.dirs.IncrementChatCount(*newCategory, 1)
		}
	}

	chat.DirectoryID = newCategory
	return nil
}

// refreshAncestorCounts recomputes the cached counts on the chain above
// a node after a subtree's visibility changed.
func (e *Engine) refreshAncestorCounts(parentID *int64) {
	for parentID != nil {
		id := *parentID
		if _, err := e.dirs.GetChatCount(id, true, true); err != nil {
			e.log.Warn().Err(err).Int64("directory_id", id).Msg("failed to refresh chat count")
			return
		}
		node, err := e.dirs.GetNode(id)
		if err != nil {
			return
		}
		parentID = node.ParentID
	}
}

// visibleChildren returns a category's sub-categories sorted by display
// name. Hidden ones are kept only for bot admins.
func (e *Engine) visibleChildren(account *models.Account, id int64) ([]*models.Directory, error) {
	childMap, err := e.dirs.GetChildren(id)
	if err != nil {
		return nil, err
	}

	children := make([]*models.Directory, 0, len(childMap))
	for _, child := range childMap {
		if child.Hidden() && !account.IsAdmin {
			continue
		}
		children = append(children, child)
	}
	sort.Slice(children, func(i, j int) bool {
		return store.NodeName(children[i], "en", e.locales.DefaultLang()) <
			store.NodeName(children[j], "en", e.locales.DefaultLang())
	})
	return children, nil
}

func sortedChats(chats map[int64]*models.Chat) []*models.Chat {
	out := make([]*models.Chat, 0, len(chats))
	for _, chat := range chats {
		out = append(out, chat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

func (e *Engine) generationDateLine(loc *i18n.Locale) string {
	now := time.Now().UTC()
	line := loc.GetString("explore_groups.category.generation_date_line")
	line = strings.ReplaceAll(line, "[date]", now.Format("02/01/2006"))
	line = strings.ReplaceAll(line, "[time]", now.Format("15:04"))
	return strings.ReplaceAll(line, "[offset]", "00")
}
