// Package navigator turns decoded callback commands into screens. It
// owns the permission table, the menu tree and every curator operation;
// the transport layer only delivers tokens and renders Screen values.
package navigator

import (
	"strconv"
	"strings"

	"github.com/blockedby/groupindex/internal/i18n"
	"github.com/blockedby/groupindex/internal/logger"
	"github.com/blockedby/groupindex/internal/models"
	"github.com/blockedby/groupindex/internal/store"
	"github.com/blockedby/groupindex/internal/token"
)

// FixedCommands are registered with stable tokens at startup so that
// keyboards from previous sessions keep resolving after a restart.
var FixedCommands = []string{
	"main_menu",
	"refresh_session",
	"about_menu",
	"explore_categories",
	"wip_alert",
	"expired_session_about_alert",
}

// Screen is one rendered reply: either a message with an inline
// keyboard, or a popup alert when Alert is set.
type Screen struct {
	Text     string
	Keyboard [][]Button
	Alert    string
}

// Button carries either a command (routed back through the token
// registry) or an external URL, never both.
type Button struct {
	Text    string
	Command string
	URL     string
}

type Engine struct {
	dirs     *store.DirectoryStore
	chats    *store.ChatStore
	accounts *store.AccountStore
	registry *token.Registry
	locales  *i18n.Catalog
	contact  string
	log      *logger.Logger
}

func NewEngine(
	dirs *store.DirectoryStore,
	chats *store.ChatStore,
	accounts *store.AccountStore,
	registry *token.Registry,
	locales *i18n.Catalog,
	contactUsername string,
	log *logger.Logger,
) *Engine {
	return &Engine{
		dirs:     dirs,
		chats:    chats,
		accounts: accounts,
		registry: registry,
		locales:  locales,
		contact:  contactUsername,
		log:      log,
	}
}

// Registry exposes the token registry so the transport layer can encode
// keyboards built by this engine.
func (e *Engine) Registry() *token.Registry { return e.registry }

// Handle resolves a callback token for a user and returns the next
// screen. It never returns an error: failures map to the database error
// screen, stale or unknown tokens to the main menu.
func (e *Engine) Handle(userID int64, langCode string, tok string) Screen {
	account, err := e.accounts.Get(userID)
	if err != nil {
		e.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load account")
		return e.databaseErrorScreen(e.locales.Locale(langCode))
	}
	loc := e.locales.Locale(e.userLang(account, langCode))

	command := e.registry.Decode(tok)
	if command == token.Unrecognized {
		e.log.Debug().Str("token", tok).Int64("user_id", userID).Msg("unrecognized callback token")
		command = "main_menu"
	}
	if command == "refresh_session" {
		command = "main_menu"
	}

	fields := strings.Split(command, token.FieldSeparator)
	family := fields[0]

	req, known := commandRequirements[family]
	if !known {
		e.log.Warn().Str("command", command).Msg("command family without permission entry")
		return e.MainMenu(account)
	}
	if !allowed(account, req) {
		return e.unauthorizedScreen(loc)
	}

	switch family {
	case "main_menu":
		return e.MainMenu(account)
	case "about_menu":
		return e.aboutScreen(loc)
	case "wip_alert":
		return Screen{Alert: loc.GetString("wip_alert")}
	case "expired_session_about_alert":
		return Screen{Alert: loc.GetString("expired_session_menu.about_alert")}
	case "explore_categories":
		return e.browseScreen(account, loc, models.RootDirectoryID)
	case "cd":
		id, ok := e.parseID(fields, 1, command)
		if !ok {
			return e.MainMenu(account)
		}
		return e.browseScreen(account, loc, id)
	case "mychats":
		offset := 0
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil {
				offset = n
			}
		}
		return e.myChatsScreen(account, loc, offset)
	case "selcat":
		chatID, ok1 := e.parseID(fields, 1, command)
		catID, ok2 := e.parseID(fields, 2, command)
		if !ok1 || !ok2 {
			return e.MainMenu(account)
		}
		return e.selectCategoryScreen(account, loc, chatID, catID)
	case "idx":
		chatID, ok1 := e.parseID(fields, 1, command)
		catID, ok2 := e.parseID(fields, 2, command)
		if !ok1 || !ok2 {
			return e.MainMenu(account)
		}
		return e.indexChat(account, loc, chatID, catID)
	case "unidx":
		chatID, ok := e.parseID(fields, 1, command)
		if !ok {
			return e.MainMenu(account)
		}
		return e.unindexChat(account, loc, chatID)
	case "mkdir", "rename":
		id, ok := e.parseID(fields, 1, command)
		if !ok {
			return e.MainMenu(account)
		}
		return e.curatorHintScreen(loc, family, id)
	case "hidecat", "showcat":
		id, ok := e.parseID(fields, 1, command)
		if !ok {
			return e.MainMenu(account)
		}
		return e.setCategoryHidden(account, loc, id, family == "hidecat")
	case "rmdir":
		id, ok := e.parseID(fields, 1, command)
		if !ok {
			return e.MainMenu(account)
		}
		return e.deleteConfirmScreen(account, loc, id)
	case "rmdir!":
		id, ok := e.parseID(fields, 1, command)
		if !ok {
			return e.MainMenu(account)
		}
		return e.deleteCategory(account, loc, id)
	case "hidechat", "showchat":
		chatID, ok := e.parseID(fields, 1, command)
		if !ok {
			return e.MainMenu(account)
		}
		return e.setChatHidden(account, loc, chatID, family == "hidechat")
	}

	return e.MainMenu(account)
}

func (e *Engine) parseID(fields []string, idx int, command string) (int64, bool) {
	if idx >= len(fields) {
		e.log.Warn().Str("command", command).Msg("command missing numeric field")
		return 0, false
	}
	id, err := strconv.ParseInt(fields[idx], 10, 64)
	if err != nil {
		e.log.Warn().Str("command", command).Msg("command carries non-numeric field")
		return 0, false
	}
	return id, true
}

// userLang picks the stored preference over the language the client
// reported for this update.
func (e *Engine) userLang(account *models.Account, langCode string) string {
	if account.PrefLangCode != nil {
		return *account.PrefLangCode
	}
	return langCode
}

// btn builds a command button, registering the command so its token is
// resolvable when the callback comes back.
func (e *Engine) btn(text string, fields ...string) Button {
	command := strings.Join(fields, token.FieldSeparator)
	e.registry.Register(command)
	return Button{Text: text, Command: command}
}

func urlBtn(text, url string) Button {
	return Button{Text: text, URL: url}
}
