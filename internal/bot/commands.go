package bot

import (
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/blockedby/groupindex/internal/i18n"
)

// onStart opens the main menu, replacing any previous one.
func (b *Bot) onStart(_ *telego.Bot, update telego.Update) {
	msg := update.Message
	if !b.privateOnly(msg) {
		return
	}
	b.replaceMenu(msg.From.ID, msg.Chat.ID,
		b.engine.Handle(msg.From.ID, langOf(msg), b.registry.Encode("main_menu")))
}

// onGroups jumps straight into the category browser.
func (b *Bot) onGroups(_ *telego.Bot, update telego.Update) {
	msg := update.Message
	if !b.privateOnly(msg) {
		return
	}
	b.replaceMenu(msg.From.ID, msg.Chat.ID,
		b.engine.Handle(msg.From.ID, langOf(msg), b.registry.Encode("explore_categories")))
}

func (b *Bot) onHelp(_ *telego.Bot, update telego.Update) {
	msg := update.Message
	if !b.privateOnly(msg) {
		return
	}
	b.reply(msg.Chat.ID, b.locale(msg).GetString("commands.help"))
}

// onLang stores the user's preferred catalog language.
func (b *Bot) onLang(_ *telego.Bot, update telego.Update) {
	msg := update.Message
	if !b.privateOnly(msg) {
		return
	}

	args := commandArgs(msg.Text)
	loc := b.locale(msg)
	if len(args) != 1 {
		b.reply(msg.Chat.ID, loc.GetString("admin.bad_args"))
		return
	}

	if _, err := b.accounts.Get(msg.From.ID); err != nil {
		b.reply(msg.Chat.ID, loc.GetString("admin.db_error"))
		return
	}
	if err := b.accounts.SetLangCode(msg.From.ID, args[0]); err != nil {
		b.reply(msg.Chat.ID, loc.GetString("admin.db_error"))
		return
	}
	b.replaceMenu(msg.From.ID, msg.Chat.ID,
		b.engine.Handle(msg.From.ID, args[0], b.registry.Encode("main_menu")))
}

// onMkdir handles "/mkdir parent_id EN name | IT name".
func (b *Bot) onMkdir(_ *telego.Bot, update telego.Update) {
	msg := update.Message
	if !b.privateOnly(msg) {
		return
	}

	id, nameEN, nameIT, ok := idAndNames(msg.Text)
	if !ok {
		b.reply(msg.Chat.ID, b.locale(msg).GetString("admin.bad_args"))
		return
	}
	b.reply(msg.Chat.ID, b.engine.CreateCategory(msg.From.ID, langOf(msg), id, nameEN, nameIT))
}

// onRename handles "/rename id EN name | IT name".
func (b *Bot) onRename(_ *telego.Bot, update telego.Update) {
	msg := update.Message
	if !b.privateOnly(msg) {
		return
	}

	id, nameEN, nameIT, ok := idAndNames(msg.Text)
	if !ok {
		b.reply(msg.Chat.ID, b.locale(msg).GetString("admin.bad_args"))
		return
	}
	b.reply(msg.Chat.ID, b.engine.RenameCategory(msg.From.ID, langOf(msg), id, nameEN, nameIT))
}

// onMoveCategory handles "/mvcat id new_parent_id".
func (b *Bot) onMoveCategory(_ *telego.Bot, update telego.Update) {
	msg := update.Message
	if !b.privateOnly(msg) {
		return
	}

	ids, ok := intArgs(msg.Text, 2)
	if !ok {
		b.reply(msg.Chat.ID, b.locale(msg).GetString("admin.bad_args"))
		return
	}
	b.reply(msg.Chat.ID, b.engine.MoveCategory(msg.From.ID, langOf(msg), ids[0], ids[1]))
}

// onDeleteCategory handles "/rmdir id".
func (b *Bot) onDeleteCategory(_ *telego.Bot, update telego.Update) {
	msg := update.Message
	if !b.privateOnly(msg) {
		return
	}

	ids, ok := intArgs(msg.Text, 1)
	if !ok {
		b.reply(msg.Chat.ID, b.locale(msg).GetString("admin.bad_args"))
		return
	}
	b.reply(msg.Chat.ID, b.engine.DeleteCategory(msg.From.ID, langOf(msg), ids[0]))
}

// onMoveChat handles "/mvchat chat_id category_id".
func (b *Bot) onMoveChat(_ *telego.Bot, update telego.Update) {
	msg := update.Message
	if !b.privateOnly(msg) {
		return
	}

	ids, ok := intArgs(msg.Text, 2)
	if !ok {
		b.reply(msg.Chat.ID, b.locale(msg).GetString("admin.bad_args"))
		return
	}
	b.reply(msg.Chat.ID, b.engine.MoveChat(msg.From.ID, langOf(msg), ids[0], ids[1]))
}

// onGrant handles "/grant user_id flag on|off".
func (b *Bot) onGrant(_ *telego.Bot, update telego.Update) {
	msg := update.Message
	if !b.privateOnly(msg) {
		return
	}

	args := commandArgs(msg.Text)
	loc := b.locale(msg)
	if len(args) != 3 {
		b.reply(msg.Chat.ID, loc.GetString("admin.bad_args"))
		return
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.reply(msg.Chat.ID, loc.GetString("admin.bad_args"))
		return
	}

	var value bool
	switch args[2] {
	case "on":
		value = true
	case "off":
		value = false
	default:
		b.reply(msg.Chat.ID, loc.GetString("admin.bad_args"))
		return
	}

	b.reply(msg.Chat.ID, b.engine.SetPermission(msg.From.ID, langOf(msg), targetID, args[1], value))
}

// privateOnly gates menu commands to the private chat with the bot.
func (b *Bot) privateOnly(msg *telego.Message) bool {
	if msg == nil || msg.From == nil {
		return false
	}
	if msg.Chat.Type == telego.ChatTypePrivate {
		return true
	}
	b.reply(msg.Chat.ID, b.locale(msg).GetString("commands.group_menu_removed"))
	return false
}

func (b *Bot) reply(chatID int64, text string) {
	_, err := b.api.SendMessage(&telego.SendMessageParams{
		ChatID:             tu.ID(chatID),
		Text:               text,
		ParseMode:          telego.ModeHTML,
		LinkPreviewOptions: &telego.LinkPreviewOptions{IsDisabled: true},
	})
	if err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
	}
}

func (b *Bot) locale(msg *telego.Message) *i18n.Locale {
	return b.locales.Locale(langOf(msg))
}

func langOf(msg *telego.Message) string {
	if msg.From != nil {
		return msg.From.LanguageCode
	}
	return ""
}

// commandArgs strips the leading "/command" and returns the rest as
// whitespace-separated fields.
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	return fields[1:]
}

// intArgs parses exactly n integer arguments.
func intArgs(text string, n int) ([]int64, bool) {
	args := commandArgs(text)
	if len(args) != n {
		return nil, false
	}
	out := make([]int64, n)
	for i, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, false
		}
		out[i] = id
	}
	return out, true
}

// idAndNames parses "<id> EN name | IT name" after the command word.
// Either side of the pipe may be left empty; a missing pipe means the
// whole name is the default-language one.
func idAndNames(text string) (int64, *string, *string, bool) {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return 0, nil, nil, false
	}

	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, nil, nil, false
	}

	rest := strings.TrimSpace(strings.SplitN(text, fields[1], 2)[1])
	var nameEN, nameIT *string

	parts := strings.SplitN(rest, "|", 2)
	if en := strings.TrimSpace(parts[0]); en != "" {
		nameEN = &en
	}
	if len(parts) == 2 {
		if it := strings.TrimSpace(parts[1]); it != "" {
			nameIT = &it
		}
	}

	if nameEN == nil && nameIT == nil {
		return 0, nil, nil, false
	}
	return id, nameEN, nameIT, true
}
