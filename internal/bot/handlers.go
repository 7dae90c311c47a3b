package bot

import (
	"context"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/blockedby/groupindex/internal/navigator"
	"github.com/blockedby/groupindex/internal/token"
)

// onCallback routes a menu tap through the navigation engine and
// renders the resulting screen in place of the tapped menu.
func (b *Bot) onCallback(_ *telego.Bot, query telego.CallbackQuery) {
	msg, ok := query.Message.(*telego.Message)
	if !ok {
		// inaccessible message, nothing to edit
		b.answer(query.ID, "", false)
		return
	}

	chat := msg.Chat
	if chat.Type != telego.ChatTypePrivate {
		// menus are private-only; stray ones in groups get removed
		b.answer(query.ID, "", false)
		_ = b.api.DeleteMessage(&telego.DeleteMessageParams{
			ChatID:    tu.ID(chat.ID),
			MessageID: msg.MessageID,
		})
		return
	}

	userID := query.From.ID
	messageID := int64(msg.MessageID)

	// taps on a menu that is no longer the user's active one get the
	// expired screen instead of acting on stale state
	if active, known := b.sessions.Get(userID); known && active != messageID {
		b.answer(query.ID, "", false)
		b.editScreen(chat.ID, msg.MessageID, b.engine.ExpiredSessionScreen(query.From.LanguageCode))
		return
	}

	screen := b.engine.Handle(userID, query.From.LanguageCode, query.Data)

	if screen.Alert != "" {
		b.answer(query.ID, screen.Alert, true)
		return
	}
	b.answer(query.ID, "", false)

	b.editScreen(chat.ID, msg.MessageID, screen)
	if _, known := b.sessions.Get(userID); known {
		b.sessions.Update(userID, messageID)
	} else {
		b.sessions.Set(userID, messageID)
	}
}

// onMyChatMember reacts to the bot's own membership changing in a
// group: joins and promotions trigger a sync, removals drop the record.
func (b *Bot) onMyChatMember(_ *telego.Bot, update telego.Update) {
	mc := update.MyChatMember
	if mc.Chat.Type != telego.ChatTypeGroup && mc.Chat.Type != telego.ChatTypeSupergroup {
		return
	}

	chatID := mc.Chat.ID
	status := mc.NewChatMember.MemberStatus()

	switch status {
	case telego.MemberStatusLeft, telego.MemberStatusBanned:
		b.log.Info().Int64("chat_id", chatID).Str("status", status).Msg("bot removed from chat")
		if err := b.fetcher.RemoveChat(chatID); err != nil {
			b.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to drop removed chat")
		}
	default:
		b.log.Info().Int64("chat_id", chatID).Str("status", status).Msg("bot membership changed")
		go func() {
			if err := b.fetcher.SyncChat(context.Background(), chatID); err != nil {
				b.log.Error().Err(err).Int64("chat_id", chatID).Msg("membership-triggered sync failed")
			}
		}()
	}
}

// onMigration reacts to the migration service message a group posts
// when it is promoted to a supergroup under a new id: the record is
// reconciled right away instead of waiting for the next sweep. Syncing
// the old id lets the platform's migration answer carry the curated
// fields onto the new record.
func (b *Bot) onMigration(_ *telego.Bot, update telego.Update) {
	oldID := update.Message.Chat.ID
	newID := update.Message.MigrateToChatID

	b.log.Info().
		Int64("chat_id", oldID).
		Int64("new_chat_id", newID).
		Msg("chat migration message received")

	if err := b.fetcher.SyncChat(context.Background(), oldID); err != nil {
		b.log.Error().Err(err).Int64("chat_id", oldID).Msg("migration-triggered sync failed")
	}
}

func (b *Bot) answer(queryID, text string, alert bool) {
	err := b.api.AnswerCallbackQuery(&telego.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to answer callback query")
	}
}

// editScreen redraws an existing menu message in place.
func (b *Bot) editScreen(chatID int64, messageID int, screen navigator.Screen) {
	_, err := b.api.EditMessageText(&telego.EditMessageTextParams{
		ChatID:             tu.ID(chatID),
		MessageID:          messageID,
		Text:               screen.Text,
		ParseMode:          telego.ModeHTML,
		LinkPreviewOptions: &telego.LinkPreviewOptions{IsDisabled: true},
		ReplyMarkup:        b.inlineKeyboard(screen.Keyboard),
	})
	if err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to edit menu message")
	}
}

// replaceMenu deletes the user's previous menu, sends the screen as a
// fresh message and records it as the active session menu.
func (b *Bot) replaceMenu(userID, chatID int64, screen navigator.Screen) {
	if old, known := b.sessions.Get(userID); known {
		_ = b.api.DeleteMessage(&telego.DeleteMessageParams{
			ChatID:    tu.ID(chatID),
			MessageID: int(old),
		})
	}

	msg, err := b.api.SendMessage(&telego.SendMessageParams{
		ChatID:             tu.ID(chatID),
		Text:               screen.Text,
		ParseMode:          telego.ModeHTML,
		LinkPreviewOptions: &telego.LinkPreviewOptions{IsDisabled: true},
		ReplyMarkup:        b.inlineKeyboard(screen.Keyboard),
	})
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send menu message")
		return
	}

	if _, known := b.sessions.Get(userID); known {
		b.sessions.Update(userID, int64(msg.MessageID))
	} else {
		b.sessions.Set(userID, int64(msg.MessageID))
	}
}

// inlineKeyboard encodes a screen keyboard onto the wire: commands
// become registry tokens, URL buttons pass through.
func (b *Bot) inlineKeyboard(keyboard [][]navigator.Button) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			out := telego.InlineKeyboardButton{Text: btn.Text}
			if btn.URL != "" {
				out.URL = btn.URL
			} else {
				t := b.registry.Encode(btn.Command)
				if t == token.Unregistered {
					b.log.Error().Str("command", btn.Command).Msg("keyboard carries unregistered command")
					continue
				}
				out.CallbackData = t
			}
			buttons = append(buttons, out)
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}
