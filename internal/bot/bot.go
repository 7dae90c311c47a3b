// Package bot is the Telegram transport layer: it receives updates,
// hands callbacks to the navigation engine and renders the resulting
// screens back as inline-keyboard menus.
package bot

import (
	"fmt"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"github.com/blockedby/groupindex/internal/config"
	"github.com/blockedby/groupindex/internal/i18n"
	"github.com/blockedby/groupindex/internal/logger"
	"github.com/blockedby/groupindex/internal/navigator"
	"github.com/blockedby/groupindex/internal/refresher"
	"github.com/blockedby/groupindex/internal/store"
	"github.com/blockedby/groupindex/internal/token"
)

type Bot struct {
	api      *telego.Bot
	engine   *navigator.Engine
	fetcher  *refresher.Fetcher
	sessions *store.SessionStore
	accounts *store.AccountStore
	registry *token.Registry
	locales  *i18n.Catalog
	cfg      *config.Config
	log      *logger.Logger

	handler *th.BotHandler
	selfID  int64
}

func New(
	api *telego.Bot,
	engine *navigator.Engine,
	fetcher *refresher.Fetcher,
	sessions *store.SessionStore,
	accounts *store.AccountStore,
	locales *i18n.Catalog,
	cfg *config.Config,
	log *logger.Logger,
) *Bot {
	return &Bot{
		api:      api,
		engine:   engine,
		fetcher:  fetcher,
		sessions: sessions,
		accounts: accounts,
		registry: engine.Registry(),
		locales:  locales,
		cfg:      cfg,
		log:      log,
	}
}

// SelfID returns the bot's own user id, valid after Run started.
func (b *Bot) SelfID() int64 { return b.selfID }

// Run starts long polling and blocks until Stop is called.
func (b *Bot) Run() error {
	botUser, err := b.api.GetMe()
	if err != nil {
		return fmt.Errorf("get bot identity: %w", err)
	}
	b.selfID = botUser.ID

	b.log.Info().
		Int64("id", botUser.ID).
		Str("username", botUser.Username).
		Msg("bot identity confirmed")

	updates, err := b.api.UpdatesViaLongPolling(nil)
	if err != nil {
		return fmt.Errorf("open updates channel: %w", err)
	}

	bh, err := th.NewBotHandler(b.api, updates)
	if err != nil {
		return fmt.Errorf("init update handler: %w", err)
	}
	b.handler = bh

	bh.HandleCallbackQuery(b.onCallback, th.AnyCallbackQuery())

	bh.Handle(b.onStart, th.CommandEqual("start"))
	bh.Handle(b.onGroups, th.CommandEqual("groups"))
	bh.Handle(b.onHelp, th.CommandEqual("help"))
	bh.Handle(b.onLang, th.CommandEqual("lang"))
	bh.Handle(b.onMkdir, th.CommandEqual("mkdir"))
	bh.Handle(b.onRename, th.CommandEqual("rename"))
	bh.Handle(b.onMoveCategory, th.CommandEqual("mvcat"))
	bh.Handle(b.onDeleteCategory, th.CommandEqual("rmdir"))
	bh.Handle(b.onMoveChat, th.CommandEqual("mvchat"))
	bh.Handle(b.onGrant, th.CommandEqual("grant"))

	bh.Handle(b.onMyChatMember, func(update telego.Update) bool {
		return update.MyChatMember != nil
	})
	bh.Handle(b.onMigration, func(update telego.Update) bool {
		return update.Message != nil && update.Message.MigrateToChatID != 0
	})

	bh.Start()
	return nil
}

// Stop ends update handling and long polling, letting Run return.
func (b *Bot) Stop() {
	if b.handler != nil {
		b.handler.Stop()
	}
	b.api.StopLongPolling()
}

// ExpireSessions redraws every persisted menu as expired and clears the
// session table. Menus rendered by an earlier process carry tokens this
// one cannot decode, so the screens are replaced wholesale.
func (b *Bot) ExpireSessions() error {
	return b.sessions.ExpireAll(func(chatID, messageID int64) {
		b.editScreen(chatID, int(messageID), b.engine.ExpiredSessionScreen(b.cfg.DefaultLang))
	})
}
