package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/blockedby/groupindex/internal/bot"
	"github.com/blockedby/groupindex/internal/config"
	"github.com/blockedby/groupindex/internal/database"
	"github.com/blockedby/groupindex/internal/i18n"
	"github.com/blockedby/groupindex/internal/logger"
	"github.com/blockedby/groupindex/internal/migrator"
	"github.com/blockedby/groupindex/internal/models"
	"github.com/blockedby/groupindex/internal/navigator"
	"github.com/blockedby/groupindex/internal/refresher"
	"github.com/blockedby/groupindex/internal/store"
	"github.com/blockedby/groupindex/internal/token"
	"github.com/blockedby/groupindex/internal/web"
	"github.com/blockedby/groupindex/migrations"
)

func main() {
	// 1. Load config
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting group directory bot")

	// 3. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 4. Connect to database
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// 5. Apply migrations
	mig, err := migrator.NewWithFS(migrations.FS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init migrator")
	}
	if err := mig.Up(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	// 6. Initialize stores
	dirs := store.NewDirectoryStore(db.GORM, log)
	chats := store.NewChatStore(db.GORM, dirs, log)
	accounts := store.NewAccountStore(db.GORM, log)
	vars := store.NewVarsStore(db.GORM)

	sessions, err := store.NewSessionStore(db.GORM, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init session store")
	}

	if err := seedRoot(dirs); err != nil {
		log.Fatal().Err(err).Msg("failed to seed categories root")
	}
	if cfg.OwnerID != 0 {
		if err := accounts.MarkOwner(cfg.OwnerID); err != nil {
			log.Fatal().Err(err).Msg("failed to mark bot owner")
		}
	}

	// 7. Load locale catalogs
	catalog, err := i18n.Load(cfg.DefaultLang)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load locales")
	}

	// 8. Initialize navigation engine
	registry := token.NewRegistry(navigator.FixedCommands...)
	engine := navigator.NewEngine(dirs, chats, accounts, registry, catalog, cfg.ContactUsername, log)

	// 9. Initialize telegram client and transport
	api, err := telego.NewBot(cfg.BotToken, telego.WithDiscardLogger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create telegram client")
	}

	me, err := api.GetMe()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to reach telegram")
	}

	if cfg.LogChannelID != 0 {
		log.AttachNotifier(func(text string) error {
			_, err := api.SendMessage(&telego.SendMessageParams{
				ChatID: tu.ID(cfg.LogChannelID),
				Text:   text,
			})
			return err
		})
	}

	fetcher := refresher.NewFetcher(
		bot.NewChatAPI(api, me.ID),
		chats, dirs, cfg.MigrationRetryMaxHops, log,
	)
	tgBot := bot.New(api, engine, fetcher, sessions, accounts, catalog, cfg, log)

	// 10. Expire menus left over from the previous process
	if err := tgBot.ExpireSessions(); err != nil {
		log.Warn().Err(err).Msg("failed to expire stale sessions")
	}

	// 11. Start chat refresh sweeper
	sweeper := refresher.NewSweeper(
		fetcher, chats, vars,
		cfg.ChatSweepRPS,
		time.Duration(cfg.ChatSweepIntervalMin)*time.Minute,
		log,
	)
	go sweeper.Run(ctx)

	// 12. Periodic session expiry
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.SessionExpiryHours) * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := tgBot.ExpireSessions(); err != nil {
					log.Warn().Err(err).Msg("session expiry sweep failed")
				}
			}
		}
	}()

	// 13. Start http server
	server := web.NewServer(cfg.HTTPPort, web.NewDBStats(db.GORM), db, log)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// 14. Start update handling
	go func() {
		if err := tgBot.Run(); err != nil {
			log.Error().Err(err).Msg("bot stopped with error")
			cancel()
		}
	}()

	// 15. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down services...")

	tgBot.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}

// seedRoot creates the well-known categories root on first start.
func seedRoot(dirs *store.DirectoryStore) error {
	_, err := dirs.GetNode(models.RootDirectoryID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	rootID := models.RootDirectoryID
	nameEN := "Groups"
	nameIT := "Gruppi"
	_, err = dirs.CreateNode(&nameEN, &nameIT, &rootID, nil)
	return err
}
