package store

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blockedby/groupindex/internal/logger"
	"github.com/blockedby/groupindex/internal/models"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// a second pooled connection would see an empty :memory: database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Directory{},
		&models.Account{},
		&models.Chat{},
		&models.Session{},
		&models.PersistentVar{},
	))

	return db
}

func newTestStores(t *testing.T) (*DirectoryStore, *ChatStore) {
	t.Helper()

	db := newTestDB(t)
	dirs := NewDirectoryStore(db, logger.Nop())
	chats := NewChatStore(db, dirs, logger.Nop())
	return dirs, chats
}

func ptr[T any](v T) *T { return &v }

// seedChat inserts a chat row directly, bypassing store logic.
func seedChat(t *testing.T, db *gorm.DB, chat models.Chat) {
	t.Helper()
	require.NoError(t, db.Create(&chat).Error)
}
