package store

import (
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/blockedby/groupindex/internal/logger"
	"github.com/blockedby/groupindex/internal/models"
)

// SessionStore tracks which message currently shows each user's active
// menu screen. The in-memory map serves lookups; a persisted mirror lets
// a restarted process expire screens created before the restart.
type SessionStore struct {
	db  *gorm.DB
	log *logger.Logger

	mu       sync.Mutex
	sessions map[int64]int64
}

// NewSessionStore creates a session store, hydrating the in-memory map
// from the persisted mirror.
func NewSessionStore(db *gorm.DB, log *logger.Logger) (*SessionStore, error) {
	s := &SessionStore{
		db:       db,
		log:      log,
		sessions: make(map[int64]int64),
	}

	var rows []models.Session
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for _, row := range rows {
		s.sessions[row.ChatID] = row.MenuMessageID
	}

	return s, nil
}

// Get returns the message id of the user's active screen.
func (s *SessionStore) Get(userID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messageID, ok := s.sessions[userID]
	return messageID, ok
}

// Set records a new session for a user seen for the first time.
func (s *SessionStore) Set(userID, messageID int64) {
	s.mu.Lock()
	s.sessions[userID] = messageID
	s.mu.Unlock()

	if err := s.db.Create(&models.Session{ChatID: userID, MenuMessageID: messageID}).Error; err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("persist session")
	}
}

// Update points an existing session at a new message.
func (s *SessionStore) Update(userID, messageID int64) {
	s.mu.Lock()
	s.sessions[userID] = messageID
	s.mu.Unlock()

	if err := s.db.Model(&models.Session{}).Where("chat_id = ?", userID).
		Update("menu_message_id", messageID).Error; err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("update session")
	}
}

// ExpireAll invokes notify for every tracked session (best effort: the
// callback swallows its own failures per entry), then clears the table
// and the map in one step. Used after restarts, when the token registry
// has forgotten every callback the stale screens carry.
func (s *SessionStore) ExpireAll(notify func(chatID, messageID int64)) error {
	var rows []models.Session
	if err := s.db.Find(&rows).Error; err != nil {
		return fmt.Errorf("load sessions to expire: %w", err)
	}

	for _, row := range rows {
		if notify != nil {
			notify(row.ChatID, row.MenuMessageID)
		}
	}

	if err := s.db.Where("1 = 1").Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}

	s.mu.Lock()
	s.sessions = make(map[int64]int64)
	s.mu.Unlock()

	s.log.Info().Int("expired", len(rows)).Msg("sessions expired")
	return nil
}
