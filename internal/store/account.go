package store

import (
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/blockedby/groupindex/internal/logger"
	"github.com/blockedby/groupindex/internal/models"
)

// PermissionFlag names one togglable account permission.
type PermissionFlag string

// Permission flags managed through /grant.
const (
	FlagBotAdmin     PermissionFlag = "admin"
	FlagViewGroups   PermissionFlag = "view"
	FlagAddGroups    PermissionFlag = "add"
	FlagModifyGroups PermissionFlag = "modify"
)

// AccountStore is a cached read-through store over user accounts.
// Unknown users get a record with default permissions on first sight.
type AccountStore struct {
	db  *gorm.DB
	log *logger.Logger

	mu    sync.Mutex
	cache map[int64]*models.Account
}

// NewAccountStore creates an account store with a cold cache.
func NewAccountStore(db *gorm.DB, log *logger.Logger) *AccountStore {
	return &AccountStore{
		db:    db,
		log:   log,
		cache: make(map[int64]*models.Account),
	}
}

// Get returns the account for userID, creating it with default
// permissions when it does not exist yet. The returned struct is a
// copy; the cached original is only mutated under the store mutex.
func (s *AccountStore) Get(userID int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account, ok := s.cache[userID]; ok {
		copied := *account
		return &copied, nil
	}

	var account models.Account
	err := s.db.First(&account, "chat_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = models.Account{
			ID:              userID,
			CanViewGroups:   true,
			CanAddGroups:    true,
			CanModifyGroups: true,
		}
		if err := s.db.Create(&account).Error; err != nil {
			return nil, fmt.Errorf("create account %d: %w", userID, err)
		}
		s.log.Debug().Int64("user_id", userID).Msg("account created")
	} else if err != nil {
		return nil, fmt.Errorf("get account %d: %w", userID, err)
	}

	s.cache[userID] = &account
	copied := account
	return &copied, nil
}

// Count returns the number of known accounts.
func (s *AccountStore) Count() (int64, error) {
	var count int64
	if err := s.db.Model(&models.Account{}).Count(&count).Error; err != nil {
		return -1, fmt.Errorf("count accounts: %w", err)
	}
	return count, nil
}

// SetFlag updates one permission flag, keeping a warm cache entry in
// sync. Ownership is fixed by configuration and cannot be granted here.
func (s *AccountStore) SetFlag(userID int64, flag PermissionFlag, value bool) error {
	var column string
	switch flag {
	case FlagBotAdmin:
		column = "is_admin"
	case FlagViewGroups:
		column = "can_view_groups"
	case FlagAddGroups:
		column = "can_add_groups"
	case FlagModifyGroups:
		column = "can_modify_groups"
	default:
		return fmt.Errorf("unknown permission flag %q", flag)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.Model(&models.Account{}).Where("chat_id = ?", userID).
		Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("set account %d flag %s: %w", userID, flag, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	if account, ok := s.cache[userID]; ok {
		switch flag {
		case FlagBotAdmin:
			account.IsAdmin = value
		case FlagViewGroups:
			account.CanViewGroups = value
		case FlagAddGroups:
			account.CanAddGroups = value
		case FlagModifyGroups:
			account.CanModifyGroups = value
		}
	}

	return nil
}

// SetLangCode stores the user's preferred language.
func (s *AccountStore) SetLangCode(userID int64, langCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.Model(&models.Account{}).Where("chat_id = ?", userID).
		Update("pref_lang_code", langCode)
	if res.Error != nil {
		return fmt.Errorf("set account %d lang: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	if account, ok := s.cache[userID]; ok {
		code := langCode
		account.PrefLangCode = &code
	}
	return nil
}

// MarkOwner flags the configured bot owner's account, creating it when
// needed. Called once at startup.
func (s *AccountStore) MarkOwner(userID int64) error {
	if _, err := s.Get(userID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Model(&models.Account{}).Where("chat_id = ?", userID).
		Updates(map[string]any{"is_owner": true, "is_admin": true}).Error; err != nil {
		return fmt.Errorf("mark owner %d: %w", userID, err)
	}

	if account, ok := s.cache[userID]; ok {
		account.IsOwner = true
		account.IsAdmin = true
	}
	return nil
}
