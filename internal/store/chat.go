package store

import (
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/blockedby/groupindex/internal/logger"
	"github.com/blockedby/groupindex/internal/models"
)

// ChatFilters controls which chats GetChildren returns. A viewer who
// administers a chat always sees it, regardless of the exclusion flags.
type ChatFilters struct {
	IncludeHidden             bool
	IncludeMissingPermissions bool
	ViewerID                  int64
}

// ChatStore persists the chat index. It owns no cache of its own but
// adjusts the DirectoryStore's warm aggregate counts whenever a
// mutation changes whether a chat is counted.
type ChatStore struct {
	db   *gorm.DB
	dirs *DirectoryStore
	log  *logger.Logger
}

// NewChatStore creates a chat store backed by db, wired to the directory
// store for count bookkeeping.
func NewChatStore(db *gorm.DB, dirs *DirectoryStore, log *logger.Logger) *ChatStore {
	return &ChatStore{db: db, dirs: dirs, log: log}
}

// Get returns one chat record, or ErrNotFound.
func (s *ChatStore) Get(chatID int64) (*models.Chat, error) {
	var chat models.Chat
	if err := s.db.First(&chat, "chat_id = ?", chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get chat %d: %w", chatID, err)
	}
	return &chat, nil
}

// GetAll returns every known chat, for the refresh sweep.
func (s *ChatStore) GetAll() ([]models.Chat, error) {
	var chats []models.Chat
	if err := s.db.Order("chat_id").Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("get all chats: %w", err)
	}
	return chats, nil
}

// GetChildren returns the chats filed directly under categoryID, keyed
// by chat id, after applying the filters.
func (s *ChatStore) GetChildren(categoryID int64, f ChatFilters) (map[int64]*models.Chat, error) {
	var rows []models.Chat
	if err := s.db.Where("directory_id = ?", categoryID).
		Order("title ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get chats of directory %d: %w", categoryID, err)
	}

	chats := make(map[int64]*models.Chat, len(rows))
	for i := range rows {
		chat := rows[i]

		if f.ViewerID == 0 || !chat.Admins.Contains(f.ViewerID) {
			if chat.HiddenBy != nil && !f.IncludeHidden {
				continue
			}
			if chat.MissingPermissions && !f.IncludeMissingPermissions {
				continue
			}
		}

		chats[chat.ID] = &chat
	}

	return chats, nil
}

// GetAdminChatCount returns how many known chats the user administers,
// optionally restricted to chats already filed in the directory.
func (s *ChatStore) GetAdminChatCount(userID int64, indexedOnly bool) (int, error) {
	chats, err := s.adminChats(userID, indexedOnly)
	if err != nil {
		return -1, err
	}
	return len(chats), nil
}

// GetAdminChats returns one page of the chats the user administers,
// ordered by title, for the "index my chat" picker.
func (s *ChatStore) GetAdminChats(userID int64, offset, limit int) ([]models.Chat, error) {
	chats, err := s.adminChats(userID, false)
	if err != nil {
		return nil, err
	}

	if offset >= len(chats) {
		return nil, nil
	}
	end := offset + limit
	if end > len(chats) {
		end = len(chats)
	}
	return chats[offset:end], nil
}

// adminChats loads and orders the user's chats. Admin lists are stored
// as serialized columns, so membership is resolved here rather than in
// SQL; the data set is small enough that this stays cheap.
func (s *ChatStore) adminChats(userID int64, indexedOnly bool) ([]models.Chat, error) {
	query := s.db.Order("title ASC")
	if indexedOnly {
		query = query.Where("directory_id IS NOT NULL")
	}

	var rows []models.Chat
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get chats of admin %d: %w", userID, err)
	}

	var chats []models.Chat
	for _, chat := range rows {
		if chat.Admins.Contains(userID) || (chat.OwnerID != nil && *chat.OwnerID == userID) {
			chats = append(chats, chat)
		}
	}

	sort.SliceStable(chats, func(i, j int) bool { return chats[i].Title < chats[j].Title })
	return chats, nil
}

// SetCategory files the chat under a category, or un-files it when
// categoryID is nil. Count bookkeeping is the caller's: it alone knows
// both the old and the new ancestor chain.
func (s *ChatStore) SetCategory(chatID int64, categoryID *int64) error {
	res := s.db.Model(&models.Chat{}).Where("chat_id = ?", chatID).
		Update("directory_id", categoryID)
	if res.Error != nil {
		return fmt.Errorf("set chat %d category: %w", chatID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetHidden toggles the chat's visibility marker. Count bookkeeping is
// the caller's, as with SetCategory.
func (s *ChatStore) SetHidden(chatID int64, hiddenBy *int64) error {
	res := s.db.Model(&models.Chat{}).Where("chat_id = ?", chatID).
		Update("hidden_by", hiddenBy)
	if res.Error != nil {
		return fmt.Errorf("set chat %d visibility: %w", chatID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCustomLink records a curator-supplied join link for the chat.
func (s *ChatStore) SetCustomLink(chatID int64, link *string) error {
	res := s.db.Model(&models.Chat{}).Where("chat_id = ?", chatID).
		Update("custom_link", link)
	if res.Error != nil {
		return fmt.Errorf("set chat %d custom link: %w", chatID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMissingPermissions flags the chat as lacking the rights the bot
// needs. The transition is one-directional and idempotent: only a
// false→true flip decrements the owning category's warm counts, and only
// when the chat was actually counted (visible) before the flip.
func (s *ChatStore) SetMissingPermissions(chatID int64) error {
	chat, err := s.Get(chatID)
	if err != nil {
		return err
	}

	if chat.MissingPermissions {
		return nil
	}

	if err := s.db.Model(&models.Chat{}).Where("chat_id = ?", chatID).
		Update("missing_permissions", true).Error; err != nil {
		return fmt.Errorf("set chat %d missing permissions: %w", chatID, err)
	}

	if chat.DirectoryID != nil && chat.HiddenBy == nil {
		s.dirs.IncrementChatCount(*chat.DirectoryID, -1)
	}

	return nil
}

// Remove deletes the chat record. The caller adjusts counts when it
// knows the removed chat was counted.
func (s *ChatStore) Remove(chatID int64) error {
	if err := s.db.Delete(&models.Chat{}, "chat_id = ?", chatID).Error; err != nil {
		return fmt.Errorf("remove chat %d: %w", chatID, err)
	}
	return nil
}

// Migrate copies the curator-managed fields (custom link, category,
// hidden-by) from the record under oldID onto the record under newID,
// then removes the old record. Returns ErrNotFound when either record is
// missing; on a missing new record the caller retries the observation
// sequence against newID carrying oldID forward. Warm aggregate counts
// are adjusted here: the merged record keeps the new id's permission
// state, so its counted contribution can differ from the old record's.
func (s *ChatStore) Migrate(oldID, newID int64) error {
	old, err := s.Get(oldID)
	if err != nil {
		return err
	}
	target, err := s.Get(newID)
	if err != nil {
		return err
	}

	res := s.db.Model(&models.Chat{}).Where("chat_id = ?", newID).
		Updates(map[string]any{
			"custom_link":  old.CustomLink,
			"directory_id": old.DirectoryID,
			"hidden_by":    old.HiddenBy,
		})
	if res.Error != nil {
		return fmt.Errorf("migrate chat %d to %d: %w", oldID, newID, res.Error)
	}

	if err := s.Remove(oldID); err != nil {
		return err
	}

	if old.DirectoryID != nil && old.Counted() {
		s.dirs.IncrementChatCount(*old.DirectoryID, -1)
	}
	if target.DirectoryID != nil && target.Counted() {
		s.dirs.IncrementChatCount(*target.DirectoryID, -1)
	}
	if old.DirectoryID != nil && old.HiddenBy == nil && !target.MissingPermissions {
		s.dirs.IncrementChatCount(*old.DirectoryID, +1)
	}

	s.log.Info().
		Int64("old_chat_id", oldID).
		Int64("new_chat_id", newID).
		Msg("chat id migrated")

	return nil
}

// SyncResult describes what ApplySync observed and changed.
type SyncResult struct {
	Old     *models.Chat
	New     *models.Chat
	Created bool
}

// ApplySync reconciles the stored record with live platform data,
// inserting the record when the chat is new. Warm aggregate counts are
// adjusted when the missing-permissions state of an indexed, visible
// chat flips in either direction.
func (s *ChatStore) ApplySync(chatID int64, title string, inviteLink *string, admins models.AdminList, owner *int64, missingPermissions bool) (*SyncResult, error) {
	old, err := s.Get(chatID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if old == nil {
		chat := &models.Chat{
			ID:                 chatID,
			Title:              title,
			InviteLink:         inviteLink,
			Admins:             admins,
			OwnerID:            owner,
			MissingPermissions: missingPermissions,
		}
		if err := s.db.Create(chat).Error; err != nil {
			return nil, fmt.Errorf("create chat %d: %w", chatID, err)
		}
		return &SyncResult{New: chat, Created: true}, nil
	}

	updated := *old
	updated.Title = title
	updated.InviteLink = inviteLink
	updated.Admins = admins
	updated.OwnerID = owner
	updated.MissingPermissions = missingPermissions

	if err := s.db.Model(&models.Chat{}).Where("chat_id = ?", chatID).
		Updates(map[string]any{
			"title":               title,
			"invite_link":         inviteLink,
			"chat_admins":         admins,
			"owner_id":            owner,
			"missing_permissions": missingPermissions,
		}).Error; err != nil {
		return nil, fmt.Errorf("update chat %d: %w", chatID, err)
	}

	if old.DirectoryID != nil && old.HiddenBy == nil &&
		missingPermissions != old.MissingPermissions {
		if missingPermissions {
			s.dirs.IncrementChatCount(*old.DirectoryID, -1)
		} else {
			s.dirs.IncrementChatCount(*old.DirectoryID, +1)
		}
	}

	return &SyncResult{Old: old, New: &updated}, nil
}
