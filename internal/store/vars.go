package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/groupindex/internal/models"
)

// VarsStore is a generic key/value table used for job watermarks.
type VarsStore struct {
	db *gorm.DB
}

// NewVarsStore creates a vars store backed by db.
func NewVarsStore(db *gorm.DB) *VarsStore {
	return &VarsStore{db: db}
}

// Get returns the value stored under key, or ErrNotFound.
func (s *VarsStore) Get(key string) (string, error) {
	var row models.PersistentVar
	if err := s.db.First(&row, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get var %s: %w", key, err)
	}
	return row.Value, nil
}

// Set upserts the value stored under key.
func (s *VarsStore) Set(key, value string) error {
	row := models.PersistentVar{Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set var %s: %w", key, err)
	}
	return nil
}
