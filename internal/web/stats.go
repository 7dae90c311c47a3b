package web

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/blockedby/groupindex/internal/models"
)

// DBStats computes directory statistics straight from storage.
type DBStats struct {
	db *gorm.DB
}

func NewDBStats(db *gorm.DB) *DBStats {
	return &DBStats{db: db}
}

func (d *DBStats) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats

	counts := []struct {
		model any
		dst   *int64
	}{
		{&models.Account{}, &stats.Accounts},
		{&models.Chat{}, &stats.Chats},
		{&models.Directory{}, &stats.Categories},
	}
	for _, c := range counts {
		if err := d.db.WithContext(ctx).Model(c.model).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("count %T: %w", c.model, err)
		}
	}

	return &stats, nil
}
