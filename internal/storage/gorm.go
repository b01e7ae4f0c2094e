package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/aura-storefront/internal/models"
)

// GormStorage stores records in the stored_records table.
type GormStorage struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewGormStorage wraps an open gorm connection. The table must already be migrated.
func NewGormStorage(db *gorm.DB, ttl time.Duration) *GormStorage {
	return &GormStorage{db: db, ttl: ttl}
}

func (g *GormStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var rec models.StoredRecord
	err := g.db.WithContext(ctx).Where("key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record %q: %w", key, err)
	}
	if rec.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return rec.Value, nil
}

func (g *GormStorage) Set(ctx context.Context, key string, value []byte) error {
	rec := models.NewStoredRecord(key, value, g.ttl, time.Now())

	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save record %q: %w", key, err)
	}
	return nil
}

func (g *GormStorage) Delete(ctx context.Context, key string) error {
	if err := g.db.WithContext(ctx).Where("key = ?", key).Delete(&models.StoredRecord{}).Error; err != nil {
		return fmt.Errorf("delete record %q: %w", key, err)
	}
	return nil
}

// PurgeExpired removes rows whose TTL has passed.
func (g *GormStorage) PurgeExpired(ctx context.Context) (int64, error) {
	res := g.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", time.Now()).
		Delete(&models.StoredRecord{})
	return res.RowsAffected, res.Error
}
