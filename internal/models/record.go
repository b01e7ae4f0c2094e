package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StoredRecord is a durable key/value row backing visitor state such as guest carts.
type StoredRecord struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Key       string     `gorm:"uniqueIndex;size:191" json:"key"`
	Value     []byte     `gorm:"type:jsonb" json:"value"`
	ExpiresAt *time.Time `gorm:"index" json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewStoredRecord builds a row for key that expires ttl after now. A zero
// ttl keeps the row until it is deleted.
func NewStoredRecord(key string, value []byte, ttl time.Duration, now time.Time) StoredRecord {
	rec := StoredRecord{Key: key, Value: value}
	if ttl > 0 {
		expires := now.Add(ttl)
		rec.ExpiresAt = &expires
	}
	return rec
}

// Expired reports whether the row's TTL has passed at now.
func (r StoredRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// BeforeCreate assigns the primary key on insert.
func (r *StoredRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
