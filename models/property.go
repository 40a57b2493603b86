package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SyncStatusNever   = "never"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// Property is the slice of the listing catalog the engine relies on:
// identity, the external calendar feed and pricing defaults.
type Property struct {
	ID          string     `json:"id"                   gorm:"type:varchar(36);primaryKey"`
	Slug        string     `json:"slug"                 gorm:"type:varchar(120);uniqueIndex;not null"`
	Name        string     `json:"name"`
	FeedURL     string     `json:"feed_url,omitempty"`
	Active      bool       `json:"active"               gorm:"not null"`
	MaxGuests   int        `json:"max_guests"`
	NightlyRate int64      `json:"nightly_rate"`
	CleaningFee int64      `json:"cleaning_fee"`
	Currency    string     `json:"currency"             gorm:"type:varchar(3);default:'PHP'"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
	SyncStatus  string     `json:"sync_status"          gorm:"type:varchar(20);default:'never'"`
	SyncError   *string    `json:"sync_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (p *Property) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p Property) HasFeed() bool { return p.Active && p.FeedURL != "" }
