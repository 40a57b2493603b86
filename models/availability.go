package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BlockSource string

const (
	SourceManual       BlockSource = "manual"
	SourceBooking      BlockSource = "booking"
	SourceExternalFeed BlockSource = "external_feed"
)

func (s BlockSource) IsValid() bool {
	switch s {
	case SourceManual, SourceBooking, SourceExternalFeed:
		return true
	}
	return false
}

// BlockedInterval makes [StartDate, EndDate) unavailable for new stays on a
// property. Rows are partitioned by Source: booking rows follow their
// booking, external_feed rows belong to the calendar reconciler and manual
// rows to administrators.
type BlockedInterval struct {
	ID          string      `json:"id"                     gorm:"type:varchar(36);primaryKey"`
	PropertyID  string      `json:"property_id"            gorm:"type:varchar(36);not null;index:idx_blocked_property_source"`
	StartDate   Date        `json:"start_date"             gorm:"not null;index"`
	EndDate     Date        `json:"end_date"               gorm:"not null;index"`
	Source      BlockSource `json:"source"                 gorm:"type:varchar(20);not null;index:idx_blocked_property_source"`
	Reason      string      `json:"reason"`
	BookingID   *string     `json:"booking_id,omitempty"   gorm:"type:varchar(36);index"`
	ExternalUID string      `json:"external_uid,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (b *BlockedInterval) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

func (b BlockedInterval) Range() DateRange {
	return DateRange{Start: b.StartDate, End: b.EndDate}
}

func RangesOf(intervals []BlockedInterval) []DateRange {
	out := make([]DateRange, len(intervals))
	for i := range intervals {
		out[i] = intervals[i].Range()
	}
	return out
}
