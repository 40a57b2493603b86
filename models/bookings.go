package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusPaid       BookingStatus = "paid"
	StatusCheckedIn  BookingStatus = "checked_in"
	StatusCheckedOut BookingStatus = "checked_out"
	StatusCancelled  BookingStatus = "cancelled"
	StatusRefunded   BookingStatus = "refunded"
)

// transitions lists the statuses reachable in one step. The primary chain
// only moves forward one step at a time; cancelled and refunded end a
// booking from any open status.
var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled, StatusRefunded},
	StatusConfirmed:  {StatusPaid, StatusCancelled, StatusRefunded},
	StatusPaid:       {StatusCheckedIn, StatusCancelled, StatusRefunded},
	StatusCheckedIn:  {StatusCheckedOut, StatusCancelled, StatusRefunded},
	StatusCheckedOut: {StatusRefunded},
}

// RevenueStatuses are the statuses counted as earned revenue.
var RevenueStatuses = []BookingStatus{StatusConfirmed, StatusPaid, StatusCheckedIn, StatusCheckedOut}

func (s BookingStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPaid, StatusCheckedIn,
		StatusCheckedOut, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// HoldsDates reports whether a booking in this status keeps its dates blocked.
func (s BookingStatus) HoldsDates() bool { return !s.Terminal() }

func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type BookingSource string

const (
	BookingSourceWebsite BookingSource = "website"
	BookingSourceAdmin   BookingSource = "admin"
	BookingSourcePhone   BookingSource = "phone"
	BookingSourceAirbnb  BookingSource = "airbnb"
)

// Fees maps a fee name (cleaning, service, ...) to an amount in minor units.
type Fees map[string]int64

func (f Fees) Total() int64 {
	var sum int64
	for _, v := range f {
		sum += v
	}
	return sum
}

type Booking struct {
	ID                 string                    `json:"id"                            gorm:"type:varchar(36);primaryKey"`
	BookingNumber      string                    `json:"booking_number"                gorm:"type:varchar(32);uniqueIndex;not null"`
	PropertyID         string                    `json:"property_id"                   gorm:"type:varchar(36);not null;index"`
	GuestID            string                    `json:"guest_id"                      gorm:"type:varchar(64);index"`
	GuestName          string                    `json:"guest_name"`
	GuestEmail         string                    `json:"guest_email"`
	GuestPhone         string                    `json:"guest_phone,omitempty"`
	CheckIn            Date                      `json:"check_in"                      gorm:"not null;index"`
	CheckOut           Date                      `json:"check_out"                     gorm:"not null;index"`
	NumNights          int                       `json:"num_nights"                    gorm:"not null"`
	NumGuests          int                       `json:"num_guests"                    gorm:"not null"`
	NightlyRate        int64                     `json:"nightly_rate"`
	Fees               datatypes.JSONType[Fees]  `json:"fees"`
	TotalAmount        int64                     `json:"total_amount"`
	Currency           string                    `json:"currency"                      gorm:"type:varchar(3)"`
	Status             BookingStatus             `json:"status"                        gorm:"type:varchar(20);not null;index"`
	Source             BookingSource             `json:"source"                        gorm:"type:varchar(20)"`
	SpecialRequests    string                    `json:"special_requests,omitempty"`
	InternalNotes      string                    `json:"internal_notes,omitempty"`
	ConfirmedAt        *time.Time                `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time                `json:"cancelled_at,omitempty"`
	CancellationReason *string                   `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

func (b Booking) Stay() DateRange {
	return DateRange{Start: b.CheckIn, End: b.CheckOut}
}

// BlockedInterval builds the booking-sourced block that reserves the stay.
func (b Booking) BlockedInterval() BlockedInterval {
	id := b.ID
	return BlockedInterval{
		PropertyID: b.PropertyID,
		StartDate:  b.CheckIn,
		EndDate:    b.CheckOut,
		Source:     SourceBooking,
		Reason:     "booking " + b.BookingNumber,
		BookingID:  &id,
	}
}

type BookingFilter struct {
	PropertyID string
	GuestID    string
	Status     BookingStatus
	From       Date
	To         Date
	Page       int
	PerPage    int
}
