package mq

import (
	"time"

	"github.com/dzoniops/condo-booking/models"
)

const (
	KeyBookingCreated       = "booking.created"
	KeyBookingStatusChanged = "booking.status_changed"
)

type BookingCreated struct {
	BookingID     string      `json:"booking_id"`
	BookingNumber string      `json:"booking_number"`
	PropertyID    string      `json:"property_id"`
	GuestID       string      `json:"guest_id"`
	CheckIn       models.Date `json:"check_in"`
	CheckOut      models.Date `json:"check_out"`
	TotalAmount   int64       `json:"total_amount"`
	Currency      string      `json:"currency"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// BookingStatusChanged lets downstream services (payments, notifications)
// react to a transition, such as refunding a cancelled booking.
type BookingStatusChanged struct {
	BookingID     string               `json:"booking_id"`
	BookingNumber string               `json:"booking_number"`
	PropertyID    string               `json:"property_id"`
	From          models.BookingStatus `json:"from"`
	To            models.BookingStatus `json:"to"`
	Reason        string               `json:"reason,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

func NewBookingCreated(b *models.Booking, at time.Time) BookingCreated {
	return BookingCreated{
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		PropertyID:    b.PropertyID,
		GuestID:       b.GuestID,
		CheckIn:       b.CheckIn,
		CheckOut:      b.CheckOut,
		TotalAmount:   b.TotalAmount,
		Currency:      b.Currency,
		OccurredAt:    at.UTC(),
	}
}
