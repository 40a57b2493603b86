package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"

	"github.com/dzoniops/condo-booking/availability"
	"github.com/dzoniops/condo-booking/db"
	"github.com/dzoniops/condo-booking/models"
	"github.com/dzoniops/condo-booking/mq"
	"github.com/dzoniops/condo-booking/utils"
)

// BookingStore is the part of the relational store bookings need.
type BookingStore interface {
	GetProperty(ctx context.Context, id string) (*models.Property, error)
	CreateBooking(ctx context.Context, b *models.Booking, guard db.IntervalGuard) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByNumber(ctx context.Context, number string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, id string, mutate func(b *models.Booking) error) (*models.Booking, error)
	ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, int64, error)
}

type Refresher interface {
	Refresh(ctx context.Context, propertyID string) error
}

type GuestInput struct {
	ID    string `json:"id"`
	Name  string `json:"name"  validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
}

type CreateBookingInput struct {
	PropertyID      string               `json:"property_id"      validate:"required"`
	CheckIn         models.Date          `json:"check_in"         validate:"required,notpast"`
	CheckOut        models.Date          `json:"check_out"        validate:"required,gtfield=CheckIn"`
	Guest           GuestInput           `json:"guest"`
	NumGuests       int                  `json:"num_guests"       validate:"min=1"`
	Source          models.BookingSource `json:"source"           validate:"omitempty,oneof=website admin phone airbnb"`
	SpecialRequests string               `json:"special_requests"`
	// NightlyRate overrides the property rate for admin and phone bookings.
	NightlyRate *int64 `json:"nightly_rate,omitempty" validate:"omitempty,min=0"`
}

type StatusMetadata struct {
	Reason        string `json:"reason"`
	InternalNotes string `json:"internal_notes"`
}

type BookingService struct {
	store     BookingStore
	refresher Refresher
	publisher mq.Publisher
	validate  *validator.Validate
	metrics   *utils.Metrics
	logger    log.Logger
	now       func() time.Time
	loc       *time.Location
}

type BookingOption func(*BookingService)

func WithClock(now func() time.Time) BookingOption {
	return func(s *BookingService) { s.now = now }
}

func WithLocation(loc *time.Location) BookingOption {
	return func(s *BookingService) { s.loc = loc }
}

func WithPublisher(p mq.Publisher) BookingOption {
	return func(s *BookingService) { s.publisher = p }
}

func WithRefresher(r Refresher) BookingOption {
	return func(s *BookingService) { s.refresher = r }
}

func WithMetrics(m *utils.Metrics) BookingOption {
	return func(s *BookingService) { s.metrics = m }
}

func NewBookingService(store BookingStore, logger log.Logger, opts ...BookingOption) *BookingService {
	s := &BookingService{
		store:     store,
		publisher: mq.NopPublisher{},
		logger:    log.With(logger, "component", "bookings"),
		now:       time.Now,
		loc:       time.UTC,
	}
	for _, o := range opts {
		o(s)
	}
	s.validate = utils.NewValidator(s.now, s.loc)
	return s
}

// CreateBooking validates in, prices the stay and stores it as pending
// together with the interval that blocks its dates. The overlap check runs
// inside the store transaction under the property lock.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*models.Booking, error) {
	ctx, span := otel.Tracer("bookings").Start(ctx, "BookingService.CreateBooking")
	defer span.End()
	span.SetAttributes(attribute.String("property.id", in.PropertyID))

	b, err := s.createBooking(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("booking.number", b.BookingNumber))
	return b, nil
}

func (s *BookingService) createBooking(ctx context.Context, in CreateBookingInput) (*models.Booking, error) {
	in.Guest.Name = strings.TrimSpace(in.Guest.Name)
	in.Guest.Email = strings.TrimSpace(in.Guest.Email)
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return nil, utils.ValidationError(err)
	}
	stay, err := models.NewDateRange(in.CheckIn, in.CheckOut)
	if err != nil {
		return nil, err
	}

	p, err := s.store.GetProperty(ctx, in.PropertyID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, models.NewValidationError("property_id", "property is not accepting bookings")
	}
	if p.MaxGuests > 0 && in.NumGuests > p.MaxGuests {
		return nil, models.NewValidationError("num_guests", fmt.Sprintf("must be at most %d", p.MaxGuests))
	}

	rate := p.NightlyRate
	if in.NightlyRate != nil {
		rate = *in.NightlyRate
	}
	fees := models.Fees{}
	if p.CleaningFee > 0 {
		fees["cleaning"] = p.CleaningFee
	}
	source := in.Source
	if source == "" {
		source = models.BookingSourceWebsite
	}
	nights := stay.Nights()

	b := &models.Booking{
		BookingNumber:   s.bookingNumber(),
		PropertyID:      p.ID,
		GuestID:         in.Guest.ID,
		GuestName:       in.Guest.Name,
		GuestEmail:      in.Guest.Email,
		GuestPhone:      in.Guest.Phone,
		CheckIn:         stay.Start,
		CheckOut:        stay.End,
		NumNights:       nights,
		NumGuests:       in.NumGuests,
		NightlyRate:     rate,
		Fees:            datatypes.NewJSONType(fees),
		TotalAmount:     rate*int64(nights) + fees.Total(),
		Currency:        p.Currency,
		Status:          models.StatusPending,
		Source:          source,
		SpecialRequests: strings.TrimSpace(in.SpecialRequests),
	}

	if err := s.store.CreateBooking(ctx, b, availability.Guard(p.ID, stay)); err != nil {
		if errors.Is(err, models.ErrDateConflict) && s.metrics != nil {
			s.metrics.BookingConflicts.Inc()
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.BookingsCreated.Inc()
	}
	level.Info(s.logger).Log("msg", "booking created", "booking", b.BookingNumber, "property", p.ID, "stay", stay.String())
	s.refresh(ctx, p.ID)
	s.publish(ctx, mq.KeyBookingCreated, mq.NewBookingCreated(b, s.now()))
	return b, nil
}

// bookingNumber is human readable and unique: creation day plus random hex.
func (s *BookingService) bookingNumber() string {
	day := s.now().In(s.loc).Format("20060102")
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "BK-" + day + "-" + suffix
}

// UpdateBookingStatus moves a booking one step through its lifecycle.
// Asking for the status a booking already has is a no-op unless the
// booking has ended, in which case the usual transition errors apply.
func (s *BookingService) UpdateBookingStatus(ctx context.Context, id string, to models.BookingStatus, meta StatusMetadata) (*models.Booking, error) {
	if !to.IsValid() {
		return nil, models.NewValidationError("status", fmt.Sprintf("unknown status %q", to))
	}
	var (
		from      models.BookingStatus
		unchanged bool
	)
	now := s.now().UTC()
	updated, err := s.store.UpdateBooking(ctx, id, func(b *models.Booking) error {
		from = b.Status
		if from == to && !from.Terminal() {
			unchanged = true
			return db.ErrNoChange
		}
		if !from.CanTransitionTo(to) {
			return &models.TransitionError{BookingID: b.ID, From: from, To: to}
		}
		b.Status = to
		switch to {
		case models.StatusConfirmed:
			if b.ConfirmedAt == nil {
				b.ConfirmedAt = &now
			}
		case models.StatusCancelled:
			if b.CancelledAt == nil {
				b.CancelledAt = &now
				if reason := strings.TrimSpace(meta.Reason); reason != "" {
					b.CancellationReason = &reason
				}
			}
		}
		if notes := strings.TrimSpace(meta.InternalNotes); notes != "" {
			b.InternalNotes = appendNote(b.InternalNotes, now, notes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if unchanged {
		return updated, nil
	}

	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(string(to)).Inc()
	}
	level.Info(s.logger).Log("msg", "booking status changed", "booking", updated.BookingNumber, "from", from, "to", to)
	if from.HoldsDates() && !to.HoldsDates() {
		s.refresh(ctx, updated.PropertyID)
	}
	s.publish(ctx, mq.KeyBookingStatusChanged, mq.BookingStatusChanged{
		BookingID:     updated.ID,
		BookingNumber: updated.BookingNumber,
		PropertyID:    updated.PropertyID,
		From:          from,
		To:            to,
		Reason:        strings.TrimSpace(meta.Reason),
		OccurredAt:    now,
	})
	return updated, nil
}

// CancelBooking is the administrative delete. The row is kept with status
// cancelled.
func (s *BookingService) CancelBooking(ctx context.Context, id, reason string) (*models.Booking, error) {
	return s.UpdateBookingStatus(ctx, id, models.StatusCancelled, StatusMetadata{Reason: reason})
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *BookingService) GetBookingByNumber(ctx context.Context, number string) (*models.Booking, error) {
	return s.store.GetBookingByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
}

func (s *BookingService) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, int64, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, 0, models.NewValidationError("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	return s.store.ListBookings(ctx, f)
}

func appendNote(existing string, at time.Time, note string) string {
	line := fmt.Sprintf("[%s] %s", at.Format(time.RFC3339), note)
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}

func (s *BookingService) refresh(ctx context.Context, propertyID string) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.Refresh(ctx, propertyID); err != nil {
		level.Warn(s.logger).Log("msg", "snapshot refresh failed", "property", propertyID, "err", err)
	}
}

func (s *BookingService) publish(ctx context.Context, key string, event any) {
	if err := s.publisher.PublishJSON(ctx, key, event); err != nil {
		level.Warn(s.logger).Log("msg", "event publish failed", "key", key, "err", err)
	}
}
