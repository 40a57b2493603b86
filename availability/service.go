package availability

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dzoniops/condo-booking/db"
	"github.com/dzoniops/condo-booking/models"
)

// MaxCalendarDays bounds the window a single Calendar call renders.
const MaxCalendarDays = 366

// IntervalSource loads the blocked intervals of one property.
type IntervalSource interface {
	IntervalsForProperty(ctx context.Context, propertyID string) ([]models.BlockedInterval, error)
}

// BlockStore persists manual blocks.
type BlockStore interface {
	AddBlock(ctx context.Context, b *models.BlockedInterval, guard db.IntervalGuard) error
	DeleteManualBlock(ctx context.Context, id string) (*models.BlockedInterval, error)
}

// Refresher is told when a property's intervals changed.
type Refresher interface {
	Refresh(ctx context.Context, propertyID string) error
}

type Result struct {
	Available bool               `json:"available"`
	Conflicts []models.DateRange `json:"conflicts"`
}

type CalendarDay struct {
	Date        models.Date `json:"date"`
	Blocked     bool        `json:"blocked"`
	CanCheckIn  bool        `json:"can_check_in"`
	CanCheckOut bool        `json:"can_check_out"`
}

type Service struct {
	source    IntervalSource
	blocks    BlockStore
	refresher Refresher
	logger    log.Logger
}

func NewService(source IntervalSource, blocks BlockStore, refresher Refresher, logger log.Logger) *Service {
	return &Service{
		source:    source,
		blocks:    blocks,
		refresher: refresher,
		logger:    log.With(logger, "component", "availability"),
	}
}

func (s *Service) Index(ctx context.Context, propertyID string) (*Index, error) {
	intervals, err := s.source.IntervalsForProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return NewIndex(intervals), nil
}

// CheckAvailability reports whether r is free and, if not, which blocked
// ranges collide with it. This is advisory; booking creation re-checks under
// the property lock.
func (s *Service) CheckAvailability(ctx context.Context, propertyID string, r models.DateRange) (Result, error) {
	if !r.Valid() {
		return Result{}, models.NewValidationError("end", "must be after start")
	}
	idx, err := s.Index(ctx, propertyID)
	if err != nil {
		return Result{}, err
	}
	conflicts := idx.Conflicts(r)
	return Result{Available: len(conflicts) == 0, Conflicts: models.RangesOf(conflicts)}, nil
}

// Calendar describes every day of window for a booking calendar widget.
func (s *Service) Calendar(ctx context.Context, propertyID string, window models.DateRange) ([]CalendarDay, error) {
	if !window.Valid() {
		return nil, models.NewValidationError("end", "must be after start")
	}
	if window.Nights() > MaxCalendarDays {
		return nil, models.NewValidationError("end", fmt.Sprintf("window must not exceed %d days", MaxCalendarDays))
	}
	idx, err := s.Index(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	days := window.Days()
	out := make([]CalendarDay, 0, len(days))
	for _, d := range days {
		free := idx.CanCheckIn(d)
		out = append(out, CalendarDay{
			Date:        d,
			Blocked:     !free,
			CanCheckIn:  free,
			CanCheckOut: idx.BoundaryFreeForCheckOut(d),
		})
	}
	return out, nil
}

// AddManualBlock closes r for the property. A manual block may overlap feed
// data or other manual blocks but never a booking.
func (s *Service) AddManualBlock(ctx context.Context, propertyID string, r models.DateRange, reason string) (*models.BlockedInterval, error) {
	if !r.Valid() {
		return nil, models.NewValidationError("end", "must be after start")
	}
	b := &models.BlockedInterval{
		PropertyID: propertyID,
		StartDate:  r.Start,
		EndDate:    r.End,
		Source:     models.SourceManual,
		Reason:     strings.TrimSpace(reason),
	}
	guard := func(existing []models.BlockedInterval) error {
		var bookings []models.BlockedInterval
		for _, in := range existing {
			if in.Source == models.SourceBooking {
				bookings = append(bookings, in)
			}
		}
		return Guard(propertyID, r)(bookings)
	}
	if err := s.blocks.AddBlock(ctx, b, guard); err != nil {
		return nil, err
	}
	level.Info(s.logger).Log("msg", "manual block added", "property", propertyID, "range", r.String())
	s.refresh(ctx, propertyID)
	return b, nil
}

func (s *Service) RemoveManualBlock(ctx context.Context, id string) error {
	b, err := s.blocks.DeleteManualBlock(ctx, id)
	if err != nil {
		return err
	}
	level.Info(s.logger).Log("msg", "manual block removed", "property", b.PropertyID, "block", id)
	s.refresh(ctx, b.PropertyID)
	return nil
}

func (s *Service) refresh(ctx context.Context, propertyID string) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.Refresh(ctx, propertyID); err != nil {
		level.Warn(s.logger).Log("msg", "snapshot refresh failed", "property", propertyID, "err", err)
	}
}
