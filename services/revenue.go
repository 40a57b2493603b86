package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dzoniops/condo-booking/models"
)

// maxTrendMonths bounds the months a single MonthlyTrend call aggregates.
const maxTrendMonths = 36

type RevenueStore interface {
	RevenueBookings(ctx context.Context, window models.DateRange, propertyID string) ([]models.Booking, error)
	CountActiveProperties(ctx context.Context) (int64, error)
	ListProperties(ctx context.Context, activeOnly bool) ([]models.Property, error)
}

// RevenueService computes revenue and occupancy on demand. Windows are
// inclusive of both end dates.
type RevenueService struct {
	store RevenueStore
}

func NewRevenueService(store RevenueStore) *RevenueService {
	return &RevenueService{store: store}
}

// GetRevenue aggregates revenue-bearing bookings whose stay touches
// [start, end]. Nights are counted in full even when a stay crosses the
// window boundary.
func (s *RevenueService) GetRevenue(ctx context.Context, start, end models.Date, propertyID string) (models.RevenueWindow, error) {
	if err := checkWindow(start, end); err != nil {
		return models.RevenueWindow{}, err
	}
	propertyCount := int64(1)
	if propertyID == "" {
		n, err := s.store.CountActiveProperties(ctx)
		if err != nil {
			return models.RevenueWindow{}, err
		}
		propertyCount = n
	}
	return s.aggregate(ctx, start, end, propertyID, propertyCount)
}

// MonthlyTrend returns one window per calendar month touching [from, to],
// each clipped to the requested range.
func (s *RevenueService) MonthlyTrend(ctx context.Context, from, to models.Date, propertyID string) ([]models.RevenueWindow, error) {
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()-from.Month()) + 1
	if months > maxTrendMonths {
		return nil, models.NewValidationError("end_date", fmt.Sprintf("trend must not span more than %d months", maxTrendMonths))
	}
	var out []models.RevenueWindow
	for monthStart := models.NewDate(from.Year(), from.Month(), 1); !monthStart.After(to); {
		next := models.NewDate(monthStart.Year(), monthStart.Month()+1, 1)
		start, end := monthStart, next.AddDays(-1)
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		w, err := s.GetRevenue(ctx, start, end, propertyID)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
		monthStart = next
	}
	return out, nil
}

// PropertyBreakdown returns one window per active property, computed in
// parallel, in catalog order.
func (s *RevenueService) PropertyBreakdown(ctx context.Context, start, end models.Date) ([]models.RevenueWindow, error) {
	if err := checkWindow(start, end); err != nil {
		return nil, err
	}
	props, err := s.store.ListProperties(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]models.RevenueWindow, len(props))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range props {
		i := i
		g.Go(func() error {
			w, err := s.aggregate(gctx, start, end, props[i].ID, 1)
			if err != nil {
				return err
			}
			out[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RevenueService) aggregate(ctx context.Context, start, end models.Date, propertyID string, propertyCount int64) (models.RevenueWindow, error) {
	w := models.RevenueWindow{StartDate: start, EndDate: end, PropertyID: propertyID}
	bookings, err := s.store.RevenueBookings(ctx, models.DateRange{Start: start, End: end.AddDays(1)}, propertyID)
	if err != nil {
		return w, err
	}
	for _, b := range bookings {
		w.TotalRevenue += b.TotalAmount
		w.TotalNights += b.NumNights
		w.BookingCount++
	}
	if w.TotalNights > 0 {
		w.AvgNightlyRate = float64(w.TotalRevenue) / float64(w.TotalNights)
	}
	if capacity := float64(w.DaysInWindow()) * float64(propertyCount); capacity > 0 {
		w.OccupancyRate = float64(w.TotalNights) / capacity * 100
	}
	return w, nil
}

func checkWindow(start, end models.Date) error {
	if start.IsZero() || end.IsZero() {
		return models.NewValidationError("start_date", "start and end dates are required")
	}
	if end.Before(start) {
		return models.NewValidationError("end_date", "must not be before start_date")
	}
	return nil
}

// CurrentMonth returns the first and last day of the month containing now
// in loc.
func CurrentMonth(now time.Time, loc *time.Location) (models.Date, models.Date) {
	today := models.Today(now, loc)
	first := models.NewDate(today.Year(), today.Month(), 1)
	return first, models.NewDate(today.Year(), today.Month()+1, 1).AddDays(-1)
}
