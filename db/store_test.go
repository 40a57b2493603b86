package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/dzoniops/condo-booking/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := OpenSQLite(MemoryDSN(), log.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewStore(gdb)
}

func seedProperty(t *testing.T, s *Store, slug string) *models.Property {
	t.Helper()
	p := &models.Property{Slug: slug, Name: slug, Active: true, NightlyRate: 5000, Currency: "PHP"}
	require.NoError(t, s.UpsertProperty(context.Background(), p))
	return p
}

func TestUpsertPropertyKeepsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProperty(t, s, "azure-1204")

	again := &models.Property{Slug: "azure-1204", Name: "Azure 1204", Active: true, FeedURL: "https://example.com/a.ics"}
	require.NoError(t, s.UpsertProperty(ctx, again))
	assert.Equal(t, p.ID, again.ID)

	got, err := s.GetProperty(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Azure 1204", got.Name)
	assert.Equal(t, "https://example.com/a.ics", got.FeedURL)

	feeds, err := s.ListFeedProperties(ctx)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, p.ID, feeds[0].ID)
}

func TestUpsertPropertyKeepsInactiveFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := &models.Property{Slug: "closed-unit", Name: "Closed", FeedURL: "https://example.com/c.ics", Active: false}
	require.NoError(t, s.UpsertProperty(ctx, p))

	got, err := s.GetProperty(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	feeds, err := s.ListFeedProperties(ctx)
	require.NoError(t, err)
	assert.Empty(t, feeds)
	active, err := s.ListProperties(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
	n, err := s.CountActiveProperties(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Reactivating and deactivating again go through the update path.
	p.Active = true
	require.NoError(t, s.UpsertProperty(ctx, p))
	feeds, err = s.ListFeedProperties(ctx)
	require.NoError(t, err)
	assert.Len(t, feeds, 1)

	p.Active = false
	require.NoError(t, s.UpsertProperty(ctx, p))
	got, err = s.GetProperty(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestGetPropertyNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetProperty(context.Background(), "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestCreateBookingStoresIntervalAndHonoursGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProperty(t, s, "prop")

	b := &models.Booking{
		BookingNumber: "BK-1",
		PropertyID:    p.ID,
		CheckIn:       models.MustParseDate("2025-07-01"),
		CheckOut:      models.MustParseDate("2025-07-05"),
		NumNights:     4,
		NumGuests:     2,
		Status:        models.StatusPending,
		Fees:          datatypes.NewJSONType(models.Fees{"cleaning": 1500}),
	}
	require.NoError(t, s.CreateBooking(ctx, b, nil))

	intervals, err := s.IntervalsForProperty(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Equal(t, models.SourceBooking, intervals[0].Source)
	require.NotNil(t, intervals[0].BookingID)
	assert.Equal(t, b.ID, *intervals[0].BookingID)
	assert.Equal(t, b.Stay(), intervals[0].Range())

	vetoed := &models.Booking{BookingNumber: "BK-2", PropertyID: p.ID, Status: models.StatusPending,
		CheckIn: models.MustParseDate("2025-07-03"), CheckOut: models.MustParseDate("2025-07-08"), NumNights: 5}
	conflict := &models.DateConflictError{PropertyID: p.ID}
	err = s.CreateBooking(ctx, vetoed, func([]models.BlockedInterval) error { return conflict })
	assert.Same(t, conflict, err)

	_, err = s.GetBookingByNumber(ctx, "BK-2")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	got, err := s.GetBookingByNumber(ctx, "BK-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.Fees.Data()["cleaning"])
}

func TestCreateBookingUnknownProperty(t *testing.T) {
	s := newTestStore(t)
	b := &models.Booking{BookingNumber: "BK-X", PropertyID: "nope", Status: models.StatusPending,
		CheckIn: models.MustParseDate("2025-07-01"), CheckOut: models.MustParseDate("2025-07-02"), NumNights: 1}
	err := s.CreateBooking(context.Background(), b, nil)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestUpdateBookingReleasesIntervalWhenTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProperty(t, s, "prop")
	b := &models.Booking{BookingNumber: "BK-1", PropertyID: p.ID, Status: models.StatusPending,
		CheckIn: models.MustParseDate("2025-07-01"), CheckOut: models.MustParseDate("2025-07-05"), NumNights: 4}
	require.NoError(t, s.CreateBooking(ctx, b, nil))

	updated, err := s.UpdateBooking(ctx, b.ID, func(b *models.Booking) error {
		b.Status = models.StatusConfirmed
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, updated.Status)
	intervals, err := s.IntervalsForProperty(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, intervals, 1)

	_, err = s.UpdateBooking(ctx, b.ID, func(b *models.Booking) error {
		b.Status = models.StatusCancelled
		return nil
	})
	require.NoError(t, err)
	intervals, err = s.IntervalsForProperty(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, intervals)

	_, err = s.UpdateBooking(ctx, "missing", func(*models.Booking) error { return nil })
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestUpdateBookingNoChangeLeavesRowUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProperty(t, s, "prop")
	b := &models.Booking{BookingNumber: "BK-1", PropertyID: p.ID, Status: models.StatusPending,
		CheckIn: models.MustParseDate("2025-07-01"), CheckOut: models.MustParseDate("2025-07-05"), NumNights: 4}
	require.NoError(t, s.CreateBooking(ctx, b, nil))

	got, err := s.UpdateBooking(ctx, b.ID, func(b *models.Booking) error {
		return ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, models.StatusPending, got.Status)

	_, err = s.UpdateBooking(ctx, b.ID, func(b *models.Booking) error {
		b.InternalNotes = "scratch"
		return ErrNoChange
	})
	require.NoError(t, err)
	stored, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.InternalNotes)

	_, err = s.UpdateBooking(ctx, b.ID, func(*models.Booking) error {
		return errors.New("boom")
	})
	var serr *models.StorageError
	assert.True(t, errors.As(err, &serr))
}

func TestReplaceFeedIntervalsOnlyTouchesFeedPartition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProperty(t, s, "prop")

	manual := &models.BlockedInterval{PropertyID: p.ID, Source: models.SourceManual, Reason: "maintenance",
		StartDate: models.MustParseDate("2025-12-01"), EndDate: models.MustParseDate("2025-12-03")}
	require.NoError(t, s.AddBlock(ctx, manual, nil))
	booking := &models.Booking{BookingNumber: "BK-1", PropertyID: p.ID, Status: models.StatusPending,
		CheckIn: models.MustParseDate("2025-12-10"), CheckOut: models.MustParseDate("2025-12-12"), NumNights: 2}
	require.NoError(t, s.CreateBooking(ctx, booking, nil))

	feed := []models.BlockedInterval{
		{StartDate: models.MustParseDate("2025-12-20"), EndDate: models.MustParseDate("2025-12-25"), Reason: "Reserved"},
		{StartDate: models.MustParseDate("2025-12-31"), EndDate: models.MustParseDate("2026-01-02"), Reason: "Reserved"},
	}
	n, err := s.ReplaceFeedIntervals(ctx, p.ID, feed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.ReplaceFeedIntervals(ctx, p.ID, feed[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fromFeed, err := s.IntervalsBySource(ctx, p.ID, models.SourceExternalFeed)
	require.NoError(t, err)
	require.Len(t, fromFeed, 1)
	assert.Equal(t, feed[0].Range(), fromFeed[0].Range())

	all, err := s.IntervalsForProperty(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.ReplaceFeedIntervals(ctx, "missing", feed)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestDeleteManualBlockRejectsOtherSources(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProperty(t, s, "prop")
	_, err := s.ReplaceFeedIntervals(ctx, p.ID, []models.BlockedInterval{
		{StartDate: models.MustParseDate("2025-12-20"), EndDate: models.MustParseDate("2025-12-25")},
	})
	require.NoError(t, err)
	fromFeed, err := s.IntervalsBySource(ctx, p.ID, models.SourceExternalFeed)
	require.NoError(t, err)

	_, err = s.DeleteManualBlock(ctx, fromFeed[0].ID)
	assert.True(t, errors.Is(err, models.ErrValidation))

	manual := &models.BlockedInterval{PropertyID: p.ID, Source: models.SourceManual,
		StartDate: models.MustParseDate("2025-12-01"), EndDate: models.MustParseDate("2025-12-03")}
	require.NoError(t, s.AddBlock(ctx, manual, nil))
	removed, err := s.DeleteManualBlock(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, manual.ID, removed.ID)

	_, err = s.DeleteManualBlock(ctx, manual.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestRevenueBookingsFiltersStatusAndWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProperty(t, s, "prop")
	mk := func(num, in, out string, status models.BookingStatus) {
		b := &models.Booking{BookingNumber: num, PropertyID: p.ID, Status: status,
			CheckIn: models.MustParseDate(in), CheckOut: models.MustParseDate(out), TotalAmount: 1000}
		b.NumNights = b.Stay().Nights()
		require.NoError(t, s.CreateBooking(ctx, b, nil))
	}
	mk("A", "2025-06-05", "2025-06-10", models.StatusConfirmed)
	mk("B", "2025-06-28", "2025-07-03", models.StatusPaid)
	mk("C", "2025-06-12", "2025-06-14", models.StatusPending)
	mk("D", "2025-07-01", "2025-07-04", models.StatusCheckedOut)

	window := models.MustDateRange("2025-06-01", "2025-07-01")
	got, err := s.RevenueBookings(ctx, window, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].BookingNumber)
	assert.Equal(t, "B", got[1].BookingNumber)

	got, err = s.RevenueBookings(ctx, window, "other")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListBookingsPaginates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProperty(t, s, "prop")
	start := models.MustParseDate("2025-08-01")
	for i := 0; i < 5; i++ {
		in := start.AddDays(i * 3)
		b := &models.Booking{BookingNumber: "BK-" + in.String(), PropertyID: p.ID, Status: models.StatusPending,
			CheckIn: in, CheckOut: in.AddDays(2), NumNights: 2, CreatedAt: time.Now()}
		require.NoError(t, s.CreateBooking(ctx, b, nil))
	}

	page, total, err := s.ListBookings(ctx, models.BookingFilter{PropertyID: p.ID, Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, start.AddDays(6), page[0].CheckIn)
}
