package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dzoniops/condo-booking/models"
)

const defaultPerPage = 25

// IntervalGuard inspects a property's current blocked intervals inside the
// write transaction and vetoes the write by returning an error.
type IntervalGuard func(existing []models.BlockedInterval) error

// Store is the transactional relational store behind the engine. Every
// write that depends on a property's blocked intervals takes the property
// row lock first, so booking creation, manual blocks and feed replacement
// on one property never interleave.
type Store struct {
	db *gorm.DB
	// rowLocks is off for SQLite, which has no SELECT ... FOR UPDATE and
	// serializes writers on its single connection instead.
	rowLocks bool
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb, rowLocks: gdb.Dialector.Name() != DriverSQLite}
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) UpsertProperty(ctx context.Context, p *models.Property) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Property
		err := tx.Where("slug = ?", p.Slug).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(p).Error
		}
		if err != nil {
			return err
		}
		p.ID = existing.ID
		return tx.Model(&existing).Select(
			"Name", "FeedURL", "Active", "MaxGuests", "NightlyRate", "CleaningFee", "Currency",
		).Updates(p).Error
	})
	return storageErr("upsert property", err)
}

func (s *Store) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	var p models.Property
	if err := s.db.WithContext(ctx).Take(&p, "id = ?", id).Error; err != nil {
		return nil, storageErr("get property", err)
	}
	return &p, nil
}

func (s *Store) ListProperties(ctx context.Context, activeOnly bool) ([]models.Property, error) {
	q := s.db.WithContext(ctx).Model(&models.Property{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var out []models.Property
	if err := q.Order("slug ASC").Find(&out).Error; err != nil {
		return nil, storageErr("list properties", err)
	}
	return out, nil
}

// ListFeedProperties returns active properties with an external calendar.
func (s *Store) ListFeedProperties(ctx context.Context) ([]models.Property, error) {
	var out []models.Property
	err := s.db.WithContext(ctx).
		Where("active = ? AND feed_url IS NOT NULL AND feed_url <> ''", true).
		Order("slug ASC").
		Find(&out).Error
	if err != nil {
		return nil, storageErr("list feed properties", err)
	}
	return out, nil
}

func (s *Store) CountActiveProperties(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Property{}).Where("active = ?", true).Count(&n).Error; err != nil {
		return 0, storageErr("count properties", err)
	}
	return n, nil
}

// RecordSync stores the outcome of the latest feed sync on the property.
func (s *Store) RecordSync(ctx context.Context, propertyID string, at time.Time, syncErr error) error {
	updates := map[string]any{
		"last_sync_at": at,
		"sync_status":  models.SyncStatusSuccess,
		"sync_error":   nil,
	}
	if syncErr != nil {
		msg := syncErr.Error()
		updates["sync_status"] = models.SyncStatusError
		updates["sync_error"] = &msg
	}
	err := s.db.WithContext(ctx).Model(&models.Property{}).Where("id = ?", propertyID).Updates(updates).Error
	return storageErr("record sync", err)
}

func (s *Store) IntervalsForProperty(ctx context.Context, propertyID string) ([]models.BlockedInterval, error) {
	out, err := intervalsOf(s.db.WithContext(ctx), propertyID)
	return out, storageErr("list intervals", err)
}

func (s *Store) IntervalsBySource(ctx context.Context, propertyID string, source models.BlockSource) ([]models.BlockedInterval, error) {
	var out []models.BlockedInterval
	err := s.db.WithContext(ctx).
		Where("property_id = ? AND source = ?", propertyID, source).
		Order("start_date ASC").
		Find(&out).Error
	return out, storageErr("list intervals", err)
}

// AddBlock inserts a blocked interval after guard approves the property's
// current intervals.
func (s *Store) AddBlock(ctx context.Context, b *models.BlockedInterval, guard IntervalGuard) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lockProperty(tx, b.PropertyID); err != nil {
			return err
		}
		if guard != nil {
			existing, err := intervalsOf(tx, b.PropertyID)
			if err != nil {
				return err
			}
			if err := guard(existing); err != nil {
				return err
			}
		}
		return tx.Create(b).Error
	})
	return storageErr("add block", err)
}

// DeleteManualBlock removes an administrator block. Booking and feed
// intervals cannot be removed this way.
func (s *Store) DeleteManualBlock(ctx context.Context, id string) (*models.BlockedInterval, error) {
	var b models.BlockedInterval
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&b, "id = ?", id).Error; err != nil {
			return err
		}
		if b.Source != models.SourceManual {
			return models.NewValidationError("source", "only manual blocks can be removed, got "+string(b.Source))
		}
		return tx.Delete(&models.BlockedInterval{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, storageErr("delete block", err)
	}
	return &b, nil
}

// ReplaceFeedIntervals swaps the property's external_feed partition for
// intervals in one transaction and returns how many rows were inserted.
func (s *Store) ReplaceFeedIntervals(ctx context.Context, propertyID string, intervals []models.BlockedInterval) (int, error) {
	rows := make([]models.BlockedInterval, len(intervals))
	for i, in := range intervals {
		in.ID = ""
		in.PropertyID = propertyID
		in.Source = models.SourceExternalFeed
		in.BookingID = nil
		rows[i] = in
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lockProperty(tx, propertyID); err != nil {
			return err
		}
		err := tx.Where("property_id = ? AND source = ?", propertyID, models.SourceExternalFeed).
			Delete(&models.BlockedInterval{}).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, 200).Error
	})
	if err != nil {
		return 0, storageErr("replace feed intervals", err)
	}
	return len(rows), nil
}

// CreateBooking inserts b together with its booking-sourced interval. guard
// sees the property's intervals under the property row lock.
func (s *Store) CreateBooking(ctx context.Context, b *models.Booking, guard IntervalGuard) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lockProperty(tx, b.PropertyID); err != nil {
			return err
		}
		existing, err := intervalsOf(tx, b.PropertyID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(existing); err != nil {
				return err
			}
		}
		if err := tx.Create(b).Error; err != nil {
			return err
		}
		block := b.BlockedInterval()
		return tx.Create(&block).Error
	})
	return storageErr("create booking", err)
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	if err := s.db.WithContext(ctx).Take(&b, "id = ?", id).Error; err != nil {
		return nil, storageErr("get booking", err)
	}
	return &b, nil
}

func (s *Store) GetBookingByNumber(ctx context.Context, number string) (*models.Booking, error) {
	var b models.Booking
	if err := s.db.WithContext(ctx).Take(&b, "booking_number = ?", number).Error; err != nil {
		return nil, storageErr("get booking", err)
	}
	return &b, nil
}

// UpdateBooking locks the booking row, lets mutate change it and saves the
// result. When the booking stops holding its dates the booking interval is
// deleted in the same transaction.
// ErrNoChange may be returned by an UpdateBooking mutate callback to leave
// the row untouched. UpdateBooking then returns the booking as read.
var ErrNoChange = errors.New("no change")

func (s *Store) UpdateBooking(ctx context.Context, id string, mutate func(b *models.Booking) error) (*models.Booking, error) {
	var b models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.forUpdate(tx).Take(&b, "id = ?", id).Error
		if err != nil {
			return err
		}
		held := b.Status.HoldsDates()
		if err := mutate(&b); err != nil {
			return err
		}
		if err := tx.Save(&b).Error; err != nil {
			return err
		}
		if held && !b.Status.HoldsDates() {
			return tx.Where("booking_id = ? AND source = ?", b.ID, models.SourceBooking).
				Delete(&models.BlockedInterval{}).Error
		}
		return nil
	})
	if errors.Is(err, ErrNoChange) {
		return &b, nil
	}
	if err != nil {
		return nil, storageErr("update booking", err)
	}
	return &b, nil
}

func (s *Store) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Booking{})
	if f.PropertyID != "" {
		q = q.Where("property_id = ?", f.PropertyID)
	}
	if f.GuestID != "" {
		q = q.Where("guest_id = ?", f.GuestID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.From.IsZero() {
		q = q.Where("check_out > ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("check_in < ?", f.To)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, storageErr("count bookings", err)
	}
	page, perPage := f.Page, f.PerPage
	if page < 1 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = defaultPerPage
	}
	var out []models.Booking
	err := q.Order("check_in ASC").Limit(perPage).Offset((page - 1) * perPage).Find(&out).Error
	if err != nil {
		return nil, 0, storageErr("list bookings", err)
	}
	return out, total, nil
}

// RevenueBookings returns revenue-bearing bookings whose stay overlaps
// window, optionally for a single property.
func (s *Store) RevenueBookings(ctx context.Context, window models.DateRange, propertyID string) ([]models.Booking, error) {
	q := s.db.WithContext(ctx).
		Where("status IN ?", models.RevenueStatuses).
		Where("check_in < ? AND check_out > ?", window.End, window.Start)
	if propertyID != "" {
		q = q.Where("property_id = ?", propertyID)
	}
	var out []models.Booking
	if err := q.Order("check_in ASC").Find(&out).Error; err != nil {
		return nil, storageErr("revenue bookings", err)
	}
	return out, nil
}

func (s *Store) forUpdate(tx *gorm.DB) *gorm.DB {
	if !s.rowLocks {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (s *Store) lockProperty(tx *gorm.DB, propertyID string) (*models.Property, error) {
	var p models.Property
	err := s.forUpdate(tx).Take(&p, "id = ?", propertyID).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func intervalsOf(tx *gorm.DB, propertyID string) ([]models.BlockedInterval, error) {
	var out []models.BlockedInterval
	err := tx.Where("property_id = ?", propertyID).Order("start_date ASC").Find(&out).Error
	return out, err
}

// storageErr maps gorm errors onto engine errors. Domain errors raised
// inside a transaction pass through untouched.
func storageErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.ErrNotFound
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrDateConflict),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrAlreadyTerminal),
		errors.Is(err, models.ErrNotFound):
		return err
	}
	return models.NewStorageError(op, err)
}
