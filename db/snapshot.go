package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"

	"github.com/dzoniops/condo-booking/models"
	"github.com/dzoniops/condo-booking/utils"
)

const snapshotKeyPrefix = "availability:intervals:"

// SnapshotCache keeps the last known blocked intervals per property in Redis.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSnapshotCache(rdb *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: rdb, ttl: ttl}
}

type snapshot struct {
	TakenAt   time.Time                `json:"taken_at"`
	Intervals []models.BlockedInterval `json:"intervals"`
}

func (c *SnapshotCache) Put(ctx context.Context, propertyID string, intervals []models.BlockedInterval) error {
	b, err := json.Marshal(snapshot{TakenAt: time.Now().UTC(), Intervals: intervals})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, snapshotKeyPrefix+propertyID, b, c.ttl).Err()
}

// Get returns the stored snapshot; ok is false when there is none.
func (c *SnapshotCache) Get(ctx context.Context, propertyID string) (intervals []models.BlockedInterval, takenAt time.Time, ok bool, err error) {
	raw, err := c.rdb.Get(ctx, snapshotKeyPrefix+propertyID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	var s snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return s.Intervals, s.TakenAt, true, nil
}

// TieredIntervals reads blocked intervals with a fixed precedence:
//
//  1. the primary store, always tried first and authoritative;
//  2. the Redis snapshot, only when the primary read fails.
//
// Writes never go to the snapshot directly. Refresh copies the primary
// state into the snapshot and runs after every successful primary read and
// after every write that changes a property's intervals.
type TieredIntervals struct {
	primary  *Store
	snapshot *SnapshotCache
	logger   log.Logger
	metrics  *utils.Metrics
}

func NewTieredIntervals(primary *Store, snapshot *SnapshotCache, logger log.Logger, metrics *utils.Metrics) *TieredIntervals {
	return &TieredIntervals{
		primary:  primary,
		snapshot: snapshot,
		logger:   log.With(logger, "component", "tiered-intervals"),
		metrics:  metrics,
	}
}

func (t *TieredIntervals) IntervalsForProperty(ctx context.Context, propertyID string) ([]models.BlockedInterval, error) {
	intervals, err := t.primary.IntervalsForProperty(ctx, propertyID)
	if err == nil {
		t.store(ctx, propertyID, intervals)
		return intervals, nil
	}
	if t.snapshot == nil {
		return nil, err
	}
	cached, takenAt, ok, cerr := t.snapshot.Get(ctx, propertyID)
	if cerr != nil || !ok {
		if cerr != nil {
			level.Warn(t.logger).Log("msg", "snapshot read failed", "property", propertyID, "err", cerr)
		}
		return nil, err
	}
	if t.metrics != nil {
		t.metrics.SnapshotFallbacks.Inc()
	}
	level.Warn(t.logger).Log("msg", "primary read failed, serving snapshot",
		"property", propertyID, "snapshot_age", time.Since(takenAt), "err", err)
	return cached, nil
}

// Refresh re-reads the primary store and overwrites the snapshot.
func (t *TieredIntervals) Refresh(ctx context.Context, propertyID string) error {
	intervals, err := t.primary.IntervalsForProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	t.store(ctx, propertyID, intervals)
	return nil
}

func (t *TieredIntervals) store(ctx context.Context, propertyID string, intervals []models.BlockedInterval) {
	if t.snapshot == nil {
		return
	}
	if err := t.snapshot.Put(ctx, propertyID, intervals); err != nil {
		level.Warn(t.logger).Log("msg", "snapshot write failed", "property", propertyID, "err", err)
	}
}
