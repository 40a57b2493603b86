package calsync

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/dzoniops/condo-booking/client"
	"github.com/dzoniops/condo-booking/ics"
	"github.com/dzoniops/condo-booking/models"
	"github.com/dzoniops/condo-booking/utils"
)

const (
	DefaultWorkers     = 4
	DefaultHorizonDays = 365
)

// Store is the part of the relational store the reconciler writes to.
type Store interface {
	GetProperty(ctx context.Context, id string) (*models.Property, error)
	ListFeedProperties(ctx context.Context) ([]models.Property, error)
	ReplaceFeedIntervals(ctx context.Context, propertyID string, intervals []models.BlockedInterval) (int, error)
	RecordSync(ctx context.Context, propertyID string, at time.Time, syncErr error) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (client.FeedResponse, error)
}

type Refresher interface {
	Refresh(ctx context.Context, propertyID string) error
}

type PropertyResult struct {
	PropertyID string `json:"property_id"`
	Success    bool   `json:"success"`
	AddedCount int    `json:"added_count"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
}

type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type Report struct {
	Results []PropertyResult `json:"results"`
	Summary Summary          `json:"summary"`
}

type Config struct {
	Location    *time.Location
	HorizonDays int
	Workers     int
	Now         func() time.Time
}

// Reconciler replaces each property's external_feed intervals with the
// current contents of its calendar feed. Booking and manual intervals are
// never touched.
type Reconciler struct {
	store     Store
	fetcher   Fetcher
	refresher Refresher
	logger    log.Logger
	metrics   *utils.Metrics
	cfg       Config
}

func NewReconciler(store Store, fetcher Fetcher, refresher Refresher, logger log.Logger, metrics *utils.Metrics, cfg Config) *Reconciler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = DefaultHorizonDays
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{
		store:     store,
		fetcher:   fetcher,
		refresher: refresher,
		logger:    log.With(logger, "component", "calendar-sync"),
		metrics:   metrics,
		cfg:       cfg,
	}
}

// SyncProperty runs one fetch-parse-replace cycle. On a fetch or parse
// failure the stored feed intervals are left as they were.
func (r *Reconciler) SyncProperty(ctx context.Context, propertyID string) PropertyResult {
	ctx, span := otel.Tracer("calendar-sync").Start(ctx, "Reconciler.SyncProperty")
	defer span.End()
	span.SetAttributes(attribute.String("property.id", propertyID))

	res := PropertyResult{PropertyID: propertyID}
	added, err := r.syncProperty(ctx, propertyID)
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.observe("failure")
		level.Error(r.logger).Log("msg", "sync failed", "property", propertyID, "err", err)
		if !errors.Is(err, models.ErrNotFound) {
			if rerr := r.store.RecordSync(ctx, propertyID, r.cfg.Now().UTC(), err); rerr != nil {
				level.Warn(r.logger).Log("msg", "recording sync failure failed", "property", propertyID, "err", rerr)
			}
		}
		return res
	}

	res.Success = true
	res.AddedCount = added
	r.observe("success")
	if r.metrics != nil {
		r.metrics.SyncIntervals.WithLabelValues(propertyID).Set(float64(added))
	}
	if err := r.store.RecordSync(ctx, propertyID, r.cfg.Now().UTC(), nil); err != nil {
		level.Warn(r.logger).Log("msg", "recording sync success failed", "property", propertyID, "err", err)
	}
	if r.refresher != nil {
		if err := r.refresher.Refresh(ctx, propertyID); err != nil {
			level.Warn(r.logger).Log("msg", "snapshot refresh failed", "property", propertyID, "err", err)
		}
	}
	level.Info(r.logger).Log("msg", "sync complete", "property", propertyID, "intervals", added)
	return res
}

func (r *Reconciler) syncProperty(ctx context.Context, propertyID string) (int, error) {
	p, err := r.store.GetProperty(ctx, propertyID)
	if err != nil {
		return 0, err
	}
	if !p.HasFeed() {
		return 0, models.NewValidationError("feed_url", "property is inactive or has no calendar feed")
	}

	feed, err := r.fetcher.Fetch(ctx, p.FeedURL)
	if err != nil {
		return 0, &models.FeedError{PropertyID: propertyID, Stage: models.FeedStageFetch, Err: err}
	}

	now := r.cfg.Now()
	parsed, err := ics.Parse(feed.Body, ics.Options{
		Location: r.cfg.Location,
		From:     now,
		Until:    now.In(r.cfg.Location).AddDate(0, 0, r.cfg.HorizonDays),
	})
	if err != nil {
		return 0, &models.FeedError{PropertyID: propertyID, Stage: models.FeedStageParse, Err: err}
	}
	for _, s := range parsed.Skipped {
		level.Warn(r.logger).Log("msg", "skipping calendar event", "property", propertyID, "uid", s.UID, "reason", s.Reason)
	}

	return r.store.ReplaceFeedIntervals(ctx, propertyID, toIntervals(parsed.Events))
}

func toIntervals(events []ics.ParsedEvent) []models.BlockedInterval {
	out := make([]models.BlockedInterval, 0, len(events))
	for _, ev := range events {
		reason := ev.Title
		if reason == "" {
			reason = "external calendar"
		}
		out = append(out, models.BlockedInterval{
			StartDate:   ev.Start,
			EndDate:     ev.End,
			Source:      models.SourceExternalFeed,
			Reason:      reason,
			ExternalUID: ev.UID,
		})
	}
	return out
}

// SyncAll syncs every active property with a feed. Properties are handled
// independently on a bounded number of workers; one failure never stops
// the others. The error is only set when the property list itself could
// not be loaded.
func (r *Reconciler) SyncAll(ctx context.Context) (Report, error) {
	props, err := r.store.ListFeedProperties(ctx)
	if err != nil {
		return Report{}, err
	}

	results := make([]PropertyResult, len(props))
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i := range props {
		i := i
		g.Go(func() error {
			results[i] = r.SyncProperty(ctx, props[i].ID)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Results: results, Summary: Summary{Total: len(results)}}
	for _, res := range results {
		if res.Success {
			report.Summary.Successful++
		} else {
			report.Summary.Failed++
		}
	}
	level.Info(r.logger).Log("msg", "sync run finished",
		"total", report.Summary.Total, "successful", report.Summary.Successful, "failed", report.Summary.Failed)
	return report, nil
}

func (r *Reconciler) observe(result string) {
	if r.metrics != nil {
		r.metrics.SyncRuns.WithLabelValues(result).Inc()
	}
}
