package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SyncRuns          *prometheus.CounterVec
	SyncIntervals     *prometheus.GaugeVec
	FeedFetchDuration *prometheus.HistogramVec
	BookingsCreated   prometheus.Counter
	BookingConflicts  prometheus.Counter
	StatusTransitions *prometheus.CounterVec
	SnapshotFallbacks prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "calendar_sync_runs_total",
			Help: "Calendar feed sync attempts per property, by result.",
		}, []string{"result"}),
		SyncIntervals: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "calendar_sync_intervals",
			Help: "External feed intervals stored after the last successful sync.",
		}, []string{"property"}),
		FeedFetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "calendar_feed_fetch_seconds",
			Help:    "Time spent fetching calendar feeds.",
			Buckets: []float64{0.05, 0.1, 0.3, 0.6, 1, 3, 6, 10, 20, 30},
		}, []string{"status"}),
		BookingsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "Bookings created.",
		}),
		BookingConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "booking_date_conflicts_total",
			Help: "Booking requests rejected because the dates were blocked.",
		}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_status_transitions_total",
			Help: "Booking status changes by target status.",
		}, []string{"to"}),
		SnapshotFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "availability_snapshot_fallbacks_total",
			Help: "Availability reads served from the snapshot because the primary store failed.",
		}),
	}
}
