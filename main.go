package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"
	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/dzoniops/condo-booking/availability"
	"github.com/dzoniops/condo-booking/calsync"
	"github.com/dzoniops/condo-booking/client"
	"github.com/dzoniops/condo-booking/config"
	"github.com/dzoniops/condo-booking/db"
	"github.com/dzoniops/condo-booking/handlers"
	"github.com/dzoniops/condo-booking/mq"
	"github.com/dzoniops/condo-booking/services"
	"github.com/dzoniops/condo-booking/utils"
)

const healthCheckInterval = 15 * time.Second

func interceptorLogger(l log.Logger) logging.Logger {
	return logging.LoggerFunc(
		func(_ context.Context, lvl logging.Level, msg string, fields ...any) {
			largs := append([]any{"msg", msg}, fields...)
			switch lvl {
			case logging.LevelDebug:
				_ = level.Debug(l).Log(largs...)
			case logging.LevelInfo:
				_ = level.Info(l).Log(largs...)
			case logging.LevelWarn:
				_ = level.Warn(l).Log(largs...)
			case logging.LevelError:
				_ = level.Error(l).Log(largs...)
			default:
				panic(fmt.Sprintf("unknown level %v", lvl))
			}
		},
	)
}

func main() {
	if err := serve(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serve wires the service and blocks until it is told to stop. Deferred
// cleanup runs before the process exits.
func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	loc := cfg.Location()

	// Setup logging.
	logger := utils.NewLogger(os.Stderr, cfg.LogLevel)
	rpcLogger := log.With(logger, "service", "gRPC/server", "component", "condo-booking")
	logTraceID := func(ctx context.Context) logging.Fields {
		if span := trace.SpanContextFromContext(ctx); span.IsSampled() {
			return logging.Fields{"traceID", span.TraceID().String()}
		}
		return nil
	}

	shutdownTracer, err := utils.InitTracer(os.Stdout, cfg.TraceSampling)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(ctx)
	}()

	// Setup metrics.
	srvMetrics := grpcprom.NewServerMetrics(
		grpcprom.WithServerHandlingTimeHistogram(
			grpcprom.WithHistogramBuckets(
				[]float64{0.001, 0.01, 0.1, 0.3, 0.6, 1, 3, 6, 9, 20, 30, 60, 90, 120},
			),
		),
	)
	reg := prometheus.NewRegistry()
	reg.MustRegister(srvMetrics, collectors.NewGoCollector())
	metrics := utils.NewMetrics(reg)
	exemplarFromContext := func(ctx context.Context) prometheus.Labels {
		if span := trace.SpanContextFromContext(ctx); span.IsSampled() {
			return prometheus.Labels{"traceID": span.TraceID().String()}
		}
		return nil
	}

	// Setup metric for panic recoveries.
	panicsTotal := promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "grpc_req_panics_recovered_total",
		Help: "Total number of gRPC requests recovered from internal panic.",
	})
	grpcPanicRecoveryHandler := func(p any) (err error) {
		panicsTotal.Inc()
		level.Error(rpcLogger).
			Log("msg", "recovered from panic", "panic", p, "stack", debug.Stack())
		return status.Errorf(codes.Internal, "%s", p)
	}

	// Storage.
	gdb, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	store := db.NewStore(gdb)
	if cfg.PropertiesFile != "" {
		if err := seedProperties(context.Background(), store, cfg.PropertiesFile, logger); err != nil {
			return fmt.Errorf("seed properties from %s: %w", cfg.PropertiesFile, err)
		}
	}

	var snapshots *db.SnapshotCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		snapshots = db.NewSnapshotCache(rdb, cfg.SnapshotTTL)
	}
	intervals := db.NewTieredIntervals(store, snapshots, logger, metrics)

	var publisher mq.Publisher = mq.NopPublisher{}
	if cfg.RabbitURL != "" {
		rp, err := mq.NewRabbitPublisher(cfg.RabbitURL, cfg.BookingExchange)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer rp.Close()
		publisher = rp
	}

	// Engine.
	feeds := client.NewFeedClient(cfg.FeedTimeout, cfg.FeedCacheDir, logger,
		client.WithMaxBytes(cfg.FeedMaxBytes),
		client.WithMetrics(metrics),
	)
	reconciler := calsync.NewReconciler(store, feeds, intervals, logger, metrics, calsync.Config{
		Location:    loc,
		HorizonDays: cfg.FeedHorizonDays,
		Workers:     cfg.SyncWorkers,
	})
	scheduler, err := calsync.NewScheduler(reconciler, cfg.SyncCron, loc, cfg.SyncTimeout, logger)
	if err != nil {
		return fmt.Errorf("build sync scheduler: %w", err)
	}
	bookings := services.NewBookingService(store, logger,
		services.WithLocation(loc),
		services.WithPublisher(publisher),
		services.WithRefresher(intervals),
		services.WithMetrics(metrics),
	)

	admin := handlers.AdminCredentials{}
	if cfg.AdminEnabled() {
		admin = handlers.AdminCredentials{User: cfg.AdminUser, Password: cfg.AdminPassword}
	} else {
		level.Warn(logger).Log("msg", "ADMIN_PASSWORD not set, admin routes disabled")
	}
	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(&handlers.Handler{
		Properties:   store,
		Availability: availability.NewService(intervals, store, intervals, logger),
		Bookings:     bookings,
		Revenue:      services.NewRevenueService(store),
		Sync:         reconciler,
		Ping:         store.Ping,
		Logger:       logger,
		Now:          time.Now,
		Location:     loc,
	}, admin)

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			// Order matters e.g. tracing interceptor have to create span first for the later exemplars to work.
			otelgrpc.UnaryServerInterceptor(),
			srvMetrics.UnaryServerInterceptor(
				grpcprom.WithExemplarFromContext(exemplarFromContext),
			),
			logging.UnaryServerInterceptor(
				interceptorLogger(rpcLogger),
				logging.WithFieldsFromContext(logTraceID),
			),
			recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(grpcPanicRecoveryHandler)),
		),
		grpc.ChainStreamInterceptor(
			otelgrpc.StreamServerInterceptor(),
			srvMetrics.StreamServerInterceptor(
				grpcprom.WithExemplarFromContext(exemplarFromContext),
			),
			logging.StreamServerInterceptor(
				interceptorLogger(rpcLogger),
				logging.WithFieldsFromContext(logTraceID),
			),
			recovery.StreamServerInterceptor(
				recovery.WithRecoveryHandler(grpcPanicRecoveryHandler),
			),
		),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	srvMetrics.InitializeMetrics(grpcSrv)

	g := &run.Group{}
	g.Add(func() error {
		l, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
		if err != nil {
			return err
		}
		level.Info(logger).Log("msg", "starting gRPC server", "addr", l.Addr().String())
		return grpcSrv.Serve(l)
	}, func(err error) {
		grpcSrv.GracefulStop()
		grpcSrv.Stop()
	})

	healthCtx, stopHealth := context.WithCancel(context.Background())
	g.Add(func() error {
		watchHealth(healthCtx, healthSrv, store.Ping, logger)
		return nil
	}, func(error) {
		stopHealth()
	})

	apiSrv := &http.Server{Addr: fmt.Sprintf(":%s", cfg.HTTPPort), Handler: router}
	g.Add(func() error {
		level.Info(logger).Log("msg", "starting API server", "addr", apiSrv.Addr)
		if err := apiSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiSrv.Shutdown(ctx); err != nil {
			level.Error(logger).Log("msg", "failed to stop API server", "err", err)
		}
	})

	httpSrv := &http.Server{Addr: fmt.Sprintf(":%s", cfg.MetricsPort)}
	g.Add(func() error {
		m := http.NewServeMux()
		// Create HTTP handler for Prometheus metrics.
		m.Handle("/metrics", promhttp.HandlerFor(
			reg,
			promhttp.HandlerOpts{
				// Opt into OpenMetrics e.g. to support exemplars.
				EnableOpenMetrics: true,
			},
		))
		httpSrv.Handler = m
		level.Info(logger).Log("msg", "starting HTTP server", "addr", httpSrv.Addr)
		return httpSrv.ListenAndServe()
	}, func(error) {
		if err := httpSrv.Close(); err != nil {
			level.Error(logger).Log("msg", "failed to stop web server", "err", err)
		}
	})

	syncCtx, stopSync := context.WithCancel(context.Background())
	g.Add(func() error {
		if err := scheduler.Run(syncCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}, func(error) {
		stopSync()
	})

	g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		level.Info(logger).Log("msg", "shutting down", "signal", sig.Signal.String())
		return nil
	}
	return err
}

func seedProperties(ctx context.Context, store *db.Store, path string, logger log.Logger) error {
	props, err := config.LoadProperties(path)
	if err != nil {
		return err
	}
	for i := range props {
		if err := store.UpsertProperty(ctx, &props[i]); err != nil {
			return fmt.Errorf("property %s: %w", props[i].Slug, err)
		}
	}
	level.Info(logger).Log("msg", "properties seeded", "count", len(props))
	return nil
}

// watchHealth mirrors database reachability into the gRPC health service
// until ctx is done.
func watchHealth(ctx context.Context, srv *health.Server, ping func(context.Context) error, logger log.Logger) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := ping(pctx); err != nil {
			level.Warn(logger).Log("msg", "database ping failed", "err", err)
			srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}
	check()
	t := time.NewTicker(healthCheckInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-t.C:
			check()
		}
	}
}
