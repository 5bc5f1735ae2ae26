package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/civilens/civilens/internal/complaint"
	"github.com/civilens/civilens/internal/config"
	"github.com/civilens/civilens/internal/database"
	"github.com/civilens/civilens/internal/detect"
	"github.com/civilens/civilens/internal/handler/flowfeed"
	"github.com/civilens/civilens/internal/handler/health"
	"github.com/civilens/civilens/internal/landing"
	"github.com/civilens/civilens/internal/migrations"
	"github.com/civilens/civilens/internal/otp"
	"github.com/civilens/civilens/internal/server"
	"github.com/civilens/civilens/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	checks := map[string]health.Checker{
		"sqlite": health.CheckFunc(db.PingContext),
	}

	// --- Sessions ---
	var sessions session.Store
	switch cfg.SessionBackend {
	case config.BackendRedis:
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")

		sessions = session.NewRedisStore(rdb)
		checks["redis"] = health.CheckFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	case config.BackendMemory:
		sessions = session.NewMemoryStore()
	default:
		sessions = session.NewSQLStore(db)
	}
	logger.Info("session backend ready", "backend", cfg.SessionBackend)

	// --- Detection ---
	var detector detect.Detector = detect.Unavailable{}
	if cfg.DetectURL != "" {
		detector = detect.NewClient(cfg.DetectURL, cfg.DetectTimeout)
		logger.Info("detection service configured", "url", cfg.DetectURL, "timeout", cfg.DetectTimeout)
	} else {
		logger.Warn("DETECT_URL not set; detection requests will fail")
	}

	renderer, err := landing.NewRenderer()
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	// --- HTTP Server ---
	broker := server.NewBroker()
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Sessions:          sessions,
		Sender:            otp.LogSender{Logger: logger},
		Detector:          detector,
		Complaints:        complaint.NewStore(db),
		Renderer:          renderer,
		Broker:            broker,
		FlowFeed:          flowfeed.NewHandler(logger, broker, server.DeviceID).Routes(),
		AdminPasswordHash: cfg.AdminPasswordHash,
		CookieSecure:      cfg.CookieSecure,
	}, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
