package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saviobatista/groundstation/internal/config"
	"github.com/saviobatista/groundstation/internal/logging"
	"github.com/saviobatista/groundstation/internal/mission"
	"github.com/saviobatista/groundstation/internal/nats"
	"github.com/saviobatista/groundstation/internal/redis"
	"github.com/saviobatista/groundstation/internal/session"
	"github.com/saviobatista/groundstation/internal/stats"
	"github.com/saviobatista/groundstation/internal/types"
	"github.com/saviobatista/groundstation/internal/video"
)

const (
	statsInterval   = time.Minute
	shutdownTimeout = 5 * time.Second
	natsFlushWait   = 2 * time.Second
	redisStartWait  = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	logger := logging.New("groundstation", cfg.LogLevel, cfg.LogDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger.Logger)
	stop()

	if err != nil {
		logger.Error("groundstation stopped with error", slog.Any("error", err))
		_ = logger.Close()
		os.Exit(1)
	}
	logger.Info("groundstation stopped")
	_ = logger.Close()
}

// loadWaypoints reads the mission plan, if one is configured
func loadWaypoints(path string) ([]types.Waypoint, error) {
	if path == "" {
		return nil, nil
	}
	plan, err := mission.LoadPlan(path)
	if err != nil {
		return nil, err
	}
	return plan.Waypoints, nil
}

// clients holds the optional broker connections
type clients struct {
	nats  *nats.Client
	redis *redis.Client
}

func (c *clients) Close() {
	if c.nats != nil {
		if err := c.nats.Flush(natsFlushWait); err != nil {
			log.Printf("Warning: NATS flush incomplete: %v", err)
		}
		c.nats.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

// createClients connects to the brokers that are configured
func createClients(cfg *config.Config, logger *slog.Logger) (*clients, error) {
	c := &clients{}

	if cfg.NATSURL != "" {
		nc, err := nats.New(cfg.NATSURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS client: %w", err)
		}
		c.nats = nc
	}

	if cfg.RedisAddr != "" {
		rc, err := redis.New(cfg.RedisAddr)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
		c.redis = rc
	}

	return c, nil
}

// previousSessionStore is the part of the Redis client used at startup
type previousSessionStore interface {
	GetActiveSession(ctx context.Context) (string, error)
	GetSnapshot(ctx context.Context, sessionID string, target interface{}) (bool, error)
	DeleteSnapshot(ctx context.Context, sessionID string) error
}

// clearPreviousSession logs the last mirrored state of the session a
// previous run left active, then deletes its snapshot. Sessions are never
// resumed.
func clearPreviousSession(ctx context.Context, store previousSessionStore, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, redisStartWait)
	defer cancel()

	id, err := store.GetActiveSession(ctx)
	if err != nil {
		logger.Warn("failed to read previous session", slog.Any("error", err))
		return
	}
	if id == "" {
		return
	}

	var snap session.Snapshot
	found, err := store.GetSnapshot(ctx, id, &snap)
	switch {
	case err != nil:
		logger.Warn("failed to read previous snapshot", slog.String("session", id), slog.Any("error", err))
	case found:
		logger.Info("previous session ended",
			slog.String("session", id),
			slog.String("health", string(snap.Health)),
			slog.String("link", string(snap.Link)),
			slog.Int("waypoints_completed", snap.Mission.Completed),
			slog.Int("waypoints_total", snap.Mission.Total),
			slog.Time("taken", snap.Taken),
		)
	}

	if err := store.DeleteSnapshot(ctx, id); err != nil {
		logger.Warn("failed to delete previous snapshot", slog.String("session", id), slog.Any("error", err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	waypoints, err := loadWaypoints(cfg.MissionFile)
	if err != nil {
		return err
	}

	conns, err := createClients(cfg, logger)
	if err != nil {
		return err
	}
	defer conns.Close()

	st := stats.New()
	hub := NewHub(logger)
	pub := &publisher{hub: hub, logger: logger}
	if conns.nats != nil {
		pub.relay = conns.nats
	}

	var mirror *redis.Mirror
	if conns.redis != nil {
		mirror = redis.NewMirror(conns.redis, cfg.SessionTTL, logger)
		pub.mirror = mirror
	}

	factory := func() (*session.Session, error) {
		return session.New(session.Config{
			TelemetryURL:     cfg.TelemetryURL,
			CommandURL:       cfg.CommandURL,
			AuthToken:        cfg.AuthToken,
			CommandTimeout:   cfg.CommandTimeout,
			CompletionRadius: cfg.CompletionRadius,
			Waypoints:        waypoints,
		},
			session.WithLogger(logger),
			session.WithStats(st),
			session.WithObserver(pub),
		)
	}

	srv := NewServer(factory, hub, st, logger)
	if conns.redis != nil {
		clearPreviousSession(ctx, conns.redis, logger)
		srv.WithActiveStore(conns.redis, cfg.SessionTTL)
	}

	g, gctx := errgroup.WithContext(ctx)

	// The hub and mirror must be running before the session produces events.
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if mirror != nil {
		g.Go(func() error {
			mirror.Run(gctx)
			return nil
		})
	}

	if err := srv.Open(ctx); err != nil {
		if srv.Session() == nil {
			return err
		}
		logger.Warn("telemetry unavailable, waiting for operator reconnect", slog.Any("error", err))
	}
	defer srv.Close()

	g.Go(func() error {
		st.StartReporting(gctx, statsInterval, logger)
		return nil
	})

	poller := video.NewPoller(cfg.CommandURL, cfg.AuthToken, cfg.VideoPollInterval, logger)
	g.Go(func() error {
		poller.Run(gctx, srv.SetVideoStatus)
		return nil
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
