package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/sync/errgroup"

	"github.com/saviobatista/groundstation/internal/logging"
	"github.com/saviobatista/groundstation/internal/types"
)

// settings for the simulator, read from the environment
type settings struct {
	addr     string
	token    string
	rate     time.Duration
	homeLat  float64
	homeLon  float64
	logLevel string
	logDir   string
}

func loadSettings() (*settings, error) {
	_ = godotenv.Load()

	s := &settings{
		addr:     getEnv("SIMULATOR_ADDR", ":5328"),
		token:    os.Getenv("AUTH_TOKEN"),
		logLevel: getEnv("LOG_LEVEL", "info"),
		logDir:   getEnv("LOG_DIR", "./logs"),
	}

	var err error
	if s.rate, err = time.ParseDuration(getEnv("SIMULATOR_RATE", "1s")); err != nil || s.rate <= 0 {
		return nil, fmt.Errorf("invalid SIMULATOR_RATE")
	}
	if s.homeLat, err = strconv.ParseFloat(getEnv("SIMULATOR_HOME_LAT", "47.397742"), 64); err != nil || s.homeLat < -90 || s.homeLat > 90 {
		return nil, fmt.Errorf("invalid SIMULATOR_HOME_LAT")
	}
	if s.homeLon, err = strconv.ParseFloat(getEnv("SIMULATOR_HOME_LON", "8.545594"), 64); err != nil || s.homeLon < -180 || s.homeLon > 180 {
		return nil, fmt.Errorf("invalid SIMULATOR_HOME_LON")
	}
	return s, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg, err := loadSettings()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	logger := logging.New("simulator", cfg.logLevel, cfg.logDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger.Logger)
	stop()

	if err != nil {
		logger.Error("simulator stopped with error", slog.Any("error", err))
		_ = logger.Close()
		os.Exit(1)
	}
	_ = logger.Close()
}

func run(ctx context.Context, cfg *settings, logger *slog.Logger) error {
	vehicle := NewVehicle(cfg.homeLat, cfg.homeLon)
	sim := NewSimulator(vehicle, cfg.rate, cfg.token, logger)

	httpServer := &http.Server{
		Addr:              cfg.addr,
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sim.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("simulator listening", slog.String("addr", cfg.addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Simulator serves a Vehicle over the push channel and command endpoints
type Simulator struct {
	vehicle  *Vehicle
	rate     time.Duration
	token    string
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewSimulator creates a simulator; Run advances the vehicle
func NewSimulator(v *Vehicle, rate time.Duration, token string, logger *slog.Logger) *Simulator {
	return &Simulator{
		vehicle: v,
		rate:    rate,
		token:   token,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run steps the vehicle at the configured rate until ctx is done
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.rate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			before := s.vehicle.State()
			s.vehicle.Step(s.rate.Seconds())
			if after := s.vehicle.State(); after != before {
				s.logger.Info("vehicle state changed",
					slog.String("from", string(before)),
					slog.String("to", string(after)))
			}
		}
	}
}

// Handler returns the HTTP handler
func (s *Simulator) Handler() http.Handler {
	r := httprouter.New()
	r.GET("/ws", s.authorized(s.handlePush))
	r.GET("/api/video-status", s.authorized(s.handleVideoStatus))
	r.POST("/api/:command", s.authorized(s.handleCommand))
	return r
}

func (s *Simulator) authorized(h httprouter.Handle) httprouter.Handle {
	if s.token == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		h(w, r, ps)
	}
}

func (s *Simulator) handleCommand(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	kind, ok := types.ParseCommandKind(ps.ByName("command"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown command"})
		return
	}
	status := s.vehicle.Command(kind)
	s.logger.Info("command", slog.String("command", string(kind)), slog.String("status", status))
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Simulator) handleVideoStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, types.VideoStatus{Status: "streaming", Source: "simulator"})
}

// handlePush writes the vehicle's telemetry to the client once per tick
func (s *Simulator) handlePush(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()
	s.logger.Info("telemetry client connected", slog.String("client", r.RemoteAddr))

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.rate)
	defer ticker.Stop()
	for {
		frames, err := s.vehicle.Frames()
		if err != nil {
			s.logger.Error("failed to encode telemetry", slog.Any("error", err))
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
				s.logger.Info("telemetry client gone", slog.String("client", r.RemoteAddr))
				return
			}
		}

		select {
		case <-ticker.C:
		case <-gone:
			s.logger.Info("telemetry client disconnected", slog.String("client", r.RemoteAddr))
			return
		case <-r.Context().Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "simulator shutting down"))
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
