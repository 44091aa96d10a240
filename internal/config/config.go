package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	TelemetryURL      string
	CommandURL        string
	MissionFile       string
	ListenAddr        string
	NATSURL           string
	RedisAddr         string
	AuthToken         string
	LogLevel          string
	LogDir            string
	VideoPollInterval time.Duration
	CommandTimeout    time.Duration
	SessionTTL        time.Duration
	CompletionRadius  float64
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		TelemetryURL: getEnv("TELEMETRY_URL", "ws://localhost:5328/ws"),
		CommandURL:   getEnv("COMMAND_URL", "http://localhost:5328"),
		MissionFile:  os.Getenv("MISSION_FILE"),
		ListenAddr:   getEnv("LISTEN_ADDR", ":8080"),
		NATSURL:      os.Getenv("NATS_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		AuthToken:    os.Getenv("AUTH_TOKEN"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogDir:       getEnv("LOG_DIR", "./logs"),
	}

	var err error
	if cfg.VideoPollInterval, err = getDuration("VIDEO_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.CommandTimeout, err = getDuration("COMMAND_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", time.Hour); err != nil {
		return nil, err
	}

	radius := getEnv("COMPLETION_RADIUS_M", "3")
	cfg.CompletionRadius, err = strconv.ParseFloat(radius, 64)
	if err != nil || cfg.CompletionRadius < 0 {
		return nil, fmt.Errorf("invalid COMPLETION_RADIUS_M %q: must be a non-negative number", radius)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
