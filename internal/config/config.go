package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the beacon server reads at startup.
// Values come from the environment (optionally via a .env file), with
// defaults matching the reference deployment.
type Config struct {
	ListenAddr string

	// ActiveWindow decides inclusion in "active" peer listings. It is
	// deliberately shorter than InactivityThreshold: a peer can be
	// invisible to active listings long before the sweeper purges it.
	ActiveWindow        time.Duration
	InactivityThreshold time.Duration
	SweepInterval       time.Duration

	DefaultPageSize int
	MaxPageSize     int

	ShutdownGrace time.Duration

	// RateLimit is requests per second per client IP, RateBurst the
	// token bucket size. Zero disables rate limiting.
	RateLimit float64
	RateBurst int

	// JournalPath is the sqlite file for the operational event journal.
	// Empty disables journaling.
	JournalPath string

	LogLevel string
}

func Default() Config {
	return Config{
		ListenAddr:          ":8080",
		ActiveWindow:        2 * time.Minute,
		InactivityThreshold: 5 * time.Minute,
		SweepInterval:       60 * time.Second,
		DefaultPageSize:     50,
		MaxPageSize:         100,
		ShutdownGrace:       10 * time.Second,
		RateLimit:           20,
		RateBurst:           40,
		JournalPath:         "",
		LogLevel:            "info",
	}
}

// Load builds a Config from defaults overridden by environment variables.
// A .env file in the working directory is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if v := os.Getenv("BEACON_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("BEACON_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BEACON_JOURNAL_PATH"); v != "" {
		cfg.JournalPath = v
	}

	var err error
	if cfg.ActiveWindow, err = durationEnv("BEACON_ACTIVE_WINDOW", cfg.ActiveWindow); err != nil {
		return cfg, err
	}
	if cfg.InactivityThreshold, err = durationEnv("BEACON_INACTIVITY_THRESHOLD", cfg.InactivityThreshold); err != nil {
		return cfg, err
	}
	if cfg.SweepInterval, err = durationEnv("BEACON_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return cfg, err
	}
	if cfg.ShutdownGrace, err = durationEnv("BEACON_SHUTDOWN_GRACE", cfg.ShutdownGrace); err != nil {
		return cfg, err
	}
	if cfg.MaxPageSize, err = intEnv("BEACON_MAX_PAGE_SIZE", cfg.MaxPageSize); err != nil {
		return cfg, err
	}
	if cfg.DefaultPageSize, err = intEnv("BEACON_DEFAULT_PAGE_SIZE", cfg.DefaultPageSize); err != nil {
		return cfg, err
	}
	if cfg.RateBurst, err = intEnv("BEACON_RATE_BURST", cfg.RateBurst); err != nil {
		return cfg, err
	}
	if v := os.Getenv("BEACON_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("BEACON_RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = f
	}

	if cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = cfg.MaxPageSize
	}
	return cfg, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
