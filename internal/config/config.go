// Package config loads the recognized environment keys (spec §6) into a typed
// Config, defaulting the way the teacher's scheduler.loadConfig does: read raw
// values, then fill in sane defaults for anything left blank.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration, read once at startup.
type Config struct {
	BrokerAPIKey      string
	BrokerAPISecret   string
	BrokerAccessToken string

	MarketTimezone *time.Location

	EnableScheduler bool

	CacheURL string // empty => in-memory cache

	Host string
	Port int
}

// ErrConfig is a fatal startup/configuration error (spec §7: exit code 1).
type ErrConfig struct {
	Key     string
	Message string
}

func (e *ErrConfig) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Key, e.Message)
}

// Load reads the recognized environment keys and validates them. A malformed
// MARKET_TIMEZONE (or one that is not Asia/Kolkata) is a fatal configuration
// error — spec §6 says any other value "is a configuration error".
func Load() (*Config, error) {
	tz := getenv("MARKET_TIMEZONE", "Asia/Kolkata")
	if tz != "Asia/Kolkata" {
		return nil, &ErrConfig{Key: "MARKET_TIMEZONE", Message: "must be Asia/Kolkata"}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &ErrConfig{Key: "MARKET_TIMEZONE", Message: err.Error()}
	}

	port := 8080
	if p := os.Getenv("PORT"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, &ErrConfig{Key: "PORT", Message: "must be an integer"}
		}
		port = v
	}

	return &Config{
		BrokerAPIKey:      os.Getenv("BROKER_API_KEY"),
		BrokerAPISecret:   os.Getenv("BROKER_API_SECRET"),
		BrokerAccessToken: os.Getenv("BROKER_ACCESS_TOKEN"),
		MarketTimezone:    loc,
		EnableScheduler:   getenvBool("ENABLE_SCHEDULER", true),
		CacheURL:          os.Getenv("CACHE_URL"),
		Host:              getenv("HOST", "0.0.0.0"),
		Port:              port,
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
