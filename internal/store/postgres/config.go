package postgres

import (
	"os"
	"strconv"
	"time"
)

// Config captures PostgreSQL connection tuning options.
type Config struct {
	URL               string
	MaxConns          int32
	MinConns          int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

// Enabled reports whether a database is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// FromEnv builds a Config from DATABASE_URL and the PG_* tuning variables.
// Unset or malformed values fall back to the defaults.
func FromEnv() Config {
	return fromLookup(os.Getenv)
}

func fromLookup(getenv func(string) string) Config {
	return Config{
		URL:               getenv("DATABASE_URL"),
		MaxConns:          parseInt32(getenv("PG_MAX_CONNS"), 4),
		MinConns:          parseInt32(getenv("PG_MIN_CONNS"), 0),
		MaxConnIdleTime:   parseDuration(getenv("PG_MAX_CONN_IDLE"), time.Minute),
		MaxConnLifetime:   parseDuration(getenv("PG_MAX_CONN_LIFETIME"), time.Hour),
		HealthCheckPeriod: parseDuration(getenv("PG_HEALTHCHECK_PERIOD"), 30*time.Second),
		ConnectTimeout:    parseDuration(getenv("PG_CONNECT_TIMEOUT"), 10*time.Second),
	}
}

func parseInt32(raw string, def int32) int32 {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || v < 0 {
		return def
	}
	return int32(v)
}

func parseDuration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
