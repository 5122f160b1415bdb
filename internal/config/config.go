// Package config loads engine and fetch tuning from ASSETS_* environment
// variables. Listener options (host, port, directories) stay with the CLI.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/joeblew999/plat-assets/internal/geo"
)

// Prefix is prepended to every variable name.
const Prefix = "ASSETS_"

// Settings is the runtime tuning of the asset service.
type Settings struct {
	// Remote feature queries
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
	FetchRate    float64       `env:"FETCH_RATE"    envDefault:"5"`
	FetchBurst   int           `env:"FETCH_BURST"   envDefault:"10"`

	// Response cache. RedisURL switches from the in-process LRU to Redis.
	CacheSize int           `env:"CACHE_SIZE" envDefault:"256"`
	CacheTTL  time.Duration `env:"CACHE_TTL"  envDefault:"5m"`
	RedisURL  string        `env:"REDIS_URL"`

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	DisplayCRS string        `env:"DISPLAY_CRS" envDefault:"EPSG:3857"`
	LogLevel   string        `env:"LOG_LEVEL"   envDefault:"info"`
	LogFormat  string        `env:"LOG_FORMAT"  envDefault:"text"`
}

// Load parses the process environment.
func Load() (*Settings, error) {
	return parse(env.Options{Prefix: Prefix})
}

// FromMap parses vars instead of the process environment.
func FromMap(vars map[string]string) (*Settings, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (*Settings, error) {
	s := &Settings{}
	if err := env.ParseWithOptions(s, opts); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.FetchTimeout <= 0 {
		return fmt.Errorf("%sFETCH_TIMEOUT must be positive", Prefix)
	}
	if s.FetchRate <= 0 || s.FetchBurst < 1 {
		return fmt.Errorf("%sFETCH_RATE and %sFETCH_BURST must be positive", Prefix, Prefix)
	}
	if s.CacheSize < 0 {
		return fmt.Errorf("%sCACHE_SIZE must not be negative", Prefix)
	}
	if _, err := geo.Canonical(s.DisplayCRS); err != nil {
		return fmt.Errorf("%sDISPLAY_CRS: %w", Prefix, err)
	}
	if _, err := s.level(); err != nil {
		return err
	}
	return nil
}

func (s *Settings) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("%sLOG_LEVEL: %w", Prefix, err)
	}
	return l, nil
}

// Logger builds the service logger writing to w.
func (s *Settings) Logger(w io.Writer) *slog.Logger {
	l, _ := s.level()
	opts := &slog.HandlerOptions{Level: l}
	if strings.EqualFold(s.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
