// Package config reads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultAddr           = ":8080"
	DefaultRosterPath     = "roster.yaml"
	DefaultMaxConns       = 5
	DefaultTick           = time.Second
	DefaultBidTimerTicks  = 30
	DefaultRTMTimerTicks  = 30
	DefaultPersistTimeout = 5 * time.Second
	DefaultPersistRetries = 3
	DefaultPersistBackoff = 200 * time.Millisecond
	DefaultLogLevel       = "info"
)

type Config struct {
	Addr        string
	RosterPath  string
	DatabaseURL string
	MaxConns    int
	AdminToken  string
	// TeamTokens maps team id to its bearer token. Empty leaves team actions
	// unauthenticated.
	TeamTokens  map[string]string

	Tick          time.Duration
	BidTimerTicks int
	RTMTimerTicks int

	PersistTimeout time.Duration
	PersistRetries int
	PersistBackoff time.Duration

	LogLevel string
	LogDev   bool
}

// Load reads envFile when it exists, then the process environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function and validates it.
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}
	cfg := Config{
		Addr:           p.str("AUCTION_ADDR", DefaultAddr),
		RosterPath:     p.str("AUCTION_ROSTER_PATH", DefaultRosterPath),
		DatabaseURL:    p.str("DATABASE_URL", ""),
		MaxConns:       p.integer("DATABASE_MAX_CONNS", DefaultMaxConns),
		AdminToken:     p.str("AUCTION_ADMIN_TOKEN", ""),
		TeamTokens:     p.pairs("AUCTION_TEAM_TOKENS"),
		Tick:           p.duration("AUCTION_TICK", DefaultTick),
		BidTimerTicks:  p.integer("AUCTION_BID_TIMER_TICKS", DefaultBidTimerTicks),
		RTMTimerTicks:  p.integer("AUCTION_RTM_TIMER_TICKS", DefaultRTMTimerTicks),
		PersistTimeout: p.duration("AUCTION_PERSIST_TIMEOUT", DefaultPersistTimeout),
		PersistRetries: p.integer("AUCTION_PERSIST_RETRIES", DefaultPersistRetries),
		PersistBackoff: p.duration("AUCTION_PERSIST_BACKOFF", DefaultPersistBackoff),
		LogLevel:       p.str("LOG_LEVEL", DefaultLogLevel),
		LogDev:         p.boolean("LOG_DEV", false),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("AUCTION_ADDR must not be empty"))
	}
	if c.RosterPath == "" {
		err = multierr.Append(err, errors.New("AUCTION_ROSTER_PATH must not be empty"))
	}
	if c.AdminToken == "" {
		err = multierr.Append(err, errors.New("AUCTION_ADMIN_TOKEN is required"))
	}
	if c.MaxConns < 1 {
		err = multierr.Append(err, fmt.Errorf("DATABASE_MAX_CONNS must be positive, got %d", c.MaxConns))
	}
	if c.Tick <= 0 {
		err = multierr.Append(err, fmt.Errorf("AUCTION_TICK must be positive, got %s", c.Tick))
	}
	if c.BidTimerTicks < 1 {
		err = multierr.Append(err, fmt.Errorf("AUCTION_BID_TIMER_TICKS must be at least 1, got %d", c.BidTimerTicks))
	}
	if c.RTMTimerTicks < 1 {
		err = multierr.Append(err, fmt.Errorf("AUCTION_RTM_TIMER_TICKS must be at least 1, got %d", c.RTMTimerTicks))
	}
	if c.PersistTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("AUCTION_PERSIST_TIMEOUT must be positive, got %s", c.PersistTimeout))
	}
	if c.PersistRetries < 1 {
		err = multierr.Append(err, fmt.Errorf("AUCTION_PERSIST_RETRIES must be at least 1, got %d", c.PersistRetries))
	}
	if c.PersistBackoff < 0 {
		err = multierr.Append(err, fmt.Errorf("AUCTION_PERSIST_BACKOFF must not be negative, got %s", c.PersistBackoff))
	}
	if _, lerr := zapcore.ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("LOG_LEVEL: %w", lerr))
	}
	return err
}

type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

// pairs parses "a=x,b=y" into a map.
func (p *parser) pairs(key string) map[string]string {
	v := p.getenv(key)
	if v == "" {
		return nil
	}
	out := map[string]string{}
	for _, item := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok || k == "" || val == "" {
			p.err = multierr.Append(p.err, fmt.Errorf("%s: malformed entry %q, want team=token", key, item))
			continue
		}
		if _, dup := out[k]; dup {
			p.err = multierr.Append(p.err, fmt.Errorf("%s: duplicate team %q", key, k))
			continue
		}
		out[k] = val
	}
	return out
}

func (p *parser) integer(key string, def int) int {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = multierr.Append(p.err, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = multierr.Append(p.err, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = multierr.Append(p.err, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
