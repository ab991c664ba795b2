package tierstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/unkn0wn-root/tierstore/provider/memory"
	"github.com/unkn0wn-root/tierstore/store/sqlite"
)

// EnvPrefix prefixes every variable LoadConfig reads.
const EnvPrefix = "TIERSTORE_"

// Config is the plain construction settings for Open. Durations are whole
// seconds; 0 means unbounded along that axis.
type Config struct {
	DBPath           string `env:"DB_PATH"            envDefault:"default.db"`
	CacheSegments    int    `env:"CACHE_SEGMENTS"     envDefault:"1"`
	CacheMaxCapacity int64  `env:"CACHE_MAX_CAPACITY"` // weighted cost: key + value bytes
	CacheTimeToLive  int64  `env:"CACHE_TTL"`
	CacheTimeToIdle  int64  `env:"CACHE_TTI"`

	// MaintenanceInterval > 0 runs RunMaintenance in the background.
	MaintenanceInterval int64 `env:"MAINTENANCE_INTERVAL"`
}

// DefaultConfig returns the settings LoadConfig starts from.
func DefaultConfig() Config {
	return Config{DBPath: "default.db", CacheSegments: 1}
}

// LoadConfig reads TIERSTORE_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if c.CacheSegments < 0 {
		errs = append(errs, errors.New("cache segments must be >= 0"))
	}
	if c.CacheMaxCapacity < 0 || c.CacheTimeToLive < 0 || c.CacheTimeToIdle < 0 || c.MaintenanceInterval < 0 {
		errs = append(errs, errors.New("capacity and durations must be >= 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("tierstore: invalid config: %w", err)
	}
	return nil
}

// MemoryConfig maps the cache settings onto the default cache tier.
func (c Config) MemoryConfig() memory.Config {
	return memory.Config{
		Segments:   c.CacheSegments,
		MaxCost:    c.CacheMaxCapacity,
		TimeToLive: seconds(c.CacheTimeToLive),
		TimeToIdle: seconds(c.CacheTimeToIdle),
	}
}

func seconds(n int64) time.Duration { return time.Duration(n) * time.Second }

// Option adjusts the Options that Open derives from a Config.
type Option func(*Options)

func WithLogger(l Logger) Option { return func(o *Options) { o.Logger = l } }

func WithHooks(h Hooks) Option { return func(o *Options) { o.Hooks = h } }

func WithCost(fn CostFunc) Option { return func(o *Options) { o.ComputeCost = fn } }

// Open opens the SQLite store at cfg.DBPath behind the memory cache tier.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Storage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("tierstore: %w", err)
	}
	o := Options{
		Store:               db,
		Provider:            memory.Factory(cfg.MemoryConfig()),
		MaintenanceInterval: seconds(cfg.MaintenanceInterval),
	}
	for _, opt := range opts {
		opt(&o)
	}
	s, err := New(o)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
