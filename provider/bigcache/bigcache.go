// Package bigcache adapts allegro/bigcache as a cache tier.
//
// BigCache reports removals with a reason, which maps directly onto
// provider.Cause. Its expiry is coarse (whole seconds, applied by the clean
// window), so every value is prefixed with its write time and TTL is also
// checked on read. Time-to-idle is not supported. Cost is ignored; capacity
// is bounded by HardMaxCacheSizeMB.
package bigcache

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/tierstore/provider"
)

const stampSize = 8

// forever stands in for "no TTL"; bigcache always needs a life window.
const forever = 100 * 365 * 24 * time.Hour

type Config struct {
	Shards             int           // power of two; 0 => 1024
	TimeToLive         time.Duration // 0 => none
	CleanWindow        time.Duration // 0 => TimeToLive/2 (min 1s) when a TTL is set
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // 0 = unlimited
}

type Provider struct {
	c       *bc.BigCache
	ttl     time.Duration
	onEvict pr.EvictionFunc
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config, onEvict pr.EvictionFunc) (*Provider, error) {
	life := cfg.TimeToLive
	if life <= 0 {
		life = forever
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = cfg.CleanWindow
	if conf.CleanWindow <= 0 && cfg.TimeToLive > 0 {
		conf.CleanWindow = max(cfg.TimeToLive/2, time.Second)
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	conf.Verbose = false

	p := &Provider{ttl: cfg.TimeToLive, onEvict: onEvict}
	conf.OnRemoveWithReason = p.removed

	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	p.c = c
	return p, nil
}

func Factory(cfg Config) pr.Factory {
	return func(onEvict pr.EvictionFunc) (pr.Provider, error) {
		return New(cfg, onEvict)
	}
}

// removed is called by bigcache while it holds the shard lock.
func (p *Provider) removed(key string, entry []byte, reason bc.RemoveReason) {
	if p.onEvict == nil || len(entry) < stampSize {
		return
	}
	var cause pr.Cause
	switch reason {
	case bc.Deleted:
		cause = pr.CauseExplicit
	case bc.Expired:
		cause = pr.CauseExpired
	case bc.NoSpace:
		cause = pr.CauseSize
	default:
		cause = pr.CauseUnknown
	}
	p.onEvict(key, entry[stampSize:], cause)
}

func (p *Provider) fresh(entry []byte) bool {
	if len(entry) < stampSize {
		return false
	}
	if p.ttl <= 0 {
		return true
	}
	written := int64(binary.BigEndian.Uint64(entry[:stampSize]))
	return time.Now().UnixNano()-written < int64(p.ttl)
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !p.fresh(b) {
		// reported as Deleted -> CauseExplicit, which reconciles the same way
		// as an expiry
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	return b[stampSize:], true, nil
}

func (p *Provider) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := p.Get(ctx, key)
	return ok, err
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64) (bool, error) {
	buf := make([]byte, stampSize+len(value))
	binary.BigEndian.PutUint64(buf, uint64(time.Now().UnixNano()))
	copy(buf[stampSize:], value)
	if err := p.c.Set(key, buf); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	err := p.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

// Sweep is a no-op; expiry runs on bigcache's CleanWindow.
func (p *Provider) Sweep(context.Context) error { return nil }

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}

// Len returns the number of stored entries.
func (p *Provider) Len() int { return p.c.Len() }
