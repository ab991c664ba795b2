// Package ristretto adapts dgraph-io/ristretto as a cache tier.
//
// Ristretto hashes keys and does not report expirations, so entries are
// wrapped with their composite key and timestamps, and TTL/TTI are enforced
// lazily by this adapter on access. Sweep is a no-op: ristretto cannot be
// iterated. Admission rejections are not evictions (nothing was stored).
package ristretto

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/tierstore/provider"
)

type Config struct {
	NumCounters int64 // 0 => 1e6
	MaxCost     int64 // 0 => unbounded
	BufferItems int64 // 0 => 64
	TimeToLive  time.Duration
	TimeToIdle  time.Duration
	Metrics     bool
}

type entry struct {
	key      string
	value    []byte
	written  int64
	accessed atomic.Int64
}

type Provider struct {
	c       *rc.Cache
	ttl     time.Duration
	tti     time.Duration
	onEvict pr.EvictionFunc
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config, onEvict pr.EvictionFunc) (*Provider, error) {
	if cfg.NumCounters < 0 || cfg.MaxCost < 0 || cfg.BufferItems < 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	if cfg.NumCounters == 0 {
		cfg.NumCounters = 1_000_000
	}
	if cfg.MaxCost == 0 {
		cfg.MaxCost = math.MaxInt64
	}
	if cfg.BufferItems == 0 {
		cfg.BufferItems = 64
	}
	p := &Provider{ttl: cfg.TimeToLive, tti: cfg.TimeToIdle, onEvict: onEvict}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
		OnEvict:     p.evicted,
	})
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

// evicted runs on ristretto's policy goroutine for capacity victims.
func (p *Provider) evicted(item *rc.Item) {
	e, _ := item.Value.(*entry)
	if e == nil {
		return
	}
	cause := pr.CauseSize
	if p.expired(e, time.Now().UnixNano()) {
		cause = pr.CauseExpired
	}
	p.notify(e, cause)
}

func (p *Provider) notify(e *entry, cause pr.Cause) {
	if p.onEvict != nil {
		p.onEvict(e.key, e.value, cause)
	}
}

func (p *Provider) expired(e *entry, now int64) bool {
	if p.ttl > 0 && now-e.written >= int64(p.ttl) {
		return true
	}
	if p.tti > 0 && now-e.accessed.Load() >= int64(p.tti) {
		return true
	}
	return false
}

func (p *Provider) lookup(key string, touch bool) (*entry, bool) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false
	}
	e, _ := v.(*entry)
	if e == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false
	}
	now := time.Now().UnixNano()
	if p.expired(e, now) {
		p.c.Del(key)
		p.notify(e, pr.CauseExpired)
		return nil, false
	}
	if touch {
		e.accessed.Store(now)
	}
	return e, true
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := p.lookup(key, true)
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (p *Provider) Contains(_ context.Context, key string) (bool, error) {
	_, ok := p.lookup(key, false)
	return ok, nil
}

// Set waits for ristretto's write buffer so the entry is visible to the next Get.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64) (bool, error) {
	now := time.Now().UnixNano()
	e := &entry{key: key, value: value, written: now}
	e.accessed.Store(now)
	ok := p.c.Set(key, e, cost)
	p.c.Wait()
	return ok, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	v, ok := p.c.Get(key)
	p.c.Del(key)
	if e, _ := v.(*entry); ok && e != nil {
		p.notify(e, pr.CauseExplicit)
	}
	return nil
}

func (p *Provider) Sweep(context.Context) error { return nil }

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto's counters (nil unless Config.Metrics).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
