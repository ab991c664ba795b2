// Package memory is the default cache tier: a segmented LRU bounded by
// weighted cost, with optional time-to-live and time-to-idle.
//
// Each segment owns an independent map + recency list guarded by its own
// mutex; a key's segment is chosen by hash. Capacity is split evenly across
// segments. Eviction notifications are delivered after the segment lock is
// released, on the goroutine that caused them.
package memory

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	pr "github.com/unkn0wn-root/tierstore/provider"
)

type Config struct {
	Segments   int           // 0 => 1
	MaxCost    int64         // total weighted capacity; 0 = unbounded
	TimeToLive time.Duration // since write; 0 = none
	TimeToIdle time.Duration // since last read or write; 0 = none

	// Now overrides the clock (tests).
	Now func() time.Time
}

type entry struct {
	key      string
	value    []byte
	cost     int64
	written  time.Time
	accessed time.Time
}

type eviction struct {
	key   string
	value []byte
	cause pr.Cause
}

type segment struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List // front = most recently used
	cost    int64
	maxCost int64
}

// Cache implements provider.Provider.
type Cache struct {
	segments []*segment
	ttl      time.Duration
	tti      time.Duration
	now      func() time.Time
	onEvict  pr.EvictionFunc

	evictions [5]atomic.Uint64 // indexed by Cause
}

var _ pr.Provider = (*Cache)(nil)

func New(cfg Config, onEvict pr.EvictionFunc) *Cache {
	n := cfg.Segments
	if n <= 0 {
		n = 1
	}
	per := int64(0)
	if cfg.MaxCost > 0 {
		per = (cfg.MaxCost + int64(n) - 1) / int64(n)
	}
	c := &Cache{
		segments: make([]*segment, n),
		ttl:      cfg.TimeToLive,
		tti:      cfg.TimeToIdle,
		now:      cfg.Now,
		onEvict:  onEvict,
	}
	if c.now == nil {
		c.now = time.Now
	}
	for i := range c.segments {
		c.segments[i] = &segment{
			items:   make(map[string]*list.Element),
			lru:     list.New(),
			maxCost: per,
		}
	}
	return c
}

// Factory adapts New to provider.Factory.
func Factory(cfg Config) pr.Factory {
	return func(onEvict pr.EvictionFunc) (pr.Provider, error) {
		return New(cfg, onEvict), nil
	}
}

func (c *Cache) segmentFor(key string) *segment {
	if len(c.segments) == 1 {
		return c.segments[0]
	}
	return c.segments[xxhash.Sum64String(key)%uint64(len(c.segments))]
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	if c.ttl > 0 && !now.Before(e.written.Add(c.ttl)) {
		return true
	}
	if c.tti > 0 && !now.Before(e.accessed.Add(c.tti)) {
		return true
	}
	return false
}

func (c *Cache) notify(evs []eviction) {
	for _, ev := range evs {
		c.evictions[ev.cause].Add(1)
		if c.onEvict != nil {
			c.onEvict(ev.key, ev.value, ev.cause)
		}
	}
}

// removeLocked unlinks el; caller holds s.mu.
func (s *segment) removeLocked(el *list.Element) *entry {
	e := s.lru.Remove(el).(*entry)
	delete(s.items, e.key)
	s.cost -= e.cost
	return e
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	s := c.segmentFor(key)
	now := c.now()

	s.mu.Lock()
	el, ok := s.items[key]
	if !ok {
		s.mu.Unlock()
		return nil, false, nil
	}
	e := el.Value.(*entry)
	if c.expired(e, now) {
		s.removeLocked(el)
		s.mu.Unlock()
		c.notify([]eviction{{e.key, e.value, pr.CauseExpired}})
		return nil, false, nil
	}
	e.accessed = now
	s.lru.MoveToFront(el)
	v := e.value
	s.mu.Unlock()
	return v, true, nil
}

func (c *Cache) Contains(_ context.Context, key string) (bool, error) {
	s := c.segmentFor(key)
	now := c.now()

	s.mu.Lock()
	el, ok := s.items[key]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	e := el.Value.(*entry)
	if c.expired(e, now) {
		s.removeLocked(el)
		s.mu.Unlock()
		c.notify([]eviction{{e.key, e.value, pr.CauseExpired}})
		return false, nil
	}
	s.mu.Unlock()
	return true, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, cost int64) (bool, error) {
	if cost < 0 {
		cost = 0
	}
	s := c.segmentFor(key)
	now := c.now()
	var evs []eviction

	s.mu.Lock()
	if s.maxCost > 0 && cost > s.maxCost {
		// can never fit; the previous value (if any) is stale now
		if el, ok := s.items[key]; ok {
			e := s.removeLocked(el)
			evs = append(evs, eviction{e.key, e.value, pr.CauseReplaced})
		}
		s.mu.Unlock()
		c.notify(evs)
		return false, nil
	}
	if el, ok := s.items[key]; ok {
		e := s.removeLocked(el)
		evs = append(evs, eviction{e.key, e.value, pr.CauseReplaced})
	}
	s.items[key] = s.lru.PushFront(&entry{
		key:      key,
		value:    value,
		cost:     cost,
		written:  now,
		accessed: now,
	})
	s.cost += cost

	// expired entries go first, then least recently used
	for s.maxCost > 0 && s.cost > s.maxCost {
		victim := s.lru.Back()
		if victim == nil {
			break
		}
		e := s.removeLocked(victim)
		cause := pr.CauseSize
		if c.expired(e, now) {
			cause = pr.CauseExpired
		}
		evs = append(evs, eviction{e.key, e.value, cause})
	}
	s.mu.Unlock()

	c.notify(evs)
	return true, nil
}

func (c *Cache) Del(_ context.Context, key string) error {
	s := c.segmentFor(key)
	s.mu.Lock()
	el, ok := s.items[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	e := s.removeLocked(el)
	s.mu.Unlock()
	c.notify([]eviction{{e.key, e.value, pr.CauseExplicit}})
	return nil
}

// Sweep removes every expired entry.
func (c *Cache) Sweep(ctx context.Context) error {
	if c.ttl <= 0 && c.tti <= 0 {
		return nil
	}
	for _, s := range c.segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := c.now()
		var evs []eviction
		s.mu.Lock()
		for el := s.lru.Back(); el != nil; {
			prev := el.Prev()
			if e := el.Value.(*entry); c.expired(e, now) {
				s.removeLocked(el)
				evs = append(evs, eviction{e.key, e.value, pr.CauseExpired})
			}
			el = prev
		}
		s.mu.Unlock()
		c.notify(evs)
	}
	return nil
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.segments {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

// Cost returns the total weighted cost currently held.
func (c *Cache) Cost() int64 {
	var total int64
	for _, s := range c.segments {
		s.mu.Lock()
		total += s.cost
		s.mu.Unlock()
	}
	return total
}

// Evictions returns how many entries left the cache for cause.
func (c *Cache) Evictions(cause pr.Cause) uint64 {
	if int(cause) >= len(c.evictions) {
		return 0
	}
	return c.evictions[cause].Load()
}

// Close drops all entries without reporting them; durable copies are untouched.
func (c *Cache) Close(_ context.Context) error {
	for _, s := range c.segments {
		s.mu.Lock()
		s.items = make(map[string]*list.Element)
		s.lru.Init()
		s.cost = 0
		s.mu.Unlock()
	}
	return nil
}
