// Package asynchook moves hook delivery off the caller's goroutine.
//
// tierstore calls hooks inline from Get, Insert and the eviction reconciler.
// Wrap sinks that do I/O:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	s, _ := tierstore.Open(ctx, cfg, tierstore.WithHooks(hooks))
//
// Events are dropped, and counted, when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/tierstore"
	"github.com/unkn0wn-root/tierstore/provider"
)

type Hooks struct {
	inner   tierstore.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards q against send-after-close
	closed  bool
	dropped atomic.Uint64
}

var _ tierstore.Hooks = (*Hooks)(nil)

func New(inner tierstore.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = tierstore.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers queued events and stops the workers. Events raised after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events did not fit in the queue.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, r string)             { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string)     { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) EvictionSkipped(k, r string)      { h.try(func() { h.inner.EvictionSkipped(k, r) }) }
func (h *Hooks) MalformedEviction(k, r string)    { h.try(func() { h.inner.MalformedEviction(k, r) }) }
func (h *Hooks) GenError(k string, err error)     { h.try(func() { h.inner.GenError(k, err) }) }
func (h *Hooks) EvictionDeleteFailed(k string, err error) {
	h.try(func() { h.inner.EvictionDeleteFailed(k, err) })
}
func (h *Hooks) EvictionApplied(k string, c provider.Cause) {
	h.try(func() { h.inner.EvictionApplied(k, c) })
}
