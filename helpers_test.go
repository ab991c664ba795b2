package tierstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/unkn0wn-root/tierstore/provider"
	"github.com/unkn0wn-root/tierstore/provider/memory"
	"github.com/unkn0wn-root/tierstore/store"
	"github.com/unkn0wn-root/tierstore/store/mem"
)

// countingStore wraps a store and counts point reads reaching it.
type countingStore struct {
	store.Store
	gets      atomic.Int64
	contains  atomic.Int64
	insertErr error
}

func (c *countingStore) Tree(ctx context.Context, name string) (store.Tree, error) {
	tr, err := c.Store.Tree(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingTree{Tree: tr, c: c}, nil
}

func (c *countingStore) reset() {
	c.gets.Store(0)
	c.contains.Store(0)
}

type countingTree struct {
	store.Tree
	c *countingStore
}

func (t *countingTree) Get(ctx context.Context, key string) ([]byte, bool, error) {
	t.c.gets.Add(1)
	return t.Tree.Get(ctx, key)
}

func (t *countingTree) Contains(ctx context.Context, key string) (bool, error) {
	t.c.contains.Add(1)
	return t.Tree.Contains(ctx, key)
}

func (t *countingTree) Insert(ctx context.Context, key string, value []byte) error {
	if t.c.insertErr != nil {
		return t.c.insertErr
	}
	return t.Tree.Insert(ctx, key, value)
}

type hookEvent struct {
	kind   string
	key    string
	reason string
}

type recordingHooks struct {
	mu  sync.Mutex
	evs []hookEvent
}

func (h *recordingHooks) add(kind, key, reason string) {
	h.mu.Lock()
	h.evs = append(h.evs, hookEvent{kind, key, reason})
	h.mu.Unlock()
}

func (h *recordingHooks) SelfHeal(k, reason string)          { h.add("self_heal", k, reason) }
func (h *recordingHooks) ProviderSetRejected(k string)       { h.add("set_rejected", k, "") }
func (h *recordingHooks) EvictionSkipped(k, reason string)   { h.add("eviction_skipped", k, reason) }
func (h *recordingHooks) MalformedEviction(k, reason string) { h.add("malformed", k, reason) }
func (h *recordingHooks) GenError(k string, err error)       { h.add("gen_error", k, err.Error()) }

func (h *recordingHooks) EvictionApplied(k string, c provider.Cause) {
	h.add("eviction_applied", k, c.String())
}

func (h *recordingHooks) EvictionDeleteFailed(k string, err error) {
	h.add("eviction_delete_failed", k, err.Error())
}

func (h *recordingHooks) has(kind, key, reason string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.evs {
		if e.kind == kind && e.key == key && (reason == "" || e.reason == reason) {
			return true
		}
	}
	return false
}

type fixture struct {
	s     *Storage
	store *countingStore
	cache *memory.Cache
	hooks *recordingHooks
}

func newFixture(t *testing.T, cfg memory.Config) *fixture {
	t.Helper()
	f := &fixture{store: &countingStore{Store: mem.New()}, hooks: &recordingHooks{}}
	s, err := New(Options{
		Store: f.store,
		Provider: func(onEvict provider.EvictionFunc) (provider.Provider, error) {
			f.cache = memory.New(cfg, onEvict)
			return f.cache, nil
		},
		Hooks: f.hooks,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.s = s
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return f
}

// raw reads the store directly, bypassing the coordinator.
func (f *fixture) raw(t *testing.T, ns, key string) ([]byte, bool) {
	t.Helper()
	tr, err := f.store.Store.Tree(context.Background(), ns)
	if err != nil {
		t.Fatalf("tree %q: %v", ns, err)
	}
	v, ok, err := tr.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	return v, ok
}

func (f *fixture) put(t *testing.T, ns, key string, value []byte) {
	t.Helper()
	tr, err := f.store.Store.Tree(context.Background(), ns)
	if err != nil {
		t.Fatalf("tree %q: %v", ns, err)
	}
	if err := tr.Insert(context.Background(), key, value); err != nil {
		t.Fatalf("raw insert: %v", err)
	}
}

func (f *fixture) inCache(t *testing.T, ck string) bool {
	t.Helper()
	ok, err := f.cache.Contains(context.Background(), ck)
	if err != nil {
		t.Fatalf("cache contains: %v", err)
	}
	return ok
}

var errBoom = errors.New("boom")
