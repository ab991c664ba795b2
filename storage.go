package tierstore

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/tierstore/genstore"
	"github.com/unkn0wn-root/tierstore/internal/keylock"
	"github.com/unkn0wn-root/tierstore/internal/keyspace"
	"github.com/unkn0wn-root/tierstore/internal/wire"
	"github.com/unkn0wn-root/tierstore/provider"
	"github.com/unkn0wn-root/tierstore/store"
)

// Storage is the coordinator handle. It is safe for concurrent use and meant
// to be shared; copying the pointer is the cheap clone.
type Storage struct {
	store    store.Store
	provider provider.Provider
	gen      genstore.GenStore
	locks    *keylock.Striped
	log      Logger
	hooks    Hooks
	cost     CostFunc
	flights  singleflight.Group

	treesMu sync.RWMutex
	trees   map[string]store.Tree

	pendMu  sync.Mutex
	pending map[string]pendingDelete
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}

	maintStop chan struct{}
	maintDone chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	stats counters
}

// Contains reports whether (ns, key) exists in the cache or, failing that, in
// the store. It never fills the cache and never decodes.
func (s *Storage) Contains(ctx context.Context, ns, key string) (bool, error) {
	ck, err := s.recordKey(ns, key)
	if err != nil {
		return false, opErr("contains", ns, key, err)
	}
	ok, err := s.provider.Contains(ctx, ck)
	if err != nil {
		s.log.Warn("provider contains failed; falling back to store", Fields{"key": ck, "err": err})
	}
	if ok {
		return true, nil
	}
	s.settle(ctx, ck)
	tr, err := s.tree(ctx, ns)
	if err != nil {
		return false, opErr("contains", ns, key, err)
	}
	ok, err = tr.Contains(ctx, key)
	if err != nil {
		return false, opErr("contains", ns, key, err)
	}
	return ok, nil
}

// Get returns the stored bytes for (ns, key). The returned slice must not be
// modified.
func (s *Storage) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	v, ok, _, err := s.get(ctx, ns, key)
	return v, ok, err
}

// get also reports whether the value came from the cache.
func (s *Storage) get(ctx context.Context, ns, key string) ([]byte, bool, bool, error) {
	ck, err := s.recordKey(ns, key)
	if err != nil {
		return nil, false, false, opErr("get", ns, key, err)
	}
	if payload, ok := s.cached(ctx, ck); ok {
		s.stats.hits.Add(1)
		return payload, true, true, nil
	}
	s.stats.misses.Add(1)

	type result struct {
		v  []byte
		ok bool
	}
	r, err, _ := s.flights.Do(ck, func() (any, error) {
		s.settle(ctx, ck)
		obs, err := s.gen.Snapshot(ctx, ck)
		if err != nil {
			// no fill without a trustworthy generation; the read itself still works
			s.hooks.GenError(ck, err)
			s.log.Warn("gen snapshot error", Fields{"key": ck, "err": err})
		}
		tr, terr := s.tree(ctx, ns)
		if terr != nil {
			return nil, terr
		}
		s.stats.storeReads.Add(1)
		v, ok, gerr := tr.Get(ctx, key)
		if gerr != nil {
			return nil, gerr
		}
		if ok && err == nil {
			s.fill(ctx, ck, obs, v)
		}
		return result{v: v, ok: ok}, nil
	})
	if err != nil {
		return nil, false, false, opErr("get", ns, key, err)
	}
	res := r.(result)
	return res.v, res.ok, false, nil
}

// Insert writes value to the store and then mirrors it into the cache.
// A store failure leaves both tiers as they were.
func (s *Storage) Insert(ctx context.Context, ns, key string, value []byte) error {
	ck, err := s.recordKey(ns, key)
	if err != nil {
		return opErr("insert", ns, key, err)
	}
	tr, err := s.tree(ctx, ns)
	if err != nil {
		return opErr("insert", ns, key, err)
	}

	mu := s.locks.For(ck)
	mu.Lock()
	defer mu.Unlock()

	if err := tr.Insert(ctx, key, value); err != nil {
		return opErr("insert", ns, key, err)
	}
	g, err := s.gen.Bump(ctx, ck)
	if err != nil {
		// The store holds the new value but an older cache entry may survive.
		// Deleting it here would be read as an Explicit eviction of live data.
		s.hooks.GenError(ck, err)
		s.log.Error("gen bump error after store write", Fields{"key": ck, "err": err})
		return opErr("insert", ns, key, err)
	}
	if !s.setCached(ctx, ck, g, value) {
		// an older entry may still sit in the cache under the previous generation
		_ = s.provider.Del(ctx, ck)
	}
	return nil
}

// Remove deletes (ns, key) from the store, then evicts it from the cache.
// Removing an absent record is not an error.
func (s *Storage) Remove(ctx context.Context, ns, key string) error {
	ck, err := s.recordKey(ns, key)
	if err != nil {
		return opErr("remove", ns, key, err)
	}
	tr, err := s.tree(ctx, ns)
	if err != nil {
		return opErr("remove", ns, key, err)
	}

	mu := s.locks.For(ck)
	mu.Lock()
	defer mu.Unlock()

	if err := tr.Remove(ctx, key); err != nil {
		return opErr("remove", ns, key, err)
	}
	if _, err := s.gen.Bump(ctx, ck); err != nil {
		s.hooks.GenError(ck, err)
		s.log.Error("gen bump error", Fields{"key": ck, "err": err})
	}
	if err := s.provider.Del(ctx, ck); err != nil {
		s.log.Warn("provider delete failed", Fields{"key": ck, "err": err})
	}
	return nil
}

func (s *Storage) recordKey(ns, key string) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	if ns == store.SequenceTree {
		return "", ErrReservedNamespace
	}
	if err := keyspace.Validate(ns, key); err != nil {
		return "", ErrInvalidKey
	}
	return keyspace.Encode(ns, key), nil
}

// tree returns a cached handle for the named partition.
func (s *Storage) tree(ctx context.Context, name string) (store.Tree, error) {
	s.treesMu.RLock()
	tr, ok := s.trees[name]
	s.treesMu.RUnlock()
	if ok {
		return tr, nil
	}

	s.treesMu.Lock()
	defer s.treesMu.Unlock()
	if tr, ok := s.trees[name]; ok {
		return tr, nil
	}
	tr, err := s.store.Tree(ctx, name)
	if err != nil {
		return nil, err
	}
	s.trees[name] = tr
	return tr, nil
}

// cached returns the payload of a valid cache entry. Corrupt entries and
// entries written under an older generation are dropped.
func (s *Storage) cached(ctx context.Context, ck string) ([]byte, bool) {
	raw, ok, err := s.provider.Get(ctx, ck)
	if err != nil {
		s.log.Warn("provider get failed; falling back to store", Fields{"key": ck, "err": err})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	g, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		s.hooks.SelfHeal(ck, "corrupt")
		s.dropCached(ctx, ck)
		return nil, false
	}
	cur, err := s.gen.Snapshot(ctx, ck)
	if err != nil {
		s.hooks.GenError(ck, err)
		s.log.Warn("gen snapshot error", Fields{"key": ck, "err": err})
		return nil, false
	}
	if g != cur {
		s.hooks.SelfHeal(ck, "gen_mismatch")
		s.dropCached(ctx, ck)
		return nil, false
	}
	return payload, true
}

// fill populates the cache after a store read iff no mutation happened since
// the generation snapshot obs was taken.
func (s *Storage) fill(ctx context.Context, ck string, obs uint64, payload []byte) {
	mu := s.locks.For(ck)
	mu.Lock()
	defer mu.Unlock()

	cur, err := s.gen.Snapshot(ctx, ck)
	if err != nil || cur != obs {
		s.log.Debug("cache fill skipped (gen moved)", Fields{"key": ck, "obs": obs})
		return
	}
	s.setCached(ctx, ck, cur, payload)
}

// setCached frames payload under generation g. Caller holds the key's stripe.
func (s *Storage) setCached(ctx context.Context, ck string, g uint64, payload []byte) bool {
	entry := wire.EncodeEntry(g, payload)
	ok, err := s.provider.Set(ctx, ck, entry, s.cost(ck, payload))
	if err != nil {
		s.log.Warn("provider set failed", Fields{"key": ck, "err": err})
		return false
	}
	if !ok {
		s.hooks.ProviderSetRejected(ck)
		s.log.Debug("provider rejected entry", Fields{"key": ck})
	}
	return ok
}

// dropCached removes the cache entry and keeps the durable copy: the
// generation moves first, so the Explicit eviction that follows is stale.
func (s *Storage) dropCached(ctx context.Context, ck string) {
	mu := s.locks.For(ck)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.gen.Bump(ctx, ck); err != nil {
		// deleting now would let the eviction listener remove the record
		s.hooks.GenError(ck, err)
		s.log.Error("gen bump error; cache entry kept", Fields{"key": ck, "err": err})
		return
	}
	if err := s.provider.Del(ctx, ck); err != nil {
		s.log.Warn("provider delete failed", Fields{"key": ck, "err": err})
	}
}
