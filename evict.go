package tierstore

import (
	"context"
	"sync/atomic"

	"github.com/unkn0wn-root/tierstore/internal/keyspace"
	"github.com/unkn0wn-root/tierstore/internal/wire"
	"github.com/unkn0wn-root/tierstore/provider"
)

// pendingDelete is an eviction whose durable delete has not been applied yet.
type pendingDelete struct {
	gen   uint64
	cause provider.Cause
}

// onEvict is the provider's eviction listener. It runs on whatever goroutine
// the provider evicts from, possibly under the provider's own locks, so it
// only records the delete and wakes the reconciler.
func (s *Storage) onEvict(ck string, value []byte, cause provider.Cause) {
	switch cause {
	case provider.CauseExplicit, provider.CauseExpired:
	default:
		// capacity and replacement evictions leave the durable copy alone
		return
	}
	if s.closed.Load() {
		return
	}
	if _, _, err := keyspace.Decode(ck); err != nil {
		s.hooks.MalformedEviction(ck, "key")
		s.log.Warn("eviction with malformed key skipped", Fields{"key": ck, "cause": cause.String()})
		return
	}
	g, err := wire.EntryGen(value)
	if err != nil {
		s.hooks.MalformedEviction(ck, "framing")
		s.log.Warn("eviction with malformed entry skipped", Fields{"key": ck, "cause": cause.String()})
		return
	}

	s.pendMu.Lock()
	if p, ok := s.pending[ck]; !ok || g >= p.gen {
		s.pending[ck] = pendingDelete{gen: g, cause: cause}
	}
	s.pendMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Storage) reconcileLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.drain(context.Background())
		case <-s.stop:
			s.drain(context.Background())
			return
		}
	}
}

// drain applies every delete pending at the time of the call.
func (s *Storage) drain(ctx context.Context) {
	s.pendMu.Lock()
	keys := make([]string, 0, len(s.pending))
	for ck := range s.pending {
		keys = append(keys, ck)
	}
	s.pendMu.Unlock()

	for _, ck := range keys {
		s.settle(ctx, ck)
	}
}

// settle applies the pending delete for ck, if any, before the caller looks
// at the store. The entry leaves pending only after its delete ran under the
// key's stripe, so once settle returns nothing recorded earlier is in flight.
func (s *Storage) settle(ctx context.Context, ck string) {
	if !s.isPending(ck) {
		return
	}

	mu := s.locks.For(ck)
	mu.Lock()
	defer mu.Unlock()

	s.pendMu.Lock()
	p, ok := s.pending[ck]
	s.pendMu.Unlock()
	if !ok {
		return
	}
	s.reconcile(ctx, ck, p)

	s.pendMu.Lock()
	if cur, ok := s.pending[ck]; ok && cur == p {
		delete(s.pending, ck)
	}
	s.pendMu.Unlock()
}

// isPending reports whether ck has an unapplied eviction delete.
func (s *Storage) isPending(ck string) bool {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	_, ok := s.pending[ck]
	return ok
}

// reconcile deletes the durable copy of ck iff the key was not written again
// after the evicted entry. Caller holds the key's stripe.
func (s *Storage) reconcile(ctx context.Context, ck string, p pendingDelete) {
	cur, err := s.gen.Snapshot(ctx, ck)
	if err != nil {
		s.stats.skipped.Add(1)
		s.hooks.GenError(ck, err)
		s.hooks.EvictionSkipped(ck, "gen_error")
		s.log.Error("eviction delete skipped: gen snapshot error", Fields{"key": ck, "err": err})
		return
	}
	if cur != p.gen {
		s.stats.skipped.Add(1)
		s.hooks.EvictionSkipped(ck, "stale_gen")
		s.log.Debug("eviction delete skipped (key rewritten)", Fields{"key": ck, "evicted": p.gen, "current": cur})
		return
	}

	ns, key, _ := keyspace.Decode(ck)
	ctx, cancel := context.WithTimeout(ctx, reconcileTimeout)
	defer cancel()
	tr, err := s.tree(ctx, ns)
	if err == nil {
		err = tr.Remove(ctx, key)
	}
	if err != nil {
		s.hooks.EvictionDeleteFailed(ck, err)
		s.log.Error("eviction delete failed; durable copy kept", Fields{
			"key": ck, "cause": p.cause.String(), "err": err,
		})
		return
	}
	// a read that snapshotted before the delete must not fill the cache
	if _, err := s.gen.Bump(ctx, ck); err != nil {
		s.hooks.GenError(ck, err)
	}
	s.stats.reconciled.Add(1)
	s.hooks.EvictionApplied(ck, p.cause)
	s.log.Debug("eviction propagated to store", Fields{"key": ck, "cause": p.cause.String()})
}

type counters struct {
	hits       atomic.Uint64
	misses     atomic.Uint64
	storeReads atomic.Uint64
	reconciled atomic.Uint64
	skipped    atomic.Uint64
}

// Stats is a point-in-time snapshot of coordinator counters.
type Stats struct {
	Hits       uint64 // Get served from the cache
	Misses     uint64 // Get that went to the store
	StoreReads uint64 // store reads actually issued (after de-duplication)
	Reconciled uint64 // evictions propagated to the store
	Skipped    uint64 // Explicit/Expired evictions not propagated
	Pending    int    // evictions waiting for the reconciler
}

func (s *Storage) Stats() Stats {
	s.pendMu.Lock()
	n := len(s.pending)
	s.pendMu.Unlock()
	return Stats{
		Hits:       s.stats.hits.Load(),
		Misses:     s.stats.misses.Load(),
		StoreReads: s.stats.storeReads.Load(),
		Reconciled: s.stats.reconciled.Load(),
		Skipped:    s.stats.skipped.Load(),
		Pending:    n,
	}
}
