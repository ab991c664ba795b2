package tierstore

import (
	"context"

	"github.com/unkn0wn-root/tierstore/internal/keyspace"
	"github.com/unkn0wn-root/tierstore/store"
)

// RecoverRoot warms the cache from the root partition.
func (s *Storage) RecoverRoot(ctx context.Context) (int, error) {
	return s.Recover(ctx, "")
}

// Recover copies every record of namespace ns from the store into the cache
// and returns how many entries it added. It never removes anything and is
// safe to run alongside normal traffic: keys already cached, and keys written
// or removed after the scan began, are left alone.
func (s *Storage) Recover(ctx context.Context, ns string) (int, error) {
	if s.closed.Load() {
		return 0, opErr("recover", ns, "", ErrClosed)
	}
	if ns == store.SequenceTree {
		return 0, opErr("recover", ns, "", ErrReservedNamespace)
	}
	if err := keyspace.Validate(ns, "_"); err != nil {
		return 0, opErr("recover", ns, "", ErrInvalidKey)
	}
	tr, err := s.tree(ctx, ns)
	if err != nil {
		return 0, opErr("recover", ns, "", err)
	}

	mark := s.gen.Epoch()
	added := 0
	err = tr.Iterate(ctx, func(key string, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if keyspace.Validate(ns, key) != nil {
			s.log.Warn("recover: skipping unencodable key", Fields{"ns": ns, "key": key})
			return nil
		}
		ck := keyspace.Encode(ns, key)
		s.settle(ctx, ck)
		if s.warm(ctx, ck, mark, value) {
			added++
		}
		return nil
	})
	if err != nil {
		return added, opErr("recover", ns, "", err)
	}
	s.log.Info("recovered namespace into cache", Fields{"ns": ns, "added": added})
	return added, nil
}

// warm adds value under generation g iff the key is untouched since mark and
// not cached yet.
func (s *Storage) warm(ctx context.Context, ck string, mark uint64, value []byte) bool {
	mu := s.locks.For(ck)
	mu.Lock()
	defer mu.Unlock()

	g, err := s.gen.Snapshot(ctx, ck)
	if err != nil {
		s.hooks.GenError(ck, err)
		return false
	}
	if g > mark {
		return false
	}
	present, err := s.provider.Contains(ctx, ck)
	if err != nil || present {
		return false
	}
	// Contains may have just expired the old entry; its delete comes first
	if s.isPending(ck) {
		return false
	}
	return s.setCached(ctx, ck, g, value)
}
