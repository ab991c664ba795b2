package tierstore

import (
	"context"
	"fmt"
	"math"

	"github.com/unkn0wn-root/tierstore/internal/wire"
	"github.com/unkn0wn-root/tierstore/store"
)

// Current returns the last value Next issued for name, or 0.
// Stored values that are not exactly four bytes read as 0.
func (s *Storage) Current(ctx context.Context, name string) (uint32, error) {
	tr, err := s.sequences(ctx, name)
	if err != nil {
		return 0, opErr("current", store.SequenceTree, name, err)
	}
	b, ok, err := tr.Get(ctx, name)
	if err != nil {
		return 0, opErr("current", store.SequenceTree, name, err)
	}
	if !ok {
		return 0, nil
	}
	v, _ := wire.DecodeCounter(b)
	return v, nil
}

// Next persists and returns Current(name)+1. Concurrent callers never receive
// the same value: the increment is a compare-and-swap against the store,
// retried on contention. At math.MaxUint32 it fails with ErrSequenceOverflow
// and leaves the counter as is.
func (s *Storage) Next(ctx context.Context, name string) (uint32, error) {
	tr, err := s.sequences(ctx, name)
	if err != nil {
		return 0, opErr("next", store.SequenceTree, name, err)
	}
	for range maxSequenceSpins {
		if err := ctx.Err(); err != nil {
			return 0, opErr("next", store.SequenceTree, name, err)
		}
		old, ok, err := tr.Get(ctx, name)
		if err != nil {
			return 0, opErr("next", store.SequenceTree, name, err)
		}
		var cur uint32
		if ok {
			if old == nil {
				old = []byte{}
			}
			cur, _ = wire.DecodeCounter(old)
		} else {
			old = nil
		}
		if cur == math.MaxUint32 {
			return 0, opErr("next", store.SequenceTree, name, ErrSequenceOverflow)
		}
		swapped, err := tr.CompareAndSwap(ctx, name, old, wire.EncodeCounter(cur+1))
		if err != nil {
			return 0, opErr("next", store.SequenceTree, name, err)
		}
		if swapped {
			return cur + 1, nil
		}
	}
	return 0, opErr("next", store.SequenceTree, name,
		fmt.Errorf("gave up after %d contended attempts", maxSequenceSpins))
}

func (s *Storage) sequences(ctx context.Context, name string) (store.Tree, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, ErrInvalidKey
	}
	return s.tree(ctx, store.SequenceTree)
}
