// Package mem is an in-process store.Store. Nothing survives the process;
// it backs tests and ephemeral caches that only need the coherency protocol.
package mem

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/unkn0wn-root/tierstore/store"
)

type Store struct {
	mu     sync.RWMutex
	trees  map[string]map[string][]byte
	closed bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{trees: make(map[string]map[string][]byte)}
}

func (s *Store) Tree(_ context.Context, name string) (store.Tree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return &tree{s: s, name: name}, nil
}

func (s *Store) Flush(context.Context) error { return nil }

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Names returns the trees holding at least one key, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.trees))
	for name, m := range s.trees {
		if len(m) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

type tree struct {
	s    *Store
	name string
}

func (t *tree) Name() string { return t.name }

func (t *tree) Get(_ context.Context, key string) ([]byte, bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if t.s.closed {
		return nil, false, store.ErrClosed
	}
	v, ok := t.s.trees[t.name][key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// putLocked requires t.s.mu held for writing.
func (t *tree) putLocked(key string, value []byte) {
	m := t.s.trees[t.name]
	if m == nil {
		m = make(map[string][]byte)
		t.s.trees[t.name] = m
	}
	if value == nil {
		value = []byte{}
	}
	m[key] = bytes.Clone(value)
}

func (t *tree) Insert(_ context.Context, key string, value []byte) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.closed {
		return store.ErrClosed
	}
	t.putLocked(key, value)
	return nil
}

func (t *tree) Remove(_ context.Context, key string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.closed {
		return store.ErrClosed
	}
	delete(t.s.trees[t.name], key)
	return nil
}

func (t *tree) Contains(_ context.Context, key string) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if t.s.closed {
		return false, store.ErrClosed
	}
	_, ok := t.s.trees[t.name][key]
	return ok, nil
}

func (t *tree) CompareAndSwap(_ context.Context, key string, old, next []byte) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.closed {
		return false, store.ErrClosed
	}
	cur, ok := t.s.trees[t.name][key]
	switch {
	case old == nil && ok:
		return false, nil
	case old != nil && (!ok || !bytes.Equal(cur, old)):
		return false, nil
	}
	t.putLocked(key, next)
	return true, nil
}

// Iterate walks a snapshot taken at call time, so fn may mutate the tree.
func (t *tree) Iterate(ctx context.Context, fn func(key string, value []byte) error) error {
	t.s.mu.RLock()
	if t.s.closed {
		t.s.mu.RUnlock()
		return store.ErrClosed
	}
	m := t.s.trees[t.name]
	keys := make([]string, 0, len(m))
	vals := make(map[string][]byte, len(m))
	for k, v := range m {
		keys = append(keys, k)
		vals[k] = bytes.Clone(v)
	}
	t.s.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, vals[k]); err != nil {
			if errors.Is(err, store.ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}
