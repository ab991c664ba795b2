// Package keylock provides a fixed set of mutexes selected by key hash.
package keylock

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 256

// Striped serializes operations on the same key without a lock per key.
// Distinct keys may share a stripe.
type Striped struct {
	mask  uint64
	locks []sync.Mutex
}

// New returns a Striped with n rounded up to a power of two (n <= 0 => 256).
func New(n int) *Striped {
	if n <= 0 {
		n = defaultStripes
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return &Striped{mask: uint64(size - 1), locks: make([]sync.Mutex, size)}
}

func (s *Striped) For(key string) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(key)&s.mask]
}

// Do runs fn while holding key's stripe.
func (s *Striped) Do(key string, fn func()) {
	mu := s.For(key)
	mu.Lock()
	defer mu.Unlock()
	fn()
}
