// Package store defines the durable tier: an ordered key-value engine split
// into independently named partitions ("trees").
//
// The tree named "" is the root partition. Trees are opened by name and are
// cheap handles; opening never creates visible data. Implementations must be
// safe for concurrent use, and a single Get/Insert/Remove/CompareAndSwap must
// be atomic with respect to the others.
package store

import (
	"context"
	"errors"
)

// SequenceTree holds the durable sequence counters.
const SequenceTree = "SEQUENCE"

var (
	ErrClosed = errors.New("store: closed")

	// ErrStop may be returned from an Iterate callback to end the walk early
	// without error.
	ErrStop = errors.New("store: stop iteration")
)

// Store is a set of named trees plus a durability flush.
type Store interface {
	Tree(ctx context.Context, name string) (Tree, error)
	// Flush forces buffered writes to durable storage.
	Flush(ctx context.Context) error
	Close() error
}

// Tree is one namespace partition. Keys are unique within a tree.
type Tree interface {
	Name() string

	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Insert(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	Contains(ctx context.Context, key string) (bool, error)

	// CompareAndSwap writes next iff the stored value equals old.
	// old == nil means "key must be absent".
	CompareAndSwap(ctx context.Context, key string, old, next []byte) (bool, error)

	// Iterate calls fn for every pair in ascending key order. fn may mutate
	// the tree; whether it observes its own mutations is unspecified.
	Iterate(ctx context.Context, fn func(key string, value []byte) error) error
}
