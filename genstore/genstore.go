// Package genstore tracks a generation per composite cache key.
//
// A key's generation moves forward on every mutation made through the
// coordinator. Cache entries carry the generation they were written under,
// which lets the coordinator tell a stale cache write or a lagging eviction
// apart from the current state of the key.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically moves the key to a new, strictly larger generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Epoch returns the largest generation handed out so far. A key whose
	// generation exceeds an earlier Epoch was mutated after that point.
	Epoch() uint64
	// Cleanup prunes metadata for keys not bumped within retention.
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
