// Package provider defines the memory cache tier used by tierstore.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set (tierstore frames its own entries and treats
// anything else as corrupt).
//
// Every entry that leaves the cache, for any reason, MUST be reported to the
// EvictionFunc handed to the Factory, with the Cause that removed it. The
// coordinator decides from the Cause alone whether the durable copy goes too,
// so reporting capacity pressure as Expired or Explicit destroys live data.
package provider

import (
	"context"
	"fmt"
)

// Cause is the reason an entry left the cache.
type Cause uint8

const (
	// CauseUnknown is never produced by the bundled providers.
	CauseUnknown Cause = iota
	// CauseExplicit: Del was called for the key.
	CauseExplicit
	// CauseExpired: the entry's time-to-live or time-to-idle elapsed.
	CauseExpired
	// CauseSize: the cache needed room; the entry itself was still valid.
	CauseSize
	// CauseReplaced: a Set for the same key overwrote the entry.
	CauseReplaced
)

func (c Cause) String() string {
	switch c {
	case CauseExplicit:
		return "explicit"
	case CauseExpired:
		return "expired"
	case CauseSize:
		return "size"
	case CauseReplaced:
		return "replaced"
	case CauseUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("cause(%d)", uint8(c))
	}
}

// EvictionFunc receives every entry leaving the cache. It may be called from
// any goroutine, including while the provider holds internal locks, so it must
// not call back into the provider and must return quickly.
type EvictionFunc func(key string, value []byte, cause Cause)

// Provider is a byte cache with weighted capacity and cache-wide expiry.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// An entry found expired is removed and reported as CauseExpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Contains probes without refreshing idle time.
	Contains(ctx context.Context, key string) (bool, error)

	// Set stores value with the given weighted cost.
	// Returns ok=false when the cache refused the entry.
	Set(ctx context.Context, key string, value []byte, cost int64) (ok bool, err error)

	// Del removes a key; a present entry is reported as CauseExplicit.
	// Removing an absent key is not an error.
	Del(ctx context.Context, key string) error

	// Sweep runs pending maintenance (expiry scans). Providers that expire
	// lazily may treat it as a no-op.
	Sweep(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Factory builds a Provider wired to onEvict. The coordinator calls it once,
// at construction.
type Factory func(onEvict EvictionFunc) (Provider, error)
