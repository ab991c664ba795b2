package tierstore

import "time"

const (
	defaultStripes   = 256
	maxSequenceSpins = 1 << 10

	// reconcileTimeout bounds one background store delete.
	reconcileTimeout = 30 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// defaultCost weighs an entry by its composite key and payload length.
func defaultCost(compositeKey string, payload []byte) int64 {
	return int64(len(compositeKey) + len(payload))
}
