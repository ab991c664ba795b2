package tierstore

import "github.com/unkn0wn-root/tierstore/provider"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: the eviction path and the
// read path call them inline. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A cache entry was dropped on read without touching the store.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(compositeKey, reason string)

	// Provider returned ok=false on Set (entry too large, admission policy).
	ProviderSetRejected(compositeKey string)

	// An eviction deleted the durable copy of a record.
	EvictionApplied(compositeKey string, cause provider.Cause)

	// An Explicit/Expired eviction did not reach the store.
	// reason ∈ {"stale_gen", "gen_error"}
	EvictionSkipped(compositeKey, reason string)

	// The durable delete for an eviction failed; the store copy survives.
	EvictionDeleteFailed(compositeKey string, err error)

	// The listener received an entry it could not parse.
	// reason ∈ {"key", "framing"}
	MalformedEviction(compositeKey, reason string)

	// GenStore snapshot or bump failed.
	GenError(compositeKey string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)                {}
func (NopHooks) ProviderSetRejected(string)             {}
func (NopHooks) EvictionApplied(string, provider.Cause) {}
func (NopHooks) EvictionSkipped(string, string)         {}
func (NopHooks) EvictionDeleteFailed(string, error)     {}
func (NopHooks) MalformedEviction(string, string)       {}
func (NopHooks) GenError(string, error)                 {}
