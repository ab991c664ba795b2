// Package tierstore is a two-tier key-value store: a bounded in-memory cache
// in front of a durable, namespace-partitioned store, kept coherent under
// concurrent reads, writes and autonomous cache eviction.
//
// Components:
//   - store.Store: durable ordered trees, one per namespace (sqlite, redis, mem).
//   - provider.Provider: byte cache with weighted capacity, TTL/TTI and an
//     eviction listener that reports the Cause of every removal.
//   - codec.Codec[V]: (de)serializes record values for Collection[V].
//   - GenStore: generation counter per composite key, used to tell a lagging
//     eviction or a stale cache fill apart from the current state of a key.
//
// Keys:
//
//	":/" + ns + "/" + key   - record in namespace ns
//	key                     - record in the root namespace ""
//
// Data path:
//
//	Insert: store write, then cache mirror (write-through)
//	Get:    cache, else store + cache fill (read-through)
//	Remove: store delete, then explicit cache eviction
//
// Eviction policy: entries leaving the cache because of Explicit removal or
// expiry take their durable copy with them; capacity and replacement
// evictions never touch the store. Durable deletes triggered by eviction run
// on a background reconciler and are skipped when the key was written again
// after the evicted entry.
package tierstore
