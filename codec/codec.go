// Package codec converts record values to and from the bytes stored in both
// tiers. The same bytes are written to the persistent store and mirrored into
// the cache, so a codec must be deterministic enough that a value decoded from
// either tier is the value that was inserted.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Default returns the codec used when a collection is created without one.
func Default[V any]() Codec[V] {
	return MustCBOR[V](false)
}
