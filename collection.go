package tierstore

import (
	"context"
	"fmt"
	"reflect"

	"github.com/unkn0wn-root/tierstore/codec"
	"github.com/unkn0wn-root/tierstore/internal/keyspace"
	"github.com/unkn0wn-root/tierstore/store"
)

// Namer lets a record type choose its namespace. Types that do not implement
// it (on the value or pointer receiver) are stored under their Go type name.
type Namer interface {
	StorageName() string
}

// NamespaceOf returns the namespace records of type V are stored under.
func NamespaceOf[V any]() (string, error) {
	t := reflect.TypeFor[V]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Interface {
		if n, ok := reflect.New(t).Interface().(Namer); ok {
			return n.StorageName(), nil
		}
	}
	if t.Name() == "" {
		return "", fmt.Errorf("tierstore: %s has no type name; implement Namer", t)
	}
	return t.Name(), nil
}

// Collection is a typed view of one namespace.
type Collection[V any] struct {
	s     *Storage
	ns    string
	codec codec.Codec[V]
}

// NewCollection binds V to its namespace (see NamespaceOf). A nil codec
// selects codec.Default.
func NewCollection[V any](s *Storage, c codec.Codec[V]) (*Collection[V], error) {
	ns, err := NamespaceOf[V]()
	if err != nil {
		return nil, err
	}
	return NewNamedCollection(s, ns, c)
}

// NewNamedCollection binds V to an explicit namespace.
func NewNamedCollection[V any](s *Storage, ns string, c codec.Codec[V]) (*Collection[V], error) {
	if s == nil {
		return nil, fmt.Errorf("tierstore: nil storage")
	}
	if ns == store.SequenceTree {
		return nil, ErrReservedNamespace
	}
	if keyspace.Validate(ns, "_") != nil {
		return nil, fmt.Errorf("%w: namespace %q", ErrInvalidKey, ns)
	}
	if c == nil {
		c = codec.Default[V]()
	}
	return &Collection[V]{s: s, ns: ns, codec: c}, nil
}

func (c *Collection[V]) Namespace() string { return c.ns }

func (c *Collection[V]) Contains(ctx context.Context, key string) (bool, error) {
	return c.s.Contains(ctx, c.ns, key)
}

// Get decodes the record stored under key. A cached value that fails to
// decode is dropped from the cache and the store is read once more; if the
// durable bytes do not decode either, the record reads as absent.
func (c *Collection[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	for attempt := 0; attempt < 2; attempt++ {
		raw, ok, fromCache, err := c.s.get(ctx, c.ns, key)
		if err != nil || !ok {
			return zero, false, err
		}
		v, err := c.codec.Decode(raw)
		if err == nil {
			return v, true, nil
		}
		ck := keyspace.Encode(c.ns, key)
		c.s.hooks.SelfHeal(ck, "value_decode")
		c.s.log.Warn("value decode failed", Fields{"key": ck, "cache": fromCache, "err": err})
		c.s.dropCached(ctx, ck)
		if !fromCache {
			break
		}
	}
	return zero, false, nil
}

// Insert encodes v and writes it through both tiers. An encode failure
// writes nothing.
func (c *Collection[V]) Insert(ctx context.Context, key string, v V) error {
	b, err := c.codec.Encode(v)
	if err != nil {
		return opErr("encode", c.ns, key, err)
	}
	return c.s.Insert(ctx, c.ns, key, b)
}

func (c *Collection[V]) Remove(ctx context.Context, key string) error {
	return c.s.Remove(ctx, c.ns, key)
}

// Recover warms the cache with every record of the collection.
func (c *Collection[V]) Recover(ctx context.Context) (int, error) {
	return c.s.Recover(ctx, c.ns)
}
