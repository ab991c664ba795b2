// Package keyspace maps (namespace, raw key) pairs onto the single flat string
// space used by the cache tier.
//
//	":/" + ns + "/" + key   - named namespace
//	key                     - root namespace ("")
//
// The encoding is only reversible for well-formed input: namespaces must not
// contain '/', and raw keys must not start with the reserved prefix.
package keyspace

import (
	"errors"
	"strings"
)

// Prefix marks a namespaced composite key.
const Prefix = ":/"

var (
	ErrInvalid   = errors.New("keyspace: invalid namespace or key")
	ErrMalformed = errors.New("keyspace: malformed composite key")
)

// Validate reports whether (ns, key) can be encoded without ambiguity.
func Validate(ns, key string) error {
	if key == "" || strings.HasPrefix(key, Prefix) || strings.Contains(ns, "/") {
		return ErrInvalid
	}
	return nil
}

// Encode returns the composite key. It does not validate; callers run Validate
// on untrusted input first.
func Encode(ns, key string) string {
	if ns == "" {
		return key
	}
	return Prefix + ns + "/" + key
}

// Decode splits a composite key back into (namespace, raw key).
// Keys without the reserved prefix belong to the root namespace.
func Decode(ck string) (ns, key string, err error) {
	rest, ok := strings.CutPrefix(ck, Prefix)
	if !ok {
		if ck == "" {
			return "", "", ErrMalformed
		}
		return "", ck, nil
	}
	ns, key, ok = strings.Cut(rest, "/")
	if !ok || ns == "" || key == "" {
		return "", "", ErrMalformed
	}
	return ns, key, nil
}
