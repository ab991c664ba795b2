package tierstore

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/tierstore/store"
)

var (
	// ErrInvalidKey: the namespace contains '/', or the key is empty or
	// starts with the reserved ":/" prefix.
	ErrInvalidKey = errors.New("tierstore: invalid namespace or key")
	// ErrReservedNamespace: records may not live in the sequence partition.
	ErrReservedNamespace = errors.New("tierstore: reserved namespace " + store.SequenceTree)
	// ErrSequenceOverflow: Next was called on a counter at math.MaxUint32.
	ErrSequenceOverflow = errors.New("tierstore: sequence overflow")
	ErrClosed           = errors.New("tierstore: closed")
)

// OpError describes a failed operation on a single record or sequence.
type OpError struct {
	Op        string
	Namespace string
	Key       string
	Err       error
}

func (e *OpError) Error() string {
	if e.Namespace == "" {
		return fmt.Sprintf("tierstore: %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("tierstore: %s %s/%q: %v", e.Op, e.Namespace, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op, ns, key string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Namespace: ns, Key: key, Err: err}
}
