package tierstore

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/unkn0wn-root/tierstore/internal/wire"
	"github.com/unkn0wn-root/tierstore/provider/memory"
	"github.com/unkn0wn-root/tierstore/store"
)

func TestSequenceMonotonic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.Config{})

	if cur, err := f.s.Current(ctx, "orders"); err != nil || cur != 0 {
		t.Fatalf("Current fresh = %d, %v", cur, err)
	}
	for want := uint32(1); want <= 5; want++ {
		got, err := f.s.Next(ctx, "orders")
		if err != nil || got != want {
			t.Fatalf("Next = %d, %v; want %d", got, err, want)
		}
	}
	if cur, _ := f.s.Current(ctx, "orders"); cur != 5 {
		t.Fatalf("Current = %d, want 5", cur)
	}
	if cur, _ := f.s.Current(ctx, "other"); cur != 0 {
		t.Fatalf("unrelated sequence = %d", cur)
	}
	if v, ok := f.raw(t, store.SequenceTree, "orders"); !ok || len(v) != wire.CounterSize {
		t.Fatalf("stored counter = %x", v)
	}
	if f.cache.Len() != 0 {
		t.Fatal("sequence values must not be cached")
	}
}

func TestSequenceUndecodableReadsAsZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.Config{})
	f.put(t, store.SequenceTree, "bad", []byte{1, 2, 3})

	if cur, err := f.s.Current(ctx, "bad"); err != nil || cur != 0 {
		t.Fatalf("Current = %d, %v", cur, err)
	}
	if got, err := f.s.Next(ctx, "bad"); err != nil || got != 1 {
		t.Fatalf("Next = %d, %v", got, err)
	}
}

func TestSequenceOverflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.Config{})
	f.put(t, store.SequenceTree, "max", wire.EncodeCounter(math.MaxUint32))

	if _, err := f.s.Next(ctx, "max"); !errors.Is(err, ErrSequenceOverflow) {
		t.Fatalf("Next at max = %v", err)
	}
	if cur, _ := f.s.Current(ctx, "max"); cur != math.MaxUint32 {
		t.Fatalf("counter moved to %d", cur)
	}
}

func TestSequenceConcurrentNextIsUnique(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.Config{})
	const workers, perWorker = 16, 50

	var (
		mu   sync.Mutex
		seen = make(map[uint32]bool)
		wg   sync.WaitGroup
	)
	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				v, err := f.s.Next(ctx, "ids")
				if err != nil {
					errCh <- err
					return
				}
				mu.Lock()
				if seen[v] {
					mu.Unlock()
					errCh <- errors.New("duplicate sequence value")
					return
				}
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("issued %d values", len(seen))
	}
	for v := uint32(1); v <= workers*perWorker; v++ {
		if !seen[v] {
			t.Fatalf("value %d never issued", v)
		}
	}
}

func TestSequenceRejectsEmptyName(t *testing.T) {
	f := newFixture(t, memory.Config{})
	if _, err := f.s.Next(context.Background(), ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Next(\"\") = %v", err)
	}
}
