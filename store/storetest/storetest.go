// Package storetest holds the behaviour every store.Store engine must share.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/unkn0wn-root/tierstore/store"
)

// Run exercises s. The store must start empty; Run does not close it.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, s) })
	t.Run("TreesAreIsolated", func(t *testing.T) { testIsolation(t, s) })
	t.Run("CompareAndSwap", func(t *testing.T) { testCAS(t, s) })
	t.Run("ConcurrentCAS", func(t *testing.T) { testConcurrentCAS(t, s) })
	t.Run("IterateOrdered", func(t *testing.T) { testIterate(t, s) })
	t.Run("IterateMutate", func(t *testing.T) { testIterateMutate(t, s) })
}

func mustTree(t *testing.T, s store.Store, name string) store.Tree {
	t.Helper()
	tr, err := s.Tree(context.Background(), name)
	if err != nil {
		t.Fatalf("Tree(%q): %v", name, err)
	}
	if tr.Name() != name {
		t.Fatalf("Tree name=%q want %q", tr.Name(), name)
	}
	return tr
}

func testCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	tr := mustTree(t, s, "crud")

	if _, ok, err := tr.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("Get on empty: ok=%v err=%v", ok, err)
	}
	if err := tr.Insert(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tr.Insert(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Insert overwrite: %v", err)
	}
	v, ok, err := tr.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v2" {
		t.Fatalf("Get: %q %v %v", v, ok, err)
	}
	if ok, err := tr.Contains(ctx, "k"); err != nil || !ok {
		t.Fatalf("Contains: %v %v", ok, err)
	}
	if err := tr.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := tr.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
	if ok, _ := tr.Contains(ctx, "k"); ok {
		t.Fatalf("Contains after remove")
	}
	if err := tr.Insert(ctx, "empty", nil); err != nil {
		t.Fatalf("Insert nil value: %v", err)
	}
	if v, ok, _ := tr.Get(ctx, "empty"); !ok || len(v) != 0 {
		t.Fatalf("empty value: %q %v", v, ok)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func testIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	root := mustTree(t, s, "")
	a := mustTree(t, s, "A")
	b := mustTree(t, s, "B")

	_ = root.Insert(ctx, "k", []byte("root"))
	_ = a.Insert(ctx, "k", []byte("a"))
	for _, tc := range []struct {
		tr   store.Tree
		want string
		ok   bool
	}{{root, "root", true}, {a, "a", true}, {b, "", false}} {
		v, ok, err := tc.tr.Get(ctx, "k")
		if err != nil || ok != tc.ok || string(v) != tc.want {
			t.Fatalf("tree %q: %q %v %v", tc.tr.Name(), v, ok, err)
		}
	}
	_ = a.Remove(ctx, "k")
	if v, ok, _ := root.Get(ctx, "k"); !ok || string(v) != "root" {
		t.Fatalf("remove in A leaked into root")
	}
	_ = root.Remove(ctx, "k")
}

func testCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	tr := mustTree(t, s, "cas")

	if ok, err := tr.CompareAndSwap(ctx, "c", []byte("x"), []byte("y")); err != nil || ok {
		t.Fatalf("CAS on absent with old!=nil: %v %v", ok, err)
	}
	if ok, err := tr.CompareAndSwap(ctx, "c", nil, []byte{0, 1}); err != nil || !ok {
		t.Fatalf("CAS create: %v %v", ok, err)
	}
	if ok, _ := tr.CompareAndSwap(ctx, "c", nil, []byte{9}); ok {
		t.Fatalf("CAS create must fail when present")
	}
	if ok, _ := tr.CompareAndSwap(ctx, "c", []byte{0, 2}, []byte{9}); ok {
		t.Fatalf("CAS with wrong old must fail")
	}
	if ok, err := tr.CompareAndSwap(ctx, "c", []byte{0, 1}, []byte{0, 2}); err != nil || !ok {
		t.Fatalf("CAS swap: %v %v", ok, err)
	}
	if v, _, _ := tr.Get(ctx, "c"); !bytes.Equal(v, []byte{0, 2}) {
		t.Fatalf("after CAS: %x", v)
	}
}

func testConcurrentCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	tr := mustTree(t, s, "cas-race")

	const workers, per = 8, 25
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				for {
					cur, ok, err := tr.Get(ctx, "n")
					if err != nil {
						errCh <- err
						return
					}
					var n int
					var old []byte
					if ok {
						old = cur
						if n, err = strconv.Atoi(string(cur)); err != nil {
							errCh <- err
							return
						}
					}
					swapped, err := tr.CompareAndSwap(ctx, "n", old, []byte(strconv.Itoa(n+1)))
					if err != nil {
						errCh <- err
						return
					}
					if swapped {
						break
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent CAS: %v", err)
	}
	v, _, _ := tr.Get(ctx, "n")
	if string(v) != fmt.Sprint(workers*per) {
		t.Fatalf("lost updates: got %s want %d", v, workers*per)
	}
}

func testIterate(t *testing.T, s store.Store) {
	ctx := context.Background()
	tr := mustTree(t, s, "iter")

	if err := tr.Iterate(ctx, func(string, []byte) error {
		t.Fatalf("callback on empty tree")
		return nil
	}); err != nil {
		t.Fatalf("Iterate empty: %v", err)
	}

	want := []string{"a", "b", "c", "d"}
	for _, k := range []string{"c", "a", "d", "b"} {
		_ = tr.Insert(ctx, k, []byte("v-"+k))
	}
	var got []string
	err := tr.Iterate(ctx, func(k string, v []byte) error {
		if string(v) != "v-"+k {
			return fmt.Errorf("value for %s = %q", k, v)
		}
		got = append(got, k)
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("order=%v want %v", got, want)
	}

	n := 0
	if err := tr.Iterate(ctx, func(string, []byte) error {
		n++
		if n == 2 {
			return store.ErrStop
		}
		return nil
	}); err != nil || n != 2 {
		t.Fatalf("ErrStop: n=%d err=%v", n, err)
	}

	boom := errors.New("boom")
	if err := tr.Iterate(ctx, func(string, []byte) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("callback error not returned: %v", err)
	}
}

func testIterateMutate(t *testing.T, s store.Store) {
	ctx := context.Background()
	tr := mustTree(t, s, "iter-mut")
	for i := 0; i < 600; i++ {
		_ = tr.Insert(ctx, fmt.Sprintf("k%04d", i), []byte("v"))
	}
	seen := 0
	err := tr.Iterate(ctx, func(k string, _ []byte) error {
		seen++
		return tr.Remove(ctx, k)
	})
	if err != nil {
		t.Fatalf("Iterate with removal: %v", err)
	}
	if seen != 600 {
		t.Fatalf("seen=%d want 600", seen)
	}
	if err := tr.Iterate(ctx, func(k string, _ []byte) error {
		return fmt.Errorf("left behind: %s", k)
	}); err != nil {
		t.Fatal(err)
	}
}
