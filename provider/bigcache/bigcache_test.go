package bigcache

import (
	"context"
	"sync"
	"testing"

	pr "github.com/unkn0wn-root/tierstore/provider"
)

func TestDeleteReportsExplicit(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var causes []pr.Cause
	var values []string
	p, err := New(Config{Shards: 16}, func(key string, v []byte, c pr.Cause) {
		mu.Lock()
		causes = append(causes, c)
		values = append(values, string(v))
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	if ok, err := p.Set(ctx, "k", []byte("payload"), 0); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	v, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || string(v) != "payload" {
		t.Fatalf("Get: %q %v %v", v, ok, err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del of absent key must be a no-op: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after delete")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(causes) != 1 || causes[0] != pr.CauseExplicit {
		t.Fatalf("causes=%v want [explicit]", causes)
	}
	if values[0] != "payload" {
		t.Fatalf("listener got %q, stamp not stripped", values[0])
	}
}
