package tierstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/tierstore/provider/memory"
	"github.com/unkn0wn-root/tierstore/store/mem"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("defaults = %+v, want %+v", cfg, DefaultConfig())
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("TIERSTORE_DB_PATH", "/tmp/x.db")
	t.Setenv("TIERSTORE_CACHE_SEGMENTS", "8")
	t.Setenv("TIERSTORE_CACHE_MAX_CAPACITY", "1048576")
	t.Setenv("TIERSTORE_CACHE_TTL", "60")
	t.Setenv("TIERSTORE_CACHE_TTI", "30")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := Config{DBPath: "/tmp/x.db", CacheSegments: 8, CacheMaxCapacity: 1 << 20, CacheTimeToLive: 60, CacheTimeToIdle: 30}
	if cfg != want {
		t.Fatalf("cfg = %+v, want %+v", cfg, want)
	}
	mc := cfg.MemoryConfig()
	if mc.TimeToLive != time.Minute || mc.TimeToIdle != 30*time.Second || mc.MaxCost != 1<<20 || mc.Segments != 8 {
		t.Fatalf("memory config = %+v", mc)
	}
}

func TestLoadConfigRejectsNegative(t *testing.T) {
	t.Setenv("TIERSTORE_CACHE_TTL", "-1")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestOpenWithOptions(t *testing.T) {
	ctx := context.Background()
	hooks := &recordingHooks{}
	var costCalls int
	s, err := Open(ctx, Config{DBPath: filepath.Join(t.TempDir(), "t.db"), CacheSegments: 4},
		WithLogger(NopLogger{}),
		WithHooks(hooks),
		WithCost(func(ck string, p []byte) int64 { costCalls++; return 1 }),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Insert(ctx, "User", "1", []byte("ada")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if costCalls != 1 {
		t.Fatalf("cost func called %d times", costCalls)
	}
	if err := s.RunMaintenance(ctx); err != nil {
		t.Fatalf("RunMaintenance: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty DBPath")
	}
}

func TestMaintenanceLoopRuns(t *testing.T) {
	ctx := context.Background()
	var (
		mu  sync.Mutex
		now = time.Unix(1_700_000_000, 0)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	db := mem.New()
	s, err := New(Options{
		Store:               db,
		Provider:            memory.Factory(memory.Config{TimeToLive: time.Minute, Now: clock}),
		MaintenanceInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(ctx)
	_ = s.Insert(ctx, "", "k", []byte("v"))

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	tr, _ := db.Tree(ctx, "")
	deadline := time.Now().Add(2 * time.Second)
	for {
		if ok, _ := tr.Contains(ctx, "k"); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("background maintenance never expired the record")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
