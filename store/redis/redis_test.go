package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tierstore/store/storetest"
)

// Set TIERSTORE_TEST_REDIS_ADDR (e.g. localhost:6379) to run against a live server.
func TestConformance(t *testing.T) {
	addr := os.Getenv("TIERSTORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TIERSTORE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	prefix := fmt.Sprintf("tierstore-test-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		_ = client.Close()
	})

	s, err := New(Config{Client: client, Prefix: prefix})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	storetest.Run(t, s)
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestDefaultPrefix(t *testing.T) {
	s, err := New(Config{Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), CloseClient: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()
	if got := s.hashKey("User"); got != "tierstore:User" {
		t.Fatalf("hashKey = %q", got)
	}
}
