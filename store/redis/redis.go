// Package redis stores each tree as one Redis hash. It lets several processes
// share a durable tier; values survive as long as the Redis dataset does.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tierstore/store"
)

// casScript sets field ARGV[1] to ARGV[3] iff it currently equals ARGV[2].
// ARGV[4] == "1" means the field must be absent instead.
var casScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if ARGV[4] == '1' then
  if cur then return 0 end
elseif (not cur) or cur ~= ARGV[2] then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
return 1
`)

const scanCount = 512

type Config struct {
	Client redis.UniversalClient
	// Prefix namespaces the hash keys. Defaults to "tierstore".
	Prefix string
	// CloseClient closes Client on Store.Close.
	CloseClient bool
}

type Store struct {
	rdb         redis.UniversalClient
	prefix      string
	closeClient bool
	closed      atomic.Bool
}

var _ store.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis store: nil client")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "tierstore"
	}
	return &Store{rdb: cfg.Client, prefix: cfg.Prefix, closeClient: cfg.CloseClient}, nil
}

func (s *Store) hashKey(name string) string { return s.prefix + ":" + name }

func (s *Store) Tree(_ context.Context, name string) (store.Tree, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	return &tree{s: s, name: name, key: s.hashKey(name)}, nil
}

// Flush is a no-op; Redis persistence is configured server side.
func (s *Store) Flush(context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.closeClient {
		return s.rdb.Close()
	}
	return nil
}

type tree struct {
	s    *Store
	name string
	key  string
}

func (t *tree) Name() string { return t.name }

func (t *tree) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if t.s.closed.Load() {
		return nil, false, store.ErrClosed
	}
	b, err := t.s.rdb.HGet(ctx, t.key, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis hget %s: %w", t.key, err)
	}
	return b, true, nil
}

func (t *tree) Insert(ctx context.Context, key string, value []byte) error {
	if t.s.closed.Load() {
		return store.ErrClosed
	}
	if err := t.s.rdb.HSet(ctx, t.key, key, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", t.key, err)
	}
	return nil
}

func (t *tree) Remove(ctx context.Context, key string) error {
	if t.s.closed.Load() {
		return store.ErrClosed
	}
	if err := t.s.rdb.HDel(ctx, t.key, key).Err(); err != nil {
		return fmt.Errorf("redis hdel %s: %w", t.key, err)
	}
	return nil
}

func (t *tree) Contains(ctx context.Context, key string) (bool, error) {
	if t.s.closed.Load() {
		return false, store.ErrClosed
	}
	ok, err := t.s.rdb.HExists(ctx, t.key, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis hexists %s: %w", t.key, err)
	}
	return ok, nil
}

func (t *tree) CompareAndSwap(ctx context.Context, key string, old, next []byte) (bool, error) {
	if t.s.closed.Load() {
		return false, store.ErrClosed
	}
	mustBeAbsent := "0"
	if old == nil {
		mustBeAbsent = "1"
	}
	n, err := casScript.Run(ctx, t.s.rdb, []string{t.key}, key, old, next, mustBeAbsent).Int()
	if err != nil {
		return false, fmt.Errorf("redis cas %s: %w", t.key, err)
	}
	return n == 1, nil
}

// Iterate snapshots the hash with HSCAN, then walks it in key order.
func (t *tree) Iterate(ctx context.Context, fn func(key string, value []byte) error) error {
	if t.s.closed.Load() {
		return store.ErrClosed
	}
	pairs := make(map[string]string)
	var cursor uint64
	for {
		kvs, next, err := t.s.rdb.HScan(ctx, t.key, cursor, "*", scanCount).Result()
		if err != nil {
			return fmt.Errorf("redis hscan %s: %w", t.key, err)
		}
		for i := 0; i+1 < len(kvs); i += 2 {
			pairs[kvs[i]] = kvs[i+1]
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, []byte(pairs[k])); err != nil {
			if errors.Is(err, store.ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}
