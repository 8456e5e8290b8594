package docs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	if _, ok, err := c.Get(ctx, "serde"); ok || err != nil {
		t.Fatalf("Get on empty cache = ok %v, err %v", ok, err)
	}
	if err := c.Set(ctx, "serde", "page"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := c.Get(ctx, "serde")
	if err != nil || !ok || v != "page" {
		t.Errorf("Get = %q, %v, %v", v, ok, err)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d", c.Len())
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisCache(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	prefix := fmt.Sprintf("mcp-bridge:test:%d:", time.Now().UnixNano())

	c, err := NewRedisCache(ctx, RedisConfig{Client: client, KeyPrefix: prefix, TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	t.Cleanup(func() {
		client.Del(context.Background(), prefix+"tokio:1.0")
		_ = c.Close()
	})

	if _, ok, err := c.Get(ctx, "tokio:1.0"); ok || err != nil {
		t.Fatalf("Get before Set = ok %v, err %v", ok, err)
	}
	if err := c.Set(ctx, "tokio:1.0", "page"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := c.Get(ctx, "tokio:1.0")
	if err != nil || !ok || v != "page" {
		t.Errorf("Get = %q, %v, %v", v, ok, err)
	}
	if ttl := client.TTL(ctx, prefix+"tokio:1.0").Val(); ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v", ttl)
	}
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedisCache(ctx, RedisConfig{Addr: "127.0.0.1:1"}); err == nil {
		t.Error("expected ping error")
	}
}
