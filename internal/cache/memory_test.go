package cache

import (
	"context"
	"testing"
	"time"

	"autopilot/internal/config"
)

func TestMemoryStore_ExpiryAndPurge(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.Now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Set(ctx, "short", []byte("a"), time.Minute)
	_ = s.Set(ctx, "forever", []byte("b"), 0)

	if v, ok, _ := s.Get(ctx, "short"); !ok || string(v) != "a" {
		t.Fatalf("short=%q ok=%v", v, ok)
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "short"); ok {
		t.Fatalf("expired entry still readable")
	}
	_ = s.Set(ctx, "short2", []byte("c"), time.Second)
	now = now.Add(time.Minute)
	if n := s.Purge(); n != 1 {
		t.Fatalf("purged=%d want=1", n)
	}
	if s.Len() != 1 {
		t.Fatalf("len=%d want=1", s.Len())
	}
	_ = s.Delete(ctx, "forever")
	if _, ok, _ := s.Get(ctx, "forever"); ok {
		t.Fatalf("deleted entry readable")
	}
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	in := []byte("done")
	_ = s.Set(ctx, "k", in, 0)
	in[0] = 'X'
	v, _, _ := s.Get(ctx, "k")
	if string(v) != "done" {
		t.Fatalf("value=%q want=done", v)
	}
}

func TestFromConfig_DefaultsToMemory(t *testing.T) {
	if _, ok := FromConfig(config.RedisConfig{}).(*MemoryStore); !ok {
		t.Fatalf("want *MemoryStore without redis addr")
	}
	if _, ok := FromConfig(config.RedisConfig{Addr: "localhost:6379"}).(*RedisStore); !ok {
		t.Fatalf("want *RedisStore with redis addr")
	}
}
