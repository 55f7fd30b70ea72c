package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ggoodman/dash-enterprise-auth-go/storage"
	"github.com/redis/go-redis/v9"
)

func newTestStorage(t *testing.T) (*Storage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := New(Config{Client: client, KeyPrefix: "test:"})
	if err != nil {
		t.Fatalf("Failed to create Redis storage: %v", err)
	}
	return s, mr
}

func TestRedisStorage(t *testing.T) {
	t.Run("SetAndGet", func(t *testing.T) {
		s, mr := newTestStorage(t)
		ctx := context.Background()

		if err := s.Set(ctx, "https://idp/jwks", []byte(`{"keys":[]}`)); err != nil {
			t.Fatalf("Failed to set data: %v", err)
		}
		if !mr.Exists("test:global:https://idp/jwks") {
			t.Fatalf("expected prefixed key, have %v", mr.Keys())
		}

		item, err := s.Get(ctx, "https://idp/jwks")
		if err != nil {
			t.Fatalf("Failed to get data: %v", err)
		}
		if item == nil || string(item.Data) != `{"keys":[]}` {
			t.Fatalf("unexpected item %+v", item)
		}
	})

	t.Run("GetNonExistent", func(t *testing.T) {
		s, _ := newTestStorage(t)
		item, err := s.Get(context.Background(), "nope")
		if err != nil || item != nil {
			t.Fatalf("want (nil, nil), got (%v, %v)", item, err)
		}
	})

	t.Run("TTL", func(t *testing.T) {
		s, mr := newTestStorage(t)
		ctx := context.Background()

		if err := s.Set(ctx, "k", []byte("v"), storage.WithTTL(10*time.Minute)); err != nil {
			t.Fatalf("Failed to set data: %v", err)
		}
		if ttl := mr.TTL("test:global:k"); ttl != 10*time.Minute {
			t.Fatalf("want redis ttl 10m, got %v", ttl)
		}

		mr.FastForward(11 * time.Minute)
		item, err := s.Get(ctx, "k")
		if err != nil || item != nil {
			t.Fatalf("want expired item gone, got (%v, %v)", item, err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s, _ := newTestStorage(t)
		ctx := context.Background()

		_ = s.Set(ctx, "k", []byte("v"), storage.WithNamespace("jwks"))
		if err := s.Delete(ctx, "k", storage.WithNamespace("jwks")); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if item, _ := s.Get(ctx, "k", storage.WithNamespace("jwks")); item != nil {
			t.Fatal("key should be gone")
		}
	})

	t.Run("CorruptValue", func(t *testing.T) {
		s, mr := newTestStorage(t)
		_ = mr.Set("test:global:k", "not json")
		if _, err := s.Get(context.Background(), "k"); err == nil {
			t.Fatal("expected unmarshal error")
		}
	})
}

func TestNewRequiresClientOrAddr(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without client or address")
	}
}

func TestNewFromEnv(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("DASH_AUTH_REDIS_ADDR", mr.Addr())
	t.Setenv("DASH_AUTH_REDIS_PREFIX", "env:")

	s, err := NewFromEnv(context.Background())
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	defer s.Close()

	if err := s.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("env:global:k") {
		t.Fatalf("expected env prefix to apply, have %v", mr.Keys())
	}
}
