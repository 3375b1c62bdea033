package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(8, time.Minute)

	var out sample
	if err := c.Get(ctx, "missing", &out); !errors.Is(err, ErrMiss) {
		t.Fatalf("expect ErrMiss, got %v", err)
	}

	key := BuildCacheKey(KeyUserIdentity, 42)
	if key != "user:identity:42" {
		t.Fatalf("unexpected key %s", key)
	}
	if err := c.Set(ctx, key, sample{Name: "a", Count: 3}, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := c.Get(ctx, key, &out); err != nil || out.Name != "a" || out.Count != 3 {
		t.Fatalf("unexpected cached value %+v (%v)", out, err)
	}

	c.Set(ctx, BuildCacheKey(KeySession, "t1"), 1, time.Minute)
	c.Set(ctx, BuildCacheKey(KeySession, "t2"), 2, time.Minute)
	if err := c.DeleteByPrefix(ctx, KeySession+":"); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := c.Get(ctx, BuildCacheKey(KeySession, "t1"), &n); !errors.Is(err, ErrMiss) {
		t.Fatalf("prefix delete missed a key: %v", err)
	}
	if err := c.Get(ctx, key, &out); err != nil {
		t.Fatalf("unrelated key removed: %v", err)
	}

	c.Delete(ctx, key)
	if err := c.Get(ctx, key, &out); !errors.Is(err, ErrMiss) {
		t.Fatalf("expect ErrMiss after delete, got %v", err)
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(8, 20*time.Millisecond)
	c.Set(ctx, "k", "v", 0)
	time.Sleep(60 * time.Millisecond)
	var v string
	if err := c.Get(ctx, "k", &v); !errors.Is(err, ErrMiss) {
		t.Fatalf("entry should have expired, got %q (%v)", v, err)
	}
}
