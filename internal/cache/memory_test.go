package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestMemoryProviderSetNXRespectsTTL(t *testing.T) {
	mock := clock.NewMock()
	c := NewMemoryProvider(mock)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "alert|disk", []byte("INC-1"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to succeed, ok=%v err=%v", ok, err)
	}
	ok, _ = c.SetNX(ctx, "alert|disk", []byte("INC-2"), time.Minute)
	if ok {
		t.Fatalf("expected duplicate SetNX to fail inside window")
	}

	mock.Add(time.Minute)
	ok, _ = c.SetNX(ctx, "alert|disk", []byte("INC-3"), time.Minute)
	if !ok {
		t.Fatalf("expected SetNX to succeed after expiry")
	}
	v, err := c.Get(ctx, "alert|disk")
	if err != nil || string(v) != "INC-3" {
		t.Fatalf("unexpected value %q err=%v", v, err)
	}
}

func TestMemoryProviderDelAndMiss(t *testing.T) {
	c := NewMemoryProvider(nil)
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("v"), 0)
	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
}

func TestNoopProviderAlwaysAccepts(t *testing.T) {
	var p Provider = NoopProvider{}
	ok, err := p.SetNX(context.Background(), "k", nil, time.Second)
	if !ok || err != nil {
		t.Fatalf("noop SetNX should succeed")
	}
	if _, err := p.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("noop Get should miss")
	}
}

func TestNamespacedPrefixesKeys(t *testing.T) {
	inner := NewMemoryProvider(nil)
	ns := Namespaced{Provider: inner, Prefix: "oracle:"}
	ctx := context.Background()

	ok, err := ns.SetNX(ctx, "alert:x", []byte("1"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected SetNX to succeed, ok=%v err=%v", ok, err)
	}
	if _, err := inner.Get(ctx, "oracle:alert:x"); err != nil {
		t.Fatalf("expected prefixed key in inner provider: %v", err)
	}
	if err := ns.Del(ctx, "alert:x"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := inner.Get(ctx, "oracle:alert:x"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected prefixed key removed, got %v", err)
	}
}
