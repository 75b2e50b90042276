package cache

import (
	"context"
	"errors"
	"time"
)

// Provider is the key/value store used for alert fingerprints.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss is returned by Get for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider remembers nothing, so every SetNX succeeds.
type NoopProvider struct{}

func (NoopProvider) Get(context.Context, string) ([]byte, error)              { return nil, ErrCacheMiss }
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoopProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}
func (NoopProvider) Del(context.Context, string) error { return nil }
func (NoopProvider) Close() error                      { return nil }

// Namespaced prefixes every key so several services can share one server.
type Namespaced struct {
	Provider
	Prefix string
}

func (n Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.Provider.Get(ctx, n.Prefix+key)
}

func (n Namespaced) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.Provider.Set(ctx, n.Prefix+key, value, ttl)
}

func (n Namespaced) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return n.Provider.SetNX(ctx, n.Prefix+key, value, ttl)
}

func (n Namespaced) Del(ctx context.Context, key string) error {
	return n.Provider.Del(ctx, n.Prefix+key)
}
