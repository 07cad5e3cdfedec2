// Package cache defines the port interface for caching.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
//
// Backends may honor ttl loosely (NATS KV applies a bucket-wide TTL), so
// callers that must never serve stale data keep their own expiry inside
// the value. Keys are restricted to [-_.a-zA-Z0-9] so every backend accepts them.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
