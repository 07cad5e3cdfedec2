// Package tiered layers the in-process decision cache over the shared one.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/bizops/internal/port/cache"
)

// Cache reads L1 then L2 and writes both. L2 being unreachable degrades to
// L1-only caching; the resolver's store lookup remains the source of truth.
type Cache struct {
	l1, l2   cache.Cache
	l1Expire time.Duration
}

// New builds a tiered cache. l1Expire bounds how long any entry lives in L1,
// so invalidations published only to L2 by other replicas age out locally.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := c.l1.Get(ctx, key); err != nil || ok {
		return val, ok, err
	}

	val, ok, err := c.l2.Get(ctx, key)
	switch {
	case err != nil:
		slog.Warn("l2 cache get failed", "key", key, "error", err)
		return nil, false, nil
	case !ok:
		return nil, false, nil
	}
	if err := c.l1.Set(ctx, key, val, c.l1Expire); err != nil {
		slog.Debug("l1 backfill failed", "key", key, "error", err)
	}
	return val, true, nil
}

// Set populates L1 even when the L2 write fails; the L2 error is returned.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, min(ttl, c.l1Expire)); err != nil {
		return err
	}
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("l2 set %s: %w", key, err)
	}
	return nil
}

// Delete always attempts both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Join(c.l1.Delete(ctx, key), c.l2.Delete(ctx, key))
}
