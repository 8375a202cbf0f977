package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// LayeredCache keeps a short-lived in-process copy (L1) in front of Redis
// (L2). Concurrent L1 misses for one key share a single Redis round trip.
type LayeredCache struct {
	l1    *MemoryCache
	l2    Service
	l1TTL time.Duration
	group singleflight.Group
}

// NewLayeredCache fronts l2 with a memory layer.
func NewLayeredCache(l2 Service, opts ...LayeredOption) *LayeredCache {
	cfg := LayeredConfig{L1Entries: 1000, L1TTL: time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LayeredCache{
		l1:    NewMemoryCache(WithMaxEntries(cfg.L1Entries), WithDefaultTTL(cfg.L1TTL)),
		l2:    l2,
		l1TTL: cfg.L1TTL,
	}
}

// Set writes Redis first; L1 is only filled once L2 accepted the value.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if err := lc.l2.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	return lc.l1.Set(ctx, key, data, lc.capTTL(ttl))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	var raw []byte
	if err := lc.l1.Get(ctx, key, &raw); err == nil {
		return decode(raw, dest)
	}

	v, err, _ := lc.group.Do(key, func() (interface{}, error) {
		var b []byte
		if err := lc.l2.Get(ctx, key, &b); err != nil {
			return nil, err
		}
		_ = lc.l1.Set(ctx, key, b, lc.l1TTL)
		return b, nil
	})
	if err != nil {
		return err
	}
	return decode(v.([]byte), dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

// Close stops the L1 janitor and closes L2.
func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}

func (lc *LayeredCache) capTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < lc.l1TTL {
		return ttl
	}
	return lc.l1TTL
}

var _ Service = (*LayeredCache)(nil)
