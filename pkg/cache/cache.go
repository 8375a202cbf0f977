package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Service is a TTL key/value store for regime vectors and decision pages.
// Values are JSON encoded, except strings and byte slices which are stored
// verbatim, and decoded into dest on Get.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Key joins parts with ':' so every store namespaces keys the same way.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
