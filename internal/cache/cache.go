// Package cache defines the pluggable cache backend used by
// internal/promptctx for recap/context lookups, grounded on the teacher's
// pkg/common/cache.Cache interface.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get on a cache miss, matching the teacher's
// common/cache sentinel.
var ErrNotFound = errors.New("cache: not found")

// Cache is the narrow interface every backend implements.
type Cache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
