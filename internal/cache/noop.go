package cache

import (
	"context"
	"time"
)

// NoOpCache discards every write and always misses on Get. It is the
// default backend — nothing in this repo requires a cache to function
// correctly (spec §4.4's context packing runs fine uncached); wiring a
// real backend is purely a latency optimization, per the teacher's
// NoOpCache degrade-gracefully idiom.
type NoOpCache struct{}

// NewNoOpCache constructs a no-op cache.
func NewNoOpCache() Cache { return NoOpCache{} }

func (NoOpCache) Get(context.Context, string, interface{}) error { return ErrNotFound }
func (NoOpCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (NoOpCache) Delete(context.Context, string) error { return nil }
func (NoOpCache) Close() error { return nil }
