package cache

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	// Clear drops every entry, expired or not
	Clear(ctx context.Context) error
	// Len counts stored entries, including ones not yet swept after expiry
	Len(ctx context.Context) (int, error)
	Close() error
}
