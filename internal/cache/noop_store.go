package cache

import (
	"context"
	"time"
)

// NoopStore satisfies Store but never retains anything. It backs the
// cache manager when caching is disabled by configuration, so the
// read path is always a miss and every call is a cheap no-op.
type NoopStore struct{}

func (NoopStore) Get(ctx context.Context, key string) (string, bool, error) { return "", false, nil }
func (NoopStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}
func (NoopStore) SAdd(ctx context.Context, key string, members ...string) error { return nil }
func (NoopStore) SMembers(ctx context.Context, key string) ([]string, error)    { return nil, nil }
func (NoopStore) Del(ctx context.Context, keys ...string) error                 { return nil }
func (NoopStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	return nil, nil
}
