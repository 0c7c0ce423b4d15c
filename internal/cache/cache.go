// Package cache implements the cache-aside layer over Redis. The cache
// is advisory: the relational store stays authoritative, and every
// failure here degrades to a miss that is logged but never surfaced to
// callers.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Store is the minimal key-value surface the manager needs. The
// production implementation wraps *redis.Client; tests use an
// in-memory fake.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	Del(ctx context.Context, keys ...string) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

// Recorder receives hit/miss observations. *metrics.Collector
// satisfies it; a nil Recorder disables recording.
type Recorder interface {
	RecordCacheHit()
	RecordCacheMiss()
}

// Manager provides tagged cache-aside operations on top of a Store.
type Manager struct {
	store      Store
	defaultTTL time.Duration
	log        *slog.Logger
	rec        Recorder
}

// NewManager builds a Manager. defaultTTL applies when Set is called
// with a non-positive TTL. log and rec may be nil.
func NewManager(store Store, defaultTTL time.Duration, log *slog.Logger, rec Recorder) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Manager{store: store, defaultTTL: defaultTTL, log: log, rec: rec}
}

// Get unmarshals the cached value for key into dest and reports whether
// it was found. Any store or decode error counts as a miss.
func (m *Manager) Get(ctx context.Context, key string, dest any) bool {
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.log.Error("cache get failed", "key", key, "err", err)
		m.miss()
		return false
	}
	if !ok {
		m.miss()
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		m.log.Error("cache decode failed", "key", key, "err", err)
		m.miss()
		return false
	}
	m.hit()
	return true
}

// Set serializes value under key with the given TTL and registers the
// key under each tag's membership set for later bulk invalidation.
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration, tags ...string) {
	raw, err := json.Marshal(value)
	if err != nil {
		m.log.Error("cache encode failed", "key", key, "err", err)
		return
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	if err := m.store.SetEx(ctx, key, string(raw), ttl); err != nil {
		m.log.Error("cache set failed", "key", key, "err", err)
		return
	}
	for _, tag := range tags {
		if err := m.store.SAdd(ctx, TagKey(tag), key); err != nil {
			m.log.Error("cache tag register failed", "key", key, "tag", tag, "err", err)
		}
	}
}

// Invalidate removes a single key.
func (m *Manager) Invalidate(ctx context.Context, key string) {
	if err := m.store.Del(ctx, key); err != nil {
		m.log.Error("cache invalidate failed", "key", key, "err", err)
	}
}

// InvalidateByTags drops every key registered under each tag, then the
// tag sets themselves.
func (m *Manager) InvalidateByTags(ctx context.Context, tags ...string) {
	for _, tag := range tags {
		tk := TagKey(tag)
		keys, err := m.store.SMembers(ctx, tk)
		if err != nil {
			m.log.Error("cache tag lookup failed", "tag", tag, "err", err)
			continue
		}
		keys = append(keys, tk)
		if err := m.store.Del(ctx, keys...); err != nil {
			m.log.Error("cache tag invalidate failed", "tag", tag, "err", err)
		}
	}
}

// InvalidatePattern removes every key matching a glob pattern. Used for
// coarse namespace drops such as all cached user listings.
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) {
	keys, err := m.store.ScanKeys(ctx, pattern)
	if err != nil {
		m.log.Error("cache pattern scan failed", "pattern", pattern, "err", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := m.store.Del(ctx, keys...); err != nil {
		m.log.Error("cache pattern invalidate failed", "pattern", pattern, "err", err)
	}
}

func (m *Manager) hit() {
	if m.rec != nil {
		m.rec.RecordCacheHit()
	}
}

func (m *Manager) miss() {
	if m.rec != nil {
		m.rec.RecordCacheMiss()
	}
}
