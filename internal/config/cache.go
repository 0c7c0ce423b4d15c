package config

import "time"

// CacheConfig tunes the entity cache layer. EntityTTL covers single
// records; ListTTL covers paginated listings, which go stale faster
// and are tag-invalidated on every mutation anyway.
type CacheConfig struct {
	Enabled   bool
	EntityTTL time.Duration
	ListTTL   time.Duration
}

// LoadCacheConfig reads the cache settings with defaults suited to a
// read-heavy user directory.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   envBool("CACHE_ENABLED", true),
		EntityTTL: envDur("CACHE_ENTITY_TTL", time.Hour),
		ListTTL:   envDur("CACHE_LIST_TTL", 5*time.Minute),
	}
}
