package cache

import "fmt"

// Key layout:
//
//	<entity>:<id>          single entity
//	<entity>:list:<opts>   one cached listing per serialized option set
//	tag:<name>             membership set for bulk invalidation
//
// A listing key embeds the full serialized option set, so any change to
// paging, sort or filter parameters yields a distinct key and cached
// pages are never partially reused.

// EntityKey returns the cache key for a single entity.
func EntityKey(entity string, id uint64) string {
	return fmt.Sprintf("%s:%d", entity, id)
}

// ListKey returns the cache key for a listing identified by the
// serialized query options.
func ListKey(entity, opts string) string {
	return fmt.Sprintf("%s:list:%s", entity, opts)
}

// ListPattern matches every cached listing for an entity type.
func ListPattern(entity string) string {
	return fmt.Sprintf("%s:list:*", entity)
}

// ListTag is the tag grouping all cached listings for an entity type.
func ListTag(entity string) string {
	return entity + ":list"
}

// TagKey returns the Redis key holding a tag's member keys.
func TagKey(tag string) string {
	return "tag:" + tag
}
