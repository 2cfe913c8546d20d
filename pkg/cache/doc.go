// Package cache provides a generic, thread-safe LRU cache.
//
// The realtime channel keeps one session hub per connected user in an
// LRUCache, so memory stays bounded no matter how many users connect. The
// evict callback closes the sessions of a user pushed out of the cache.
//
//	hubs := cache.NewLRUCache[string, *hub](10_000)
//	hubs.SetEvictCallback(func(_ string, h *hub) { h.close() })
//
//	h, _ := hubs.GetOrPut(userID, newHub)
//
// Get, Put, GetOrPut and Remove are O(1). RemoveIf and Range walk the whole
// cache.
package cache
