// Package cache provides a Redis-backed cache for complete export pages.
//
// Only responses the service marked as complete (partial == false) are
// cached: a partial page must never be replayed to a caller as final data.
// Entries carry a fixed TTL chosen by the client configuration, since the
// export service emits no cache validators of its own.
package cache
