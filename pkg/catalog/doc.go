// Package catalog keeps the persistent record of every plugin the host has
// ever seen.
//
// Records are keyed by plugin id and hold the manifest fields flattened in,
// an enabled flag and a list of users. A record may outlive its plugin: when
// a plugin disappears from disk the record is only disabled. Records are
// physically removed by an explicit delete only.
//
// Stores:
//
//   - MemoryStore: process-local map, used in tests and as the default backend
//   - SQLStore: database/sql over SQLite (github.com/mattn/go-sqlite3) or
//     PostgreSQL (github.com/lib/pq)
//   - CachedStore: wraps any Store with an expiring LRU and an optional Redis
//     second level
//
// The Synchronizer maps the five synchronization operations (create, update,
// enable, disable, delete) onto a Store.
package catalog
