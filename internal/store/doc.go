// Package store holds the deduplicating notification ledger and the durable
// home of health check definitions.
//
// The main components are:
//
//   - [NotificationStore]: atomic upsert keyed by (source, title, message)
//   - [SpecStore]: persisted health check definitions
//   - [MemoryStore] and [MemorySpecStore]: in-process implementations
//   - [SQLiteStore] and [PostgresStore]: durable implementations of both
//
// Every notification store publishes a [Change] after each successful
// mutation. Subscribers receive changes via buffered channels with
// non-blocking sends, so a slow subscriber misses changes rather than
// stalling writers.
package store
