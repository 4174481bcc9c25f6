// Package store provides SQLite-backed durable storage for an outline
// replica.
//
// Tables:
//   - records: the last known state of every item
//   - shadow: the last server-acknowledged version of each record
//   - outbox: local edits waiting to be pushed, latest operation per id
//   - sync_state: change tokens per remote database
//
// # Patterns
//
// Idempotent writes: every write is an upsert keyed by record id. Saving a
// record whose fingerprint is unchanged does not touch the row.
//
// Logical time: writes are stamped with a monotonic seq from the counters
// table, never with wall time. Queries that return lists order by seq or id
// so results are deterministic.
//
// Outbox acknowledgement: Ack deletes an entry only if its seq is the one
// the caller pushed. An edit queued while a push was in flight survives.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability and performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
