// Package syncer moves record edits between the local replica and a remote
// database.
//
// Local edits authored by the controller or written directly by a host are
// queued in a durable outbox as they happen. Sync pushes the outbox, then
// fetches the server's changes since the last stored token and applies them
// to the record cache as remote edits. Records are only touched inside the
// engine's serialized context, so Sync needs a Runner to get there.
//
// Saves carry the last server version the replica saw (its shadow copy) so
// the server can report three-way conflicts. A conflict is resolved with the
// configured Resolver, written back into the cache and pushed again when the
// resolution differs from the server version.
//
// Network and rate-limit errors are retried with exponential backoff. Auth
// and permission errors disable sync until Enable is called.
package syncer
