// Package engine is the composition root of one outline replica.
//
// ARCHITECTURE:
//
// Single-Writer Task Loop:
// The tree store, the record cache and the controller between them are not
// safe for concurrent use. The engine owns them and runs every access as a
// task in one goroutine, so edits from the user, from the local store and
// from the remote database apply one after another in submission order.
//
// Task Flow:
//  1. A caller submits a closure with Do and waits for it.
//  2. Run dequeues tasks one at a time, FIFO.
//  3. Edits inside a task propagate synchronously: tree store, controller,
//     record cache, local persistence, outbox.
//
// Remote I/O never runs inside a task. Sync fetches on the caller's
// goroutine and applies the fetched records with a single Do, so a fetch
// cancelled before it completes changes nothing.
package engine
