// Package treestore holds the authoritative in-memory forest of an outline
// and reconciles record updates against it.
//
// Updates may arrive in any order and from any source: the local cache at
// startup, the remote database, or the echo of a local edit. Apply is
// idempotent, applies each batch in ascending position order and buffers
// updates whose parent is not known yet (orphans) until that parent
// registers.
//
// Node lifecycle inside the store:
//
//	unregistered → registered-orphan → attached → removed
//
// A registered orphan is indexed but detached; its update waits in the
// orphanage under the id of the missing parent. An attached node is either a
// top-level tree or a descendant of one.
//
// The store observes its own top-level trees, so edits made directly through
// the tree API keep the index current and still adopt waiting orphans.
//
// Malformed input never panics: it is logged and skipped.
//
// A Store is not safe for concurrent use; the engine serialises access.
package treestore
