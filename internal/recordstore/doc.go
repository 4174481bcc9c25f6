// Package recordstore caches the last observed state of every record.
//
// The cache sits between the tree and the durable stores. Its only job is to
// tell whether a change is actually new: Save and Delete drop everything that
// matches the cache and emit an Edit with the remainder, tagged with the
// Origin that produced it. Identical saves emit nothing, which is what stops
// an edit from bouncing between the tree, the local cache and the remote
// database forever.
package recordstore
