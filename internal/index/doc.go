// Package index holds the tree store's auxiliary lookup structures.
//
// Map resolves node ids to live nodes. It is a pure index and never changes
// tree structure.
//
// Orphanage buffers updates whose parent has not arrived yet, bucketed by
// the id of the missing parent. An id lives in at most one bucket.
package index
