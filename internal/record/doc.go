// Package record defines the flat, serialisable form of outline items and
// converts between trees and record lists.
//
// A Record is one node's identity, content, parent reference and sibling
// position. Records are what the local cache stores and what the remote
// database exchanges; the wire shape is
//
//	{"id": string, "text": string?, "state": 0|2|3, "tag": 0..5, "parentID": string?, "position": int}
//
// State and Tag values are persisted as-is and must never be renumbered.
//
// Flatten walks a tree in depth-first pre-order and emits one Record per
// node. Unflatten rebuilds trees from records in any order and reports the
// records whose parent is absent.
package record
