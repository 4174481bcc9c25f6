// Package tree implements the ordered n-ary tree behind an outline.
//
// A Node owns its children and keeps a back-pointer to its parent. A node
// without a parent is a root. Nodes are created detached, attached with
// Insert or Group on the future parent, and detached again with Remove.
//
// # Events
//
// Every structural mutation (Insert, Remove, Move, Group, Undelete) emits
// exactly one Event, and SetData emits EventDataChanged. An event is
// delivered to the observers of the mutated node and then to the observers
// of every ancestor up to the root, so observing a root observes the whole
// tree.
//
// # Leaf counts
//
// Each node caches the number of leaves below it (a leaf counts as 1).
// Mutations recount from the mutated node towards the root and stop at the
// first ancestor whose count is unchanged. Recount rebuilds a whole subtree
// and is meant for initial loads.
//
// # Failure semantics
//
// Invalid input (indexes out of range, cycles, nodes that already have a
// parent) is reported as an error wrapping one of the sentinel errors below
// and leaves the tree unchanged. The tree does not log; callers do.
//
// Nodes are not safe for concurrent use.
package tree
