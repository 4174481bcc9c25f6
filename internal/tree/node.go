package tree

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrIndexOutOfRange is returned when a child index is not valid for the node.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrCycle is returned when a mutation would make a node its own ancestor.
	ErrCycle = errors.New("node would become its own ancestor")

	// ErrAttached is returned when a node that already has a parent is inserted.
	ErrAttached = errors.New("node already has a parent")

	// ErrDuplicate is returned when the same node or index is listed twice.
	ErrDuplicate = errors.New("node listed more than once")

	// ErrNilNode is returned when a nil node is passed to a mutation.
	ErrNilNode = errors.New("nil node")

	// ErrEmptySelection is returned by Group when no index is given.
	ErrEmptySelection = errors.New("empty selection")

	// ErrNothingToUndo is returned by Undelete when the deletion stack is empty.
	ErrNothingToUndo = errors.New("deletion stack is empty")
)

// maxDeletions bounds the per-node deletion stack.
const maxDeletions = 64

// Node is one entry of an ordered tree carrying a payload of type D.
type Node[D any] struct {
	id        string
	data      D
	children  []*Node[D]
	parent    *Node[D]
	leafCount int
	observers []*subscription[D]
	deleted   []deletion[D]
}

// deletion is one batch removed by Remove. Indexes are ascending and
// nodes[i] was at indexes[i].
type deletion[D any] struct {
	nodes   []*Node[D]
	indexes []int
}

// New creates a detached root node.
func New[D any](id string, data D) *Node[D] {
	return &Node[D]{id: id, data: data, leafCount: 1}
}

// ID returns the node's identifier. It never changes.
func (n *Node[D]) ID() string { return n.id }

// Data returns the node's payload.
func (n *Node[D]) Data() D { return n.data }

// SetData replaces the payload and emits EventDataChanged.
func (n *Node[D]) SetData(data D) {
	n.data = data
	n.emit(Event[D]{Kind: EventDataChanged, Node: n})
}

// Parent returns the parent, or nil for a root.
func (n *Node[D]) Parent() *Node[D] { return n.parent }

// IsRoot reports whether n has no parent.
func (n *Node[D]) IsRoot() bool { return n.parent == nil }

// Root returns the root of the tree containing n.
func (n *Node[D]) Root() *Node[D] {
	root := n
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// Depth returns the number of ancestors of n.
func (n *Node[D]) Depth() int {
	depth := 0
	for p := n.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// Children returns a copy of the child list.
func (n *Node[D]) Children() []*Node[D] { return slices.Clone(n.children) }

// Child returns the child at index i, or nil if i is out of range.
func (n *Node[D]) Child(i int) *Node[D] {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// ChildCount returns the number of children.
func (n *Node[D]) ChildCount() int { return len(n.children) }

// LeafCount returns the cached number of leaves below n.
func (n *Node[D]) LeafCount() int { return n.leafCount }

// IndexInParent returns n's position among its siblings, or -1 for a root.
func (n *Node[D]) IndexInParent() int {
	if n.parent == nil {
		return -1
	}
	return slices.Index(n.parent.children, n)
}

// IsAncestorOf reports whether n is a proper ancestor of other.
func (n *Node[D]) IsAncestorOf(other *Node[D]) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants in depth-first pre-order.
// Returning false from fn skips the children of the visited node.
func (n *Node[D]) Walk(fn func(*Node[D]) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Insert attaches nodes as children of n starting at index at.
// at must satisfy 0 <= at <= ChildCount. Every node must be detached and
// must not be n or an ancestor of n.
func (n *Node[D]) Insert(nodes []*Node[D], at int) error {
	if err := n.checkInsert(nodes, at); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}
	indexes := n.insert(nodes, at)
	n.emit(Event[D]{Kind: EventInserted, Parent: n, Nodes: slices.Clone(nodes), Indexes: indexes})
	return nil
}

// Remove detaches the children at indexes and pushes them on n's deletion
// stack. Either every index is valid and all are removed, or nothing is.
// The removed nodes are returned in ascending index order.
func (n *Node[D]) Remove(indexes []int) ([]*Node[D], error) {
	sorted, err := n.checkIndexes(indexes)
	if err != nil {
		return nil, err
	}
	if len(sorted) == 0 {
		return nil, nil
	}

	removed := n.remove(sorted)

	n.deleted = append(n.deleted, deletion[D]{nodes: removed, indexes: sorted})
	if len(n.deleted) > maxDeletions {
		n.deleted = slices.Delete(n.deleted, 0, len(n.deleted)-maxDeletions)
	}

	n.emit(Event[D]{Kind: EventRemoved, Parent: n, Nodes: slices.Clone(removed), Indexes: slices.Clone(sorted)})
	return removed, nil
}

// Move relocates the child at from to index to within n.
func (n *Node[D]) Move(from, to int) error {
	if from < 0 || from >= len(n.children) || to < 0 || to >= len(n.children) {
		return fmt.Errorf("move %d to %d in %q with %d children: %w", from, to, n.id, len(n.children), ErrIndexOutOfRange)
	}
	if from == to {
		return nil
	}

	moved := n.children[from]
	n.children = slices.Delete(n.children, from, from+1)
	n.children = slices.Insert(n.children, to, moved)

	n.emit(Event[D]{Kind: EventMoved, Parent: n, Nodes: []*Node[D]{moved}, From: from, To: to})
	return nil
}

// Group removes the children at indexes, inserts wrapper where the first of
// them was, and re-inserts the removed children, in order, under wrapper.
func (n *Node[D]) Group(indexes []int, wrapper *Node[D]) error {
	sorted, err := n.checkGroup(indexes, wrapper)
	if err != nil {
		return err
	}

	removed := n.remove(sorted)
	at := sorted[0]
	n.insert([]*Node[D]{wrapper}, at)
	wrapper.insert(removed, len(wrapper.children))

	n.emit(Event[D]{
		Kind:    EventGrouped,
		Parent:  n,
		Node:    wrapper,
		Nodes:   slices.Clone(removed),
		Indexes: slices.Clone(sorted),
		To:      at,
	})
	return nil
}

// Undelete re-inserts the most recent batch removed from n at its former
// positions, clamped to the current child count.
func (n *Node[D]) Undelete() error {
	if len(n.deleted) == 0 {
		return ErrNothingToUndo
	}
	last := n.deleted[len(n.deleted)-1]
	for _, c := range last.nodes {
		if c.parent != nil {
			return fmt.Errorf("undelete %q into %q: %w", c.id, n.id, ErrAttached)
		}
		if c == n || c.IsAncestorOf(n) {
			return fmt.Errorf("undelete %q into %q: %w", c.id, n.id, ErrCycle)
		}
	}
	n.deleted = n.deleted[:len(n.deleted)-1]

	indexes := make([]int, len(last.nodes))
	for k, c := range last.nodes {
		at := min(last.indexes[k], len(n.children))
		n.children = slices.Insert(n.children, at, c)
		c.parent = n
		indexes[k] = at
	}
	n.recount()

	n.emit(Event[D]{Kind: EventInserted, Parent: n, Nodes: slices.Clone(last.nodes), Indexes: indexes})
	return nil
}

// Recount rebuilds the cached leaf counts of n's whole subtree and then
// propagates the result towards the root.
func (n *Node[D]) Recount() {
	n.recountSubtree()
	if n.parent != nil {
		n.parent.recount()
	}
}

func (n *Node[D]) recountSubtree() int {
	if len(n.children) == 0 {
		n.leafCount = 1
		return 1
	}
	total := 0
	for _, c := range n.children {
		total += c.recountSubtree()
	}
	n.leafCount = total
	return total
}

// recount refreshes n's leaf count from its children and walks towards the
// root until a count stops changing.
func (n *Node[D]) recount() {
	for node := n; node != nil; node = node.parent {
		count := node.countLeaves()
		if count == node.leafCount {
			return
		}
		node.leafCount = count
	}
}

func (n *Node[D]) countLeaves() int {
	if len(n.children) == 0 {
		return 1
	}
	total := 0
	for _, c := range n.children {
		total += c.leafCount
	}
	return total
}

func (n *Node[D]) insert(nodes []*Node[D], at int) []int {
	n.children = slices.Insert(n.children, at, nodes...)
	indexes := make([]int, len(nodes))
	for i, c := range nodes {
		c.parent = n
		indexes[i] = at + i
	}
	n.recount()
	return indexes
}

// remove detaches the children at sorted (ascending, unique, valid) indexes.
// Children are taken out from the back so the remaining indexes stay valid.
func (n *Node[D]) remove(sorted []int) []*Node[D] {
	removed := make([]*Node[D], len(sorted))
	for k := len(sorted) - 1; k >= 0; k-- {
		i := sorted[k]
		c := n.children[i]
		n.children = slices.Delete(n.children, i, i+1)
		c.parent = nil
		removed[k] = c
	}
	n.recount()
	return removed
}

func (n *Node[D]) checkInsert(nodes []*Node[D], at int) error {
	if at < 0 || at > len(n.children) {
		return fmt.Errorf("insert at %d into %q with %d children: %w", at, n.id, len(n.children), ErrIndexOutOfRange)
	}
	seen := make(map[*Node[D]]bool, len(nodes))
	for _, c := range nodes {
		if c == nil {
			return fmt.Errorf("insert into %q: %w", n.id, ErrNilNode)
		}
		if seen[c] {
			return fmt.Errorf("insert %q into %q: %w", c.id, n.id, ErrDuplicate)
		}
		seen[c] = true
		if c.parent != nil {
			return fmt.Errorf("insert %q into %q: %w", c.id, n.id, ErrAttached)
		}
		if c == n || c.IsAncestorOf(n) {
			return fmt.Errorf("insert %q into %q: %w", c.id, n.id, ErrCycle)
		}
	}
	return nil
}

func (n *Node[D]) checkGroup(indexes []int, wrapper *Node[D]) ([]int, error) {
	if wrapper == nil {
		return nil, fmt.Errorf("group in %q: %w", n.id, ErrNilNode)
	}
	sorted, err := n.checkIndexes(indexes)
	if err != nil {
		return nil, err
	}
	if len(sorted) == 0 {
		return nil, fmt.Errorf("group in %q: %w", n.id, ErrEmptySelection)
	}
	if wrapper.parent != nil {
		return nil, fmt.Errorf("group %q in %q: %w", wrapper.id, n.id, ErrAttached)
	}
	if wrapper == n || wrapper.IsAncestorOf(n) {
		return nil, fmt.Errorf("group %q in %q: %w", wrapper.id, n.id, ErrCycle)
	}
	return sorted, nil
}

// checkIndexes validates indexes against n's children and returns them
// sorted ascending.
func (n *Node[D]) checkIndexes(indexes []int) ([]int, error) {
	sorted := slices.Clone(indexes)
	slices.Sort(sorted)
	for k, i := range sorted {
		if i < 0 || i >= len(n.children) {
			return nil, fmt.Errorf("index %d in %q with %d children: %w", i, n.id, len(n.children), ErrIndexOutOfRange)
		}
		if k > 0 && sorted[k-1] == i {
			return nil, fmt.Errorf("index %d in %q: %w", i, n.id, ErrDuplicate)
		}
	}
	return sorted, nil
}
