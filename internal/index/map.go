package index

import "github.com/roach88/outline/internal/tree"

// Map is an id → node index.
type Map[D any] struct {
	nodes map[string]*tree.Node[D]
}

// NewMap creates an empty index.
func NewMap[D any]() *Map[D] {
	return &Map[D]{nodes: make(map[string]*tree.Node[D])}
}

// Add indexes n under its id, replacing any previous entry.
func (m *Map[D]) Add(n *tree.Node[D]) { m.nodes[n.ID()] = n }

// AddTree indexes n and all of its descendants.
func (m *Map[D]) AddTree(n *tree.Node[D]) {
	n.Walk(func(c *tree.Node[D]) bool {
		m.nodes[c.ID()] = c
		return true
	})
}

// Remove drops id from the index.
func (m *Map[D]) Remove(id string) { delete(m.nodes, id) }

// RemoveTree drops n and all of its descendants and returns their ids in
// pre-order.
func (m *Map[D]) RemoveTree(n *tree.Node[D]) []string {
	var ids []string
	n.Walk(func(c *tree.Node[D]) bool {
		delete(m.nodes, c.ID())
		ids = append(ids, c.ID())
		return true
	})
	return ids
}

// Contains reports whether id is indexed.
func (m *Map[D]) Contains(id string) bool {
	_, ok := m.nodes[id]
	return ok
}

// Get returns the node indexed under id.
func (m *Map[D]) Get(id string) (*tree.Node[D], bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// Len returns the number of indexed nodes.
func (m *Map[D]) Len() int { return len(m.nodes) }
