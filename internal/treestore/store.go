package treestore

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/outline/internal/index"
	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/tree"
)

var (
	// ErrUnknownID is returned for ids the store does not know.
	ErrUnknownID = errors.New("unknown item id")

	// ErrDuplicateID is returned when an added tree reuses a known id.
	ErrDuplicateID = errors.New("item id already registered")

	// ErrNotRoot is returned when Add is given a node that has a parent.
	ErrNotRoot = errors.New("node is not a root")
)

// Store is the authoritative forest.
type Store struct {
	roots      []*record.Item
	rootCancel map[*record.Item]func() // cancels the store's observation of a root
	nodes      *index.Map[record.ItemData]
	orphans    *index.Orphanage
	observers  []*subscription
	logger     *slog.Logger

	// mutating is non-zero while the store edits trees itself; tree events
	// raised meanwhile are forwarded without touching the index.
	mutating int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		rootCancel: make(map[*record.Item]func()),
		nodes:      index.NewMap[record.ItemData](),
		orphans:    index.NewOrphanage(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Roots returns the top-level trees.
func (s *Store) Roots() []*record.Item { return slices.Clone(s.roots) }

// Node returns the registered node with the given id, attached or orphaned.
func (s *Store) Node(id string) (*record.Item, bool) { return s.nodes.Get(id) }

// Contains reports whether id is registered.
func (s *Store) Contains(id string) bool { return s.nodes.Contains(id) }

// Len returns the number of registered nodes.
func (s *Store) Len() int { return s.nodes.Len() }

// OrphanCount returns the number of buffered orphan updates.
func (s *Store) OrphanCount() int { return s.orphans.Len() }

// IsOrphan reports whether id is waiting for its parent.
func (s *Store) IsOrphan(id string) bool {
	_, ok := s.orphans.ParentOf(id)
	return ok
}

// Records flattens every top-level tree. Orphans are not included.
func (s *Store) Records() []record.Record {
	var out []record.Record
	for _, root := range s.roots {
		out = append(out, record.Flatten(root)...)
	}
	return out
}

// Add registers node and its subtree as a new top-level tree and adopts any
// orphans waiting for ids in that subtree.
func (s *Store) Add(node *record.Item) error {
	if node == nil {
		return fmt.Errorf("add tree: %w", tree.ErrNilNode)
	}
	if !node.IsRoot() {
		return fmt.Errorf("add tree %q: %w", node.ID(), ErrNotRoot)
	}
	var dup string
	node.Walk(func(n *record.Item) bool {
		if dup == "" && s.nodes.Contains(n.ID()) {
			dup = n.ID()
		}
		return dup == ""
	})
	if dup != "" {
		return fmt.Errorf("add tree %q: %q: %w", node.ID(), dup, ErrDuplicateID)
	}

	s.mutating++
	defer func() { s.mutating-- }()

	s.nodes.AddTree(node)
	s.addRoot(node)
	s.adoptTree(node)
	return nil
}

// Relocate moves a registered item under parentID (nil: top level) at
// position. The item keeps its identity and records, unlike a remove
// followed by an insert.
func (s *Store) Relocate(id string, parentID *string, position int) error {
	node, ok := s.nodes.Get(id)
	if !ok {
		return fmt.Errorf("relocate %q: %w", id, ErrUnknownID)
	}
	if parentID != nil {
		parent, ok := s.nodes.Get(*parentID)
		if !ok {
			return fmt.Errorf("relocate %q to %q: %w", id, *parentID, ErrUnknownID)
		}
		if parent == node || node.IsAncestorOf(parent) {
			return fmt.Errorf("relocate %q to %q: %w", id, *parentID, tree.ErrCycle)
		}
	}
	s.Apply([]record.Update{{ID: id, Data: node.Data(), ParentID: parentID, Position: position}})
	return nil
}

// Apply reconciles updates against the forest.
//
// The batch is applied in ascending position order. Known ids are updated
// in place and only moved when their parent or index actually differs.
// Unknown ids create nodes. An update naming an unknown parent is buffered
// until that parent registers. Batches of more than one update are
// bracketed by EventWillApplyMultiple and EventDidApplyMultiple.
func (s *Store) Apply(updates []record.Update) {
	if len(updates) == 0 {
		return
	}
	sorted := slices.Clone(updates)
	slices.SortStableFunc(sorted, func(a, b record.Update) int { return cmp.Compare(a.Position, b.Position) })

	multiple := len(sorted) > 1
	if multiple {
		s.emit(Event{Kind: EventWillApplyMultiple})
	}
	for _, u := range sorted {
		s.apply(u)
	}
	if multiple {
		s.emit(Event{Kind: EventDidApplyMultiple})
	}
}

func (s *Store) apply(u record.Update) {
	if u.ID == "" {
		s.logger.Warn("update skipped: empty id")
		return
	}
	if u.ParentID != nil && *u.ParentID == u.ID {
		s.logger.Warn("update skipped: item is its own parent", "id", u.ID)
		return
	}
	u.Position = max(u.Position, 0)

	s.mutating++
	defer func() { s.mutating-- }()

	node, known := s.nodes.Get(u.ID)
	if known {
		if !node.Data().Equal(u.Data) {
			node.SetData(u.Data)
		}
		if !s.wouldChange(node, u) {
			return
		}
	} else {
		node = record.NewItem(u.ID, u.Data)
		s.nodes.Add(node)
	}

	s.place(node, u)
	if !known {
		s.adopt(node)
	}
}

// wouldChange reports whether u moves node to another parent or index.
func (s *Store) wouldChange(node *record.Item, u record.Update) bool {
	if _, orphan := s.orphans.ParentOf(node.ID()); orphan {
		return true
	}
	parent := node.Parent()
	if parent == nil {
		return u.ParentID != nil || !s.isRoot(node)
	}
	if u.ParentID == nil || *u.ParentID != parent.ID() {
		return true
	}
	return min(u.Position, parent.ChildCount()-1) != node.IndexInParent()
}

// place resolves the parent linkage of node according to u.
func (s *Store) place(node *record.Item, u record.Update) {
	if u.ParentID == nil {
		s.orphans.RemoveOrphan(node.ID())
		if s.isRoot(node) {
			return
		}
		s.detach(node)
		s.addRoot(node)
		return
	}

	parent, ok := s.nodes.Get(*u.ParentID)
	if !ok {
		s.detach(node)
		s.orphans.Update(u, *u.ParentID)
		s.logger.Debug("orphan buffered", "id", node.ID(), "parent", *u.ParentID)
		return
	}
	if parent == node || node.IsAncestorOf(parent) {
		s.logger.Warn("update skipped: would create a cycle", "id", node.ID(), "parent", parent.ID())
		return
	}

	if node.Parent() == parent {
		s.logSkipped("move", node.ID(), parent.Move(node.IndexInParent(), min(u.Position, parent.ChildCount()-1)))
		return
	}
	s.orphans.RemoveOrphan(node.ID())
	s.detach(node)
	s.logSkipped("insert", node.ID(), parent.Insert([]*record.Item{node}, min(u.Position, parent.ChildCount())))
}

// adopt attaches every orphan waiting for parent, in position order.
func (s *Store) adopt(parent *record.Item) {
	waiting := s.orphans.Orphans(parent.ID())
	if len(waiting) == 0 {
		return
	}
	s.orphans.RemoveOrphans(parent.ID())

	for _, u := range waiting {
		child, ok := s.nodes.Get(u.ID)
		if !ok {
			continue
		}
		if child == parent || child.IsAncestorOf(parent) {
			// The records loop; keep the child visible as a tree of its own.
			s.logger.Warn("orphan promoted to root: parent chain loops", "id", child.ID(), "parent", parent.ID())
			s.addRoot(child)
			continue
		}
		s.logger.Debug("orphan adopted", "id", child.ID(), "parent", parent.ID())
		s.logSkipped("insert", child.ID(), parent.Insert([]*record.Item{child}, min(u.Position, parent.ChildCount())))
	}
}

// adoptTree runs adopt for every node of the subtree rooted at n.
func (s *Store) adoptTree(n *record.Item) {
	var all []*record.Item
	n.Walk(func(c *record.Item) bool {
		all = append(all, c)
		return true
	})
	for _, c := range all {
		s.adopt(c)
	}
}

// DeleteItems unregisters each id and its subtree and removes it from its
// parent, from the top-level trees, or from the orphanage.
func (s *Store) DeleteItems(ids []string) {
	multiple := len(ids) > 1
	if multiple {
		s.emit(Event{Kind: EventWillApplyMultiple})
	}
	for _, id := range ids {
		s.delete(id)
	}
	if multiple {
		s.emit(Event{Kind: EventDidApplyMultiple})
	}
}

func (s *Store) delete(id string) {
	node, ok := s.nodes.Get(id)
	if !ok {
		s.logger.Debug("delete skipped: unknown id", "id", id)
		return
	}

	s.mutating++
	defer func() { s.mutating-- }()

	s.nodes.RemoveTree(node)
	switch {
	case s.orphans.RemoveOrphan(id):
	case s.isRoot(node):
		s.removeRoot(node)
	case node.Parent() != nil:
		_, err := node.Parent().Remove([]int{node.IndexInParent()})
		s.logSkipped("remove", id, err)
	}
}

// TreeChanged receives events from the store's top-level trees.
func (s *Store) TreeChanged(ev tree.Event[record.ItemData]) {
	var registered []*record.Item
	if s.mutating == 0 {
		registered = s.reindex(ev)
	}
	s.emit(Event{Kind: EventTreeChanged, Change: ev})

	if len(registered) == 0 {
		return
	}
	s.mutating++
	defer func() { s.mutating-- }()
	for _, n := range registered {
		s.adoptTree(n)
	}
}

// reindex keeps the index in step with edits made through the tree API and
// returns the newly attached subtrees.
func (s *Store) reindex(ev tree.Event[record.ItemData]) []*record.Item {
	switch ev.Kind {
	case tree.EventInserted:
		for _, n := range ev.Nodes {
			if s.isRoot(n) {
				s.mutating++
				s.removeRoot(n)
				s.mutating--
			}
			s.orphans.RemoveOrphan(n.ID())
			s.nodes.AddTree(n)
		}
		return ev.Nodes
	case tree.EventGrouped:
		s.nodes.AddTree(ev.Node)
		return []*record.Item{ev.Node}
	case tree.EventRemoved:
		for _, n := range ev.Nodes {
			s.nodes.RemoveTree(n)
		}
	}
	return nil
}

// logSkipped logs a tree edit the tree refused.
func (s *Store) logSkipped(op, id string, err error) {
	if err != nil {
		s.logger.Warn("tree "+op+" skipped", "id", id, "error", err)
	}
}

// detach takes node out of its parent or out of the top-level trees.
func (s *Store) detach(node *record.Item) {
	if p := node.Parent(); p != nil {
		_, err := p.Remove([]int{node.IndexInParent()})
		s.logSkipped("remove", node.ID(), err)
		return
	}
	if s.isRoot(node) {
		s.removeRoot(node)
	}
}

func (s *Store) isRoot(node *record.Item) bool {
	_, ok := s.rootCancel[node]
	return ok
}

func (s *Store) addRoot(node *record.Item) {
	s.roots = append(s.roots, node)
	s.rootCancel[node] = node.Observe(s)
	s.emit(Event{Kind: EventTreeAdded, Tree: node})
}

func (s *Store) removeRoot(node *record.Item) {
	if cancel, ok := s.rootCancel[node]; ok {
		cancel()
		delete(s.rootCancel, node)
	}
	s.roots = slices.DeleteFunc(s.roots, func(r *record.Item) bool { return r == node })
	s.emit(Event{Kind: EventTreeRemoved, Tree: node})
}
