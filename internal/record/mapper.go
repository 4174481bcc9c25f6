package record

import (
	"cmp"
	"slices"
)

// Forest is the result of Unflatten.
type Forest struct {
	// Trees are the rebuilt roots in the order their records appeared.
	Trees []*Item

	// Detached are records that name a parent which is not among the input
	// (or whose parent chain loops back to themselves). Their nodes are
	// included in Trees as roots.
	Detached []Record

	// Duplicates are the ids that appeared more than once. Only the first
	// record for each was used.
	Duplicates []string
}

// Flatten returns one record per node of the subtree rooted at node, in
// depth-first pre-order. node's own record carries its current parent and
// index; a root gets position 0.
func Flatten(node *Item) []Record {
	out := make([]Record, 0, node.LeafCount())
	flatten(node, max(node.IndexInParent(), 0), &out)
	return out
}

func flatten(n *Item, position int, out *[]Record) {
	*out = append(*out, recordAt(n, position))
	for i := 0; i < n.ChildCount(); i++ {
		flatten(n.Child(i), i, out)
	}
}

// RecordOf returns the record of a single node.
func RecordOf(n *Item) Record {
	return recordAt(n, max(n.IndexInParent(), 0))
}

func recordAt(n *Item, position int) Record {
	data := n.Data()
	r := Record{
		ID:       n.ID(),
		Text:     clonePtr(data.Text),
		State:    clonePtr(data.State),
		Tag:      clonePtr(data.Tag),
		Position: position,
	}
	if p := n.Parent(); p != nil {
		r.ParentID = Ptr(p.ID())
	}
	return r
}

// Unflatten rebuilds trees from records given in any order.
//
// Children are ordered by their recorded position (stable for ties). A
// record with a duplicate id is ignored after the first one.
func Unflatten(records []Record) Forest {
	var forest Forest
	nodes := make(map[string]*Item, len(records))
	order := make([]Record, 0, len(records))
	for _, r := range records {
		if _, dup := nodes[r.ID]; dup {
			forest.Duplicates = append(forest.Duplicates, r.ID)
			continue
		}
		nodes[r.ID] = NewItem(r.ID, r.Data())
		order = append(order, r)
	}

	children := make(map[string][]Record)
	for _, r := range order {
		if r.ParentID == nil || *r.ParentID == r.ID {
			continue
		}
		if _, ok := nodes[*r.ParentID]; ok {
			children[*r.ParentID] = append(children[*r.ParentID], r)
		}
	}

	for _, r := range order {
		kids := children[r.ID]
		if len(kids) == 0 {
			continue
		}
		slices.SortStableFunc(kids, func(a, b Record) int { return cmp.Compare(a.Position, b.Position) })
		parent := nodes[r.ID]
		for _, k := range kids {
			// A refused insert means the records form a loop; the child
			// then stays a root and is reported as detached.
			_ = parent.Insert([]*Item{nodes[k.ID]}, parent.ChildCount())
		}
	}

	for _, r := range order {
		n := nodes[r.ID]
		if !n.IsRoot() {
			continue
		}
		forest.Trees = append(forest.Trees, n)
		if r.ParentID != nil {
			forest.Detached = append(forest.Detached, r)
		}
	}
	return forest
}

// Largest returns the tree with the most leaves, the first one on ties, or
// nil when trees is empty.
func Largest(trees []*Item) *Item {
	var best *Item
	for _, t := range trees {
		if best == nil || t.LeafCount() > best.LeafCount() {
			best = t
		}
	}
	return best
}
