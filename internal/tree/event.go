package tree

import "slices"

// EventKind identifies the mutation an Event describes.
type EventKind int

const (
	// EventInserted: Nodes were inserted into Parent at Indexes.
	EventInserted EventKind = iota + 1
	// EventRemoved: Nodes were removed from Parent; Indexes are their former
	// positions in ascending order.
	EventRemoved
	// EventMoved: the single node in Nodes moved within Parent from From to To.
	EventMoved
	// EventGrouped: the children of Parent at Indexes were wrapped into Node,
	// which now sits in Parent at To.
	EventGrouped
	// EventDataChanged: Node's data was replaced.
	EventDataChanged
)

func (k EventKind) String() string {
	switch k {
	case EventInserted:
		return "inserted"
	case EventRemoved:
		return "removed"
	case EventMoved:
		return "moved"
	case EventGrouped:
		return "grouped"
	case EventDataChanged:
		return "data_changed"
	default:
		return "unknown"
	}
}

// Event describes one mutation of a tree.
type Event[D any] struct {
	Kind EventKind

	// Parent is the node whose children changed. Nil for EventDataChanged.
	Parent *Node[D]

	// Node is the node whose data changed, or the wrapper of EventGrouped.
	Node *Node[D]

	// Nodes are the inserted, removed, moved or grouped nodes.
	Nodes []*Node[D]

	// Indexes are child positions in Parent, ascending.
	Indexes []int

	From int
	To   int
}

// Observer receives tree events.
type Observer[D any] interface {
	TreeChanged(ev Event[D])
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc[D any] func(ev Event[D])

// TreeChanged calls f(ev).
func (f ObserverFunc[D]) TreeChanged(ev Event[D]) { f(ev) }

type subscription[D any] struct {
	observer Observer[D]
}

// Observe registers o for events of n and its descendants.
// The returned function cancels the registration; calling it twice is harmless.
func (n *Node[D]) Observe(o Observer[D]) (cancel func()) {
	sub := &subscription[D]{observer: o}
	n.observers = append(n.observers, sub)
	return func() {
		n.observers = slices.DeleteFunc(n.observers, func(s *subscription[D]) bool {
			return s == sub
		})
	}
}

// emit delivers ev to the observers of n and of every ancestor of n.
// Observer lists are copied first so handlers may cancel or add
// registrations while the event is in flight.
func (n *Node[D]) emit(ev Event[D]) {
	for node := n; node != nil; node = node.parent {
		for _, sub := range slices.Clone(node.observers) {
			sub.observer.TreeChanged(ev)
		}
	}
}
