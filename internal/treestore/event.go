package treestore

import (
	"slices"

	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/tree"
)

// EventKind identifies a store event.
type EventKind int

const (
	// EventTreeAdded: Tree became a top-level tree.
	EventTreeAdded EventKind = iota + 1
	// EventTreeRemoved: Tree stopped being a top-level tree. It may have
	// been deleted or attached elsewhere; Store.Contains tells which.
	EventTreeRemoved
	// EventTreeChanged: a structural or data change inside a top-level tree.
	EventTreeChanged
	// EventWillApplyMultiple opens a batch of more than one update.
	EventWillApplyMultiple
	// EventDidApplyMultiple closes the batch.
	EventDidApplyMultiple
)

func (k EventKind) String() string {
	switch k {
	case EventTreeAdded:
		return "tree_added"
	case EventTreeRemoved:
		return "tree_removed"
	case EventTreeChanged:
		return "tree_changed"
	case EventWillApplyMultiple:
		return "will_apply_multiple"
	case EventDidApplyMultiple:
		return "did_apply_multiple"
	default:
		return "unknown"
	}
}

// Event is emitted by the Store.
type Event struct {
	Kind EventKind

	// Tree is set for EventTreeAdded and EventTreeRemoved.
	Tree *record.Item

	// Change is set for EventTreeChanged.
	Change tree.Event[record.ItemData]
}

// Observer receives store events.
type Observer interface {
	StoreChanged(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

// StoreChanged calls f(ev).
func (f ObserverFunc) StoreChanged(ev Event) { f(ev) }

type subscription struct {
	observer Observer
}

// Observe registers o for store events. The returned function cancels the
// registration.
func (s *Store) Observe(o Observer) (cancel func()) {
	sub := &subscription{observer: o}
	s.observers = append(s.observers, sub)
	return func() {
		s.observers = slices.DeleteFunc(s.observers, func(x *subscription) bool { return x == sub })
	}
}

func (s *Store) emit(ev Event) {
	for _, sub := range slices.Clone(s.observers) {
		sub.observer.StoreChanged(ev)
	}
}
