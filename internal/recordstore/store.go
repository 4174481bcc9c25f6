package recordstore

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/roach88/outline/internal/record"
)

// Origin identifies the component that produced an edit.
type Origin int

const (
	// OriginController: translated from tree events by the controller.
	OriginController Origin = iota + 1
	// OriginFileCache: loaded from the local durable store.
	OriginFileCache
	// OriginRemote: fetched from the remote database.
	OriginRemote
	// OriginUser: written directly by a host, e.g. an import.
	OriginUser
)

func (o Origin) String() string {
	switch o {
	case OriginController:
		return "controller"
	case OriginFileCache:
		return "file_cache"
	case OriginRemote:
		return "remote"
	case OriginUser:
		return "user"
	default:
		return "unknown"
	}
}

// EditKind says whether an Edit carries saved records or deleted ids.
type EditKind int

const (
	EditModified EditKind = iota + 1
	EditDeleted
)

func (k EditKind) String() string {
	switch k {
	case EditModified:
		return "modified"
	case EditDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Edit is one novel change to the cache.
type Edit struct {
	Kind   EditKind
	Author Origin

	// Records are the new or changed records of an EditModified.
	Records []record.Record

	// IDs are the removed ids of an EditDeleted.
	IDs []string
}

// Observer receives cache edits.
type Observer interface {
	RecordsChanged(edit Edit)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(edit Edit)

// RecordsChanged calls f(edit).
func (f ObserverFunc) RecordsChanged(edit Edit) { f(edit) }

type subscription struct {
	observer Observer
}

// Store is the record cache. It is not safe for concurrent use.
type Store struct {
	records   map[string]record.Record
	observers []*subscription
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates an empty cache.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]record.Record),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe registers o for edits. The returned function cancels the
// registration.
func (s *Store) Observe(o Observer) (cancel func()) {
	sub := &subscription{observer: o}
	s.observers = append(s.observers, sub)
	return func() {
		s.observers = slices.DeleteFunc(s.observers, func(x *subscription) bool { return x == sub })
	}
}

// Save caches every record that is new or differs from the cached copy and
// returns those records. One EditModified is emitted when the result is not
// empty. Text is NFC-normalised before comparison. Records with an empty id
// are skipped.
func (s *Store) Save(records []record.Record, author Origin) []record.Record {
	var changed []record.Record
	for _, r := range records {
		if r.ID == "" {
			s.logger.Warn("record skipped: empty id", "author", author)
			continue
		}
		r = r.Normalize()
		if old, ok := s.records[r.ID]; ok && old.Equal(r) {
			continue
		}
		s.records[r.ID] = r
		// A later copy of the same id in this batch replaces the earlier one.
		changed = slices.DeleteFunc(changed, func(c record.Record) bool { return c.ID == r.ID })
		changed = append(changed, r)
	}
	if len(changed) == 0 {
		return nil
	}
	s.logger.Debug("records modified", "author", author, "count", len(changed))
	s.emit(Edit{Kind: EditModified, Author: author, Records: slices.Clone(changed)})
	return changed
}

// Delete removes every cached id and returns the ids that were present. One
// EditDeleted is emitted when the result is not empty.
func (s *Store) Delete(ids []string, author Origin) []string {
	var removed []string
	for _, id := range ids {
		if _, ok := s.records[id]; !ok {
			continue
		}
		delete(s.records, id)
		removed = append(removed, id)
	}
	if len(removed) == 0 {
		return nil
	}
	s.logger.Debug("records deleted", "author", author, "count", len(removed))
	s.emit(Edit{Kind: EditDeleted, Author: author, IDs: slices.Clone(removed)})
	return removed
}

// Record returns the cached record for id.
func (s *Store) Record(id string) (record.Record, bool) {
	r, ok := s.records[id]
	return r, ok
}

// All returns every cached record ordered by id.
func (s *Store) All() []record.Record {
	out := make([]record.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b record.Record) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of cached records.
func (s *Store) Len() int { return len(s.records) }

func (s *Store) emit(edit Edit) {
	for _, sub := range slices.Clone(s.observers) {
		sub.observer.RecordsChanged(edit)
	}
}
