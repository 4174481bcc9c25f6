package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/outline/internal/record"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Replica  string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Replica != "" {
		fmt.Fprintf(&buf, " (%s)", e.Replica)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s\n", e.Expected, e.Actual)
	return buf.String()
}

// snapshot is what assertions look at in one replica. It is taken inside the
// replica's task loop.
type snapshot struct {
	name    string
	outline string
	records []record.Record
	cached  map[string]record.Record
	indexed map[string]int // id → leaf count
	orphans int
	pending int
}

func (r *replica) snapshot(ctx context.Context) (*snapshot, error) {
	s := &snapshot{
		name:    r.name,
		cached:  make(map[string]record.Record),
		indexed: make(map[string]int),
	}
	err := r.engine.Do(ctx, func() {
		trees := r.engine.Trees()
		s.outline = record.Render(trees.Roots())
		s.records = r.engine.Records().All()
		for _, rec := range s.records {
			s.cached[rec.ID] = rec
			if n, ok := trees.Node(rec.ID); ok {
				s.indexed[rec.ID] = n.LeafCount()
			}
		}
		for _, root := range trees.Roots() {
			root.Walk(func(n *record.Item) bool {
				s.indexed[n.ID()] = n.LeafCount()
				return true
			})
		}
		s.orphans = trees.OrphanCount()
	})
	if err != nil {
		return nil, err
	}
	entries, err := r.store.Pending(ctx)
	if err != nil {
		return nil, err
	}
	s.pending = len(entries)
	return s, nil
}

// evaluate checks every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion) []string {
	snaps := make(map[string]*snapshot, len(h.order))
	for _, name := range h.order {
		s, err := h.replicas[name].snapshot(ctx)
		if err != nil {
			return []string{fmt.Sprintf("snapshot %s: %v", name, err)}
		}
		snaps[name] = s
	}
	var errs []string
	for _, a := range assertions {
		name := a.Replica
		if name == "" {
			name = h.order[0]
		}
		if err := h.check(a, snaps[name], snaps); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func (h *Harness) check(a Assertion, s *snapshot, all map[string]*snapshot) error {
	fail := func(expected, actual string) error {
		replica := s.name
		if a.Type == AssertConverged || a.Type == AssertServer || a.Type == AssertServerCount {
			replica = ""
		}
		return &AssertionError{Type: a.Type, Replica: replica, Expected: expected, Actual: actual}
	}

	switch a.Type {
	case AssertOutline:
		if strings.TrimSpace(s.outline) != strings.TrimSpace(a.Expect) {
			return fail("\n"+a.Expect, "\n"+s.outline)
		}
	case AssertConverged:
		first := all[h.order[0]]
		for _, name := range h.order[1:] {
			other := all[name]
			if other.outline != first.outline {
				return fail(fmt.Sprintf("%s renders like %s:\n%s", name, first.name, first.outline), "\n"+other.outline)
			}
			if !sameRecords(first.records, other.records) {
				return fail(fmt.Sprintf("%s caches the records of %s", name, first.name), "records differ")
			}
		}
	case AssertRecord:
		got, ok := s.cached[a.ID]
		if !ok {
			return fail(fmt.Sprintf("record %q", a.ID), "not cached")
		}
		if msg := a.Fields.mismatch(got); msg != "" {
			return fail(fmt.Sprintf("record %q with %s", a.ID, msg), string(got.Canonical()))
		}
	case AssertAbsent:
		_, cached := s.cached[a.ID]
		_, indexed := s.indexed[a.ID]
		if cached || indexed {
			return fail(fmt.Sprintf("%q absent", a.ID), fmt.Sprintf("cached=%t indexed=%t", cached, indexed))
		}
	case AssertOrphans:
		if s.orphans != *a.Count {
			return fail(fmt.Sprintf("%d orphans", *a.Count), fmt.Sprintf("%d", s.orphans))
		}
	case AssertPending:
		if s.pending != *a.Count {
			return fail(fmt.Sprintf("%d pending outbox entries", *a.Count), fmt.Sprintf("%d", s.pending))
		}
	case AssertLeafCount:
		got, ok := s.indexed[a.ID]
		if !ok {
			return fail(fmt.Sprintf("item %q with %d leaves", a.ID, *a.Count), "not in the tree")
		}
		if got != *a.Count {
			return fail(fmt.Sprintf("item %q with %d leaves", a.ID, *a.Count), fmt.Sprintf("%d", got))
		}
	case AssertServer:
		for _, r := range h.server.Records() {
			if r.ID != a.ID {
				continue
			}
			if msg := a.Fields.mismatch(r); msg != "" {
				return fail(fmt.Sprintf("server record %q with %s", a.ID, msg), string(r.Canonical()))
			}
			return nil
		}
		return fail(fmt.Sprintf("server record %q", a.ID), "not on the server")
	case AssertServerCount:
		if n := len(h.server.Records()); n != *a.Count {
			return fail(fmt.Sprintf("%d server records", *a.Count), fmt.Sprintf("%d", n))
		}
	}
	return nil
}

// mismatch describes the first field of r that differs from f, or "".
func (f *Fields) mismatch(r record.Record) string {
	if f.Text != nil && (r.Text == nil || *r.Text != *f.Text) {
		return fmt.Sprintf("text %q", *f.Text)
	}
	if f.Parent != nil {
		parent := ""
		if r.ParentID != nil {
			parent = *r.ParentID
		}
		if parent != *f.Parent {
			return fmt.Sprintf("parent %q", *f.Parent)
		}
	}
	if f.Position != nil && r.Position != *f.Position {
		return fmt.Sprintf("position %d", *f.Position)
	}
	if f.State != nil && (r.State == nil || r.State.String() != *f.State) {
		return fmt.Sprintf("state %q", *f.State)
	}
	if f.Tag != nil && (r.Tag == nil || r.Tag.String() != *f.Tag) {
		return fmt.Sprintf("tag %q", *f.Tag)
	}
	return ""
}

func sameRecords(a, b []record.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
