package treestore

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/tree"
)

func newStore() *Store {
	return New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// upd builds an update; an empty parent means top level.
func upd(id, parent string, position int, text string) record.Update {
	u := record.Update{ID: id, Position: position, Data: record.ItemData{Text: record.Ptr(text)}}
	if parent != "" {
		u.ParentID = record.Ptr(parent)
	}
	return u
}

func childIDs(n *record.Item) []string {
	ids := make([]string, 0, n.ChildCount())
	for _, c := range n.Children() {
		ids = append(ids, c.ID())
	}
	return ids
}

func rootIDs(s *Store) []string {
	var ids []string
	for _, r := range s.Roots() {
		ids = append(ids, r.ID())
	}
	return ids
}

func node(t *testing.T, s *Store, id string) *record.Item {
	t.Helper()
	n, ok := s.Node(id)
	require.True(t, ok, "node %q not registered", id)
	return n
}

type recorder struct {
	events []Event
}

func (r *recorder) StoreChanged(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func TestApply_EndToEndWithLateParent(t *testing.T) {
	s := newStore()

	s.Apply([]record.Update{upd("root", "", 0, "Home")})
	s.Apply([]record.Update{upd("a", "root", 0, "Task A")})
	s.Apply([]record.Update{upd("b", "missingParent", 0, "Task B")})
	assert.Equal(t, 1, s.OrphanCount())
	assert.True(t, s.IsOrphan("b"))

	s.Apply([]record.Update{upd("missingParent", "root", 1, "Group")})

	root := node(t, s, "root")
	assert.Equal(t, []string{"root"}, rootIDs(s))
	assert.Equal(t, []string{"a", "missingParent"}, childIDs(root))
	assert.Equal(t, []string{"b"}, childIDs(node(t, s, "missingParent")))
	assert.Equal(t, 0, s.OrphanCount())
	assert.Equal(t, 2, root.LeafCount())
	assert.Equal(t, "Group", node(t, s, "missingParent").Data().TextValue())
}

func TestApply_OrphanArrivalOrderDoesNotMatter(t *testing.T) {
	t.Run("same batch", func(t *testing.T) {
		s := newStore()
		s.Apply([]record.Update{upd("B", "A", 0, "b"), upd("A", "", 0, "a")})

		a := node(t, s, "A")
		require.Equal(t, 1, a.ChildCount())
		assert.Equal(t, "B", a.Child(0).ID())
		assert.Equal(t, 0, s.OrphanCount())
		assert.Equal(t, []string{"A"}, rootIDs(s))
	})

	t.Run("separate batches", func(t *testing.T) {
		s := newStore()
		s.Apply([]record.Update{upd("B", "A", 0, "b")})
		assert.Empty(t, s.Roots())
		s.Apply([]record.Update{upd("A", "", 0, "a")})

		assert.Equal(t, []string{"B"}, childIDs(node(t, s, "A")))
		assert.Equal(t, 0, s.OrphanCount())
	})

	t.Run("orphans adopted in position order", func(t *testing.T) {
		s := newStore()
		s.Apply([]record.Update{upd("c2", "p", 2, "")})
		s.Apply([]record.Update{upd("c0", "p", 0, "")})
		s.Apply([]record.Update{upd("c1", "p", 1, "")})
		s.Apply([]record.Update{upd("p", "", 0, "")})

		assert.Equal(t, []string{"c0", "c1", "c2"}, childIDs(node(t, s, "p")))
	})

	t.Run("grandchildren arrive first", func(t *testing.T) {
		s := newStore()
		s.Apply([]record.Update{upd("leaf", "mid", 0, "")})
		s.Apply([]record.Update{upd("mid", "top", 0, "")})
		assert.Equal(t, 1, s.OrphanCount(), "leaf is adopted by mid, mid waits for top")
		s.Apply([]record.Update{upd("top", "", 0, "")})

		top := node(t, s, "top")
		assert.Equal(t, []string{"mid"}, childIDs(top))
		assert.Equal(t, []string{"leaf"}, childIDs(node(t, s, "mid")))
		assert.Equal(t, 1, top.LeafCount())
	})
}

func TestApply_InsertShiftsFollowers(t *testing.T) {
	s := newStore()
	s.Apply([]record.Update{
		upd("p", "", 0, ""),
		upd("c0", "p", 0, ""),
		upd("c1", "p", 1, ""),
		upd("c2", "p", 2, ""),
		upd("c3", "p", 3, ""),
	})
	require.Equal(t, []string{"c0", "c1", "c2", "c3"}, childIDs(node(t, s, "p")))

	s.Apply([]record.Update{upd("x", "p", 2, "")})

	records := record.Flatten(node(t, s, "p"))
	got := make(map[string]int)
	var order []string
	for _, r := range records[1:] {
		got[r.ID] = r.Position
		order = append(order, r.ID)
	}
	assert.Equal(t, []string{"c0", "c1", "x", "c2", "c3"}, order)
	assert.Equal(t, map[string]int{"c0": 0, "c1": 1, "x": 2, "c2": 3, "c3": 4}, got)
}

func TestApply_ClampsPositions(t *testing.T) {
	s := newStore()
	s.Apply([]record.Update{upd("p", "", 0, ""), upd("a", "p", 0, "")})

	s.Apply([]record.Update{upd("far", "p", 99, "")})
	s.Apply([]record.Update{upd("neg", "p", -4, "")})

	assert.Equal(t, []string{"neg", "a", "far"}, childIDs(node(t, s, "p")))
}

func TestApply_KnownItems(t *testing.T) {
	setup := func() (*Store, *recorder) {
		s := newStore()
		s.Apply([]record.Update{
			upd("root", "", 0, "Home"),
			upd("a", "root", 0, "A"),
			upd("b", "root", 1, "B"),
			upd("c", "root", 2, "C"),
		})
		rec := &recorder{}
		s.Observe(rec)
		return s, rec
	}

	t.Run("identical update is silent", func(t *testing.T) {
		s, rec := setup()
		s.Apply([]record.Update{upd("b", "root", 1, "B")})
		assert.Empty(t, rec.events)
		assert.Equal(t, []string{"a", "b", "c"}, childIDs(node(t, s, "root")))
	})

	t.Run("data change only", func(t *testing.T) {
		s, rec := setup()
		s.Apply([]record.Update{upd("b", "root", 1, "B2")})

		require.Len(t, rec.events, 1)
		assert.Equal(t, EventTreeChanged, rec.events[0].Kind)
		assert.Equal(t, tree.EventDataChanged, rec.events[0].Change.Kind)
		assert.Equal(t, "B2", node(t, s, "b").Data().TextValue())
	})

	t.Run("move within parent", func(t *testing.T) {
		s, rec := setup()
		s.Apply([]record.Update{upd("a", "root", 2, "A")})

		assert.Equal(t, []string{"b", "c", "a"}, childIDs(node(t, s, "root")))
		require.Len(t, rec.events, 1)
		assert.Equal(t, tree.EventMoved, rec.events[0].Change.Kind)
		assert.Equal(t, 0, rec.events[0].Change.From)
		assert.Equal(t, 2, rec.events[0].Change.To)
	})

	t.Run("reparent", func(t *testing.T) {
		s, _ := setup()
		s.Apply([]record.Update{upd("c", "a", 0, "C")})

		assert.Equal(t, []string{"a", "b"}, childIDs(node(t, s, "root")))
		assert.Equal(t, []string{"c"}, childIDs(node(t, s, "a")))
	})

	t.Run("promote to root", func(t *testing.T) {
		s, rec := setup()
		s.Apply([]record.Update{upd("b", "", 0, "B")})

		assert.Equal(t, []string{"root", "b"}, rootIDs(s))
		assert.Equal(t, []string{"a", "c"}, childIDs(node(t, s, "root")))
		assert.Contains(t, rec.kinds(), EventTreeAdded)
	})

	t.Run("move under unknown parent buffers the item", func(t *testing.T) {
		s, _ := setup()
		s.Apply([]record.Update{upd("a", "later", 0, "A")})

		assert.Equal(t, []string{"b", "c"}, childIDs(node(t, s, "root")))
		assert.True(t, s.IsOrphan("a"))
		assert.True(t, s.Contains("a"))

		s.Apply([]record.Update{upd("later", "root", 0, "")})
		assert.Equal(t, []string{"later", "b", "c"}, childIDs(node(t, s, "root")))
		assert.Equal(t, []string{"a"}, childIDs(node(t, s, "later")))
	})
}

func TestApply_BatchBrackets(t *testing.T) {
	s := newStore()
	rec := &recorder{}
	s.Observe(rec)

	s.Apply([]record.Update{upd("a", "", 0, "")})
	assert.Equal(t, []EventKind{EventTreeAdded}, rec.kinds())

	rec.events = nil
	s.Apply([]record.Update{upd("b", "a", 0, ""), upd("c", "a", 1, "")})
	kinds := rec.kinds()
	require.GreaterOrEqual(t, len(kinds), 2)
	assert.Equal(t, EventWillApplyMultiple, kinds[0])
	assert.Equal(t, EventDidApplyMultiple, kinds[len(kinds)-1])
	assert.Equal(t, []EventKind{EventWillApplyMultiple, EventTreeChanged, EventTreeChanged, EventDidApplyMultiple}, kinds)

	rec.events = nil
	s.Apply(nil)
	assert.Empty(t, rec.events)
}

func TestApply_MalformedInput(t *testing.T) {
	s := newStore()
	s.Apply([]record.Update{upd("root", "", 0, ""), upd("a", "root", 0, "")})

	s.Apply([]record.Update{upd("", "root", 0, "no id")})
	s.Apply([]record.Update{upd("self", "self", 0, "")})
	assert.False(t, s.Contains("self"))
	assert.Equal(t, 2, s.Len())

	// root under its own child would close a cycle.
	s.Apply([]record.Update{upd("root", "a", 0, "")})
	assert.Equal(t, []string{"root"}, rootIDs(s))
	assert.Equal(t, []string{"a"}, childIDs(node(t, s, "root")))
}

func TestApply_WarnsThroughItsOwnLogger(t *testing.T) {
	var global, own bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&global, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	s := New(WithLogger(slog.New(slog.NewTextHandler(&own, nil))))
	s.Apply([]record.Update{upd("root", "", 0, ""), upd("a", "root", 0, "")})
	s.Apply([]record.Update{upd("root", "a", 0, "")})

	assert.Contains(t, own.String(), "would create a cycle")
	assert.Empty(t, global.String())
}

func TestApply_LoopingOrphansStayVisible(t *testing.T) {
	s := newStore()
	s.Apply([]record.Update{upd("x", "y", 0, "")})
	s.Apply([]record.Update{upd("y", "x", 0, "")})

	assert.Equal(t, []string{"x"}, rootIDs(s))
	assert.Equal(t, []string{"y"}, childIDs(node(t, s, "x")))
	assert.Equal(t, 0, s.OrphanCount())
}

func TestDeleteItems(t *testing.T) {
	build := func() *Store {
		s := newStore()
		s.Apply([]record.Update{
			upd("root", "", 0, ""),
			upd("g", "root", 0, ""),
			upd("g1", "g", 0, ""),
			upd("g2", "g", 1, ""),
			upd("leaf", "root", 1, ""),
		})
		return s
	}

	t.Run("non-leaf cascades", func(t *testing.T) {
		s := build()
		s.DeleteItems([]string{"g"})

		for _, id := range []string{"g", "g1", "g2"} {
			assert.False(t, s.Contains(id), id)
		}
		root := node(t, s, "root")
		assert.Equal(t, []string{"leaf"}, childIDs(root))
		assert.Equal(t, 1, root.LeafCount())
	})

	t.Run("root", func(t *testing.T) {
		s := build()
		rec := &recorder{}
		s.Observe(rec)
		s.DeleteItems([]string{"root"})

		assert.Empty(t, s.Roots())
		assert.Equal(t, 0, s.Len())
		assert.Equal(t, []EventKind{EventTreeRemoved}, rec.kinds())
	})

	t.Run("buffered orphan", func(t *testing.T) {
		s := build()
		s.Apply([]record.Update{upd("o", "missing", 0, "")})
		s.DeleteItems([]string{"o"})

		assert.False(t, s.Contains("o"))
		assert.Equal(t, 0, s.OrphanCount())

		s.Apply([]record.Update{upd("missing", "", 0, "")})
		assert.Equal(t, 0, node(t, s, "missing").ChildCount())
	})

	t.Run("unknown ids and brackets", func(t *testing.T) {
		s := build()
		rec := &recorder{}
		s.Observe(rec)
		s.DeleteItems([]string{"nope", "leaf"})

		assert.Equal(t, []EventKind{EventWillApplyMultiple, EventTreeChanged, EventDidApplyMultiple}, rec.kinds())
		assert.Equal(t, []string{"g"}, childIDs(node(t, s, "root")))
	})
}

func TestAdd(t *testing.T) {
	s := newStore()
	s.Apply([]record.Update{upd("o", "sub", 0, "")})

	top := record.NewItem("top", record.ItemData{})
	require.NoError(t, top.Insert([]*record.Item{record.NewItem("sub", record.ItemData{})}, 0))
	require.NoError(t, s.Add(top))

	assert.Equal(t, []string{"top"}, rootIDs(s))
	assert.Equal(t, []string{"o"}, childIDs(node(t, s, "sub")))
	assert.Equal(t, 0, s.OrphanCount())

	assert.ErrorIs(t, s.Add(record.NewItem("sub", record.ItemData{})), ErrDuplicateID)
	assert.ErrorIs(t, s.Add(node(t, s, "sub")), ErrNotRoot)
	assert.ErrorIs(t, s.Add(nil), tree.ErrNilNode)
}

func TestRelocate(t *testing.T) {
	s := newStore()
	s.Apply([]record.Update{
		upd("root", "", 0, ""),
		upd("a", "root", 0, ""),
		upd("b", "root", 1, ""),
		upd("b1", "b", 0, ""),
	})

	require.NoError(t, s.Relocate("b", record.Ptr("a"), 0))
	assert.Equal(t, []string{"a"}, childIDs(node(t, s, "root")))
	assert.Equal(t, []string{"b"}, childIDs(node(t, s, "a")))
	assert.Equal(t, []string{"b1"}, childIDs(node(t, s, "b")))
	assert.True(t, s.Contains("b1"))

	require.NoError(t, s.Relocate("b", nil, 0))
	assert.Equal(t, []string{"root", "b"}, rootIDs(s))

	assert.ErrorIs(t, s.Relocate("nope", nil, 0), ErrUnknownID)
	assert.ErrorIs(t, s.Relocate("b", record.Ptr("nope"), 0), ErrUnknownID)
	assert.ErrorIs(t, s.Relocate("b", record.Ptr("b1"), 0), tree.ErrCycle)
}

func TestTreeEdits_KeepIndexInStep(t *testing.T) {
	s := newStore()
	s.Apply([]record.Update{upd("root", "", 0, ""), upd("o", "y", 0, "waiting")})
	rec := &recorder{}
	s.Observe(rec)

	x := record.NewItem("x", record.ItemData{})
	require.NoError(t, x.Insert([]*record.Item{record.NewItem("y", record.ItemData{})}, 0))
	root := node(t, s, "root")
	require.NoError(t, root.Insert([]*record.Item{x}, 0))

	assert.True(t, s.Contains("x"))
	assert.True(t, s.Contains("y"))
	assert.Equal(t, []string{"o"}, childIDs(node(t, s, "y")), "orphan adopted by user-inserted parent")
	assert.Equal(t, 0, s.OrphanCount())
	require.NotEmpty(t, rec.events)
	assert.Equal(t, tree.EventInserted, rec.events[0].Change.Kind)

	wrapper := record.NewItem("w", record.ItemData{})
	require.NoError(t, root.Group([]int{0}, wrapper))
	assert.True(t, s.Contains("w"))
	assert.Equal(t, []string{"x"}, childIDs(node(t, s, "w")))

	_, err := root.Remove([]int{0})
	require.NoError(t, err)
	for _, id := range []string{"w", "x", "y", "o"} {
		assert.False(t, s.Contains(id), id)
	}
}

func TestTreeEdits_RootInsertedIntoAnotherTree(t *testing.T) {
	s := newStore()
	s.Apply([]record.Update{upd("a", "", 0, ""), upd("b", "", 0, "")})
	require.Equal(t, []string{"a", "b"}, rootIDs(s))

	b := node(t, s, "b")
	require.NoError(t, node(t, s, "a").Insert([]*record.Item{b}, 0))

	assert.Equal(t, []string{"a"}, rootIDs(s))
	assert.True(t, s.Contains("b"))

	// b now reports through a only.
	rec := &recorder{}
	s.Observe(rec)
	b.SetData(record.ItemData{Text: record.Ptr("moved")})
	assert.Len(t, rec.events, 1)
}

func TestRecords(t *testing.T) {
	s := newStore()
	s.Apply([]record.Update{
		upd("r", "", 0, "R"),
		upd("c", "r", 0, "C"),
		upd("o", "missing", 0, "O"),
	})

	recs := s.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "r", recs[0].ID)
	assert.Equal(t, "c", recs[1].ID)
	assert.Equal(t, "r", *recs[1].ParentID)
}
