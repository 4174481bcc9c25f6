package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/recordstore"
	"github.com/roach88/outline/internal/remote"
	"github.com/roach88/outline/internal/store"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// start runs e until the test ends.
func start(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func item(id, text string, children ...*record.Item) *record.Item {
	n := record.NewItem(id, record.ItemData{Text: record.Ptr(text)})
	if len(children) > 0 {
		if err := n.Insert(children, 0); err != nil {
			panic(err)
		}
	}
	return n
}

func (e *Engine) render(t *testing.T) string {
	t.Helper()
	var out string
	require.NoError(t, e.Do(context.Background(), func() { out = record.Render(e.Trees().Roots()) }))
	return out
}

func TestDo_RunsTasksInOrder(t *testing.T) {
	e := New(WithLogger(quiet()))
	start(t, e)

	var (
		mu  sync.Mutex
		ran []int
	)
	for i := range 5 {
		require.NoError(t, e.Do(context.Background(), func() {
			mu.Lock()
			ran = append(ran, i)
			mu.Unlock()
		}))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ran)
}

func TestDo_AfterStop(t *testing.T) {
	e := New(WithLogger(quiet()))
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	require.NoError(t, e.Do(context.Background(), func() {}))
	e.Stop()
	require.NoError(t, <-done)

	assert.ErrorIs(t, e.Do(context.Background(), func() {}), ErrStopped)
}

func TestDo_CancelledContext(t *testing.T) {
	e := New(WithLogger(quiet()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	assert.ErrorIs(t, e.Do(ctx, func() { ran = true }), context.Canceled)
	assert.False(t, ran)
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	e := New(WithLogger(quiet()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.ErrorIs(t, e.Do(context.Background(), func() {}), ErrStopped)
}

func TestRun_SurvivesPanickingTask(t *testing.T) {
	e := New(WithLogger(quiet()))
	start(t, e)

	require.NoError(t, e.Do(context.Background(), func() { panic("boom") }))
	ran := false
	require.NoError(t, e.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestEngine_WithoutBackends(t *testing.T) {
	e := New(WithLogger(quiet()))
	_, err := e.Sync(context.Background())
	assert.ErrorIs(t, err, ErrNoRemote)
	_, err = e.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoLocalStore)
	assert.NoError(t, e.SyncDisabled())
}

func TestEngine_PersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outline.db")

	first := New(WithLogger(quiet()), WithLocalStore(openStore(t, path)))
	start(t, first)
	var addErr error
	require.NoError(t, first.Do(ctx, func() {
		addErr = first.Trees().Add(item("home", "Home", item("a", "Buy milk"), item("b", "Call mom")))
	}))
	require.NoError(t, addErr)
	want := first.render(t)

	second := New(WithLogger(quiet()), WithLocalStore(openStore(t, path)))
	start(t, second)
	n, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, want, second.render(t))
}

func TestEngine_PersistsRenumberedRemoteRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outline.db")

	first := New(WithLogger(quiet()), WithLocalStore(openStore(t, path)))
	start(t, first)
	require.NoError(t, first.Do(ctx, func() {
		// y and x tie at position 0; z asks for a slot past the end.
		first.Records().Save([]record.Record{
			{ID: "root", Text: record.Ptr("Home")},
			{ID: "y", Text: record.Ptr("Y"), ParentID: record.Ptr("root")},
			{ID: "x", Text: record.Ptr("X"), ParentID: record.Ptr("root")},
			{ID: "z", Text: record.Ptr("Z"), ParentID: record.Ptr("root"), Position: 9},
		}, recordstore.OriginRemote)
	}))
	want := first.render(t)
	var cached []record.Record
	require.NoError(t, first.Do(ctx, func() { cached = first.Records().All() }))

	second := New(WithLogger(quiet()), WithLocalStore(openStore(t, path)))
	start(t, second)
	_, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, second.render(t))

	local, err := openStore(t, path).Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, cached, local)
}

func TestEngine_QueuesOfflineEditsForLaterSync(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outline.db")

	st := openStore(t, path)
	offline := New(WithLogger(quiet()), WithLocalStore(st), WithJournal(st))
	start(t, offline)
	var addErr error
	require.NoError(t, offline.Do(ctx, func() {
		addErr = offline.Trees().Add(item("home", "Home", item("a", "A")))
	}))
	require.NoError(t, addErr)

	pending, err := st.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	_, err = offline.Sync(ctx)
	assert.ErrorIs(t, err, ErrNoRemote)

	db := remote.NewMemory()
	st2 := openStore(t, path)
	online := New(WithLogger(quiet()), WithLocalStore(st2), WithRemote(db, st2))
	start(t, online)
	_, err = online.Load(ctx)
	require.NoError(t, err)
	report, err := online.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pushed)
	assert.Len(t, db.Records(), 2)
}

func TestEngine_ReplicasConvergeThroughRemote(t *testing.T) {
	ctx := context.Background()
	db := remote.NewMemory()
	dir := t.TempDir()
	replica := func(name string) *Engine {
		s := openStore(t, filepath.Join(dir, name+".db"))
		e := New(WithLogger(quiet()), WithLocalStore(s), WithRemote(db, s))
		start(t, e)
		return e
	}
	left, right := replica("left"), replica("right")

	var addErr error
	require.NoError(t, left.Do(ctx, func() {
		addErr = left.Trees().Add(item("home", "Home", item("a", "A"), item("b", "B"), item("c", "C")))
	}))
	require.NoError(t, addErr)

	_, err := left.Sync(ctx)
	require.NoError(t, err)
	report, err := right.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Fetched)
	assert.Equal(t, left.render(t), right.render(t))

	// Move c to the front on the right and delete b.
	require.NoError(t, right.Do(ctx, func() {
		home, _ := right.Trees().Node("home")
		_ = home.Move(2, 0)
		right.Trees().DeleteItems([]string{"b"})
	}))
	_, err = right.Sync(ctx)
	require.NoError(t, err)
	_, err = left.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, "- Home (home)\n  - C (c)\n  - A (a)\n", left.render(t))
	assert.Equal(t, left.render(t), right.render(t))
}

func TestEngine_PeriodicSync(t *testing.T) {
	db := remote.NewMemory()
	db.Put(record.Record{ID: "x", Text: record.Ptr("From elsewhere")})
	s := openStore(t, filepath.Join(t.TempDir(), "outline.db"))
	e := New(WithLogger(quiet()), WithRemote(db, s), WithSyncInterval(10*time.Millisecond))
	start(t, e)

	assert.Eventually(t, func() bool {
		var out string
		err := e.Do(context.Background(), func() { out = record.Render(e.Trees().Roots()) })
		return err == nil && out == "- From elsewhere (x)\n"
	}, 2*time.Second, 10*time.Millisecond)
}
