package persist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outline/internal/notify"
	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/recordstore"
	"github.com/roach88/outline/internal/store"
)

var errDiskFull = errors.New("disk full")

// fakeLocal keeps records in a map and fails while failing is set.
type fakeLocal struct {
	records map[string]record.Record
	failing bool
	saves   int
	deletes int
}

func newFakeLocal(records ...record.Record) *fakeLocal {
	f := &fakeLocal{records: make(map[string]record.Record)}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return f
}

func (f *fakeLocal) Load(context.Context) ([]record.Record, error) {
	if f.failing {
		return nil, errDiskFull
	}
	var out []record.Record
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeLocal) SaveRecords(_ context.Context, records []record.Record) error {
	f.saves++
	if f.failing {
		return errDiskFull
	}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return nil
}

func (f *fakeLocal) DeleteRecords(_ context.Context, ids []string) error {
	f.deletes++
	if f.failing {
		return errDiskFull
	}
	for _, id := range ids {
		delete(f.records, id)
	}
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func rec(id, text string) record.Record {
	return record.Record{ID: id, Text: record.Ptr(text)}
}

func TestLoad_FillsCacheAsFileCache(t *testing.T) {
	local := newFakeLocal(rec("a", "A"), rec("b", "B"))
	records := recordstore.New(recordstore.WithLogger(quiet()))
	var authors []recordstore.Origin
	records.Observe(recordstore.ObserverFunc(func(e recordstore.Edit) { authors = append(authors, e.Author) }))

	a := New(local, records, WithLogger(quiet()))
	defer a.Close()

	n, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, records.Len())
	assert.Equal(t, []recordstore.Origin{recordstore.OriginFileCache}, authors)

	// Loading does not write the same records back.
	assert.Zero(t, local.saves)
	assert.Zero(t, a.Pending())
}

func TestLoad_Failure(t *testing.T) {
	local := newFakeLocal()
	local.failing = true
	a := New(local, recordstore.New(recordstore.WithLogger(quiet())), WithLogger(quiet()))
	defer a.Close()

	_, err := a.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
}

func TestEdits_AreWrittenBack(t *testing.T) {
	local := newFakeLocal(rec("old", "Old"))
	records := recordstore.New(recordstore.WithLogger(quiet()))
	a := New(local, records, WithLogger(quiet()))
	defer a.Close()
	_, err := a.Load(context.Background())
	require.NoError(t, err)

	records.Save([]record.Record{rec("a", "A")}, recordstore.OriginController)
	records.Save([]record.Record{rec("b", "B")}, recordstore.OriginRemote)
	records.Delete([]string{"old"}, recordstore.OriginController)

	assert.Contains(t, local.records, "a")
	assert.Contains(t, local.records, "b")
	assert.NotContains(t, local.records, "old")
	assert.Zero(t, a.Pending())
}

func TestFailedWrite_NotifiesAndRetries(t *testing.T) {
	local := newFakeLocal()
	records := recordstore.New(recordstore.WithLogger(quiet()))
	sink := &notify.Recorder{}
	a := New(local, records, WithLogger(quiet()), WithNotifier(sink))
	defer a.Close()

	local.failing = true
	records.Save([]record.Record{rec("a", "A")}, recordstore.OriginController)

	// The cache keeps the edit; the store does not have it yet.
	_, cached := records.Record("a")
	assert.True(t, cached)
	assert.Empty(t, local.records)
	assert.Equal(t, 1, a.Pending())

	seen := sink.Notifications()
	require.Len(t, seen, 1)
	assert.Equal(t, "Could not save your outline", seen[0].Title)
	assert.ErrorIs(t, seen[0].Err, errDiskFull)

	// The next write carries the earlier record along.
	local.failing = false
	records.Save([]record.Record{rec("b", "B")}, recordstore.OriginController)
	assert.Contains(t, local.records, "a")
	assert.Contains(t, local.records, "b")
	assert.Zero(t, a.Pending())
}

func TestDeleteAfterFailedSave_DropsTheSave(t *testing.T) {
	local := newFakeLocal()
	records := recordstore.New(recordstore.WithLogger(quiet()))
	a := New(local, records, WithLogger(quiet()))
	defer a.Close()

	local.failing = true
	records.Save([]record.Record{rec("a", "A")}, recordstore.OriginController)
	records.Delete([]string{"a"}, recordstore.OriginController)
	assert.Equal(t, 1, a.Pending())

	local.failing = false
	require.NoError(t, a.Flush(context.Background()))
	assert.Empty(t, local.records)
	assert.Zero(t, a.Pending())
}

func TestClose_StopsObserving(t *testing.T) {
	local := newFakeLocal()
	records := recordstore.New(recordstore.WithLogger(quiet()))
	a := New(local, records, WithLogger(quiet()))
	a.Close()
	a.Close()

	records.Save([]record.Record{rec("a", "A")}, recordstore.OriginController)
	assert.Zero(t, local.saves)
}

func TestAdapter_WithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outline.db")

	db, err := store.Open(path)
	require.NoError(t, err)
	records := recordstore.New(recordstore.WithLogger(quiet()))
	a := New(db, records, WithLogger(quiet()))
	records.Save([]record.Record{
		rec("root", "Home"),
		{ID: "a", Text: record.Ptr("A"), ParentID: record.Ptr("root")},
	}, recordstore.OriginController)
	a.Close()
	require.NoError(t, db.Close())

	db, err = store.Open(path)
	require.NoError(t, err)
	defer db.Close()
	reloaded := recordstore.New(recordstore.WithLogger(quiet()))
	b := New(db, reloaded, WithLogger(quiet()))
	defer b.Close()

	n, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	got, ok := reloaded.Record("a")
	require.True(t, ok)
	assert.Equal(t, "root", *got.ParentID)
}

func TestEdits_WriteTheCachedValue(t *testing.T) {
	local := newFakeLocal()
	records := recordstore.New(recordstore.WithLogger(quiet()))

	// Runs before the adapter, the way the controller does: clamps remote
	// positions and drops records marked for removal.
	records.Observe(recordstore.ObserverFunc(func(edit recordstore.Edit) {
		if edit.Author != recordstore.OriginRemote {
			return
		}
		for _, r := range edit.Records {
			switch {
			case *r.Text == "gone":
				records.Delete([]string{r.ID}, recordstore.OriginController)
			case r.Position > 0:
				fixed := r
				fixed.Position = 0
				records.Save([]record.Record{fixed}, recordstore.OriginController)
			}
		}
	}))
	a := New(local, records, WithLogger(quiet()))
	defer a.Close()

	records.Save([]record.Record{
		{ID: "a", Text: record.Ptr("A"), ParentID: record.Ptr("root"), Position: 5},
		{ID: "b", Text: record.Ptr("gone")},
	}, recordstore.OriginRemote)

	cached, ok := records.Record("a")
	require.True(t, ok)
	assert.Equal(t, 0, cached.Position)
	assert.Equal(t, cached, local.records["a"])
	assert.NotContains(t, local.records, "b")
	assert.Zero(t, a.Pending())
}
