package cloud

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/remote"
)

func openTest(t *testing.T) (*Database, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remote.db")
	d, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, path
}

func rec(id, text string) record.Record {
	return record.Record{ID: id, Text: record.Ptr(text)}
}

func save(t *testing.T, d *Database, changes ...remote.Change) []remote.SaveResult {
	t.Helper()
	results, err := d.Save(context.Background(), changes)
	require.NoError(t, err)
	require.Len(t, results, len(changes))
	return results
}

func TestDatabase_SaveAndFetch(t *testing.T) {
	d, path := openTest(t)
	ctx := context.Background()
	assert.Equal(t, "file:"+path, d.Name())

	empty, err := d.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Changed)
	assert.Equal(t, "0", empty.Token)

	results := save(t, d, remote.Change{Record: rec("b", "B")}, remote.Change{Record: rec("a", "A")})
	assert.Equal(t, remote.StatusSaved, results[0].Status)
	assert.Equal(t, remote.StatusSaved, results[1].Status)

	all, err := d.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all.Changed, 2)
	assert.Equal(t, "b", all.Changed[0].ID, "ordered by change seq")
	assert.Equal(t, "2", all.Token)

	base := all.Changed[1]
	save(t, d, remote.Change{Record: rec("a", "A2"), Base: &base})
	_, err = d.Delete(ctx, []string{"b", "missing"})
	require.NoError(t, err)

	changes, err := d.FetchChanges(ctx, all.Token)
	require.NoError(t, err)
	require.Len(t, changes.Changed, 1)
	assert.Equal(t, "A2", *changes.Changed[0].Text)
	assert.Equal(t, []string{"b"}, changes.Deleted)
	assert.Equal(t, "4", changes.Token)
}

func TestDatabase_Conflict(t *testing.T) {
	d, _ := openTest(t)
	base := rec("a", "A")
	save(t, d, remote.Change{Record: base})
	save(t, d, remote.Change{Record: rec("a", "server edit"), Base: &base})

	results := save(t, d, remote.Change{Record: rec("a", "client edit"), Base: &base})
	require.Equal(t, remote.StatusConflict, results[0].Status)
	assert.Equal(t, "server edit", *results[0].Conflict.Server.Text)
	assert.Equal(t, "client edit", *results[0].Conflict.Client.Text)
	assert.Equal(t, "A", *results[0].Conflict.Ancestor.Text)
}

func TestDatabase_RejectsInvalidRecord(t *testing.T) {
	d, _ := openTest(t)
	bad := rec("a", "")
	bad.Position = -1

	results := save(t, d, remote.Change{Record: bad})
	assert.Equal(t, remote.StatusFailed, results[0].Status)
	assert.Error(t, results[0].Err)
}

func TestDatabase_Reopen(t *testing.T) {
	d, path := openTest(t)
	save(t, d, remote.Change{Record: rec("a", "A")})
	require.NoError(t, d.Close())

	again, err := Open(path)
	require.NoError(t, err)
	defer again.Close()
	all, err := again.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all.Changed, 1)
	assert.Equal(t, "1", all.Token)
}

func TestDatabase_BadTokenAndCancel(t *testing.T) {
	d, _ := openTest(t)

	_, err := d.FetchChanges(context.Background(), "x")
	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, remote.ErrCodeInvalid, re.Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.FetchAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, remote.IsRetryable(err))
}
