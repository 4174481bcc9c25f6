package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/testutil"
)

func rec(id, text string, position int) record.Record {
	return record.Record{ID: id, Text: record.Ptr(text), Position: position}
}

func ids(records []record.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestMemory_FetchAllAndChanges(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(WithClock(testutil.NewDeterministicClock()), WithName("test"))
	assert.Equal(t, "test", m.Name())

	m.Put(rec("b", "B", 0), rec("a", "A", 0))
	all, err := m.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(all.Changed))
	assert.Equal(t, "2", all.Token)

	m.Put(rec("c", "C", 0))
	m.Remove("a", "never-existed")

	changes, err := m.FetchChanges(ctx, all.Token)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(changes.Changed))
	assert.Equal(t, []string{"a"}, changes.Deleted)
	assert.Equal(t, "4", changes.Token)

	again, err := m.FetchChanges(ctx, changes.Token)
	require.NoError(t, err)
	assert.Empty(t, again.Changed)
	assert.Empty(t, again.Deleted)

	fresh, err := m.FetchChanges(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(fresh.Changed))
}

func TestMemory_FetchChangesBadToken(t *testing.T) {
	_, err := NewMemory().FetchChanges(context.Background(), "not-a-number")
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeInvalid, re.Code)
	assert.False(t, IsRetryable(err))
	assert.False(t, IsTerminal(err))
}

func TestMemory_SaveOutcomes(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := rec("a", "A", 0)
	m.Put(base)

	badState := rec("bad", "", 0)
	badState.State = record.Ptr(record.State(7))

	results, err := m.Save(ctx, []Change{
		{Record: rec("a", "A edited", 0), Base: &base},
		{Record: rec("new", "N", 0)},
		{Record: badState},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, StatusSaved, results[0].Status)
	assert.Equal(t, "A edited", *results[0].Record.Text)
	assert.Equal(t, StatusSaved, results[1].Status)
	assert.Equal(t, StatusFailed, results[2].Status)
	assert.Error(t, results[2].Err)

	// The server moved on; a save from the old base conflicts.
	m.Put(rec("a", "A from phone", 0))
	results, err = m.Save(ctx, []Change{{Record: rec("a", "A from laptop", 0), Base: &base}})
	require.NoError(t, err)
	require.Equal(t, StatusConflict, results[0].Status)
	c := results[0].Conflict
	require.NotNil(t, c)
	assert.Equal(t, "A from laptop", *c.Client.Text)
	assert.Equal(t, "A from phone", *c.Server.Text)
	require.NotNil(t, c.Ancestor)
	assert.Equal(t, "A", *c.Ancestor.Text)

	got := m.Records()
	assert.Equal(t, "A from phone", *got[0].Text, "conflicts never overwrite")
}

func TestMemory_SaveWithoutBaseOverExisting(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put(rec("a", "server", 0))

	results, err := m.Save(ctx, []Change{{Record: rec("a", "server", 0)}})
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, results[0].Status, "same content is not a conflict")

	results, err = m.Save(ctx, []Change{{Record: rec("a", "client", 0)}})
	require.NoError(t, err)
	require.Equal(t, StatusConflict, results[0].Status)
	assert.Nil(t, results[0].Conflict.Ancestor)
}

func TestMemory_DeleteThenSaveRecreates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := rec("a", "A", 0)
	m.Put(base)

	del, err := m.Delete(ctx, []string{"a", "zzz"})
	require.NoError(t, err)
	assert.Equal(t, []DeleteResult{{ID: "a"}, {ID: "zzz"}}, del)

	results, err := m.Save(ctx, []Change{{Record: rec("a", "A again", 0), Base: &base}})
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, results[0].Status)
	assert.Len(t, m.Records(), 1)
}

func TestMemory_InjectedFailures(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.FailWith(NewNetworkError(errors.New("connection reset")), NewAuthError("token expired"))

	_, err := m.FetchAll(ctx)
	assert.True(t, IsRetryable(err))
	_, err = m.Save(ctx, nil)
	assert.True(t, IsTerminal(err))
	_, err = m.Delete(ctx, nil)
	assert.NoError(t, err)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()
	m.Put(rec("a", "", 0))

	_, err := m.FetchAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestError_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		terminal  bool
	}{
		{"network", NewNetworkError(errors.New("eof")), true, false},
		{"rate limited", NewRateLimitError(time.Second), true, false},
		{"auth", NewAuthError("expired"), false, true},
		{"permission", NewPermissionError("read only"), false, true},
		{"wrapped", fmt.Errorf("push: %w", NewAuthError("expired")), false, true},
		{"plain", errors.New("boom"), false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.Equal(t, tt.terminal, IsTerminal(tt.err))
		})
	}

	assert.Equal(t, 3*time.Second, RetryAfter(fmt.Errorf("x: %w", NewRateLimitError(3*time.Second))))
	assert.Zero(t, RetryAfter(errors.New("boom")))

	cause := errors.New("dial tcp: refused")
	err := NewNetworkError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "NETWORK: remote unreachable: dial tcp: refused", err.Error())
	assert.Equal(t, "AUTH: expired", NewAuthError("expired").Error())
}

func TestMergeFields(t *testing.T) {
	ancestor := record.Record{ID: "a", Text: record.Ptr("buy milk"), State: record.Ptr(record.StateInProgress), ParentID: record.Ptr("p"), Position: 0}

	t.Run("disjoint fields combine", func(t *testing.T) {
		client := ancestor
		client.State = record.Ptr(record.StateDone)
		server := ancestor
		server.Text = record.Ptr("buy oat milk")

		merged := MergeFields(SaveConflict{Client: client, Server: server, Ancestor: &ancestor})
		assert.Equal(t, "buy oat milk", *merged.Text)
		assert.Equal(t, record.StateDone, *merged.State)
	})

	t.Run("same field takes server", func(t *testing.T) {
		client := ancestor
		client.Text = record.Ptr("client text")
		server := ancestor
		server.Text = record.Ptr("server text")

		merged := MergeFields(SaveConflict{Client: client, Server: server, Ancestor: &ancestor})
		assert.Equal(t, "server text", *merged.Text)
	})

	t.Run("client move kept", func(t *testing.T) {
		client := ancestor
		client.ParentID, client.Position = record.Ptr("q"), 3
		server := ancestor
		server.Tag = record.Ptr(record.TagOrange)

		merged := MergeFields(SaveConflict{Client: client, Server: server, Ancestor: &ancestor})
		assert.Equal(t, "q", *merged.ParentID)
		assert.Equal(t, 3, merged.Position)
		assert.Equal(t, record.TagOrange, *merged.Tag)
	})

	t.Run("cleared field", func(t *testing.T) {
		client := ancestor
		client.Text = nil
		merged := MergeFields(SaveConflict{Client: client, Server: ancestor, Ancestor: &ancestor})
		assert.Nil(t, merged.Text)
	})

	t.Run("no ancestor", func(t *testing.T) {
		client := ancestor
		client.Text = record.Ptr("client")
		merged := MergeFields(SaveConflict{Client: client, Server: ancestor})
		assert.Equal(t, ancestor, merged)
	})
}

func TestDetect(t *testing.T) {
	base := rec("a", "A", 0)
	assert.Nil(t, Detect(rec("a", "B", 0), base, &base))
	assert.Nil(t, Detect(rec("a", "B", 0), rec("a", "B", 0), nil))
	assert.NotNil(t, Detect(rec("a", "B", 0), rec("a", "C", 0), &base))
}

func TestSaveStatus_String(t *testing.T) {
	assert.Equal(t, "saved", StatusSaved.String())
	assert.Equal(t, "conflict", StatusConflict.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", SaveStatus(0).String())
}
