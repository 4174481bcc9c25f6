package recordstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outline/internal/record"
)

type edits struct {
	got []Edit
}

func (e *edits) RecordsChanged(edit Edit) { e.got = append(e.got, edit) }

func rec(id, text string, position int) record.Record {
	return record.Record{ID: id, Text: record.Ptr(text), Position: position}
}

func TestSave_OnlyNovelRecords(t *testing.T) {
	s := New()
	seen := &edits{}
	s.Observe(seen)

	changed := s.Save([]record.Record{rec("a", "A", 0), rec("b", "B", 1)}, OriginRemote)
	assert.Len(t, changed, 2)
	require.Len(t, seen.got, 1)
	assert.Equal(t, EditModified, seen.got[0].Kind)
	assert.Equal(t, OriginRemote, seen.got[0].Author)

	seen.got = nil
	changed = s.Save([]record.Record{rec("a", "A", 0), rec("b", "B2", 1)}, OriginController)
	require.Len(t, changed, 1)
	assert.Equal(t, "b", changed[0].ID)
	require.Len(t, seen.got, 1)
	assert.Equal(t, []record.Record{rec("b", "B2", 1)}, seen.got[0].Records)
	assert.Equal(t, 2, s.Len())
}

func TestSave_IdenticalRecordEmitsNothing(t *testing.T) {
	s := New()
	existing := rec("a", "A", 0)
	existing.State = record.Ptr(record.StateDone)
	s.Save([]record.Record{existing}, OriginFileCache)

	seen := &edits{}
	s.Observe(seen)
	for _, author := range []Origin{OriginController, OriginFileCache, OriginRemote, OriginUser} {
		same := existing
		same.Text = record.Ptr("A")
		same.State = record.Ptr(record.StateDone)
		assert.Nil(t, s.Save([]record.Record{same}, author))
	}
	assert.Empty(t, seen.got)
}

func TestSave_EveryFieldCounts(t *testing.T) {
	base := record.Record{
		ID:       "a",
		Text:     record.Ptr("A"),
		State:    record.Ptr(record.StateInProgress),
		Tag:      record.Ptr(record.TagRed),
		ParentID: record.Ptr("p"),
		Position: 1,
	}
	variants := map[string]func(r *record.Record){
		"text":     func(r *record.Record) { r.Text = record.Ptr("B") },
		"no text":  func(r *record.Record) { r.Text = nil },
		"state":    func(r *record.Record) { r.State = record.Ptr(record.StateTrashed) },
		"tag":      func(r *record.Record) { r.Tag = record.Ptr(record.TagBlue) },
		"parent":   func(r *record.Record) { r.ParentID = record.Ptr("q") },
		"root":     func(r *record.Record) { r.ParentID = nil },
		"position": func(r *record.Record) { r.Position = 2 },
	}
	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			s := New()
			s.Save([]record.Record{base}, OriginRemote)
			next := base
			mutate(&next)
			assert.Len(t, s.Save([]record.Record{next}, OriginRemote), 1)
		})
	}
}

func TestSave_NormalisesText(t *testing.T) {
	s := New()
	s.Save([]record.Record{rec("a", "Cafe\u0301", 0)}, OriginRemote)

	assert.Nil(t, s.Save([]record.Record{rec("a", "Caf\u00e9", 0)}, OriginController))
	got, ok := s.Record("a")
	require.True(t, ok)
	assert.Equal(t, "Caf\u00e9", *got.Text)
}

func TestSave_DuplicateIDsInBatch(t *testing.T) {
	s := New()
	changed := s.Save([]record.Record{rec("a", "first", 0), rec("", "skipped", 0), rec("a", "second", 0)}, OriginUser)

	require.Len(t, changed, 1)
	assert.Equal(t, "second", *changed[0].Text)
	got, _ := s.Record("a")
	assert.Equal(t, "second", *got.Text)
}

func TestDelete_OnlyPresentIDs(t *testing.T) {
	s := New()
	s.Save([]record.Record{rec("a", "A", 0), rec("b", "B", 1)}, OriginRemote)
	seen := &edits{}
	s.Observe(seen)

	assert.Nil(t, s.Delete([]string{"zzz"}, OriginRemote))
	assert.Empty(t, seen.got)

	removed := s.Delete([]string{"a", "zzz", "a"}, OriginController)
	assert.Equal(t, []string{"a"}, removed)
	require.Len(t, seen.got, 1)
	assert.Equal(t, Edit{Kind: EditDeleted, Author: OriginController, IDs: []string{"a"}}, seen.got[0])

	_, ok := s.Record("a")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestAll_SortedByID(t *testing.T) {
	s := New()
	s.Save([]record.Record{rec("c", "", 0), rec("a", "", 0), rec("b", "", 0)}, OriginRemote)

	var ids []string
	for _, r := range s.All() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestObserve_Cancel(t *testing.T) {
	s := New()
	seen := &edits{}
	cancel := s.Observe(seen)
	cancel()

	s.Save([]record.Record{rec("a", "", 0)}, OriginRemote)
	assert.Empty(t, seen.got)
}

func TestOrigin_String(t *testing.T) {
	assert.Equal(t, "controller", OriginController.String())
	assert.Equal(t, "file_cache", OriginFileCache.String())
	assert.Equal(t, "remote", OriginRemote.String())
	assert.Equal(t, "user", OriginUser.String())
	assert.Equal(t, "unknown", Origin(0).String())
	assert.Equal(t, "deleted", EditDeleted.String())
}
