package index

import (
	"cmp"
	"slices"

	"github.com/roach88/outline/internal/record"
)

// Orphanage buffers updates whose declared parent is not known yet.
type Orphanage struct {
	buckets map[string]map[string]record.Update // parent id → child id → update
}

// NewOrphanage creates an empty orphanage.
func NewOrphanage() *Orphanage {
	return &Orphanage{buckets: make(map[string]map[string]record.Update)}
}

// Update stores u in the bucket of parentID, overwriting an earlier update
// for the same child. If the child was buffered under another parent it is
// moved.
func (o *Orphanage) Update(u record.Update, parentID string) {
	if current, ok := o.ParentOf(u.ID); ok && current != parentID {
		o.removeFrom(current, u.ID)
	}
	bucket := o.buckets[parentID]
	if bucket == nil {
		bucket = make(map[string]record.Update)
		o.buckets[parentID] = bucket
	}
	bucket[u.ID] = u
}

// Orphans returns the updates waiting for parentID, sorted by position and
// then id.
func (o *Orphanage) Orphans(parentID string) []record.Update {
	bucket := o.buckets[parentID]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]record.Update, 0, len(bucket))
	for _, u := range bucket {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b record.Update) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// ParentOf returns the parent id under which id is buffered.
// Scans every bucket; buckets are few and short-lived.
func (o *Orphanage) ParentOf(id string) (string, bool) {
	for parentID, bucket := range o.buckets {
		if _, ok := bucket[id]; ok {
			return parentID, true
		}
	}
	return "", false
}

// RemoveOrphan drops id from whichever bucket holds it and reports whether
// it was buffered.
func (o *Orphanage) RemoveOrphan(id string) bool {
	parentID, ok := o.ParentOf(id)
	if !ok {
		return false
	}
	o.removeFrom(parentID, id)
	return true
}

// RemoveOrphans drops the whole bucket of parentID.
func (o *Orphanage) RemoveOrphans(parentID string) {
	delete(o.buckets, parentID)
}

// Len returns the number of buffered updates.
func (o *Orphanage) Len() int {
	n := 0
	for _, bucket := range o.buckets {
		n += len(bucket)
	}
	return n
}

func (o *Orphanage) removeFrom(parentID, id string) {
	bucket := o.buckets[parentID]
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(o.buckets, parentID)
	}
}
