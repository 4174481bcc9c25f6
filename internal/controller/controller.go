package controller

import (
	"log/slog"
	"slices"

	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/recordstore"
	"github.com/roach88/outline/internal/tree"
	"github.com/roach88/outline/internal/treestore"
)

// Controller mediates between a tree store and a record cache.
type Controller struct {
	trees   *treestore.Store
	records *recordstore.Store
	logger  *slog.Logger
	cancels []func()

	// batch is non-zero between EventWillApplyMultiple and
	// EventDidApplyMultiple; edits are held until the batch closes.
	batch   int
	saves   []record.Record
	deletes []string
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New connects trees and records. Call Close to disconnect.
func New(trees *treestore.Store, records *recordstore.Store, opts ...Option) *Controller {
	c := &Controller{
		trees:   trees,
		records: records,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cancels = append(c.cancels, trees.Observe(c), records.Observe(c))
	return c
}

// Close stops observing both stores.
func (c *Controller) Close() {
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
}

// RecordsChanged applies cache edits made by anyone but the controller.
func (c *Controller) RecordsChanged(edit recordstore.Edit) {
	if edit.Author == recordstore.OriginController {
		return
	}
	switch edit.Kind {
	case recordstore.EditModified:
		updates := make([]record.Update, len(edit.Records))
		for i, r := range edit.Records {
			updates[i] = r.Update()
		}
		c.logger.Debug("applying records", "author", edit.Author, "count", len(updates))
		c.trees.Apply(updates)
	case recordstore.EditDeleted:
		c.logger.Debug("deleting items", "author", edit.Author, "count", len(edit.IDs))
		c.trees.DeleteItems(edit.IDs)
	}
}

// StoreChanged turns tree store events into record edits.
func (c *Controller) StoreChanged(ev treestore.Event) {
	switch ev.Kind {
	case treestore.EventWillApplyMultiple:
		c.batch++
	case treestore.EventDidApplyMultiple:
		if c.batch > 0 {
			c.batch--
		}
		if c.batch == 0 {
			c.flush()
		}
	case treestore.EventTreeAdded:
		c.save(record.Flatten(ev.Tree))
	case treestore.EventTreeRemoved:
		c.deleteGone(ev.Tree)
	case treestore.EventTreeChanged:
		c.treeChanged(ev.Change)
	}
}

func (c *Controller) treeChanged(ev tree.Event[record.ItemData]) {
	switch ev.Kind {
	case tree.EventDataChanged:
		c.save([]record.Record{record.RecordOf(ev.Node)})

	case tree.EventInserted:
		inserted := make(map[*record.Item]bool, len(ev.Nodes))
		for _, n := range ev.Nodes {
			inserted[n] = true
		}
		var out []record.Record
		for i := slices.Min(ev.Indexes); i < ev.Parent.ChildCount(); i++ {
			child := ev.Parent.Child(i)
			if inserted[child] {
				out = append(out, record.Flatten(child)...)
			} else {
				out = append(out, record.RecordOf(child))
			}
		}
		c.save(out)

	case tree.EventRemoved:
		for _, n := range ev.Nodes {
			c.deleteGone(n)
		}
		c.save(followers(ev.Parent, ev.Indexes[0]))

	case tree.EventMoved:
		lo, hi := min(ev.From, ev.To), max(ev.From, ev.To)
		out := make([]record.Record, 0, hi-lo+1)
		for i := lo; i <= hi; i++ {
			out = append(out, record.RecordOf(ev.Parent.Child(i)))
		}
		c.save(out)

	case tree.EventGrouped:
		out := record.Flatten(ev.Node)
		out = append(out, followers(ev.Parent, ev.To+1)...)
		c.save(out)
	}
}

// followers returns the records of parent's children from index from on.
func followers(parent *record.Item, from int) []record.Record {
	var out []record.Record
	for i := from; i < parent.ChildCount(); i++ {
		out = append(out, record.RecordOf(parent.Child(i)))
	}
	return out
}

// deleteGone deletes the records of every node under n that the tree store
// no longer knows. Nodes that were only moved stay registered.
func (c *Controller) deleteGone(n *record.Item) {
	var ids []string
	n.Walk(func(x *record.Item) bool {
		if !c.trees.Contains(x.ID()) {
			ids = append(ids, x.ID())
		}
		return true
	})
	if len(ids) > 0 {
		c.delete(ids)
	}
}

func (c *Controller) save(records []record.Record) {
	if len(records) == 0 {
		return
	}
	if c.batch == 0 {
		c.records.Save(records, recordstore.OriginController)
		return
	}
	for _, r := range records {
		c.deletes = slices.DeleteFunc(c.deletes, func(id string) bool { return id == r.ID })
		c.saves = slices.DeleteFunc(c.saves, func(p record.Record) bool { return p.ID == r.ID })
		c.saves = append(c.saves, r)
	}
}

func (c *Controller) delete(ids []string) {
	if c.batch == 0 {
		c.records.Delete(ids, recordstore.OriginController)
		return
	}
	for _, id := range ids {
		c.saves = slices.DeleteFunc(c.saves, func(p record.Record) bool { return p.ID == id })
		if !slices.Contains(c.deletes, id) {
			c.deletes = append(c.deletes, id)
		}
	}
}

func (c *Controller) flush() {
	saves, deletes := c.saves, c.deletes
	c.saves, c.deletes = nil, nil
	if len(saves) > 0 {
		c.records.Save(saves, recordstore.OriginController)
	}
	if len(deletes) > 0 {
		c.records.Delete(deletes, recordstore.OriginController)
	}
}
