package remote

import "github.com/roach88/outline/internal/record"

// Detect decides whether saving client over server conflicts, given the
// server version the client started from. It returns nil when the save may
// proceed: the server still holds base, or already holds client.
func Detect(client, server record.Record, base *record.Record) *SaveConflict {
	if server.Equal(client) {
		return nil
	}
	if base != nil && server.Equal(base.Normalize()) {
		return nil
	}
	c := &SaveConflict{Client: client, Server: server}
	if base != nil {
		b := *base
		c.Ancestor = &b
	}
	return c
}

// MergeFields resolves a conflict field by field against the ancestor.
// A field changed only by the client keeps the client's value; every other
// field takes the server's value. Parent and position move together. With
// no ancestor the server version wins outright.
func MergeFields(c SaveConflict) record.Record {
	merged := c.Server
	if c.Ancestor == nil {
		return merged
	}
	a, cl, sv := *c.Ancestor, c.Client, c.Server

	if !record.PtrEqual(cl.Text, a.Text) && record.PtrEqual(sv.Text, a.Text) {
		merged.Text = cl.Text
	}
	if !record.PtrEqual(cl.State, a.State) && record.PtrEqual(sv.State, a.State) {
		merged.State = cl.State
	}
	if !record.PtrEqual(cl.Tag, a.Tag) && record.PtrEqual(sv.Tag, a.Tag) {
		merged.Tag = cl.Tag
	}
	clientMoved := !record.PtrEqual(cl.ParentID, a.ParentID) || cl.Position != a.Position
	serverMoved := !record.PtrEqual(sv.ParentID, a.ParentID) || sv.Position != a.Position
	if clientMoved && !serverMoved {
		merged.ParentID, merged.Position = cl.ParentID, cl.Position
	}
	return merged
}
