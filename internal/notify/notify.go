// Package notify surfaces unrecoverable storage errors to a person.
// It is not part of the sync algorithm; components call a Sink and carry on.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink receives errors a person should see.
type Sink interface {
	Notify(title string, err error)
}

// Func adapts a function to the Sink interface.
type Func func(title string, err error)

// Notify calls f(title, err).
func (f Func) Notify(title string, err error) { f(title, err) }

// Discard drops every notification.
var Discard Sink = Func(func(string, error) {})

// Log reports notifications through a logger at error level.
type Log struct {
	Logger *slog.Logger
}

// Notify implements Sink.
func (l Log) Notify(title string, err error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(title, "error", err)
}

// Writer prints notifications as "title: error" lines.
//
// Thread-safety: safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a Writer printing to w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// Notify implements Sink.
func (w *Writer) Notify(title string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.w, "%s: %v\n", title, err)
}

// Notification is one recorded call.
type Notification struct {
	Title string
	Err   error
}

// Recorder keeps every notification, for tests.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	seen []Notification
}

// Notify implements Sink.
func (r *Recorder) Notify(title string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, Notification{Title: title, Err: err})
}

// Notifications returns a copy of what was recorded.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.seen...)
}
