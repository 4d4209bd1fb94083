// Package logtest captures slog records so tests can assert on what was logged.
// It is safe to log from goroutines that outlive the test.
package logtest

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Entry is a captured record with its attributes flattened to "group.key" names.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]slog.Value
}

// Attr returns the resolved value of key as a string, or "" if absent.
func (e Entry) Attr(key string) string {
	v, ok := e.Attrs[key]
	if !ok {
		return ""
	}
	return v.String()
}

// Recorder is a slog.Handler that keeps every record in memory.
type Recorder struct {
	store  *store
	attrs  []slog.Attr
	groups []string
}

type store struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns a Recorder and a logger writing into it at every level.
func New() (*Recorder, *slog.Logger) {
	r := &Recorder{store: &store{}}
	return r, slog.New(r)
}

func (r *Recorder) Enabled(context.Context, slog.Level) bool {
	return true
}

func (r *Recorder) Handle(_ context.Context, record slog.Record) error {
	entry := Entry{
		Level:   record.Level,
		Message: record.Message,
		Attrs:   make(map[string]slog.Value),
	}
	for _, a := range r.attrs {
		flatten(entry.Attrs, nil, a)
	}
	record.Attrs(func(a slog.Attr) bool {
		flatten(entry.Attrs, r.groups, a)
		return true
	})

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.entries = append(r.store.entries, entry)
	return nil
}

func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *r
	clone.attrs = slices.Clone(r.attrs)
	for _, a := range attrs {
		if len(r.groups) > 0 {
			a = slog.Attr{Key: joinKey(r.groups, a.Key), Value: a.Value}
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (r *Recorder) WithGroup(name string) slog.Handler {
	clone := *r
	clone.groups = append(slices.Clone(r.groups), name)
	return &clone
}

// Entries returns a snapshot of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return slices.Clone(r.store.entries)
}

// Find returns the entries with the given message, in logging order.
func (r *Recorder) Find(msg string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Message == msg {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether a record with the message was logged at level.
func (r *Recorder) Has(level slog.Level, msg string) bool {
	for _, e := range r.Find(msg) {
		if e.Level == level {
			return true
		}
	}
	return false
}

func flatten(into map[string]slog.Value, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		prefix := append(slices.Clone(groups), a.Key)
		for _, ga := range a.Value.Group() {
			flatten(into, prefix, ga)
		}
		return
	}
	into[joinKey(groups, a.Key)] = a.Value
}

func joinKey(groups []string, key string) string {
	out := ""
	for _, g := range groups {
		out += g + "."
	}
	return out + key
}
