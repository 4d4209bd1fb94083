// Package errcontext attaches structured log attributes to errors.
package errcontext

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/zircuit-labs/zkr-taskworker/xerrors"
)

// Context holds the attributes attached to an error.
type Context map[string]slog.Value

// Flatten returns the attributes sorted by key.
func (c Context) Flatten() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(c))
	for _, key := range slices.Sorted(maps.Keys(c)) {
		attrs = append(attrs, slog.Attr{Key: key, Value: c[key]})
	}
	return attrs
}

func (c Context) LogValue() slog.Value {
	if len(c) == 0 {
		return slog.Value{}
	}
	return slog.GroupValue(c.Flatten()...)
}

// Add merges attrs into the context already carried by err. Later keys win.
func Add(err error, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}

	merged := make(Context, len(attrs))
	maps.Copy(merged, Get(err))
	for _, attr := range attrs {
		merged[attr.Key] = attr.Value
	}
	return xerrors.Extend(merged, err)
}

// Get returns the newest context attached to err, or nil.
func Get(err error) Context {
	c, ok := xerrors.Extract[Context](err)
	if !ok {
		return nil
	}
	return c
}
