// Package xerrors lets any value travel alongside an error through wrapping layers.
package xerrors

import (
	"errors"
	"log/slog"
)

// ExtendedError carries a typed payload next to the error it wraps.
type ExtendedError[T any] struct {
	Data T
	err  error
}

func (e ExtendedError[T]) Error() string {
	return e.err.Error()
}

func (e ExtendedError[T]) Unwrap() error {
	return e.err
}

// LogValue exposes the payload to slog. The message itself is logged by the caller.
func (e ExtendedError[T]) LogValue() slog.Value {
	if lv, ok := any(e.Data).(slog.LogValuer); ok {
		return lv.LogValue()
	}
	return slog.AnyValue(e.Data)
}

// Extend attaches data to err. A nil error stays nil.
func Extend[T any](data T, err error) error {
	if err == nil {
		return nil
	}
	return ExtendedError[T]{Data: data, err: err}
}

// Extract finds the outermost payload of type T anywhere in the chain.
func Extract[T any](err error) (T, bool) {
	var extended ExtendedError[T]
	ok := errors.As(err, &extended)
	return extended.Data, ok
}

// Unjoin splits an errors.Join result into its direct children.
// Any other error is returned as a single element slice.
func Unjoin(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
