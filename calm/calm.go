// Package calm runs functions with any panic turned into an error carrying a stack trace.
package calm

import (
	"fmt"

	"github.com/zircuit-labs/zkr-taskworker/xerrors"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

// frames to skip so the trace starts at the panicking function, not the deferred recover
const panicStackDepth = 3

// Unpanic calls f and returns its error, or a Panic class error if f panicked.
// Goroutines started by f are not covered and must protect themselves.
func Unpanic(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := xerrors.Extend(stacktrace.GetStack(panicStackDepth, true), fmt.Errorf("panic: %v", r))
			err = errclass.WrapAs(perr, errclass.Panic)
		}
	}()

	return f()
}

// Go starts f on a new goroutine guarded by Unpanic. The outcome, including a
// recovered panic, is passed to done when it is non-nil.
func Go(f func() error, done func(error)) {
	go func() {
		err := Unpanic(f)
		if done != nil {
			done(err)
		}
	}()
}
