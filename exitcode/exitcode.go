// Package exitcode carries the intended process exit status on an error, so the
// decision of how the process ends is made once, in main, from the returned error.
package exitcode

import (
	"github.com/zircuit-labs/zkr-taskworker/xerrors"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
)

// Code is a process exit status.
type Code int

const (
	OK    Code = 0
	Error Code = 1
	// WorkerFailure is reserved for an unexpected failure of the background worker loop.
	// Operators rely on this value to tell that failure apart from any other.
	WorkerFailure Code = 2
	Panic         Code = 3
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case Error:
		return "error"
	case WorkerFailure:
		return "background worker unexpected failure"
	case Panic:
		return "panic"
	default:
		return "unknown"
	}
}

// WrapAs marks err so that the process exits with code.
func WrapAs(err error, code Code) error {
	if err == nil {
		return nil
	}
	return xerrors.Extend(code, err)
}

// Get returns the code explicitly attached to err.
func Get(err error) (Code, bool) {
	return xerrors.Extract[Code](err)
}

// For decides the exit status for the final error of a process.
// An explicit code wins; otherwise panics map to Panic and any other error to Error.
func For(err error) Code {
	if err == nil {
		return OK
	}
	if code, ok := Get(err); ok {
		return code
	}
	if errclass.GetClass(err) == errclass.Panic {
		return Panic
	}
	return Error
}
