// Package stacktrace records where an error was first seen.
package stacktrace

import (
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/zircuit-labs/zkr-taskworker/xerrors"
)

const (
	maxFrames = 50

	// frames skipped so that the trace starts at the caller of Wrap
	wrapStackDepth = 3
)

var (
	// match files of the go runtime and testing packages,
	// eg `/pkg/mod/golang.org/toolchain@v0.0.1-go1.25.5.linux-amd64/src/runtime/panic.go`
	runtimeRegex = regexp.MustCompile(`go[^/]*/src/runtime/[^.]+\.go`)
	testingRegex = regexp.MustCompile(`go[^/]*/src/testing/[^.]+\.go`)
)

// Disabled turns Wrap into a no-op when set.
var Disabled atomic.Bool

// Frame is one human-readable stack frame.
type Frame struct {
	File       string `json:"source"`
	LineNumber int    `json:"line"`
	Function   string `json:"func"`
}

// StackTrace is a series of frames, innermost first.
type StackTrace []Frame

// GetStack captures the current stack. skipFrames follows runtime.Callers semantics
// where 1 is GetStack itself. With skipRuntime set, frames belonging to the go runtime
// and testing packages are dropped.
func GetStack(skipFrames int, skipRuntime bool) StackTrace {
	pc := make([]uintptr, maxFrames)
	n := runtime.Callers(skipFrames, pc)
	frames := runtime.CallersFrames(pc[:n])

	var trace StackTrace
	for {
		frame, more := frames.Next()
		if skipRuntime && isInternal(frame) {
			if !more {
				break
			}
			continue
		}
		if frame.Function != "" {
			trace = append(trace, Frame{
				File:       frame.File,
				LineNumber: frame.Line,
				Function:   frame.Function,
			})
		}
		if !more {
			break
		}
	}
	return trace
}

func isInternal(frame runtime.Frame) bool {
	switch {
	case strings.HasPrefix(frame.Function, "runtime."):
		return runtimeRegex.MatchString(frame.File)
	case strings.HasPrefix(frame.Function, "testing."):
		return testingRegex.MatchString(frame.File)
	}
	return false
}

// Wrap attaches the current stack to err unless it already carries one.
func Wrap(err error) error {
	if err == nil || Disabled.Load() {
		return err
	}
	if _, ok := xerrors.Extract[StackTrace](err); ok {
		return err
	}
	return xerrors.Extend(GetStack(wrapStackDepth, true), err)
}

// Extract returns the stack attached to err, or nil.
func Extract(err error) StackTrace {
	trace, ok := xerrors.Extract[StackTrace](err)
	if !ok {
		return nil
	}
	return trace
}

// Marshal renders the stack of err in a log friendly shape, or nil if there is none.
func Marshal(err error) []map[string]string {
	trace := Extract(err)
	if trace == nil {
		return nil
	}
	out := make([]map[string]string, 0, len(trace))
	for _, frame := range trace {
		out = append(out, map[string]string{
			"source": frame.File,
			"line":   strconv.Itoa(frame.LineNumber),
			"func":   frame.Function,
		})
	}
	return out
}
