package stacktrace_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

var errTest = errors.New("this is a test error")

func outer() error {
	return stacktrace.Wrap(inner())
}

func inner() error {
	return stacktrace.Wrap(errTest)
}

func TestWrap(t *testing.T) {
	t.Parallel()

	assert.NoError(t, stacktrace.Wrap(nil))
	assert.Nil(t, stacktrace.Extract(nil))

	err := outer()
	require.Error(t, err)
	assert.ErrorIs(t, err, errTest)

	// the innermost Wrap wins, so the trace starts in inner()
	trace := stacktrace.Extract(err)
	require.NotEmpty(t, trace)
	assert.True(t, strings.HasSuffix(trace[0].Function, "stacktrace_test.inner"), trace[0].Function)
	assert.True(t, strings.HasSuffix(trace[1].Function, "stacktrace_test.outer"), trace[1].Function)
	assert.True(t, strings.HasSuffix(trace[0].File, "stacktrace_test.go"))

	for _, frame := range trace {
		assert.False(t, strings.HasPrefix(frame.Function, "testing."), "testing frames are skipped")
	}
}

func TestMarshal(t *testing.T) {
	t.Parallel()

	assert.Nil(t, stacktrace.Marshal(errTest))

	out := stacktrace.Marshal(inner())
	require.NotEmpty(t, out)
	assert.Contains(t, out[0]["func"], "inner")
	assert.NotEmpty(t, out[0]["line"])
	assert.NotEmpty(t, out[0]["source"])
}

func TestWrapDisabled(t *testing.T) { //nolint:paralleltest // test uses package-level variable
	stacktrace.Disabled.Store(true)
	t.Cleanup(func() { stacktrace.Disabled.Store(false) })

	assert.Nil(t, stacktrace.Extract(outer()))
}
