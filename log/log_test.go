package log_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/version"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errcontext"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	delete(out, "time")
	return out
}

func TestNewLoggerAllOptions(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := log.NewLogger(
		log.WithWriter(&buf),
		log.WithServiceName("taskworker"),
		log.WithInstanceID("instance-1"),
		log.WithVersion(&version.Information{
			Version:   "v3.0.0",
			GitCommit: "full123",
			Date:      time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		}),
	)
	require.NoError(t, err)

	logger.Warn("all options test")

	assert.Equal(t, map[string]any{
		"level":           "warn",
		"msg":             "all options test",
		"service":         "taskworker",
		"instance":        "instance-1",
		"git_commit":      "full123",
		"git_commit_time": "2024-01-01T12:00:00Z",
		"version":         "v3.0.0",
	}, decode(t, &buf))
}

func TestNewLoggerText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := log.NewLogger(log.WithWriter(&buf), log.WithLogStyle(log.LogStyleText))
	require.NoError(t, err)

	logger.Error("text error test", log.ErrAttr(errors.New("text error")))

	assert.Contains(t, buf.String(), "level=error")
	assert.Contains(t, buf.String(), `msg="text error test"`)
	assert.Contains(t, buf.String(), `error="text error"`)
}

func TestNewLoggerInvalidStyle(t *testing.T) {
	t.Parallel()

	logger, err := log.NewLogger(log.WithLogStyle(log.LogStyle(999)))
	assert.Nil(t, logger)
	assert.ErrorContains(t, err, "unsupported log style option: 999")
}

func TestNewLoggerNilWriter(t *testing.T) {
	t.Parallel()

	logger, err := log.NewLogger(log.WithWriter(nil))
	require.NoError(t, err)
	assert.NotPanics(t, func() { logger.Info("discarded") })
}

func TestParseLogStyle(t *testing.T) {
	t.Parallel()

	style, err := log.ParseLogStyle("")
	require.NoError(t, err)
	assert.Equal(t, log.LogStyleJSON, style)

	style, err = log.ParseLogStyle("TEXT")
	require.NoError(t, err)
	assert.Equal(t, log.LogStyleText, style)

	_, err = log.ParseLogStyle("xml")
	assert.Error(t, err)
}

func TestErrAttrPlain(t *testing.T) {
	t.Parallel()

	attr := log.ErrAttr(errors.New("boom"))
	assert.Equal(t, log.ErrorKey, attr.Key)
	assert.Equal(t, "boom", attr.Value.String())

	attr = log.ErrAttr(nil)
	assert.Nil(t, attr.Value.Any())
}

func TestErrAttrExtended(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := log.NewLogger(log.WithWriter(&buf))
	require.NoError(t, err)

	testErr := stacktrace.Wrap(errors.New("test error"))
	testErr = errclass.WrapAs(testErr, errclass.Transient)
	testErr = errcontext.Add(testErr, slog.String("task", "OrderProcessingTask"))

	logger.Error("example error log", log.ErrAttr(testErr))

	out := decode(t, &buf)
	group, ok := out[log.ErrorKey].(map[string]any)
	require.True(t, ok, "error should be rendered as a group")
	assert.Equal(t, "test error", group[log.MessageKey])
	assert.Equal(t, "transient", group[log.ErrClassKey])
	assert.Equal(t, map[string]any{"task": "OrderProcessingTask"}, group[log.ContextKey])
	assert.NotEmpty(t, group[log.StackTraceKey])
}

func TestSetLogLevel(t *testing.T) { //nolint:paralleltest // changes global state
	t.Cleanup(func() { _ = log.SetLogLevel("info") })

	var buf bytes.Buffer
	logger, err := log.NewLogger(log.WithWriter(&buf))
	require.NoError(t, err)

	require.NoError(t, log.SetLogLevel("warn"))
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	require.NoError(t, log.SetLogLevel("trace"))
	logger.Log(t.Context(), log.LevelTrace, "visible")
	assert.Equal(t, "trace", decode(t, &buf)["level"])

	require.NoError(t, log.SetLogLevel(""))
	assert.Error(t, log.SetLogLevel("loud"))
}

func TestNilLogger(t *testing.T) {
	t.Parallel()

	logger := log.NewNilLogger()
	assert.False(t, logger.Enabled(t.Context(), slog.LevelError))
	assert.NotPanics(t, func() {
		logger.With("a", 1).WithGroup("g").Error("nothing")
	})
}
