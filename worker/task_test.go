package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/log/logtest"
	"github.com/zircuit-labs/zkr-taskworker/worker"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errcontext"
)

var errTask = errors.New("task error")

// funcTask is a Task backed by a function, logged through worker.Execute.
type funcTask struct {
	name   string
	logger *slog.Logger
	work   func(ctx context.Context) error
}

func (f *funcTask) Name() string {
	return f.name
}

func (f *funcTask) Execute(ctx context.Context) error {
	logger := f.logger
	if logger == nil {
		logger = log.NewNilLogger()
	}
	return worker.Execute(ctx, logger, f.name, func(ctx context.Context) error {
		if f.work == nil {
			return nil
		}
		return f.work(ctx)
	})
}

func namedTask(name string) *funcTask {
	return &funcTask{name: name}
}

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()

	rec, logger := logtest.New()

	called := false
	err := worker.Execute(t.Context(), logger, "SampleTask", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "task starting", entries[0].Message)
	assert.Equal(t, "SampleTask", entries[0].Attr("task"))
	assert.Equal(t, "task finished", entries[1].Message)
	assert.Equal(t, "SampleTask", entries[1].Attr("task"))
	assert.False(t, rec.Has(slog.LevelError, "task failed"))
}

func TestExecuteFailure(t *testing.T) {
	t.Parallel()

	rec, logger := logtest.New()

	err := worker.Execute(t.Context(), logger, "SampleTask", func(context.Context) error {
		return errTask
	})
	require.ErrorIs(t, err, errTask)

	// the task name travels with the error
	assert.Equal(t, "SampleTask", errcontext.Get(err)["task"].String())

	assert.True(t, rec.Has(slog.LevelInfo, "task starting"))
	assert.Empty(t, rec.Find("task finished"))

	failed := rec.Find("task failed")
	require.Len(t, failed, 1)
	assert.Equal(t, slog.LevelError, failed[0].Level)
	assert.Equal(t, "SampleTask", failed[0].Attr("task"))
	assert.Equal(t, errTask.Error(), failed[0].Attr("error.message"))
}

func TestExecuteHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := worker.Execute(ctx, log.NewNilLogger(), "SampleTask", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}
