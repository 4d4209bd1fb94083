// Package worker runs background tasks handed over by request handlers.
//
// Producers put tasks on a shared Queue. A single Processor loop drains the queue on
// every poll cycle and starts each task on its own goroutine without waiting for it.
// A HostedWorker ties the loop to the life of the process.
package worker

import (
	"context"
	"log/slog"

	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errcontext"
)

//go:generate mockgen -source task.go -destination mock_task.go -package worker

// Task is one unit of background work. A task holds everything it needs when it is
// enqueued and is not changed afterwards.
type Task interface {
	// Name identifies the kind of task in logs.
	Name() string

	// Execute does the work. It must return promptly once ctx is done
	// if it has anything to wait on.
	Execute(ctx context.Context) error
}

// Execute wraps the work of a task with the logging every task shares:
// a start line, a finish line, and on failure an error line with the task name.
// The error from work is returned, never swallowed.
func Execute(ctx context.Context, logger *slog.Logger, name string, work func(context.Context) error) error {
	logger = logger.With(slog.String("task", name))
	logger.Info("task starting")

	if err := work(ctx); err != nil {
		err = errcontext.Add(err, slog.String("task", name))
		logger.Error("task failed", log.ErrAttr(err))
		return err
	}

	logger.Info("task finished")
	return nil
}
