package worker

import (
	"context"
	"log/slog"

	"github.com/zircuit-labs/zkr-taskworker/exitcode"
	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

// Loop is the part of a Processor the HostedWorker drives.
type Loop interface {
	Run(ctx context.Context) error
}

// Stopper stops the whole application, not just the caller.
type Stopper interface {
	RequestStop()
}

// HostedWorker runs a processor loop for the lifetime of the process.
// A failure of the loop is treated as fatal for the entire process.
type HostedWorker struct {
	loop    Loop
	stopper Stopper
	logger  *slog.Logger
}

// NewHostedWorker creates a HostedWorker. Only WithLogger applies.
func NewHostedWorker(loop Loop, stopper Stopper, opts ...Option) *HostedWorker {
	options := parseOptions(opts)
	return &HostedWorker{
		loop:    loop,
		stopper: stopper,
		logger:  options.logger,
	}
}

func (h *HostedWorker) Name() string {
	return "background worker"
}

// Run blocks until the loop returns. If the loop fails, the error is marked with
// exitcode.WorkerFailure, the application is asked to stop, and the error is returned
// so that the process entry point can exit with that code.
func (h *HostedWorker) Run(ctx context.Context) error {
	h.logger.Info("starting background worker to process tasks")

	if err := h.loop.Run(ctx); err != nil {
		err = exitcode.WrapAs(stacktrace.Wrap(err), exitcode.WorkerFailure)
		h.logger.Error("background worker failed", log.ErrAttr(err))
		h.stopper.RequestStop()
		return err
	}

	h.logger.Info("background worker stopped")
	return nil
}
