package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/retry"
	"github.com/zircuit-labs/zkr-taskworker/worker"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errcontext"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

const (
	// TaskName is the name processing tasks log under.
	TaskName = "OrderProcessingTask"

	// DefaultProcessingDelay is how long processing a single order takes.
	DefaultProcessingDelay = 50 * time.Second

	// RecordAttempts is how often recording a processed order is tried.
	RecordAttempts = 5
)

// Recorder keeps track of processed orders.
type Recorder interface {
	Record(ctx context.Context, id string, processedAt time.Time) error
}

type options struct {
	logger   *slog.Logger
	clock    clockwork.Clock
	delay    time.Duration
	recorder Recorder
	retrier  *retry.Retrier
}

// Option is an option func for NewProcessingTask and NewIntake.
type Option func(options *options)

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// WithClock sets the clock processing waits on.
func WithClock(clock clockwork.Clock) Option {
	return func(options *options) {
		options.clock = clock
	}
}

// WithDelay overrides DefaultProcessingDelay.
func WithDelay(delay time.Duration) Option {
	return func(options *options) {
		options.delay = delay
	}
}

// WithRecorder records every processed order.
func WithRecorder(recorder Recorder) Option {
	return func(options *options) {
		options.recorder = recorder
	}
}

// WithRecordRetrier replaces the default retry policy for recording.
func WithRecordRetrier(retrier *retry.Retrier) Option {
	return func(options *options) {
		options.retrier = retrier
	}
}

func parseOptions(opts []Option) options {
	options := options{
		logger: log.NewNilLogger(),
		clock:  clockwork.NewRealClock(),
		delay:  DefaultProcessingDelay,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.retrier == nil {
		options.retrier = retry.NewRetrier(
			retry.WithClock(options.clock),
			retry.WithBackoff(time.Second, 10*time.Second),
			retry.WithMaxAttempts(RecordAttempts),
		)
	}
	return options
}

// ProcessingTask is a long running task that processes one order.
type ProcessingTask struct {
	order    Order
	logger   *slog.Logger
	clock    clockwork.Clock
	delay    time.Duration
	recorder Recorder
	retrier  *retry.Retrier
}

var _ worker.Task = (*ProcessingTask)(nil)

// NewProcessingTask creates the task for order.
func NewProcessingTask(order Order, opts ...Option) *ProcessingTask {
	options := parseOptions(opts)
	return &ProcessingTask{
		order:    order,
		logger:   options.logger,
		clock:    options.clock,
		delay:    options.delay,
		recorder: options.recorder,
		retrier:  options.retrier,
	}
}

func (t *ProcessingTask) Name() string {
	return TaskName
}

// Order is the order being processed.
func (t *ProcessingTask) Order() Order {
	return t.order
}

func (t *ProcessingTask) Execute(ctx context.Context) error {
	return worker.Execute(ctx, t.logger, t.Name(), t.process)
}

func (t *ProcessingTask) process(ctx context.Context) error {
	logger := t.logger.With(slog.String("task", t.Name()))
	logger.Info("processing order", slog.String("order_id", t.order.ID), slog.Duration("delay", t.delay))

	timer := t.clock.NewTimer(t.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return errcontext.Add(stacktrace.Wrap(ctx.Err()), slog.String("order_id", t.order.ID))
	case <-timer.Chan():
	}

	if t.recorder == nil {
		return nil
	}
	processedAt := t.clock.Now()
	err := t.retrier.Try(ctx, func() error {
		return t.recorder.Record(ctx, t.order.ID, processedAt)
	})
	if err != nil {
		return errcontext.Add(stacktrace.Wrap(err), slog.String("order_id", t.order.ID))
	}
	return nil
}
