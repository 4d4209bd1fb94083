package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zircuit-labs/zkr-taskworker/calm"
	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

// MinPollInterval is the shortest allowed pause between poll cycles.
// Anything shorter would turn the loop into a busy wait.
const MinPollInterval = 250 * time.Millisecond

const unknownTaskName = "unknown"

// SleepFunc pauses for d. It must return early with ctx.Err() once ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type options struct {
	logger *slog.Logger
	clock  clockwork.Clock
	sleep  SleepFunc
}

// Option is an option func for NewProcessor and NewHostedWorker.
// Options that do not apply to a constructor are ignored.
type Option func(options *options)

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// WithClock sets the clock the default sleep waits on.
func WithClock(clock clockwork.Clock) Option {
	return func(options *options) {
		options.clock = clock
	}
}

// WithSleep replaces the pause between poll cycles.
func WithSleep(sleep SleepFunc) Option {
	return func(options *options) {
		options.sleep = sleep
	}
}

func parseOptions(opts []Option) options {
	options := options{
		logger: log.NewNilLogger(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.sleep == nil {
		options.sleep = clockSleep(options.clock)
	}
	return options
}

// Processor is the single consumer of a Queue. Each poll cycle it drains the queue,
// starts every task it finds, and sleeps.
type Processor struct {
	queue    *Queue
	interval time.Duration
	logger   *slog.Logger
	sleep    SleepFunc
}

// NewProcessor creates a Processor polling queue every interval.
// An interval below MinPollInterval is raised to it with a warning.
func NewProcessor(queue *Queue, interval time.Duration, opts ...Option) *Processor {
	options := parseOptions(opts)

	if interval < MinPollInterval {
		options.logger.Warn("task queue polling interval is lower than the minimum, using the minimum instead",
			slog.Int64("requested_ms", interval.Milliseconds()),
			slog.Int64("effective_ms", MinPollInterval.Milliseconds()),
		)
		interval = MinPollInterval
	}

	return &Processor{
		queue:    queue,
		interval: interval,
		logger:   options.logger,
		sleep:    options.sleep,
	}
}

// Interval is the effective pause between poll cycles.
func (p *Processor) Interval() time.Duration {
	return p.interval
}

// Run polls until ctx is done, then returns nil. Tasks still queued at that point
// are left where they are. Any other way out of the loop, a failing sleep or a
// panic in the loop itself, is returned as an error.
//
// Started tasks share ctx but are not waited for; some may still be running after
// Run returns.
func (p *Processor) Run(ctx context.Context) error {
	err := calm.Unpanic(func() error {
		return p.loop(ctx)
	})
	if err != nil {
		return err
	}

	if n := p.queue.Len(); n > 0 {
		p.logger.Warn("tasks left unprocessed in the queue, exiting processor", slog.Int("count", n))
	}
	return nil
}

func (p *Processor) loop(ctx context.Context) error {
	for ctx.Err() == nil {
		p.logger.Log(ctx, log.LevelTrace, "tasks found in the queue", slog.Int("count", p.queue.Len()))

		p.drain(ctx)

		p.logger.Log(ctx, log.LevelTrace, "polling again", slog.Duration("interval", p.interval))
		if err := p.sleep(ctx, p.interval); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return stacktrace.Wrap(err)
		}
	}
	return nil
}

// drain starts every task currently in the queue. A task enqueued after the
// queue reports empty waits for the next cycle.
func (p *Processor) drain(ctx context.Context) {
	for {
		t, ok := p.queue.TryDequeue()
		if !ok {
			return
		}
		p.dispatch(ctx, t)
	}
}

// dispatch starts t on its own goroutine and forgets about it. The goroutine is
// deliberately not part of any group: the loop never waits on task completion,
// and the number of running tasks is not bounded.
// TODO: cap the number of in-flight tasks once producers can be told to back off.
func (p *Processor) dispatch(ctx context.Context, t Task) {
	name := p.taskName(t)
	p.logger.Debug("task dispatched", slog.String("task", name))

	calm.Go(func() error {
		return t.Execute(ctx)
	}, func(err error) {
		// ordinary failures were logged by the task itself
		if errclass.GetClass(err) == errclass.Panic {
			p.logger.Error("task panicked", slog.String("task", name), log.ErrAttr(err))
		}
	})
}

// taskName reads the name of t on the loop goroutine, keeping a panic in Name
// away from the loop.
func (p *Processor) taskName(t Task) string {
	var name string
	err := calm.Unpanic(func() error {
		name = t.Name()
		return nil
	})
	if err != nil {
		p.logger.Warn("task name unavailable", log.ErrAttr(err))
		return unknownTaskName
	}
	return name
}

func clockSleep(clock clockwork.Clock) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		timer := clock.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
			return nil
		}
	}
}
