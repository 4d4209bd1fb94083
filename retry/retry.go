// Package retry calls a function again, with exponential backoff, until it
// succeeds or fails with an error that is not worth retrying.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zircuit-labs/zkr-taskworker/calm"
	"github.com/zircuit-labs/zkr-taskworker/xerrors"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

// Cause says why Try stopped.
type Cause int

const (
	Success Cause = iota
	MaxAttemptsReached
	PersistentErrorEncountered
	ContextDone
)

func (c Cause) String() string {
	switch c {
	case Success:
		return "success"
	case MaxAttemptsReached:
		return "max attempts reached"
	case PersistentErrorEncountered:
		return "persistent error"
	case ContextDone:
		return "context done"
	default:
		return "unknown"
	}
}

// Stats is attached to every error Try returns. Read it with xerrors.Extract.
type Stats struct {
	Attempts int
	Duration time.Duration
	Cause    Cause
}

type options struct {
	initialDelay   time.Duration
	maxDelay       time.Duration
	maxAttempts    int
	jitter         bool
	treatUnknownAs errclass.Class
	clock          clockwork.Clock
}

// Option is an option func for NewRetrier.
type Option func(options *options)

// WithBackoff sets the first delay and the cap the doubling delays grow to.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(options *options) {
		options.initialDelay = initial
		options.maxDelay = maxDelay
	}
}

// WithMaxAttempts limits the number of calls. Zero means no limit.
func WithMaxAttempts(n int) Option {
	return func(options *options) {
		options.maxAttempts = n
	}
}

// WithoutJitter waits the exact backoff delay instead of a random share of it.
func WithoutJitter() Option {
	return func(options *options) {
		options.jitter = false
	}
}

// WithUnknownErrorsAs decides whether unclassified errors are retried (errclass.Transient,
// the default) or not (errclass.Persistent).
func WithUnknownErrorsAs(class errclass.Class) Option {
	return func(options *options) {
		options.treatUnknownAs = class
	}
}

// WithClock sets the clock delays are measured on.
func WithClock(clock clockwork.Clock) Option {
	return func(options *options) {
		options.clock = clock
	}
}

// Retrier holds retry settings. It is safe for concurrent use.
type Retrier struct {
	opts options
}

func NewRetrier(opts ...Option) *Retrier {
	options := options{
		initialDelay:   time.Second,
		maxDelay:       30 * time.Second,
		jitter:         true,
		treatUnknownAs: errclass.Transient,
		clock:          clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Retrier{opts: options}
}

// Try calls f until it returns nil, returns a persistent error or panics, the
// attempts run out, or ctx is done. The last error is returned with Stats attached.
func (r *Retrier) Try(ctx context.Context, f func() error) error {
	start := r.opts.clock.Now()
	delay := time.Duration(0)

	var err error
	var cause Cause
	attempt := 0

	for {
		if ctx.Err() != nil {
			if err == nil {
				err = stacktrace.Wrap(ctx.Err())
			}
			cause = ContextDone
			break
		}

		attempt++
		err = calm.Unpanic(f)

		class := errclass.GetClass(err)
		if class == errclass.Unknown {
			class = r.opts.treatUnknownAs
		}
		if class == errclass.Nil {
			return nil
		}
		if class == errclass.Panic || class == errclass.Persistent {
			cause = PersistentErrorEncountered
			break
		}
		if r.opts.maxAttempts > 0 && attempt >= r.opts.maxAttempts {
			cause = MaxAttemptsReached
			break
		}

		delay = r.next(delay)
		r.wait(ctx, delay)
	}

	return xerrors.Extend(Stats{
		Attempts: attempt,
		Duration: r.opts.clock.Since(start),
		Cause:    cause,
	}, err)
}

// next doubles prev, up to maxDelay.
func (r *Retrier) next(prev time.Duration) time.Duration {
	if prev == 0 {
		return min(r.opts.initialDelay, r.opts.maxDelay)
	}
	return min(prev*2, r.opts.maxDelay)
}

func (r *Retrier) wait(ctx context.Context, d time.Duration) {
	if r.opts.jitter && d > 0 {
		d = rand.N(d)
	}
	timer := r.opts.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
	case <-ctx.Done():
	}
}
