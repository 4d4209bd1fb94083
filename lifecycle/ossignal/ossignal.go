// Package ossignal provides a Service that returns when the process receives a termination signal.
package ossignal

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zircuit-labs/zkr-taskworker/log"
)

// DefaultSignals end the process gracefully.
var DefaultSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGQUIT,
}

// Service waits for a signal. Returning makes the lifecycle manager stop everything else.
type Service struct {
	sigCh  chan os.Signal
	logger *slog.Logger
}

type options struct {
	signals []os.Signal
	logger  *slog.Logger
}

// Option is an option func for New.
type Option func(options *options)

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// WithSignals replaces the default signals.
func WithSignals(signals ...os.Signal) Option {
	return func(options *options) {
		options.signals = signals
	}
}

// New creates the Service and starts listening immediately.
func New(opts ...Option) *Service {
	options := options{
		signals: DefaultSignals,
		logger:  log.NewNilLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	s := &Service{
		sigCh:  make(chan os.Signal, 1),
		logger: options.logger,
	}
	signal.Notify(s.sigCh, options.signals...)
	return s
}

func (s *Service) Name() string {
	return "os signal listener"
}

func (s *Service) Run(ctx context.Context) error {
	defer signal.Stop(s.sigCh)

	select {
	case sig := <-s.sigCh:
		s.logger.Warn("os signal received", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}
	return nil
}
