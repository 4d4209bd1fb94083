// Package lifecycle runs the long-lived services of a process and stops them together.
package lifecycle

import (
	"context"
	"log/slog"
	"slices"

	"github.com/zircuit-labs/zkr-taskworker/calm/errgroup"
	"github.com/zircuit-labs/zkr-taskworker/exitcode"
	"github.com/zircuit-labs/zkr-taskworker/log"
)

// Service is a long-lived component of the process.
type Service interface {
	// Run does the work of the service and blocks until the context is
	// cancelled or the service cannot continue.
	Run(context.Context) error

	// Name is a human-friendly name for logging.
	Name() string
}

// Manager runs services that should all stop as soon as any one of them stops.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	logger  *slog.Logger
	cleanup []func()
}

type options struct {
	logger *slog.Logger
	parent context.Context
}

// Option is an option func for NewManager.
type Option func(options *options)

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// WithParent derives the shared context from ctx instead of context.Background.
func WithParent(ctx context.Context) Option {
	return func(options *options) {
		options.parent = ctx
	}
}

// NewManager creates a Manager.
func NewManager(opts ...Option) *Manager {
	options := options{
		logger: log.NewNilLogger(),
		parent: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, cancel := context.WithCancel(options.parent)
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		group:  errgroup.New(),
		logger: options.logger,
	}
}

// Run starts the services. When any of them returns, for whatever reason,
// every other service is asked to stop.
func (m *Manager) Run(services ...Service) {
	for _, s := range services {
		m.group.Go(m.runService(s, true))
	}
}

// RunTerminable starts services that may finish on their own without stopping
// the others. An error still stops everything.
func (m *Manager) RunTerminable(services ...Service) {
	for _, s := range services {
		m.group.Go(m.runService(s, false))
	}
}

// Cleanup registers f to run after all services have stopped.
// Cleanups run in reverse order of registration.
func (m *Manager) Cleanup(f func()) {
	m.cleanup = append(m.cleanup, f)
}

// RequestStop asks every service to stop and returns immediately.
// It is safe to call from inside a running service.
func (m *Manager) RequestStop() {
	m.logger.Info("application stop requested")
	m.cancel()
}

// Wait blocks until all services are done, runs the cleanups and returns the first error.
func (m *Manager) Wait() error {
	err := m.group.Wait()
	for _, f := range slices.Backward(m.cleanup) {
		f()
	}
	m.cancel()
	return err
}

// Stop is RequestStop followed by Wait.
func (m *Manager) Stop() error {
	m.cancel()
	return m.Wait()
}

// Context is the context shared by all services.
func (m *Manager) Context() context.Context {
	return m.ctx
}

func (m *Manager) runService(s Service, stopAll bool) func() error {
	return func() error {
		m.logger.Info("service starting", slog.String("service", s.Name()))
		if err := s.Run(m.ctx); err != nil {
			level := slog.LevelError
			if _, reported := exitcode.Get(err); reported {
				// the service logged it when choosing the exit code
				level = slog.LevelDebug
			}
			m.logger.Log(m.ctx, level, "service failed", slog.String("service", s.Name()), log.ErrAttr(err))
			m.cancel()
			return err
		}
		if stopAll {
			m.cancel()
		}
		m.logger.Info("service stopped", slog.String("service", s.Name()))
		return nil
	}
}
