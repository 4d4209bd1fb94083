// Package runner takes care of the boilerplate every service main shares: identity,
// logging, configuration, tracing, OS signals, the lifecycle manager and the exit status.
package runner

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/DataDog/dd-trace-go/v2/profiler"

	"github.com/zircuit-labs/zkr-taskworker/calm"
	"github.com/zircuit-labs/zkr-taskworker/config"
	"github.com/zircuit-labs/zkr-taskworker/exitcode"
	"github.com/zircuit-labs/zkr-taskworker/lifecycle"
	"github.com/zircuit-labs/zkr-taskworker/lifecycle/ossignal"
	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/log/identity"
	"github.com/zircuit-labs/zkr-taskworker/version"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

const cfgPath = "runner"

type runnerConfig struct {
	LogLevel string
	LogStyle string
}

type options struct {
	useProvidedName bool
	writer          io.Writer
	configOptions   []config.Option
}

// Option is an option func for Run and Execute.
type Option func(options *options)

// UseProvidedName ignores DD_SERVICE and always uses the name given to Run.
func UseProvidedName() Option {
	return func(options *options) {
		options.useProvidedName = true
	}
}

// WithWriter sends log output to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(options *options) {
		options.writer = w
	}
}

// WithConfigOptions is passed on to config.NewConfiguration.
func WithConfigOptions(opts ...config.Option) Option {
	return func(options *options) {
		options.configOptions = append(options.configOptions, opts...)
	}
}

// Runner is the part of the lifecycle manager a Runnable gets to use.
type Runner interface {
	Run(services ...lifecycle.Service)
	RunTerminable(services ...lifecycle.Service)
	Cleanup(f func())
	RequestStop()
	Context() context.Context
}

// Runnable sets up the services of a process and hands them to the Runner.
// It should return once they are started.
type Runnable func(cfg *config.Configuration, r Runner, logger *slog.Logger) error

// Run executes run and exits the process with the resulting status. It never returns.
func Run(serviceName string, f fs.FS, run Runnable, opts ...Option) {
	os.Exit(int(Execute(serviceName, f, run, opts...))) //revive:disable:deep-exit // intentional
}

// Execute is Run without the exit: it returns the status the process should end with.
func Execute(serviceName string, f fs.FS, run Runnable, opts ...Option) exitcode.Code {
	options := options{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	name, ok := os.LookupEnv("DD_SERVICE")
	if !ok || options.useProvidedName {
		name = serviceName
	}
	identity.SetServiceName(name)
	n, id := identity.WhoAmI()

	logOpts := []log.Option{
		log.WithWriter(options.writer),
		log.WithServiceName(n),
		log.WithInstanceID(id),
		log.WithVersion(&version.Info),
	}
	logger, err := log.NewLogger(logOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %s\n", err)
		return exitcode.Error
	}

	// goroutines started by run must protect themselves
	err = calm.Unpanic(func() error {
		var err error
		logger, err = protectedRun(f, run, logger, logOpts, options)
		return err
	})

	code := exitcode.For(err)
	switch code {
	case exitcode.OK:
		logger.Info("service exited normally")
	case exitcode.Panic:
		logger.Error("service failed with panic", log.ErrAttr(err))
	case exitcode.WorkerFailure:
		logger.Error("service stopped after background worker failure", slog.Int("exit_code", int(code)), log.ErrAttr(err))
	default:
		logger.Error("service failed with error", slog.Int("exit_code", int(code)), log.ErrAttr(err))
	}
	return code
}

// protectedRun returns the logger it ended up using along with the outcome.
func protectedRun(f fs.FS, run Runnable, logger *slog.Logger, logOpts []log.Option, opts options) (*slog.Logger, error) {
	cfg, err := config.NewConfiguration(f, opts.configOptions...)
	if err != nil {
		return logger, err
	}

	runnerCfg := runnerConfig{}
	if err := cfg.Unmarshal(cfgPath, &runnerCfg); err != nil {
		return logger, stacktrace.Wrap(err)
	}

	if runnerCfg.LogStyle != "" {
		style, err := log.ParseLogStyle(runnerCfg.LogStyle)
		if err != nil {
			return logger, err
		}
		styled, err := log.NewLogger(append(logOpts, log.WithLogStyle(style))...)
		if err != nil {
			return logger, err
		}
		logger = styled
	}

	if runnerCfg.LogLevel != "" {
		if err := log.SetLogLevel(runnerCfg.LogLevel); err != nil {
			logger.Error("failed to set log level", log.ErrAttr(err))
		}
	}

	if _, ok := os.LookupEnv("DD_APM_ENABLED"); ok {
		stop, err := startDatadog(logger)
		if err != nil {
			return logger, err
		}
		defer stop()
	}

	m := lifecycle.NewManager(lifecycle.WithLogger(logger))
	m.Run(ossignal.New(ossignal.WithLogger(logger)))

	if err := run(cfg, m, logger); err != nil {
		_ = m.Stop()
		return logger, err
	}

	return logger, m.Wait()
}

func startDatadog(logger *slog.Logger) (func(), error) {
	name, id := identity.WhoAmI()

	err := profiler.Start(
		profiler.WithService(name),
		profiler.WithVersion(version.Info.Version),
		profiler.WithTags(
			fmt.Sprintf("instance:%s", id),
			fmt.Sprintf("git_commit:%s", version.Info.GitCommit),
		),
		profiler.WithProfileTypes(
			profiler.CPUProfile,
			profiler.HeapProfile,
			profiler.GoroutineProfile,
		),
	)
	if err != nil {
		logger.Error("failed to start datadog profiler", log.ErrAttr(err))
		return nil, stacktrace.Wrap(err)
	}

	err = tracer.Start(
		tracer.WithService(name),
		tracer.WithServiceVersion(version.Info.Version),
	)
	if err != nil {
		profiler.Stop()
		logger.Error("failed to start datadog tracer", log.ErrAttr(err))
		return nil, stacktrace.Wrap(err)
	}

	return func() {
		tracer.Stop()
		profiler.Stop()
	}, nil
}
