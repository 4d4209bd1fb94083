package runner_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zircuit-labs/zkr-taskworker/config"
	"github.com/zircuit-labs/zkr-taskworker/exitcode"
	"github.com/zircuit-labs/zkr-taskworker/runner"
	"github.com/zircuit-labs/zkr-taskworker/worker"
)

var errRunnable = errors.New("runnable failed")

const settings = `
[default]
[default.runner]
logstyle = "json"
`

func settingsFS(content string) fstest.MapFS {
	return fstest.MapFS{
		"data/settings.toml": &fstest.MapFile{Data: []byte(content)},
	}
}

// doneService returns straight away, which stops the whole process.
type doneService struct{}

func (doneService) Name() string {
	return "done"
}

func (doneService) Run(context.Context) error {
	return nil
}

func execute(t *testing.T, content string, run runner.Runnable) (exitcode.Code, string) {
	t.Helper()
	var buf bytes.Buffer
	code := runner.Execute("runner-test", settingsFS(content), run,
		runner.UseProvidedName(),
		runner.WithWriter(&buf),
		runner.WithConfigOptions(config.WithEnvPrefix("RUNNERTEST_")),
	)
	return code, buf.String()
}

func TestExecuteNormalExit(t *testing.T) {
	t.Parallel()

	code, out := execute(t, settings, func(_ *config.Configuration, r runner.Runner, _ *slog.Logger) error {
		r.Run(doneService{})
		return nil
	})
	assert.Equal(t, exitcode.OK, code)
	assert.Contains(t, out, "service exited normally")
}

func TestExecuteRunnableError(t *testing.T) {
	t.Parallel()

	code, out := execute(t, settings, func(*config.Configuration, runner.Runner, *slog.Logger) error {
		return errRunnable
	})
	assert.Equal(t, exitcode.Error, code)
	assert.Contains(t, out, "service failed with error")
	assert.Contains(t, out, errRunnable.Error())
}

func TestExecuteRunnablePanic(t *testing.T) {
	t.Parallel()

	code, out := execute(t, settings, func(*config.Configuration, runner.Runner, *slog.Logger) error {
		panic("runnable panic")
	})
	assert.Equal(t, exitcode.Panic, code)
	assert.Contains(t, out, "service failed with panic")
}

func TestExecuteWorkerFailure(t *testing.T) {
	t.Parallel()

	code, out := execute(t, settings, func(_ *config.Configuration, r runner.Runner, logger *slog.Logger) error {
		p := worker.NewProcessor(worker.NewQueue(), worker.MinPollInterval,
			worker.WithLogger(logger),
			worker.WithSleep(func(context.Context, time.Duration) error {
				return errRunnable
			}),
		)
		r.Run(worker.NewHostedWorker(p, r, worker.WithLogger(logger)))
		return nil
	})
	assert.Equal(t, exitcode.WorkerFailure, code)
	assert.Equal(t, 2, int(code))
	assert.Contains(t, out, "background worker failed")
	assert.Contains(t, out, "service stopped after background worker failure")
}

func TestExecuteConfigError(t *testing.T) {
	t.Parallel()

	called := false
	code, _ := execute(t, "[other]\n", func(*config.Configuration, runner.Runner, *slog.Logger) error {
		called = true
		return nil
	})
	assert.Equal(t, exitcode.Error, code)
	assert.False(t, called)
}

func TestExecuteTextStyle(t *testing.T) {
	t.Parallel()

	code, out := execute(t, "[default]\n[default.runner]\nlogstyle = \"text\"\n", func(_ *config.Configuration, r runner.Runner, _ *slog.Logger) error {
		r.Run(doneService{})
		return nil
	})
	require.Equal(t, exitcode.OK, code)
	assert.Contains(t, out, `msg="service exited normally"`)
}

func TestExecuteInvalidStyle(t *testing.T) {
	t.Parallel()

	code, _ := execute(t, "[default]\n[default.runner]\nlogstyle = \"xml\"\n", func(*config.Configuration, runner.Runner, *slog.Logger) error {
		return nil
	})
	assert.Equal(t, exitcode.Error, code)
}
