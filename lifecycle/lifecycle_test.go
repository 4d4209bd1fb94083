package lifecycle_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zircuit-labs/zkr-taskworker/exitcode"
	"github.com/zircuit-labs/zkr-taskworker/lifecycle"
	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/log/logtest"
)

var errTest = errors.New("test error")

type testService struct {
	errChan chan error
	name    string
	err     error
}

func newTestService(name string, err error) *testService {
	return &testService{
		errChan: make(chan error),
		name:    name,
		err:     err,
	}
}

func (s *testService) Run(ctx context.Context) error {
	select {
	case err := <-s.errChan:
		return err
	case <-ctx.Done():
		return s.err
	}
}

func (s *testService) Finish(err error) {
	s.errChan <- err
}

func (s *testService) Name() string {
	return s.name
}

func TestManagerStop(t *testing.T) {
	t.Parallel()

	m := lifecycle.NewManager(lifecycle.WithLogger(log.NewTestLogger(t)))

	cleanupCheck := make([]int, 0, 2)
	m.Cleanup(func() { cleanupCheck = append(cleanupCheck, 1) })
	m.Cleanup(func() { cleanupCheck = append(cleanupCheck, 2) })

	m.Run(newTestService("s1", nil), newTestService("s2", nil))

	assert.NoError(t, m.Stop())
	assert.Equal(t, []int{2, 1}, cleanupCheck)
}

func TestManagerStopError(t *testing.T) {
	t.Parallel()

	m := lifecycle.NewManager(lifecycle.WithLogger(log.NewTestLogger(t)))
	m.Run(newTestService("s1", errTest), newTestService("s2", nil))

	assert.ErrorIs(t, m.Stop(), errTest)
}

func TestManagerServiceErrorStopsAll(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		m := lifecycle.NewManager(lifecycle.WithLogger(log.NewTestLogger(t)))

		s1 := newTestService("s1", nil)
		s2 := newTestService("s2", nil)
		m.Run(s1, s2)

		go func() {
			time.Sleep(100 * time.Millisecond)
			s2.Finish(errTest)
		}()

		assert.ErrorIs(t, m.Wait(), errTest)
		assert.Error(t, m.Context().Err())
	})
}

func TestManagerRunTerminable(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		m := lifecycle.NewManager(lifecycle.WithLogger(log.NewTestLogger(t)))

		s1 := newTestService("s1", nil)
		s2 := newTestService("s2", nil)
		m.Run(s1)
		m.RunTerminable(s2)

		// s2 finishing on its own leaves s1 running
		go func() {
			time.Sleep(100 * time.Millisecond)
			s2.Finish(nil)
		}()
		go func() {
			time.Sleep(200 * time.Millisecond)
			s1.Finish(errTest)
		}()

		time.Sleep(150 * time.Millisecond)
		assert.NoError(t, m.Context().Err())

		assert.ErrorIs(t, m.Wait(), errTest)
	})
}

func TestManagerRequestStopFromService(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		m := lifecycle.NewManager(lifecycle.WithLogger(log.NewTestLogger(t)))

		other := newTestService("other", nil)
		m.RunTerminable(stopper{m: m})
		m.Run(other)

		assert.ErrorIs(t, m.Wait(), errTest)
		assert.Error(t, m.Context().Err())
	})
}

// stopper asks the whole application to stop, then fails.
type stopper struct {
	m *lifecycle.Manager
}

func (s stopper) Run(context.Context) error {
	s.m.RequestStop()
	return errTest
}

func (s stopper) Name() string {
	return "stopper"
}

func TestManagerParentCancel(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(t.Context())
	m := lifecycle.NewManager(lifecycle.WithParent(parent))
	m.Run(newTestService("s1", nil))

	cancel()
	assert.NoError(t, m.Wait())
}

func TestManagerServiceFailureLogLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err   error
		level slog.Level
	}{
		"plain error":           {err: errTest, level: slog.LevelError},
		"exit code already set": {err: exitcode.WrapAs(errTest, exitcode.WorkerFailure), level: slog.LevelDebug},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rec, logger := logtest.New()
			m := lifecycle.NewManager(lifecycle.WithLogger(logger))
			s := newTestService("failing", nil)
			m.Run(s)
			s.Finish(tc.err)

			assert.ErrorIs(t, m.Wait(), errTest)

			failed := rec.Find("service failed")
			if assert.Len(t, failed, 1) {
				assert.Equal(t, tc.level, failed[0].Level)
				assert.Equal(t, "failing", failed[0].Attr("service"))
			}
		})
	}
}
