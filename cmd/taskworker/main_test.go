package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zircuit-labs/zkr-taskworker/config"
	"github.com/zircuit-labs/zkr-taskworker/http/orderapi"
	"github.com/zircuit-labs/zkr-taskworker/ingest"
	"github.com/zircuit-labs/zkr-taskworker/lifecycle"
	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/log/logtest"
)

func testConfig(t *testing.T, overrides map[string]any) *config.Configuration {
	t.Helper()

	settings := map[string]any{
		"worker.dequeueintervalms":  250,
		"orders.processingdelay":    "20ms",
		"server.port":               0,
		"nats.enabled":              true,
		"nats.embedded":             true,
		"nats.server.servername":    "taskworker_test",
		"nats.server.enablelogging": false,
	}
	for k, v := range overrides {
		settings[k] = v
	}

	cfg, err := config.NewConfigurationFromMap(settings)
	require.NoError(t, err)
	return cfg
}

func TestEmbeddedSettings(t *testing.T) {
	t.Parallel()

	cfg, err := config.NewConfiguration(settings, config.WithEnvPrefix("TASKWORKER_TEST_"))
	require.NoError(t, err)

	workerCfg := workerConfig{}
	require.NoError(t, cfg.Unmarshal("worker", &workerCfg))
	assert.Equal(t, 1000, workerCfg.DequeueIntervalMs)

	ordersCfg := ordersConfig{}
	require.NoError(t, cfg.Unmarshal("orders", &ordersCfg))
	assert.Equal(t, 50*time.Second, ordersCfg.ProcessingDelay)
	assert.Equal(t, 100, ordersCfg.RecentSize)

	dbCfg := dbConfig{}
	require.NoError(t, cfg.Unmarshal("db", &dbCfg))
	assert.Empty(t, dbCfg.DSN)
	assert.Equal(t, 10, dbCfg.ConnectAttempts)
}

func TestAppProcessesOrders(t *testing.T) {
	t.Parallel()

	rec, logger := logtest.New()
	m := lifecycle.NewManager(lifecycle.WithParent(t.Context()), lifecycle.WithLogger(logger))

	a, err := newApp(m.Context(), testConfig(t, nil), logger)
	require.NoError(t, err)
	m.Cleanup(a.close)
	m.Run(a.services(m)...)

	// over HTTP
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"id":"http-1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	resp := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(resp, req)
	require.Equal(t, http.StatusAccepted, resp.Code)

	// over NATS
	nc, err := a.embedded.NewConnection()
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	var reply ingest.Reply
	require.Eventually(t, func() bool {
		msg, err := nc.Request(ingest.DefaultSubject, []byte(`{"id":"nats-1"}`), time.Second)
		if err != nil {
			return false
		}
		return json.Unmarshal(msg.Data, &reply) == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, ingest.Reply{ID: "nats-1", Status: "queued"}, reply)

	require.Eventually(t, func() bool {
		return len(rec.Find("task finished")) == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, a.queue.Len())

	resp = httptest.NewRecorder()
	a.server.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/orders", http.NoBody))
	var recent orderapi.RecentResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &recent))
	assert.Equal(t, []string{"nats-1", "http-1"}, recent.Orders)

	resp = httptest.NewRecorder()
	a.server.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthcheck", http.NoBody))
	assert.Equal(t, http.StatusOK, resp.Code)

	require.NoError(t, m.Stop())
}

func TestAppWithoutNATS(t *testing.T) {
	t.Parallel()

	a, err := newApp(t.Context(), testConfig(t, map[string]any{"nats.enabled": false}), log.NewNilLogger())
	require.NoError(t, err)
	t.Cleanup(a.close)

	assert.Nil(t, a.embedded)
	assert.Nil(t, a.subscriber)
	assert.Len(t, a.services(lifecycle.NewManager()), 2)
	assert.Equal(t, 250*time.Millisecond, a.processor.Interval())
}

func TestAppIntervalClamped(t *testing.T) {
	t.Parallel()

	rec, logger := logtest.New()
	a, err := newApp(t.Context(), testConfig(t, map[string]any{
		"nats.enabled":             false,
		"worker.dequeueintervalms": 10,
	}), logger)
	require.NoError(t, err)
	t.Cleanup(a.close)

	assert.Equal(t, 250*time.Millisecond, a.processor.Interval())
	assert.Len(t, rec.Find("task queue polling interval is lower than the minimum, using the minimum instead"), 1)
}

func TestAppDatabaseUnreachable(t *testing.T) {
	t.Parallel()

	_, err := newApp(t.Context(), testConfig(t, map[string]any{
		"nats.enabled":       false,
		"db.dsn":             "postgres://taskworker@127.0.0.1:1/taskworker?sslmode=disable&connect_timeout=1",
		"db.connectattempts": 1,
	}), log.NewNilLogger())
	require.Error(t, err)
}
