package main

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/zircuit-labs/zkr-taskworker/config"
	"github.com/zircuit-labs/zkr-taskworker/http/orderapi"
	"github.com/zircuit-labs/zkr-taskworker/http/server"
	"github.com/zircuit-labs/zkr-taskworker/http/server/healthcheck"
	"github.com/zircuit-labs/zkr-taskworker/ingest"
	"github.com/zircuit-labs/zkr-taskworker/lifecycle"
	"github.com/zircuit-labs/zkr-taskworker/orders"
	"github.com/zircuit-labs/zkr-taskworker/worker"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

var errNATSDisconnected = errors.New("nats connection is down")

type workerConfig struct {
	DequeueIntervalMs int `koanf:"dequeueintervalms"`
}

type ordersConfig struct {
	ProcessingDelay time.Duration `koanf:"processingdelay"`
	RecentSize      int           `koanf:"recentsize"`
	CacheTTL        time.Duration `koanf:"cachettl"`
}

type natsConfig struct {
	Enabled    bool
	Embedded   bool
	Subject    string
	QueueGroup string `koanf:"queuegroup"`
}

// app holds the components of the service before they are started.
type app struct {
	queue      *worker.Queue
	intake     *orders.Intake
	processor  *worker.Processor
	server     *server.Server
	embedded   *ingest.EmbeddedServer
	subscriber *ingest.Subscriber
	closers    []func()
	logger     *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Configuration, logger *slog.Logger) (_ *app, err error) {
	a := &app{
		queue:  worker.NewQueue(),
		logger: logger,
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	workerCfg := workerConfig{DequeueIntervalMs: 1000}
	if err := cfg.Unmarshal("worker", &workerCfg); err != nil {
		return nil, stacktrace.Wrap(err)
	}
	ordersCfg := ordersConfig{
		ProcessingDelay: orders.DefaultProcessingDelay,
		RecentSize:      orders.DefaultRecentSize,
		CacheTTL:        2 * time.Second,
	}
	if err := cfg.Unmarshal("orders", &ordersCfg); err != nil {
		return nil, stacktrace.Wrap(err)
	}

	// read once; changing the setting needs a restart
	a.processor = worker.NewProcessor(a.queue,
		time.Duration(workerCfg.DequeueIntervalMs)*time.Millisecond,
		worker.WithLogger(logger),
	)

	orderOpts := []orders.Option{
		orders.WithLogger(logger),
		orders.WithDelay(ordersCfg.ProcessingDelay),
	}
	apiOpts := []orderapi.Option{
		orderapi.WithLogger(logger),
		orderapi.WithCacheTTL(ordersCfg.CacheTTL),
	}
	var checkers []healthcheck.Checker

	ledger, db, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if ledger != nil {
		a.closers = append(a.closers, func() { _ = db.Close() })
		orderOpts = append(orderOpts, orders.WithRecorder(ledger))
		apiOpts = append(apiOpts, orderapi.WithLister(ledger))
		checkers = append(checkers, healthcheck.CheckerFunc(db.PingContext))
	}

	a.intake, err = orders.NewIntake(a.queue, ordersCfg.RecentSize, orderOpts...)
	if err != nil {
		return nil, err
	}

	nc, err := a.connectNATS(cfg)
	if err != nil {
		return nil, err
	}
	if nc != nil {
		checkers = append(checkers, healthcheck.CheckerFunc(func(context.Context) error {
			if !nc.IsConnected() {
				return errNATSDisconnected
			}
			return nil
		}))
	}

	a.server, err = server.NewServer(cfg, "server",
		server.WithLogger(logger),
		server.WithName("taskworker http server"),
		server.WithRoutes(orderapi.New(a.intake, apiOpts...)),
		server.WithHealthCheck(healthcheck.All(checkers...)),
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// connectNATS returns nil when NATS is disabled.
func (a *app) connectNATS(cfg *config.Configuration) (*nats.Conn, error) {
	natsCfg := natsConfig{
		Subject:    ingest.DefaultSubject,
		QueueGroup: ingest.DefaultQueueGroup,
	}
	if err := cfg.Unmarshal("nats", &natsCfg); err != nil {
		return nil, stacktrace.Wrap(err)
	}
	if !natsCfg.Enabled {
		return nil, nil
	}

	var nc *nats.Conn
	var err error
	if natsCfg.Embedded {
		a.embedded, err = ingest.NewEmbeddedServer(cfg, "nats.server")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.embedded.Close)
		nc, err = a.embedded.NewConnection()
	} else {
		nc, err = ingest.NewConnection(cfg, "nats")
	}
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, nc.Close)

	a.subscriber = ingest.NewSubscriber(nc, a.intake,
		ingest.WithLogger(a.logger),
		ingest.WithSubject(natsCfg.Subject),
		ingest.WithQueueGroup(natsCfg.QueueGroup),
	)
	return nc, nil
}

// services lists what has to run. stopper is asked to stop everything when
// the background worker fails.
func (a *app) services(stopper worker.Stopper) []lifecycle.Service {
	services := []lifecycle.Service{
		worker.NewHostedWorker(a.processor, stopper, worker.WithLogger(a.logger)),
		a.server,
	}
	if a.embedded != nil {
		services = append(services, a.embedded)
	}
	if a.subscriber != nil {
		services = append(services, a.subscriber)
	}
	return services
}

// close releases connections in reverse order of creation.
func (a *app) close() {
	for _, f := range slices.Backward(a.closers) {
		f()
	}
	a.closers = nil
}
