// Package server runs the echo HTTP server that producers reach the task queue through.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	echotrace "github.com/DataDog/dd-trace-go/contrib/labstack/echo.v4/v2"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/zircuit-labs/zkr-taskworker/calm/errgroup"
	"github.com/zircuit-labs/zkr-taskworker/config"
	"github.com/zircuit-labs/zkr-taskworker/http/server/healthcheck"
	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/log/identity"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

var ErrTLSUnsupported = errors.New("tls is not supported")

// RouteRegistrant is able to register URI routes only.
type RouteRegistrant interface {
	DELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	HEAD(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	PATCH(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	PUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

const (
	healthCheckRoute = "/healthcheck"
	metricsRoute     = "/metrics"
)

// RouteRegistration registers routes.
type RouteRegistration interface {
	RegisterRoutes(RouteRegistrant) error
}

type serverConfig struct {
	Port               int
	TLS                bool
	DisableCompression bool `koanf:"nogzip"`
	Prometheus         string
}

type options struct {
	name        string
	routes      []RouteRegistration
	middlewares []echo.MiddlewareFunc
	healthcheck healthcheck.Checker
	logger      *slog.Logger
}

// Option is an option func for NewServer.
type Option func(options *options)

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// WithName sets the name of the service.
func WithName(name string) Option {
	return func(options *options) {
		options.name = name
	}
}

// WithRoutes adds routes to be served.
func WithRoutes(routes RouteRegistration) Option {
	return func(options *options) {
		options.routes = append(options.routes, routes)
	}
}

// WithMiddleware adds middleware applied to every route.
func WithMiddleware(m echo.MiddlewareFunc) Option {
	return func(options *options) {
		options.middlewares = append(options.middlewares, m)
	}
}

// WithHealthCheck serves checker on /healthcheck.
func WithHealthCheck(checker healthcheck.Checker) Option {
	return func(options *options) {
		options.healthcheck = checker
	}
}

// Server is an HTTP server using the echo framework.
type Server struct {
	e      *echo.Echo
	name   string
	port   int
	logger *slog.Logger
}

// NewServer creates the server from the settings at cfgPath. A port of 0
// picks any free port.
func NewServer(cfg *config.Configuration, cfgPath string, opts ...Option) (*Server, error) {
	srvConfig := serverConfig{}
	if err := cfg.Unmarshal(cfgPath, &srvConfig); err != nil {
		return nil, stacktrace.Wrap(err)
	}

	options := options{
		name:   "http server",
		logger: log.NewNilLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if srvConfig.TLS {
		// TODO: terminate TLS here once certificates are provisioned with the config.
		return nil, errclass.WrapAs(stacktrace.Wrap(ErrTLSUnsupported), errclass.Persistent)
	}

	p := srvConfig.Port
	if p == 0 {
		var err error
		if p, err = availablePort(); err != nil {
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if _, ok := os.LookupEnv("DD_APM_ENABLED"); ok {
		serviceName, _ := identity.WhoAmI()
		e.Use(echotrace.Middleware(echotrace.WithService(serviceName)))
	}
	e.Use(middleware.CORS())
	e.Use(Recover(options.logger))
	e.Pre(middleware.RemoveTrailingSlash())

	if !srvConfig.DisableCompression {
		e.Use(middleware.Gzip())
	}

	for _, m := range options.middlewares {
		e.Use(m)
	}

	if srvConfig.Prometheus != "" {
		e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Subsystem:                 srvConfig.Prometheus,
			DoNotUseRequestPathFor404: true,
		}))
		e.GET(metricsRoute, echoprometheus.NewHandler())
	}

	for _, r := range options.routes {
		if err := r.RegisterRoutes(e); err != nil {
			return nil, err
		}
	}

	if options.healthcheck != nil {
		e.GET(healthCheckRoute, healthcheck.New(options.healthcheck).Handle)
	}

	return &Server{
		e:      e,
		port:   p,
		name:   options.name,
		logger: options.logger,
	}, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Port is the port the server listens on.
func (s *Server) Port() int {
	return s.port
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", slog.Int("port", s.port))
		err := s.e.Start(fmt.Sprintf(":%d", s.port))
		// returned on graceful shutdown
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return stacktrace.Wrap(err)
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.e.Shutdown(context.WithoutCancel(gctx))
	})

	return g.Wait()
}

func (s *Server) Name() string {
	return fmt.Sprintf("%s on :%d", s.name, s.port)
}
