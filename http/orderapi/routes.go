// Package orderapi exposes the order endpoints that feed the task queue.
package orderapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/zircuit-labs/zkr-taskworker/http/server"
	"github.com/zircuit-labs/zkr-taskworker/http/server/cache"
	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/orders"
)

const (
	defaultProcessedLimit = 20
	maxProcessedLimit     = 100
)

// Intake queues orders and reports on what it accepted.
type Intake interface {
	Submit(id string) (orders.Order, error)
	Recent() []string
	Pending() int
}

//go:generate mockgen -source routes.go -destination mock_routes.go -package orderapi

// Lister reads processed orders, most recent first.
type Lister interface {
	Recent(ctx context.Context, limit int) ([]orders.ProcessedOrder, error)
}

type options struct {
	logger   *slog.Logger
	lister   Lister
	cacheTTL time.Duration
}

// Option is an option func for New.
type Option func(options *options)

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// WithLister enables GET /orders/processed.
func WithLister(lister Lister) Option {
	return func(options *options) {
		options.lister = lister
	}
}

// WithCacheTTL sets how long processed order listings are served from memory.
func WithCacheTTL(ttl time.Duration) Option {
	return func(options *options) {
		options.cacheTTL = ttl
	}
}

// Routes serves the order endpoints.
type Routes struct {
	intake   Intake
	validate *validator.Validate
	options
}

var _ server.RouteRegistration = (*Routes)(nil)

func New(intake Intake, opts ...Option) *Routes {
	options := options{
		logger:   log.NewNilLogger(),
		cacheTTL: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Routes{
		intake:   intake,
		validate: validator.New(),
		options:  options,
	}
}

func (r *Routes) RegisterRoutes(reg server.RouteRegistrant) error {
	reg.POST("/orders", r.submit)
	reg.GET("/orders", r.recent)
	reg.GET("/queue", r.queue)

	if r.lister != nil {
		memory := cache.NewMemory(maxProcessedLimit, r.cacheTTL)
		reg.GET("/orders/processed", r.processed, cache.ResponseCacheMiddleware(memory))
	}
	return nil
}

func (r *Routes) submit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "malformed request body"})
	}
	if err := r.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "order id is too long"})
	}

	order, err := r.intake.Submit(req.ID)
	if errors.Is(err, orders.ErrInvalidOrderID) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: orders.ErrInvalidOrderID.Error()})
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, SubmitResponse{ID: order.ID, Status: "queued"})
}

func (r *Routes) recent(c echo.Context) error {
	return c.JSON(http.StatusOK, RecentResponse{Orders: r.intake.Recent()})
}

func (r *Routes) queue(c echo.Context) error {
	return c.JSON(http.StatusOK, QueueResponse{Pending: r.intake.Pending()})
}

func (r *Routes) processed(c echo.Context) error {
	limit := defaultProcessedLimit
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxProcessedLimit {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and " + strconv.Itoa(maxProcessedLimit)})
		}
		limit = n
	}

	rows, err := r.lister.Recent(c.Request().Context(), limit)
	if err != nil {
		r.logger.Error("failed to list processed orders", log.ErrAttr(err))
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "processed orders are unavailable"})
	}

	resp := ProcessedResponse{Orders: make([]ProcessedOrder, 0, len(rows))}
	for _, row := range rows {
		resp.Orders = append(resp.Orders, ProcessedOrder{ID: row.ID, ProcessedAt: row.ProcessedAt})
	}
	return c.JSON(http.StatusOK, resp)
}
