// Package healthcheck serves the liveness endpoint.
package healthcheck

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

//go:generate mockgen -source handler.go -destination mock_handler.go -package healthcheck

type (
	GetHealthCheck struct {
		checker Checker
		now     func() time.Time
	}

	Checker interface {
		HealthCheck(ctx context.Context) error
	}

	// CheckerFunc adapts a function to Checker.
	CheckerFunc func(ctx context.Context) error
)

func (f CheckerFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// All is healthy when every checker is. Each checker runs even after a failure.
func All(checkers ...Checker) Checker {
	return CheckerFunc(func(ctx context.Context) error {
		var errs []error
		for _, c := range checkers {
			errs = append(errs, c.HealthCheck(ctx))
		}
		return errors.Join(errs...)
	})
}

func New(checker Checker) *GetHealthCheck {
	return &GetHealthCheck{checker: checker, now: time.Now}
}

func (g GetHealthCheck) Handle(c echo.Context) error {
	if err := g.checker.HealthCheck(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, NewHealthCheck(g.now().UTC(), err))
	}

	return c.JSON(http.StatusOK, NewHealthCheck(g.now().UTC(), nil))
}
