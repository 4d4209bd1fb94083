package server

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/zircuit-labs/zkr-taskworker/calm"
	"github.com/zircuit-labs/zkr-taskworker/log"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
)

// Recover turns a panicking handler into a 500 response.
func Recover(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := calm.Unpanic(func() error {
				return next(c)
			})
			switch errclass.GetClass(err) {
			case errclass.Nil:
				return nil
			case errclass.Panic:
				logger.Error("handler panicked",
					slog.String("method", c.Request().Method),
					slog.String("path", c.Path()),
					log.ErrAttr(err),
				)
				c.Error(err)
				return nil
			default:
				c.Error(err)
				return err
			}
		}
	}
}
