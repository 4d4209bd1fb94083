// Package cache serves repeated GET requests from memory.
package cache

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type cacher interface {
	Get(key string) ([]byte, bool)
	Set(key string, content []byte)
}

// ResponseCacheMiddleware answers GET requests from cacher when it can, and stores
// successful JSON responses for later requests to the same URL.
func ResponseCacheMiddleware(cacher cacher) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}

			key := c.Request().URL.String()

			if content, found := cacher.Get(key); found {
				return c.JSONBlob(http.StatusOK, content)
			}

			res := c.Response()
			buf := newResponseBuffer(res.Writer)
			res.Writer = buf
			defer func() { res.Writer = buf.writer }()

			if err := next(c); err != nil {
				return err
			}

			if buf.status == http.StatusOK {
				cacher.Set(key, buf.body.Bytes())
			}
			return nil
		}
	}
}
