package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/sy22478/HealthMate-sub003/internal/platform/correlation"
)

const correlationHeader = "X-Correlation-ID"

// correlationMiddleware stamps each request context with a correlation
// ID, honoring one supplied by the caller, and echoes it back in the
// response headers.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(correlationHeader)
			if id == "" {
				id = correlation.NewID()
			}

			ctx := correlation.WithID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(correlationHeader, id)

			return next(c)
		}
	}
}
