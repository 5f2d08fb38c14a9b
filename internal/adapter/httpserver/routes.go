package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sy22478/HealthMate-sub003/internal/errors"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware())
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(errors.Middleware())

	s.echo.GET("/ws", s.handleWebSocket)

	s.echo.POST("/api/notify", s.handleNotify)
	s.echo.POST("/api/broadcast", s.handleBroadcast)

	admin := s.echo.Group("/api/admin")
	admin.GET("/status", s.handleStatus)
	admin.GET("/connections/:id/health", s.handleConnectionHealth)
	admin.POST("/users/:user_id/reconnect", s.handleReconnectUser)
	admin.DELETE("/connections/:id", s.handleDisconnect)

	s.registerHealthRoutes()
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
