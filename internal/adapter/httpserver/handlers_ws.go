package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sy22478/HealthMate-sub003/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The handshake credential authenticates the connection; the
		// Origin header is not part of the trust model.
		return true
	},
}

// handleWebSocket upgrades the request and hands the connection to the
// hub. The handler blocks for the lifetime of the connection.
func (s *Server) handleWebSocket(c echo.Context) error {
	if !s.admission.Allow(c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "connection rate limit exceeded")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		slog.Debug("WebSocket upgrade failed", "remote", c.RealIP(), "error", err)
		return nil
	}

	transport := realtime.NewWebSocketTransport(conn, s.clock)
	s.hub.ServeTransport(c.Request().Context(), transport)
	return nil
}
