package httpserver

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
	"github.com/sy22478/HealthMate-sub003/internal/errors"
)

// handleStatus reports registry counts computed at call time.
func (s *Server) handleStatus(c echo.Context) error {
	stats := s.admin.Stats()
	response := map[string]any{
		"status":             "ok",
		"active_connections": stats.AuthenticatedConnections,
		"total_connections":  stats.TotalConnections,
		"subscription_count": stats.SubscriptionCount,
		"distinct_users":     stats.DistinctUsers,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write status response: %w", err)
	}
	return nil
}

// handleConnectionHealth returns the health record for one connection.
// Unknown ids yield a not_found payload with HTTP 200 so monitoring
// tooling never needs to special-case errors.
func (s *Server) handleConnectionHealth(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errors.ValidationError("invalid connection id").WithContext("id", c.Param("id"))
	}

	if err := c.JSON(http.StatusOK, s.admin.Health(id)); err != nil {
		return fmt.Errorf("failed to write health response: %w", err)
	}
	return nil
}

// handleReconnectUser probes and repairs the user's connections.
func (s *Server) handleReconnectUser(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return errors.ValidationError("user id is required")
	}

	reconnected := s.admin.ReconnectUser(c.Request().Context(), userID)
	response := map[string]any{
		"reconnected": reconnected,
		"user_id":     userID,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write reconnect response: %w", err)
	}
	return nil
}

// handleDisconnect force-disconnects a connection. Idempotent: unknown
// or already-closed ids still return success.
func (s *Server) handleDisconnect(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errors.ValidationError("invalid connection id").WithContext("id", c.Param("id"))
	}

	s.admin.Disconnect(id, domain.ReasonAdminDisconnect)
	response := map[string]any{
		"disconnected":  true,
		"connection_id": id.String(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write disconnect response: %w", err)
	}
	return nil
}
