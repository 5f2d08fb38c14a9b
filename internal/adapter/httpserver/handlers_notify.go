package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
	"github.com/sy22478/HealthMate-sub003/internal/errors"
	"github.com/sy22478/HealthMate-sub003/internal/realtime"
)

type notifyRequest struct {
	UserID      string         `json:"user_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Priority    string         `json:"priority"`
	ContextData map[string]any `json:"context_data"`
}

// handleNotify is the entry point the surrounding application's chat
// and health services push notification events through.
func (s *Server) handleNotify(c echo.Context) error {
	var req notifyRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("malformed notify request")
	}
	if req.UserID == "" {
		return errors.ValidationError("user_id is required")
	}

	result, err := s.dispatcher.Notify(c.Request().Context(), realtime.NotifyRequest{
		UserID:      req.UserID,
		Type:        domainType(req.Type),
		Title:       req.Title,
		Body:        req.Body,
		Priority:    domainPriority(req.Priority),
		ContextData: req.ContextData,
	})
	if err != nil {
		return errors.InternalError("notification dispatch failed", err)
	}

	response := map[string]any{
		"message_id":  result.MessageID.String(),
		"outcome":     string(result.Outcome),
		"connections": result.Connections,
		"delivered":   result.Delivered,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write notify response: %w", err)
	}
	return nil
}

func domainType(s string) domain.NotificationType {
	if s == "" {
		return domain.TypeSystem
	}
	return domain.NotificationType(s)
}

func domainPriority(s string) domain.Priority {
	if s == "" {
		return domain.PriorityNormal
	}
	return domain.Priority(s)
}

type broadcastRequest struct {
	Channel string         `json:"channel"`
	Message map[string]any `json:"message"`
}

// handleBroadcast fans a message out to every subscriber of a channel.
func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("malformed broadcast request")
	}
	if req.Channel == "" {
		return errors.ValidationError("channel is required")
	}

	delivered, err := s.broadcaster.Broadcast(c.Request().Context(), req.Channel, req.Message)
	if err != nil {
		return errors.InternalError("broadcast failed", err)
	}

	response := map[string]any{
		"channel":   req.Channel,
		"delivered": delivered,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write broadcast response: %w", err)
	}
	return nil
}
