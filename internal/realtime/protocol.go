package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/sy22478/HealthMate-sub003/internal/domain"
)

// Message types of the wire envelope. Every message in both directions
// is a tagged JSON object {"type": ..., type-specific fields}.
const (
	MessageTypeAuth         = "auth"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeNotification = "notification"
	MessageTypeError        = "error"
)

// Envelope is the wire format shared by both directions. Only the
// fields relevant to the envelope's type are populated.
type Envelope struct {
	Type string `json:"type"`

	// auth (client -> server) and its server reply
	Token  string `json:"token,omitempty"`
	Status string `json:"status,omitempty"`
	UserID string `json:"user_id,omitempty"`

	// subscribe / unsubscribe
	Channel string `json:"channel,omitempty"`

	// notification (server -> client)
	Notification *domain.NotificationMessage `json:"notification,omitempty"`

	// error (server -> client)
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func parseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed envelope: %w", err)
	}
	return env, nil
}

func encodeEnvelope(env Envelope) []byte {
	data, err := json.Marshal(env)
	if err != nil {
		// Envelope fields are all marshalable; this cannot fail at runtime.
		panic(fmt.Sprintf("encode envelope: %v", err))
	}
	return data
}

func authOKEnvelope(userID string) []byte {
	return encodeEnvelope(Envelope{Type: MessageTypeAuth, Status: "ok", UserID: userID})
}

func pongEnvelope() []byte {
	return encodeEnvelope(Envelope{Type: MessageTypePong})
}

func pingEnvelope() []byte {
	return encodeEnvelope(Envelope{Type: MessageTypePing})
}

func errorEnvelope(code, message string) []byte {
	return encodeEnvelope(Envelope{Type: MessageTypeError, Code: code, Message: message})
}

func notificationEnvelope(msg *domain.NotificationMessage) []byte {
	return encodeEnvelope(Envelope{Type: MessageTypeNotification, Notification: msg})
}
