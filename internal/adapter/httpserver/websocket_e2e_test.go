package httpserver

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sy22478/HealthMate-sub003/internal/adapter/token"
	"github.com/sy22478/HealthMate-sub003/internal/config"
	"github.com/sy22478/HealthMate-sub003/internal/domain"
	"github.com/sy22478/HealthMate-sub003/internal/realtime"
)

type wsEnvelope struct {
	Type         string         `json:"type"`
	Token        string         `json:"token,omitempty"`
	Status       string         `json:"status,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	Channel      string         `json:"channel,omitempty"`
	Notification map[string]any `json:"notification,omitempty"`
	Code         string         `json:"code,omitempty"`
	Message      string         `json:"message,omitempty"`
}

type wsFixture struct {
	cfg         *config.Config
	registry    *realtime.Registry
	dispatcher  *realtime.Dispatcher
	broadcaster *realtime.Broadcaster
	url         string
}

type defaultPrefs struct{}

func (defaultPrefs) GetPreference(context.Context, string, domain.NotificationType) (domain.NotificationPreference, error) {
	return domain.DefaultPreference(), nil
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, domain.AuditEvent) {}

func newWSFixture(t *testing.T, cfg *config.Config) *wsFixture {
	t.Helper()
	clock := clockwork.NewRealClock()

	registry := realtime.NewRegistry(realtime.Limits{
		MaxConnections:        cfg.MaxConnections,
		MaxConnectionsPerUser: cfg.MaxConnectionsPerUser,
	}, cfg.WriteTimeout, clock)
	t.Cleanup(registry.Shutdown)

	hub := realtime.NewHub(registry, token.NewVerifier(cfg.JWTSecret), cfg.AuthTimeout, clock)
	dispatcher := realtime.NewDispatcher(registry, defaultPrefs{}, nopAudit{}, cfg.SendMaxRetries, clock)
	broadcaster := realtime.NewBroadcaster(registry, cfg.SendMaxRetries, clock)

	srv := NewServer(cfg, registry, hub, dispatcher, broadcaster, nil, clock)
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	return &wsFixture{
		cfg:         cfg,
		registry:    registry,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		url:         "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

func (f *wsFixture) dial(t *testing.T) *ws.Conn {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *wsFixture) signToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": userID + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(f.cfg.JWTSecret))
	require.NoError(t, err)
	return signed
}

func sendJSON(t *testing.T, conn *ws.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func readEnvelope(t *testing.T, conn *ws.Conn) wsEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env wsEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

// authenticate dials, completes the handshake, and returns the live
// connection.
func (f *wsFixture) authenticate(t *testing.T, userID string) *ws.Conn {
	t.Helper()
	conn := f.dial(t)
	sendJSON(t, conn, wsEnvelope{Type: "auth", Token: f.signToken(t, userID)})

	env := readEnvelope(t, conn)
	require.Equal(t, "auth", env.Type)
	require.Equal(t, "ok", env.Status)
	require.Equal(t, userID, env.UserID)
	return conn
}

func TestWebSocket_ConnectAuthenticateSubscribeBroadcast(t *testing.T) {
	f := newWSFixture(t, testConfig())

	subscriber := f.authenticate(t, "u1")
	bystander := f.authenticate(t, "u2")

	sendJSON(t, subscriber, wsEnvelope{Type: "subscribe", Channel: "health_updates"})
	require.Eventually(t, func() bool {
		return len(f.registry.ChannelSubscribers("health_updates")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	delivered, err := f.broadcaster.Broadcast(context.Background(), "health_updates",
		map[string]any{"event": "bp_reading", "systolic": 160})
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	require.NoError(t, subscriber.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := subscriber.ReadMessage()
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "bp_reading", payload["event"])

	// The unsubscribed connection receives nothing.
	require.NoError(t, bystander.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = bystander.ReadMessage()
	assert.Error(t, err, "bystander should time out with no message")
}

func TestWebSocket_NotifyReachesAllUserSessions(t *testing.T) {
	f := newWSFixture(t, testConfig())

	first := f.authenticate(t, "u1")
	second := f.authenticate(t, "u1")
	f.authenticate(t, "u2")

	result, err := f.dispatcher.Notify(context.Background(), realtime.NotifyRequest{
		UserID:   "u1",
		Type:     domain.TypeHealthAlert,
		Title:    "Blood pressure high",
		Priority: domain.PriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSent, result.Outcome)
	assert.Equal(t, 2, result.Delivered)

	for _, conn := range []*ws.Conn{first, second} {
		env := readEnvelope(t, conn)
		assert.Equal(t, "notification", env.Type)
		require.NotNil(t, env.Notification)
		assert.Equal(t, "Blood pressure high", env.Notification["title"])
	}
}

func TestWebSocket_InvalidTokenRejectedAndClosed(t *testing.T) {
	f := newWSFixture(t, testConfig())

	conn := f.dial(t)
	sendJSON(t, conn, wsEnvelope{Type: "auth", Token: "forged-token"})

	env := readEnvelope(t, conn)
	assert.Equal(t, "error", env.Type)
	assert.Equal(t, string(domain.ReasonAuthRejected), env.Code)

	// The server closes the connection after the error envelope.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool {
		return f.registry.Stats().TotalConnections == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_AuthTimeoutCloses(t *testing.T) {
	cfg := testConfig()
	cfg.AuthTimeout = 200 * time.Millisecond
	f := newWSFixture(t, cfg)

	conn := f.dial(t)

	// Never authenticate; the server drops the connection.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var env wsEnvelope
		if json.Unmarshal(data, &env) == nil && env.Type == "error" {
			assert.Equal(t, string(domain.ReasonAuthTimeout), env.Code)
		}
	}

	require.Eventually(t, func() bool {
		return f.registry.Stats().TotalConnections == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_PingPong(t *testing.T) {
	f := newWSFixture(t, testConfig())

	conn := f.authenticate(t, "u1")
	sendJSON(t, conn, wsEnvelope{Type: "ping"})

	env := readEnvelope(t, conn)
	assert.Equal(t, "pong", env.Type)
}

func TestWebSocket_AdmissionRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.AdmissionRatePerSecond = 0.001
	cfg.AdmissionBurst = 1
	f := newWSFixture(t, cfg)

	f.dial(t)

	_, resp, err := ws.DefaultDialer.Dial(f.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 429, resp.StatusCode)
}

func TestWebSocket_PerUserQuotaOverWire(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnectionsPerUser = 1
	f := newWSFixture(t, cfg)

	f.authenticate(t, "u1")

	conn := f.dial(t)
	sendJSON(t, conn, wsEnvelope{Type: "auth", Token: f.signToken(t, "u1")})

	env := readEnvelope(t, conn)
	assert.Equal(t, "error", env.Type)
	assert.Equal(t, string(domain.ReasonQuotaExceeded), env.Code)
}
