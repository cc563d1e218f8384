package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/hub"
	"github.com/weiawesome/babble-live/pkg/jwt"
	"github.com/weiawesome/babble-live/pkg/middleware"
)

var testClientConfig = hub.ClientConfig{
	PingInterval:   time.Second,
	PongWait:       5 * time.Second,
	WriteWait:      time.Second,
	MaxMessageSize: 4096,
	SendBuffer:     16,
}

type gateway struct {
	url string
	svc *fakeService
	mgr *jwt.Manager
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	mgr := newTokenManager(t)
	svc := &fakeService{viewers: 3}

	r := mux.NewRouter()
	NewWSHandler(svc, mgr, testClientConfig).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &gateway{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/live", svc: svc, mgr: mgr}
}

func (g *gateway) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(g.url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, frame interface{}) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply map[string]interface{}
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestWS_PingAndAuthRequired(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t, nil)

	reply := roundTrip(t, conn, map[string]string{"type": "ping"})
	assert.Equal(t, "pong", reply["type"])

	reply = roundTrip(t, conn, map[string]string{"type": "subscribe", "room_id": "r1"})
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, domain.ErrCodeUnauthorized, reply["code"])

	reply = roundTrip(t, conn, map[string]string{"type": "auth", "token": "garbage"})
	assert.Equal(t, "auth_result", reply["type"])
	assert.Equal(t, false, reply["success"])
}

func TestWS_AuthEnterPublish(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t, nil)

	reply := roundTrip(t, conn, map[string]string{"type": "auth", "token": issueToken(t, g.mgr, "u1")})
	require.Equal(t, true, reply["success"])
	assert.Equal(t, "u1", reply["user_id"])

	reply = roundTrip(t, conn, map[string]string{"type": "enter", "title": "movie-night"})
	assert.Equal(t, "subscribed", reply["type"])
	assert.Equal(t, "r1", reply["room_id"])
	assert.Equal(t, "movie-night", reply["title"])
	assert.Equal(t, float64(3), reply["viewer_count"])

	calls := g.svc.snapshot()
	assert.Equal(t, "u1", calls.enteredBy)
	assert.Equal(t, []string{"u1@r1"}, calls.subscribed)

	g.svc.fail(domain.ErrUnauthorized)
	reply = roundTrip(t, conn, map[string]string{"type": "message", "room_id": "r1", "body": "hi"})
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, domain.ErrCodeUnauthorized, reply["code"])

	reply = roundTrip(t, conn, map[string]string{"type": "unsubscribe", "room_id": "r1"})
	assert.Equal(t, domain.ErrCodeNotFound, reply["code"])

	reply = roundTrip(t, conn, map[string]string{"type": "bogus"})
	assert.Equal(t, domain.ErrCodeBadRequest, reply["code"])
}

func TestWS_Leave(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t, nil)

	reply := roundTrip(t, conn, map[string]string{"type": "auth", "token": issueToken(t, g.mgr, "u1")})
	require.Equal(t, true, reply["success"])

	// Leaving a room this connection never attached to still ends the membership.
	reply = roundTrip(t, conn, map[string]string{"type": "leave", "room_id": "r1"})
	assert.Equal(t, "left", reply["type"])
	assert.Equal(t, "r1", reply["room_id"])
	assert.Equal(t, []string{"u1@r1"}, g.svc.snapshot().left)

	g.svc.mu.Lock()
	g.svc.unsubErr = errors.New("redis unavailable")
	g.svc.mu.Unlock()
	reply = roundTrip(t, conn, map[string]string{"type": "leave", "room_id": "r2"})
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, domain.ErrCodeInternalError, reply["code"])
	assert.Equal(t, []string{"u1@r1"}, g.svc.snapshot().left)
}

func TestWS_BearerOnUpgradeAndDisconnect(t *testing.T) {
	g := newGateway(t)
	header := http.Header{}
	header.Set(middleware.AuthHeaderKey, middleware.BearerPrefix+issueToken(t, g.mgr, "u2"))
	conn := g.dial(t, header)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply map[string]interface{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "auth_result", reply["type"])
	assert.Equal(t, "u2", reply["user_id"])

	reply = roundTrip(t, conn, map[string]string{"type": "auth", "token": issueToken(t, g.mgr, "someone-else")})
	assert.Equal(t, domain.ErrCodeConflict, reply["code"])

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return len(g.svc.snapshot().disconnected) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
