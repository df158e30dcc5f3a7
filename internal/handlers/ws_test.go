package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jason-s-yu/codeduel/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialMatchmaking(t *testing.T, srv *httptest.Server, token string, subprotocols ...string) *websocket.Conn {
	t.Helper()
	if subprotocols == nil {
		subprotocols = []string{Subprotocol}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/matchmaking"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   header,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

// readUntil reads frames until one with the given type arrives.
func readUntil(t *testing.T, c *websocket.Conn, typ string) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var msg map[string]interface{}
		require.NoError(t, wsjson.Read(ctx, c, &msg))
		if msg["type"] == typ {
			return msg
		}
	}
}

func closeStatusOf(t *testing.T, c *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	return websocket.CloseStatus(err)
}

func TestWSPingPong(t *testing.T) {
	h := newAPIHarness(t)
	srv := httptest.NewServer(h.mux)
	defer srv.Close()
	alice := h.register(t, "alice")

	c := dialMatchmaking(t, srv, alice.Token)
	require.NoError(t, wsjson.Write(context.Background(), c, map[string]string{"type": "ping"}))
	readUntil(t, c, "pong")
}

func TestWSRejectsBadToken(t *testing.T) {
	h := newAPIHarness(t)
	srv := httptest.NewServer(h.mux)
	defer srv.Close()

	c := dialMatchmaking(t, srv, "garbage")
	assert.Equal(t, InvalidAuthTokenError, closeStatusOf(t, c))
}

func TestWSRejectsUnknownPlayer(t *testing.T) {
	h := newAPIHarness(t)
	srv := httptest.NewServer(h.mux)
	defer srv.Close()

	token, err := auth.CreateJWT(uuid.New())
	require.NoError(t, err)
	c := dialMatchmaking(t, srv, token)
	assert.Equal(t, InvalidPlayerIDError, closeStatusOf(t, c))
}

func TestWSRejectsWrongSubprotocol(t *testing.T) {
	h := newAPIHarness(t)
	srv := httptest.NewServer(h.mux)
	defer srv.Close()
	alice := h.register(t, "alice")

	c := dialMatchmaking(t, srv, alice.Token, "lobby")
	assert.Equal(t, BadSubprotocolError, closeStatusOf(t, c))
}

func TestWSDuelFlow(t *testing.T) {
	h := newAPIHarness(t)
	srv := httptest.NewServer(h.mux)
	defer srv.Close()
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")

	ca := dialMatchmaking(t, srv, alice.Token)
	cb := dialMatchmaking(t, srv, bob.Token)
	ctx := context.Background()

	require.NoError(t, wsjson.Write(ctx, ca, map[string]string{"type": "join_queue"}))
	readUntil(t, ca, "queue_joined")
	require.NoError(t, wsjson.Write(ctx, cb, map[string]string{"type": "join_queue"}))

	found := readUntil(t, ca, "match_found")
	matchID := found["match_id"].(string)
	assert.Equal(t, matchID, readUntil(t, cb, "match_found")["match_id"])

	active := readUntil(t, ca, "timer_update")
	for active["phase"] != "active" {
		active = readUntil(t, ca, "timer_update")
	}
	assert.NotNil(t, active["start_timestamp"])

	require.NoError(t, wsjson.Write(ctx, cb, map[string]string{"type": "resign_match", "match_id": matchID}))
	done := readUntil(t, ca, "match_completed")
	assert.Equal(t, "won", done["result"])
	assert.Equal(t, "opponent_resigned", done["reason"])
	lost := readUntil(t, cb, "match_completed")
	assert.Equal(t, "lost", lost["result"])
	assert.Equal(t, "resigned", lost["reason"])
}
