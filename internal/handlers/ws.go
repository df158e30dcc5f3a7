// internal/handlers/ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/codeduel/internal/auth"
	"github.com/jason-s-yu/codeduel/internal/match"
	"github.com/jason-s-yu/codeduel/internal/middleware"
	"github.com/jason-s-yu/codeduel/internal/session"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "matchmaking"

const writeTimeout = 5 * time.Second

// MatchmakingWSHandler upgrades the request and attaches the player to the hub.
// originPatterns is passed to websocket.Accept; nil allows same-origin only.
func MatchmakingWSHandler(logger *logrus.Logger, hub *session.Hub, store *match.Store, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the matchmaking subprotocol")
			return
		}

		playerID, err := auth.AuthenticateRequest(r)
		if err != nil {
			logger.Warnf("websocket authentication failed from %s: %v", r.RemoteAddr, err)
			c.Close(InvalidAuthTokenError, "invalid auth token")
			return
		}
		if _, err := store.Player(r.Context(), playerID); err != nil {
			if errors.Is(err, match.ErrPlayerNotFound) {
				c.Close(InvalidPlayerIDError, "unknown player")
			} else {
				logger.WithError(err).Error("failed to load player for websocket")
				c.Close(websocket.StatusInternalError, "could not load player")
			}
			return
		}

		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		client := hub.NewClient(playerID)
		hub.Register(ctx, client)
		defer hub.Unregister(client)

		go writePump(ctx, cancel, c, client, logger)
		err = readPump(ctx, c, hub, client, logger)

		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump feeds inbound text frames to the hub until the socket closes.
func readPump(ctx context.Context, c *websocket.Conn, hub *session.Hub, client *session.Client, logger *logrus.Logger) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			logger.Warnf("player %v sent non-text message type %d, ignoring", client.PlayerID, typ)
			continue
		}
		hub.HandleMessage(ctx, client, msg)
	}
}

// writePump drains the client's outbound channel onto the socket.
func writePump(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, client *session.Client, logger *logrus.Logger) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Overflowed():
			logger.Warnf("player %v fell behind on outbound messages, closing", client.PlayerID)
			c.Close(websocket.StatusTryAgainLater, "outbound buffer overflow")
			return
		case msg := <-client.Out:
			writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c, msg)
			writeCancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for player %v: %v", client.PlayerID, err)
				return
			}
		}
	}
}
