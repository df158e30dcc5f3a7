// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the matchmaking socket.
// These give more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // Token was missing, invalid or expired.
	InvalidPlayerIDError  websocket.StatusCode = 3002 // Token names a player that does not exist.
)
