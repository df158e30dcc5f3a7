package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Message is a single outbound JSON object. Every message carries "type".
type Message map[string]interface{}

// Client is one live connection for a player. The transport drains Out.
type Client struct {
	ID       uuid.UUID
	PlayerID uuid.UUID
	Out      chan Message

	limiter *rate.Limiter
	logger  *logrus.Entry

	overflow     chan struct{}
	overflowOnce sync.Once
}

// NewClient allocates a client with a buffered outbound channel.
func NewClient(playerID uuid.UUID, buffer int, limiter *rate.Limiter, logger *logrus.Logger) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	id := uuid.New()
	return &Client{
		ID:       id,
		PlayerID: playerID,
		Out:      make(chan Message, buffer),
		overflow: make(chan struct{}),
		limiter:  limiter,
		logger: logger.WithFields(logrus.Fields{
			"player_id": playerID,
			"conn_id":   id,
		}),
	}
}

// Write queues msg without blocking. A full buffer marks the client as
// overflowed and every later message is dropped; the transport should close
// the connection so the player reconnects and resyncs.
func (c *Client) Write(msg Message) {
	select {
	case <-c.overflow:
		return
	default:
	}
	select {
	case c.Out <- msg:
	default:
		msgType, _ := msg["type"].(string)
		c.logger.Warnf("outbound buffer full at message type '%s', closing connection", msgType)
		c.overflowOnce.Do(func() { close(c.overflow) })
	}
}

// Overflowed is closed once a message could not be queued.
func (c *Client) Overflowed() <-chan struct{} {
	return c.overflow
}

// WriteError sends an error event.
func (c *Client) WriteError(message string) {
	c.Write(Message{
		"type":    "error",
		"message": message,
	})
}

// Allow reports whether another inbound message may be processed now.
func (c *Client) Allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}
