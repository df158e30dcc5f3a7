package session

import (
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestWriteOverflowMarksClient(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c := NewClient(uuid.New(), 1, nil, logger)

	c.Write(Message{"type": "pong"})
	select {
	case <-c.Overflowed():
		t.Fatal("overflowed before the buffer filled")
	default:
	}

	c.Write(Message{"type": "match_completed"})
	c.Write(Message{"type": "pong"})
	select {
	case <-c.Overflowed():
	default:
		t.Fatal("expected overflow")
	}
	assert.Len(t, c.Out, 1)
	assert.Equal(t, "pong", (<-c.Out)["type"])

	// nothing is queued once overflowed, even with room
	c.Write(Message{"type": "pong"})
	assert.Len(t, c.Out, 0)
}
