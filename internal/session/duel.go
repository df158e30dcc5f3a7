package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Duel timer phases as sent in timer_update.
const (
	PhaseCountdown = "countdown"
	PhaseStart     = "start"
	PhaseActive    = "active"
)

// duel is the runtime state of one in-flight match and its timer task.
type duel struct {
	matchID   uuid.UUID
	players   [2]uuid.UUID
	createdAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu        sync.Mutex
	phase     string
	startedAt time.Time
}

func newDuel(parent context.Context, matchID, a, b uuid.UUID, createdAt time.Time) *duel {
	ctx, cancel := context.WithCancel(parent)
	return &duel{
		matchID:   matchID,
		players:   [2]uuid.UUID{a, b},
		createdAt: createdAt,
		ctx:       ctx,
		cancel:    cancel,
		phase:     PhaseCountdown,
	}
}

// stop cancels the timer task. Safe to call more than once.
func (d *duel) stop() {
	d.once.Do(d.cancel)
}

func (d *duel) setPhase(phase string) {
	d.mu.Lock()
	d.phase = phase
	d.mu.Unlock()
}

func (d *duel) activate(at time.Time) {
	d.mu.Lock()
	d.phase = PhaseActive
	d.startedAt = at
	d.mu.Unlock()
}

// state returns the phase and, once active, the start time.
func (d *duel) state() (string, time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase, d.startedAt
}

// sleep waits for d or until ctx is done. It reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
