// Package matchmaking owns the waiting pool and turns compatible entries into
// pending matches.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codeduel/internal/match"
	"github.com/sirupsen/logrus"
)

// DefaultTolerance is the widest rating gap two entries may have and still pair.
const DefaultTolerance = 100

// ErrPairingInProgress is returned when a player is already being paired.
var ErrPairingInProgress = errors.New("pairing already in progress")

// Creator persists a pairing. *match.Store satisfies it.
type Creator interface {
	CreatePending(ctx context.Context, playerA, playerB uuid.UUID) (match.Pairing, error)
}

// Entry is one waiting player. Rating is a snapshot from enqueue time.
type Entry struct {
	PlayerID uuid.UUID `json:"player_id"`
	Rating   int       `json:"rating"`
	ConnID   uuid.UUID `json:"-"`
	JoinedAt time.Time `json:"joined_at"`
}

// PairingError reports a pairing that was taken out of the pool but could not
// be stored. Neither entry is back in the pool.
type PairingError struct {
	A, B Entry
	Err  error
}

func (e *PairingError) Error() string {
	return fmt.Sprintf("pairing %s with %s: %v", e.A.PlayerID, e.B.PlayerID, e.Err)
}

func (e *PairingError) Unwrap() error {
	return e.Err
}

// Engine is the waiting pool, kept ordered by rating then join time.
type Engine struct {
	mu       sync.Mutex
	pool     []Entry
	inFlight map[uuid.UUID]struct{}

	tolerance int
	creator   Creator
	logger    *logrus.Entry
	now       func() time.Time
}

func NewEngine(creator Creator, tolerance int, logger *logrus.Logger) *Engine {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Engine{
		inFlight:  make(map[uuid.UUID]struct{}),
		tolerance: tolerance,
		creator:   creator,
		logger:    logger.WithField("component", "matchmaking"),
		now:       time.Now,
	}
}

// Tolerance returns the configured rating gap.
func (e *Engine) Tolerance() int {
	return e.tolerance
}

// Enqueue adds the player, replacing any entry they already had.
func (e *Engine) Enqueue(playerID uuid.UUID, rating int, connID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[playerID]; busy {
		return ErrPairingInProgress
	}
	e.removeLocked(playerID)
	e.insertLocked(Entry{PlayerID: playerID, Rating: rating, ConnID: connID, JoinedAt: e.now()})
	return nil
}

// Requeue puts entries back after a failed pairing, keeping their join times.
func (e *Engine) Requeue(entries ...Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, en := range entries {
		if _, busy := e.inFlight[en.PlayerID]; busy {
			continue
		}
		e.removeLocked(en.PlayerID)
		e.insertLocked(en)
	}
}

// Dequeue removes the player. It reports whether an entry was removed.
func (e *Engine) Dequeue(playerID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(playerID)
}

// DequeueConn removes the player only if their entry was created by connID.
func (e *Engine) DequeueConn(playerID, connID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexLocked(playerID)
	if i < 0 || e.pool[i].ConnID != connID {
		return false
	}
	e.pool = append(e.pool[:i], e.pool[i+1:]...)
	return true
}

// Contains reports whether the player is waiting.
func (e *Engine) Contains(playerID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indexLocked(playerID) >= 0
}

// Len is the number of waiting players.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pool)
}

// Snapshot copies the pool in rating order.
func (e *Engine) Snapshot() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Entry(nil), e.pool...)
}

// PruneOlderThan drops entries that have waited longer than maxWait.
func (e *Engine) PruneOlderThan(maxWait time.Duration) []Entry {
	cutoff := e.now().Add(-maxWait)
	e.mu.Lock()
	defer e.mu.Unlock()
	var kept, pruned []Entry
	for _, en := range e.pool {
		if en.JoinedAt.Before(cutoff) {
			pruned = append(pruned, en)
		} else {
			kept = append(kept, en)
		}
	}
	e.pool = kept
	return pruned
}

// TryPairAll takes the first compatible pair out of the pool and creates a
// pending match for it. At most one pairing is made per call; (nil, nil)
// means no two waiting players are within tolerance.
func (e *Engine) TryPairAll(ctx context.Context) (*match.Pairing, error) {
	e.mu.Lock()
	a, b, ok := e.takeAnyPairLocked()
	e.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return e.create(ctx, a, b)
}

// PairAll calls TryPairAll until the pool has no compatible pair left.
// Failed pairings are returned alongside the successful ones.
func (e *Engine) PairAll(ctx context.Context) ([]match.Pairing, []error) {
	var (
		paired []match.Pairing
		errs   []error
	)
	for ctx.Err() == nil {
		p, err := e.TryPairAll(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if p == nil {
			break
		}
		paired = append(paired, *p)
	}
	return paired, errs
}

// FindImmediateMatch pairs a waiting player with the closest-rated other
// entry within tolerance. (nil, nil) means the player stays in the pool.
func (e *Engine) FindImmediateMatch(ctx context.Context, playerID uuid.UUID) (*match.Pairing, error) {
	e.mu.Lock()
	a, b, ok := e.takePartnerLocked(playerID)
	e.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return e.create(ctx, a, b)
}

func (e *Engine) create(ctx context.Context, a, b Entry) (*match.Pairing, error) {
	p, err := e.creator.CreatePending(ctx, a.PlayerID, b.PlayerID)

	e.mu.Lock()
	delete(e.inFlight, a.PlayerID)
	delete(e.inFlight, b.PlayerID)
	e.mu.Unlock()

	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"player_a": a.PlayerID,
			"player_b": b.PlayerID,
		}).Warn("pairing abandoned")
		return nil, &PairingError{A: a, B: b, Err: err}
	}
	return &p, nil
}

// takeAnyPairLocked scans adjacent entries. The pool is sorted, so if any two
// entries are within tolerance some adjacent pair is too.
func (e *Engine) takeAnyPairLocked() (Entry, Entry, bool) {
	for i := 0; i+1 < len(e.pool); i++ {
		a, b := e.pool[i], e.pool[i+1]
		if a.PlayerID == b.PlayerID || b.Rating-a.Rating > e.tolerance {
			continue
		}
		e.claimLocked(a, b)
		return a, b, true
	}
	return Entry{}, Entry{}, false
}

func (e *Engine) takePartnerLocked(playerID uuid.UUID) (Entry, Entry, bool) {
	i := e.indexLocked(playerID)
	if i < 0 {
		return Entry{}, Entry{}, false
	}
	self := e.pool[i]
	best := -1
	for j, other := range e.pool {
		if j == i || other.PlayerID == playerID {
			continue
		}
		gap := absInt(other.Rating - self.Rating)
		if gap > e.tolerance {
			continue
		}
		if best < 0 {
			best = j
			continue
		}
		bestGap := absInt(e.pool[best].Rating - self.Rating)
		if gap < bestGap || (gap == bestGap && other.JoinedAt.Before(e.pool[best].JoinedAt)) {
			best = j
		}
	}
	if best < 0 {
		return Entry{}, Entry{}, false
	}
	partner := e.pool[best]
	e.claimLocked(self, partner)
	return self, partner, true
}

// claimLocked removes both entries and marks them as being paired.
func (e *Engine) claimLocked(a, b Entry) {
	e.removeLocked(a.PlayerID)
	e.removeLocked(b.PlayerID)
	e.inFlight[a.PlayerID] = struct{}{}
	e.inFlight[b.PlayerID] = struct{}{}
}

func (e *Engine) insertLocked(en Entry) {
	i := sort.Search(len(e.pool), func(i int) bool {
		p := e.pool[i]
		if p.Rating != en.Rating {
			return p.Rating > en.Rating
		}
		return p.JoinedAt.After(en.JoinedAt)
	})
	e.pool = append(e.pool, Entry{})
	copy(e.pool[i+1:], e.pool[i:])
	e.pool[i] = en
}

func (e *Engine) indexLocked(playerID uuid.UUID) int {
	for i, en := range e.pool {
		if en.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (e *Engine) removeLocked(playerID uuid.UUID) bool {
	i := e.indexLocked(playerID)
	if i < 0 {
		return false
	}
	e.pool = append(e.pool[:i], e.pool[i+1:]...)
	return true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
