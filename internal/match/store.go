// Package match owns the duel record lifecycle: creation at pairing time and
// the single resolution that completes it.
package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codeduel/internal/database"
	"github.com/jason-s-yu/codeduel/internal/models"
	"github.com/jason-s-yu/codeduel/internal/problems"
	"github.com/jason-s-yu/codeduel/internal/rating"
	"github.com/sirupsen/logrus"
)

// Events receives match lifecycle records.
type Events interface {
	Publish(ctx context.Context, event models.MatchEvent) error
}

// Store creates and resolves matches on top of a repository.
type Store struct {
	repo     database.Repository
	selector *problems.Selector
	events   Events
	logger   *logrus.Entry
	now      func() time.Time

	mu       sync.Mutex
	problems map[uuid.UUID]models.Problem
}

type Option func(*Store)

// WithEvents publishes match_created and match_completed records to e.
func WithEvents(e Events) Option {
	return func(s *Store) { s.events = e }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(repo database.Repository, selector *problems.Selector, logger *logrus.Logger, opts ...Option) *Store {
	s := &Store{
		repo:     repo,
		selector: selector,
		logger:   logger.WithField("component", "match"),
		now:      time.Now,
		problems: make(map[uuid.UUID]models.Problem),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pairing is a freshly created pending match with the data needed to announce it.
type Pairing struct {
	Match   models.Match
	Problem models.Problem
	A       models.Player
	B       models.Player
}

// Player returns the seated player with id, and their opponent.
func (p Pairing) Player(id uuid.UUID) (self, opponent models.Player) {
	if p.A.ID == id {
		return p.A, p.B
	}
	return p.B, p.A
}

// Player loads a player, mapping a missing row to ErrPlayerNotFound.
func (s *Store) Player(ctx context.Context, id uuid.UUID) (models.Player, error) {
	p, err := s.repo.GetPlayer(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return models.Player{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}
	return p, err
}

// Get loads a match, mapping a missing row to ErrMatchNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (models.Match, error) {
	m, err := s.repo.GetMatch(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return models.Match{}, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return m, err
}

// RegisterPlayer stores a new player at the default rating.
func (s *Store) RegisterPlayer(ctx context.Context, username, handle string) (models.Player, error) {
	p := models.NewPlayer(username, handle)
	if err := s.repo.SavePlayer(ctx, p); err != nil {
		return models.Player{}, err
	}
	s.logger.WithFields(logrus.Fields{
		"player_id": p.ID,
		"handle":    handle,
	}).Info("player registered")
	return p, nil
}

// UpdatePreferences replaces the player's topic and difficulty preferences.
func (s *Store) UpdatePreferences(ctx context.Context, playerID uuid.UUID, prefs models.Preferences) (models.Player, error) {
	p, err := s.Player(ctx, playerID)
	if err != nil {
		return models.Player{}, err
	}
	p.Preferences = prefs
	if err := s.repo.SavePlayer(ctx, p); err != nil {
		return models.Player{}, err
	}
	return p, nil
}

// PendingFor returns the player's pending match, or nil.
func (s *Store) PendingFor(ctx context.Context, playerID uuid.UUID) (*models.Match, error) {
	return s.repo.FindPendingMatchFor(ctx, playerID)
}

// CreatePending purges stale pending matches for both players, picks a
// problem both can play and stores a new pending match. Nothing is stored if
// no problem could be selected.
func (s *Store) CreatePending(ctx context.Context, playerA, playerB uuid.UUID) (Pairing, error) {
	if playerA == playerB {
		return Pairing{}, ErrSamePlayer
	}
	a, err := s.Player(ctx, playerA)
	if err != nil {
		return Pairing{}, err
	}
	b, err := s.Player(ctx, playerB)
	if err != nil {
		return Pairing{}, err
	}

	if err := s.repo.DeletePendingMatchesFor(ctx, a.ID, b.ID); err != nil {
		return Pairing{}, err
	}

	excluded, err := s.excludedSlugs(ctx, a, b)
	if err != nil {
		return Pairing{}, err
	}

	sel, err := s.selector.SelectProblem(ctx, problems.Request{
		TopicsA:       a.Preferences.Topics,
		TopicsB:       b.Preferences.Topics,
		DifficultiesA: a.Preferences.Difficulties,
		DifficultiesB: b.Preferences.Difficulties,
		Excluded:      excluded,
	})
	if err != nil {
		return Pairing{}, fmt.Errorf("failed to select problem: %w", err)
	}

	m := models.NewPendingMatch(a, b, sel.Problem)
	m.CreatedAt = s.now().UTC()
	if err := s.repo.SaveMatch(ctx, m); err != nil {
		return Pairing{}, err
	}

	s.mu.Lock()
	s.problems[m.ID] = sel.Problem
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"match_id": m.ID,
		"player_a": a.ID,
		"player_b": b.ID,
		"problem":  sel.Problem.Slug,
		"attempts": sel.Attempts,
	}).Info("match created")
	s.publish(ctx, m, models.EventMatchCreated)

	return Pairing{Match: m, Problem: sel.Problem, A: a, B: b}, nil
}

// excludedSlugs unions both players' completed problems when either of them
// has repeats turned off.
func (s *Store) excludedSlugs(ctx context.Context, a, b models.Player) ([]string, error) {
	if a.Preferences.AllowRepeats && b.Preferences.AllowRepeats {
		return nil, nil
	}
	var out []string
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		slugs, err := s.repo.ListCompletedProblemSlugs(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, slugs...)
	}
	return out, nil
}

// Metrics are the submitter's parsed runtime (ms) and memory (MB).
type Metrics struct {
	Runtime int
	Memory  float64
}

// Resolution describes how a pending match ended.
type Resolution struct {
	MatchID         uuid.UUID
	WinnerID        uuid.UUID
	DurationSeconds int
	// Metrics belong to the winner and are ignored for resignations.
	Metrics     *Metrics
	Resignation bool
}

// Finalize resolves a pending match exactly once. Deltas come from the
// ratings and game counts recorded when the match was created.
func (s *Store) Finalize(ctx context.Context, res Resolution) (models.Match, error) {
	m, err := s.Get(ctx, res.MatchID)
	if err != nil {
		return models.Match{}, err
	}
	if !m.IsPending() {
		return models.Match{}, fmt.Errorf("%w: %s", ErrAlreadyCompleted, m.ID)
	}
	slot := m.SlotOf(res.WinnerID)
	if slot == models.SlotUnresolved {
		return models.Match{}, fmt.Errorf("%w: %s", ErrNotParticipant, res.WinnerID)
	}

	m.Winner = slot
	winner, loser := m.Seat(slot), m.Seat(slot.Other())
	winner.Delta, loser.Delta = rating.MatchDeltas(
		winner.Rating, loser.Rating,
		winner.GamesPlayed, loser.GamesPlayed,
		res.Resignation,
	)

	winner.ClearMetrics()
	loser.ClearMetrics()
	if !res.Resignation && res.Metrics != nil {
		winner.Runtime = res.Metrics.Runtime
		winner.Memory = res.Metrics.Memory
	}

	m.ProblemSlug = m.AssignedSlug
	m.DurationSeconds = res.DurationSeconds
	m.Resigned = res.Resignation
	m.Status = models.MatchCompleted
	m.CompletedAt = s.now().UTC()

	if err := s.repo.CompleteMatch(ctx, m); err != nil {
		if errors.Is(err, database.ErrNotPending) {
			return models.Match{}, fmt.Errorf("%w: %s", ErrAlreadyCompleted, m.ID)
		}
		return models.Match{}, err
	}

	s.mu.Lock()
	delete(s.problems, m.ID)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"match_id":     m.ID,
		"winner":       winner.PlayerID,
		"winner_delta": winner.Delta,
		"loser_delta":  loser.Delta,
		"resignation":  res.Resignation,
		"duration":     res.DurationSeconds,
	}).Info("match completed")
	s.publish(ctx, m, models.EventMatchCompleted)

	return m, nil
}

// Resign ends the match in favour of the resigner's opponent.
func (s *Store) Resign(ctx context.Context, matchID, resignerID uuid.UUID, durationSeconds int) (models.Match, error) {
	m, err := s.Get(ctx, matchID)
	if err != nil {
		return models.Match{}, err
	}
	if !m.Involves(resignerID) {
		return models.Match{}, fmt.Errorf("%w: %s", ErrNotParticipant, resignerID)
	}
	return s.Finalize(ctx, Resolution{
		MatchID:         matchID,
		WinnerID:        m.Opponent(resignerID),
		DurationSeconds: durationSeconds,
		Resignation:     true,
	})
}

// Problem returns the problem assigned to a match. Details cached at pairing
// are used when present.
func (s *Store) Problem(ctx context.Context, m models.Match) (models.Problem, error) {
	s.mu.Lock()
	p, ok := s.problems[m.ID]
	s.mu.Unlock()
	if ok {
		return p, nil
	}
	p, err := s.selector.Service().FetchProblem(ctx, m.AssignedSlug)
	if err != nil {
		return models.Problem{Slug: m.AssignedSlug, Title: m.AssignedTitle}, err
	}
	if m.IsPending() {
		s.mu.Lock()
		s.problems[m.ID] = p
		s.mu.Unlock()
	}
	return p, nil
}

func (s *Store) publish(ctx context.Context, m models.Match, event string) {
	if s.events == nil {
		return
	}
	ev := models.MatchEvent{
		Event:     event,
		MatchID:   m.ID,
		PlayerA:   m.A.PlayerID,
		PlayerB:   m.B.PlayerID,
		Problem:   m.AssignedSlug,
		DeltaA:    m.A.Delta,
		DeltaB:    m.B.Delta,
		Resigned:  m.Resigned,
		Timestamp: s.now().Unix(),
	}
	if w, ok := m.WinnerState(); ok {
		ev.WinnerID = w.PlayerID
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WithError(err).WithField("match_id", m.ID).Warn("failed to publish match event")
	}
}
