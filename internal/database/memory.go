package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codeduel/internal/models"
)

// MemoryRepository keeps everything in process memory. It backs tests and
// single-instance runs without Postgres.
type MemoryRepository struct {
	mu      sync.Mutex
	players map[uuid.UUID]models.Player
	matches map[uuid.UUID]models.Match
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		players: make(map[uuid.UUID]models.Player),
		matches: make(map[uuid.UUID]models.Match),
	}
}

func (r *MemoryRepository) GetPlayer(_ context.Context, id uuid.UUID) (models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return models.Player{}, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (r *MemoryRepository) SavePlayer(_ context.Context, p models.Player) error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("player id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[p.ID] = p
	return nil
}

func (r *MemoryRepository) GetMatch(_ context.Context, id uuid.UUID) (models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return models.Match{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return m, nil
}

func (r *MemoryRepository) SaveMatch(_ context.Context, m models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.matches[m.ID]; ok && !cur.IsPending() {
		return nil
	}
	r.matches[m.ID] = m
	return nil
}

func (r *MemoryRepository) ListCompletedProblemSlugs(_ context.Context, playerID uuid.UUID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, m := range r.matches {
		if m.Status != models.MatchCompleted || !m.Involves(playerID) {
			continue
		}
		if _, ok := seen[m.ProblemSlug]; ok {
			continue
		}
		seen[m.ProblemSlug] = struct{}{}
		out = append(out, m.ProblemSlug)
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryRepository) FindPendingMatchFor(_ context.Context, playerID uuid.UUID) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *models.Match
	for _, m := range r.matches {
		if !m.IsPending() || !m.Involves(playerID) {
			continue
		}
		if found == nil || m.CreatedAt.After(found.CreatedAt) {
			cp := m
			found = &cp
		}
	}
	return found, nil
}

func (r *MemoryRepository) DeletePendingMatchesFor(_ context.Context, playerIDs ...uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.matches {
		if !m.IsPending() {
			continue
		}
		for _, pid := range playerIDs {
			if m.Involves(pid) {
				delete(r.matches, id)
				break
			}
		}
	}
	return nil
}

func (r *MemoryRepository) CompleteMatch(_ context.Context, m models.Match) error {
	winner, ok := m.WinnerState()
	if !ok {
		return fmt.Errorf("match has no winner")
	}
	loser, _ := m.LoserState()

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.matches[m.ID]
	if !ok {
		return fmt.Errorf("match %s: %w", m.ID, ErrNotFound)
	}
	if !cur.IsPending() {
		return fmt.Errorf("match %s: %w", m.ID, ErrNotPending)
	}

	m.Status = models.MatchCompleted
	r.matches[m.ID] = m
	r.applyResult(winner, true)
	r.applyResult(loser, false)
	return nil
}

func (r *MemoryRepository) applyResult(s models.SlotState, won bool) {
	p, ok := r.players[s.PlayerID]
	if !ok {
		return
	}
	p.Rating += s.Delta
	p.GamesPlayed++
	p.WinStreak = streakAfter(p.WinStreak, won)
	r.players[s.PlayerID] = p
}

func (r *MemoryRepository) ListPlayerMatches(_ context.Context, playerID uuid.UUID, limit int) ([]models.Match, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Match
	for _, m := range r.matches {
		if m.Status == models.MatchCompleted && m.Involves(playerID) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
