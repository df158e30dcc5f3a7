package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codeduel/internal/models"
)

var (
	// ErrNotFound is returned when a player or match does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotPending is returned by CompleteMatch when the match was already resolved.
	ErrNotPending = errors.New("match is not pending")
)

// Repository is the storage contract for players and matches.
type Repository interface {
	GetPlayer(ctx context.Context, id uuid.UUID) (models.Player, error)
	SavePlayer(ctx context.Context, p models.Player) error

	GetMatch(ctx context.Context, id uuid.UUID) (models.Match, error)
	SaveMatch(ctx context.Context, m models.Match) error

	// ListCompletedProblemSlugs returns the problems of every completed match playerID took part in.
	ListCompletedProblemSlugs(ctx context.Context, playerID uuid.UUID) ([]string, error)
	// FindPendingMatchFor returns nil, nil when the player has no pending match.
	FindPendingMatchFor(ctx context.Context, playerID uuid.UUID) (*models.Match, error)
	DeletePendingMatchesFor(ctx context.Context, playerIDs ...uuid.UUID) error

	// CompleteMatch stores m only if the stored copy is still pending, and in
	// the same step applies both seats' deltas to their players. It returns
	// ErrNotPending if another caller resolved the match first.
	CompleteMatch(ctx context.Context, m models.Match) error

	// ListPlayerMatches returns the player's completed matches, newest first.
	ListPlayerMatches(ctx context.Context, playerID uuid.UUID, limit int) ([]models.Match, error)
}

// streakAfter returns the win streak after a result.
func streakAfter(current int, won bool) int {
	if won {
		return current + 1
	}
	return 0
}
