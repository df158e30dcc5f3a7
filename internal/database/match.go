package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/codeduel/internal/models"
)

const matchColumns = `
	id, player_a, player_b, rating_a, rating_b, games_a, games_b,
	delta_a, delta_b, runtime_a, runtime_b, memory_a, memory_b,
	winner, status, problem_slug, assigned_slug, assigned_title,
	duration_seconds, resigned, created_at, completed_at`

func scanMatch(row pgx.Row) (models.Match, error) {
	var (
		m           models.Match
		winner      int16
		status      string
		completedAt *time.Time
	)
	err := row.Scan(
		&m.ID, &m.A.PlayerID, &m.B.PlayerID, &m.A.Rating, &m.B.Rating, &m.A.GamesPlayed, &m.B.GamesPlayed,
		&m.A.Delta, &m.B.Delta, &m.A.Runtime, &m.B.Runtime, &m.A.Memory, &m.B.Memory,
		&winner, &status, &m.ProblemSlug, &m.AssignedSlug, &m.AssignedTitle,
		&m.DurationSeconds, &m.Resigned, &m.CreatedAt, &completedAt,
	)
	if err != nil {
		return models.Match{}, err
	}
	m.Winner = models.Slot(winner)
	m.Status = models.MatchStatus(status)
	if completedAt != nil {
		m.CompletedAt = *completedAt
	}
	return m, nil
}

func matchArgs(m models.Match) []interface{} {
	var completedAt *time.Time
	if !m.CompletedAt.IsZero() {
		completedAt = &m.CompletedAt
	}
	return []interface{}{
		m.ID, m.A.PlayerID, m.B.PlayerID, m.A.Rating, m.B.Rating, m.A.GamesPlayed, m.B.GamesPlayed,
		m.A.Delta, m.B.Delta, m.A.Runtime, m.B.Runtime, m.A.Memory, m.B.Memory,
		int16(m.Winner), string(m.Status), m.ProblemSlug, m.AssignedSlug, m.AssignedTitle,
		m.DurationSeconds, m.Resigned, m.CreatedAt, completedAt,
	}
}

func (r *PostgresRepository) GetMatch(ctx context.Context, id uuid.UUID) (models.Match, error) {
	m, err := scanMatch(r.db.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Match{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Match{}, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

// SaveMatch inserts a match. Existing rows are only replaced while still pending.
func (r *PostgresRepository) SaveMatch(ctx context.Context, m models.Match) error {
	q := `
	INSERT INTO matches (` + matchColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	ON CONFLICT (id) DO UPDATE SET
	    delta_a = EXCLUDED.delta_a, delta_b = EXCLUDED.delta_b,
	    runtime_a = EXCLUDED.runtime_a, runtime_b = EXCLUDED.runtime_b,
	    memory_a = EXCLUDED.memory_a, memory_b = EXCLUDED.memory_b,
	    winner = EXCLUDED.winner, status = EXCLUDED.status,
	    problem_slug = EXCLUDED.problem_slug,
	    duration_seconds = EXCLUDED.duration_seconds,
	    resigned = EXCLUDED.resigned, completed_at = EXCLUDED.completed_at
	WHERE matches.status = 'pending'
	`
	if _, err := r.db.Exec(ctx, q, matchArgs(m)...); err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListCompletedProblemSlugs(ctx context.Context, playerID uuid.UUID) ([]string, error) {
	q := `
	SELECT DISTINCT problem_slug
	FROM matches
	WHERE (player_a = $1 OR player_b = $1)
	  AND status = 'completed'
	  AND problem_slug <> $2
	`
	rows, err := r.db.Query(ctx, q, playerID, models.PendingProblemSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed problems: %w", err)
	}
	slugs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list completed problems: %w", err)
	}
	return slugs, nil
}

func (r *PostgresRepository) FindPendingMatchFor(ctx context.Context, playerID uuid.UUID) (*models.Match, error) {
	q := `SELECT ` + matchColumns + `
	FROM matches
	WHERE (player_a = $1 OR player_b = $1) AND status = 'pending' AND problem_slug = $2
	ORDER BY created_at DESC
	LIMIT 1`
	m, err := scanMatch(r.db.QueryRow(ctx, q, playerID, models.PendingProblemSlug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending match: %w", err)
	}
	return &m, nil
}

func (r *PostgresRepository) DeletePendingMatchesFor(ctx context.Context, playerIDs ...uuid.UUID) error {
	if len(playerIDs) == 0 {
		return nil
	}
	q := `
	DELETE FROM matches
	WHERE (player_a = ANY($1) OR player_b = ANY($1))
	  AND status = 'pending' AND problem_slug = $2
	`
	if _, err := r.db.Exec(ctx, q, playerIDs, models.PendingProblemSlug); err != nil {
		return fmt.Errorf("failed to delete pending matches: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListPlayerMatches(ctx context.Context, playerID uuid.UUID, limit int) ([]models.Match, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + matchColumns + `
	FROM matches
	WHERE (player_a = $1 OR player_b = $1) AND status = 'completed'
	ORDER BY completed_at DESC
	LIMIT $2`
	rows, err := r.db.Query(ctx, q, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var out []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
