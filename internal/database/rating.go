package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/codeduel/internal/models"
)

// CompleteMatch writes the resolved match and both players' rating changes in
// one transaction. The UPDATE is conditional on the pending sentinel, so only
// the first of two concurrent callers changes anything.
func (r *PostgresRepository) CompleteMatch(ctx context.Context, m models.Match) error {
	winner, ok := m.WinnerState()
	if !ok {
		return errors.New("match has no winner")
	}
	loser, _ := m.LoserState()

	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, e1 := tx.Exec(ctx, `
			UPDATE matches SET
			    delta_a = $2, delta_b = $3,
			    runtime_a = $4, runtime_b = $5,
			    memory_a = $6, memory_b = $7,
			    winner = $8, status = $9, problem_slug = $10,
			    duration_seconds = $11, resigned = $12, completed_at = $13
			WHERE id = $1 AND status = 'pending' AND problem_slug = $14
		`,
			m.ID, m.A.Delta, m.B.Delta,
			m.A.Runtime, m.B.Runtime,
			m.A.Memory, m.B.Memory,
			int16(m.Winner), string(models.MatchCompleted), m.ProblemSlug,
			m.DurationSeconds, m.Resigned, m.CompletedAt,
			models.PendingProblemSlug,
		)
		if e1 != nil {
			return e1
		}
		if tag.RowsAffected() == 0 {
			return ErrNotPending
		}

		if _, e2 := tx.Exec(ctx, `
			UPDATE players
			SET rating = rating + $2, games_played = games_played + 1, win_streak = win_streak + 1
			WHERE id = $1
		`, winner.PlayerID, winner.Delta); e2 != nil {
			return e2
		}
		_, e3 := tx.Exec(ctx, `
			UPDATE players
			SET rating = rating + $2, games_played = games_played + 1, win_streak = 0
			WHERE id = $1
		`, loser.PlayerID, loser.Delta)
		return e3
	})
	if errors.Is(err, ErrNotPending) {
		return fmt.Errorf("match %s: %w", m.ID, ErrNotPending)
	}
	if err != nil {
		return fmt.Errorf("failed to commit match results: %w", err)
	}
	return nil
}
