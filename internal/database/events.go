package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/codeduel/internal/models"
)

// InsertMatchEvents appends a batch of duel log records in one transaction.
func (r *PostgresRepository) InsertMatchEvents(ctx context.Context, events []models.MatchEvent) error {
	if len(events) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, ev := range events {
			var winner interface{}
			if ev.WinnerID != uuid.Nil {
				winner = ev.WinnerID
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO match_events (
				    event, match_id, player_a, player_b, winner_id,
				    problem, delta_a, delta_b, resigned, occurred_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`,
				ev.Event, ev.MatchID, ev.PlayerA, ev.PlayerB, winner,
				ev.Problem, ev.DeltaA, ev.DeltaB, ev.Resigned, time.Unix(ev.Timestamp, 0),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert %d match events: %w", len(events), err)
	}
	return nil
}

// CountMatchEvents returns how many log records exist for a match.
func (r *PostgresRepository) CountMatchEvents(ctx context.Context, matchID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM match_events WHERE match_id = $1`, matchID).Scan(&n)
	return n, err
}
