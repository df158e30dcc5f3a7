package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/codeduel/internal/models"
)

func (r *PostgresRepository) GetPlayer(ctx context.Context, id uuid.UUID) (models.Player, error) {
	var p models.Player
	q := `
	SELECT id, username, handle, rating, games_played, win_streak,
	       topics, difficulties, allow_repeats
	FROM players
	WHERE id = $1
	`
	err := r.db.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.Username, &p.Handle, &p.Rating, &p.GamesPlayed, &p.WinStreak,
		&p.Preferences.Topics, &p.Preferences.Difficulties, &p.Preferences.AllowRepeats,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Player{}, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Player{}, fmt.Errorf("failed to get player: %w", err)
	}
	return p, nil
}

// SavePlayer inserts or fully replaces a player row.
func (r *PostgresRepository) SavePlayer(ctx context.Context, p models.Player) error {
	if p.ID == uuid.Nil {
		return errors.New("player id is required")
	}
	topics := p.Preferences.Topics
	if topics == nil {
		topics = []string{}
	}
	difficulties := p.Preferences.Difficulties
	if difficulties == nil {
		difficulties = []string{}
	}

	q := `
	INSERT INTO players (id, username, handle, rating, games_played, win_streak,
	                     topics, difficulties, allow_repeats)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
	    username = EXCLUDED.username,
	    handle = EXCLUDED.handle,
	    rating = EXCLUDED.rating,
	    games_played = EXCLUDED.games_played,
	    win_streak = EXCLUDED.win_streak,
	    topics = EXCLUDED.topics,
	    difficulties = EXCLUDED.difficulties,
	    allow_repeats = EXCLUDED.allow_repeats
	`
	if _, err := r.db.Exec(ctx, q,
		p.ID, p.Username, p.Handle, p.Rating, p.GamesPlayed, p.WinStreak,
		topics, difficulties, p.Preferences.AllowRepeats,
	); err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}
	return nil
}
