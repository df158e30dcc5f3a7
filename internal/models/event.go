package models

import "github.com/google/uuid"

// Match lifecycle event names.
const (
	EventMatchCreated   = "match_created"
	EventMatchCompleted = "match_completed"
)

// MatchEvent is a lifecycle record for downstream consumers of the duel log.
// Timestamp is in Unix seconds.
type MatchEvent struct {
	Event     string    `json:"event"`
	MatchID   uuid.UUID `json:"match_id"`
	PlayerA   uuid.UUID `json:"player_a"`
	PlayerB   uuid.UUID `json:"player_b"`
	WinnerID  uuid.UUID `json:"winner_id,omitempty"`
	Problem   string    `json:"problem"`
	DeltaA    int       `json:"delta_a"`
	DeltaB    int       `json:"delta_b"`
	Resigned  bool      `json:"resigned"`
	Timestamp int64     `json:"timestamp"`
}
