package models

import "github.com/google/uuid"

// DefaultRating is the rating assigned to a player with no completed duels.
const DefaultRating = 1200

// Preferences describe which problems a player is willing to duel on.
type Preferences struct {
	Topics       []string `json:"topics"`
	Difficulties []string `json:"difficulties"`
	AllowRepeats bool     `json:"allow_repeats"`
}

// Player is the account-side view of a dueling user. The core only writes
// Rating, GamesPlayed and WinStreak.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	// Handle is the username on the external problem service.
	Handle string `json:"handle"`

	Rating      int `json:"rating"`
	GamesPlayed int `json:"games_played"`
	WinStreak   int `json:"win_streak"`

	Preferences Preferences `json:"preferences"`
}

// NewPlayer returns a player with a fresh id and the default rating.
func NewPlayer(username, handle string) Player {
	return Player{
		ID:       uuid.New(),
		Username: username,
		Handle:   handle,
		Rating:   DefaultRating,
		Preferences: Preferences{
			AllowRepeats: true,
		},
	}
}
