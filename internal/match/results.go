package match

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codeduel/internal/models"
	"github.com/jason-s-yu/codeduel/internal/rating"
)

// ParticipantResult is one side of a result view.
type ParticipantResult struct {
	PlayerID     uuid.UUID `json:"player_id"`
	Username     string    `json:"username"`
	RatingBefore int       `json:"rating_before"`
	RatingAfter  int       `json:"rating_after"`
	Delta        int       `json:"delta"`
	Runtime      int       `json:"runtime"`
	Memory       float64   `json:"memory"`
}

// ProblemRef identifies a match's problem.
type ProblemRef struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Result is the read view of a match, pending or completed. Push
// notifications and status polling both read it through Store.
type Result struct {
	MatchID         uuid.UUID           `json:"match_id"`
	Status          models.MatchStatus  `json:"status"`
	Problem         ProblemRef          `json:"problem"`
	Winner          *ParticipantResult  `json:"winner,omitempty"`
	Loser           *ParticipantResult  `json:"loser,omitempty"`
	Participants    []ParticipantResult `json:"participants"`
	DurationSeconds int                 `json:"match_duration"`
	Resigned        bool                `json:"resigned"`
	CreatedAt       time.Time           `json:"created_at"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
}

func (s *Store) participant(ctx context.Context, seat models.SlotState) ParticipantResult {
	pr := ParticipantResult{
		PlayerID:     seat.PlayerID,
		RatingBefore: seat.Rating,
		RatingAfter:  seat.Rating + seat.Delta,
		Delta:        seat.Delta,
		Runtime:      seat.Runtime,
		Memory:       seat.Memory,
	}
	if p, err := s.repo.GetPlayer(ctx, seat.PlayerID); err == nil {
		pr.Username = p.Username
	}
	return pr
}

// Result builds the result view for a match.
func (s *Store) Result(ctx context.Context, matchID uuid.UUID) (Result, error) {
	m, err := s.Get(ctx, matchID)
	if err != nil {
		return Result{}, err
	}

	a := s.participant(ctx, m.A)
	b := s.participant(ctx, m.B)
	r := Result{
		MatchID: m.ID,
		Status:  m.Status,
		Problem: ProblemRef{
			Slug:  m.AssignedSlug,
			Title: m.AssignedTitle,
			URL:   models.ProblemURL(m.AssignedSlug),
		},
		Participants:    []ParticipantResult{a, b},
		DurationSeconds: m.DurationSeconds,
		Resigned:        m.Resigned,
		CreatedAt:       m.CreatedAt,
	}
	switch m.Winner {
	case models.SlotA:
		r.Winner, r.Loser = &a, &b
	case models.SlotB:
		r.Winner, r.Loser = &b, &a
	}
	if !m.CompletedAt.IsZero() {
		t := m.CompletedAt
		r.CompletedAt = &t
	}
	return r, nil
}

// Preview computes what playerID stands to gain or lose against opponentID
// at their current ratings.
func (s *Store) Preview(ctx context.Context, playerID, opponentID uuid.UUID) (rating.Preview, error) {
	p, err := s.Player(ctx, playerID)
	if err != nil {
		return rating.Preview{}, err
	}
	o, err := s.Player(ctx, opponentID)
	if err != nil {
		return rating.Preview{}, err
	}
	return rating.PreviewMatch(p.Rating, o.Rating, p.GamesPlayed), nil
}

// HistoryEntry is a completed match from one player's point of view.
type HistoryEntry struct {
	MatchID         uuid.UUID  `json:"match_id"`
	OpponentID      uuid.UUID  `json:"opponent_id"`
	OpponentName    string     `json:"opponent_username"`
	Problem         ProblemRef `json:"problem"`
	Won             bool       `json:"won"`
	Delta           int        `json:"rating_change"`
	RatingBefore    int        `json:"rating_before"`
	DurationSeconds int        `json:"match_duration"`
	Resigned        bool       `json:"resigned"`
	CompletedAt     time.Time  `json:"completed_at"`
}

// History lists the player's most recent completed matches.
func (s *Store) History(ctx context.Context, playerID uuid.UUID, limit int) ([]HistoryEntry, error) {
	if _, err := s.Player(ctx, playerID); err != nil {
		return nil, err
	}
	matches, err := s.repo.ListPlayerMatches(ctx, playerID, limit)
	if err != nil {
		return nil, err
	}

	names := make(map[uuid.UUID]string)
	out := make([]HistoryEntry, 0, len(matches))
	for _, m := range matches {
		slot := m.SlotOf(playerID)
		self := m.Seat(slot)
		opp := m.Opponent(playerID)
		if _, ok := names[opp]; !ok {
			if p, err := s.repo.GetPlayer(ctx, opp); err == nil {
				names[opp] = p.Username
			}
		}
		out = append(out, HistoryEntry{
			MatchID:      m.ID,
			OpponentID:   opp,
			OpponentName: names[opp],
			Problem: ProblemRef{
				Slug:  m.ProblemSlug,
				Title: m.AssignedTitle,
				URL:   models.ProblemURL(m.ProblemSlug),
			},
			Won:             m.Winner == slot,
			Delta:           self.Delta,
			RatingBefore:    self.Rating,
			DurationSeconds: m.DurationSeconds,
			Resigned:        m.Resigned,
			CompletedAt:     m.CompletedAt,
		})
	}
	return out, nil
}

// statsWindow bounds how many matches Stats scans.
const statsWindow = 1000

// Stats summarises a player's record.
type Stats struct {
	Rating      int     `json:"rating"`
	GamesPlayed int     `json:"games_played"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	WinStreak   int     `json:"win_streak"`
}

func (s *Store) Stats(ctx context.Context, playerID uuid.UUID) (Stats, error) {
	p, err := s.Player(ctx, playerID)
	if err != nil {
		return Stats{}, err
	}
	matches, err := s.repo.ListPlayerMatches(ctx, playerID, statsWindow)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Rating:      p.Rating,
		GamesPlayed: p.GamesPlayed,
		WinStreak:   p.WinStreak,
	}
	for _, m := range matches {
		if m.Winner == m.SlotOf(playerID) {
			st.Wins++
		} else {
			st.Losses++
		}
	}
	if total := st.Wins + st.Losses; total > 0 {
		st.WinRate = float64(st.Wins) / float64(total) * 100
	}
	return st, nil
}
