package models

import (
	"time"

	"github.com/google/uuid"
)

// PendingProblemSlug marks a match whose problem has not been recorded yet.
const PendingProblemSlug = "TBD"

// Sentinel submission metrics for a slot without a validated submission.
const (
	UnknownRuntime = -1
	UnknownMemory  = -1.0
)

// Slot identifies one of the two seats in a match.
type Slot int

const (
	SlotUnresolved Slot = iota
	SlotA
	SlotB
)

// Other returns the opposite seat. SlotUnresolved has no opposite.
func (s Slot) Other() Slot {
	switch s {
	case SlotA:
		return SlotB
	case SlotB:
		return SlotA
	}
	return SlotUnresolved
}

func (s Slot) String() string {
	switch s {
	case SlotA:
		return "a"
	case SlotB:
		return "b"
	}
	return "unresolved"
}

type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchCompleted MatchStatus = "completed"
)

// SlotState is everything recorded about one participant of a match.
// Rating and GamesPlayed are snapshots taken at pairing time.
type SlotState struct {
	PlayerID    uuid.UUID `json:"player_id"`
	Rating      int       `json:"rating"`
	GamesPlayed int       `json:"games_played"`
	Delta       int       `json:"delta"`
	Runtime     int       `json:"runtime"`
	Memory      float64   `json:"memory"`
}

// ClearMetrics resets the submission metrics to the unknown sentinel.
func (s *SlotState) ClearMetrics() {
	s.Runtime = UnknownRuntime
	s.Memory = UnknownMemory
}

// Match is a single duel. Seats never move; the winner is recorded as a slot
// and winner/loser views are derived on read.
type Match struct {
	ID     uuid.UUID   `json:"id"`
	A      SlotState   `json:"a"`
	B      SlotState   `json:"b"`
	Winner Slot        `json:"winner"`
	Status MatchStatus `json:"status"`

	// ProblemSlug stays PendingProblemSlug until the match completes.
	ProblemSlug string `json:"problem_slug"`
	// AssignedSlug and AssignedTitle are chosen at pairing time.
	AssignedSlug  string `json:"assigned_slug"`
	AssignedTitle string `json:"assigned_title"`

	DurationSeconds int       `json:"duration_seconds"`
	Resigned        bool      `json:"resigned"`
	CreatedAt       time.Time `json:"created_at"`
	CompletedAt     time.Time `json:"completed_at,omitempty"`
}

// NewPendingMatch seats a and b with their current ratings and games played.
func NewPendingMatch(a, b Player, problem Problem) Match {
	m := Match{
		ID:            uuid.New(),
		A:             SlotState{PlayerID: a.ID, Rating: a.Rating, GamesPlayed: a.GamesPlayed},
		B:             SlotState{PlayerID: b.ID, Rating: b.Rating, GamesPlayed: b.GamesPlayed},
		Winner:        SlotUnresolved,
		Status:        MatchPending,
		ProblemSlug:   PendingProblemSlug,
		AssignedSlug:  problem.Slug,
		AssignedTitle: problem.Title,
		CreatedAt:     time.Now().UTC(),
	}
	m.A.ClearMetrics()
	m.B.ClearMetrics()
	return m
}

// IsPending reports whether the match can still be resolved.
func (m *Match) IsPending() bool {
	return m.Status == MatchPending && m.ProblemSlug == PendingProblemSlug
}

// Seat returns a pointer to the state for slot s, or nil.
func (m *Match) Seat(s Slot) *SlotState {
	switch s {
	case SlotA:
		return &m.A
	case SlotB:
		return &m.B
	}
	return nil
}

// SlotOf returns the seat held by playerID.
func (m *Match) SlotOf(playerID uuid.UUID) Slot {
	switch playerID {
	case m.A.PlayerID:
		return SlotA
	case m.B.PlayerID:
		return SlotB
	}
	return SlotUnresolved
}

// Involves reports whether playerID is seated in the match.
func (m *Match) Involves(playerID uuid.UUID) bool {
	return m.SlotOf(playerID) != SlotUnresolved
}

// Opponent returns the other participant, or uuid.Nil if playerID is not seated.
func (m *Match) Opponent(playerID uuid.UUID) uuid.UUID {
	if s := m.Seat(m.SlotOf(playerID).Other()); s != nil {
		return s.PlayerID
	}
	return uuid.Nil
}

// WinnerState returns the winning seat once resolved.
func (m *Match) WinnerState() (SlotState, bool) {
	if s := m.Seat(m.Winner); s != nil {
		return *s, true
	}
	return SlotState{}, false
}

// LoserState returns the losing seat once resolved.
func (m *Match) LoserState() (SlotState, bool) {
	if s := m.Seat(m.Winner.Other()); s != nil {
		return *s, true
	}
	return SlotState{}, false
}
