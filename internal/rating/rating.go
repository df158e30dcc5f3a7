// Package rating implements the Elo rules used to score duels.
package rating

import "math"

const (
	// ProvisionalGames is the number of completed duels below which a player
	// is rated with ProvisionalK.
	ProvisionalGames = 30
	// ExperiencedRating is the threshold at and above which ExperiencedK applies.
	ExperiencedRating = 2400

	ProvisionalK = 40
	DefaultK     = 32
	ExperiencedK = 16

	// ResignationPenalty is taken from the loser's delta on resignation.
	ResignationPenalty = 2
)

// ExpectedScore is the probability that a player rated a beats a player rated b.
func ExpectedScore(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// KFactor picks the update magnitude for a player. The provisional rule wins
// over the experienced one.
func KFactor(rating, gamesPlayed int) int {
	switch {
	case gamesPlayed < ProvisionalGames:
		return ProvisionalK
	case rating >= ExperiencedRating:
		return ExperiencedK
	default:
		return DefaultK
	}
}

// Delta is the rating change for a player rated a after scoring actualScore
// against a player rated b.
func Delta(a, b int, actualScore float64, gamesPlayed int) int {
	k := float64(KFactor(a, gamesPlayed))
	return int(math.Round(k * (actualScore - ExpectedScore(a, b))))
}

// MatchDeltas returns the winner and loser deltas for a decided duel. Ratings
// and game counts must be the values recorded when the duel was paired.
func MatchDeltas(winnerRating, loserRating, winnerGames, loserGames int, isResignation bool) (int, int) {
	winnerDelta := Delta(winnerRating, loserRating, 1, winnerGames)
	loserDelta := Delta(loserRating, winnerRating, 0, loserGames)
	if isResignation {
		loserDelta -= ResignationPenalty
	}
	return winnerDelta, loserDelta
}

// Preview is what a player stands to gain or lose against an opponent.
type Preview struct {
	// WinProbability is a percentage rounded to one decimal.
	WinProbability float64 `json:"win_probability"`
	ChangeOnWin    int     `json:"rating_change_on_win"`
	ChangeOnLoss   int     `json:"rating_change_on_loss"`
	ExpectedScore  float64 `json:"expected_score"`
}

// PreviewMatch computes the preview for a player against opponentRating.
func PreviewMatch(playerRating, opponentRating, gamesPlayed int) Preview {
	e := ExpectedScore(playerRating, opponentRating)
	return Preview{
		WinProbability: math.Round(e*1000) / 10,
		ChangeOnWin:    Delta(playerRating, opponentRating, 1, gamesPlayed),
		ChangeOnLoss:   Delta(playerRating, opponentRating, 0, gamesPlayed),
		ExpectedScore:  e,
	}
}
