package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedScoreIsComplementary(t *testing.T) {
	ratings := []int{0, 400, 800, 1150, 1200, 1500, 2399, 2400, 3000}
	for _, a := range ratings {
		for _, b := range ratings {
			sum := ExpectedScore(a, b) + ExpectedScore(b, a)
			assert.InDelta(t, 1.0, sum, 1e-9, "a=%d b=%d", a, b)
		}
	}
	assert.InDelta(t, 0.5, ExpectedScore(1500, 1500), 1e-12)
}

func TestKFactor(t *testing.T) {
	assert.Equal(t, ProvisionalK, KFactor(1200, 0))
	assert.Equal(t, ProvisionalK, KFactor(2600, 29), "provisional rule applies before the experienced one")
	assert.Equal(t, DefaultK, KFactor(1200, 30))
	assert.Equal(t, DefaultK, KFactor(2399, 100))
	assert.Equal(t, ExperiencedK, KFactor(2400, 30))
}

func TestMatchDeltasSigns(t *testing.T) {
	pairs := [][2]int{{1200, 1150}, {1150, 1200}, {1500, 1500}, {2400, 1000}, {900, 2100}}
	for _, p := range pairs {
		w, l := MatchDeltas(p[0], p[1], 40, 40, false)
		assert.GreaterOrEqual(t, w, 0)
		assert.LessOrEqual(t, l, 0)
		if p[0] == p[1] {
			assert.Equal(t, -w, l)
		}
	}
}

func TestResignationPenalty(t *testing.T) {
	w, l := MatchDeltas(1300, 1250, 12, 50, false)
	rw, rl := MatchDeltas(1300, 1250, 12, 50, true)
	assert.Equal(t, w, rw)
	assert.Equal(t, l-ResignationPenalty, rl)
}

func TestProvisionalScenario(t *testing.T) {
	// 1200 (5 games) beats 1150 (3 games)
	e := ExpectedScore(1200, 1150)
	require.InDelta(t, 0.5715, e, 1e-4)

	w, l := MatchDeltas(1200, 1150, 5, 3, false)
	assert.Equal(t, int(math.Round(40*(1-e))), w)
	assert.Equal(t, 17, w)
	assert.Equal(t, -17, l)
}

func TestPreviewMatch(t *testing.T) {
	p := PreviewMatch(1200, 1200, 0)
	assert.Equal(t, 50.0, p.WinProbability)
	assert.Equal(t, 20, p.ChangeOnWin)
	assert.Equal(t, -20, p.ChangeOnLoss)

	p = PreviewMatch(1200, 1150, 5)
	assert.Equal(t, 57.1, p.WinProbability)
	assert.Equal(t, 17, p.ChangeOnWin)
	assert.Equal(t, -23, p.ChangeOnLoss)
}
