package match

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codeduel/internal/database"
	"github.com/jason-s-yu/codeduel/internal/models"
	"github.com/jason-s-yu/codeduel/internal/problems"
	"github.com/jason-s-yu/codeduel/internal/problems/problemstest"
	"github.com/jason-s-yu/codeduel/internal/rating"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []models.MatchEvent
}

func (r *recordingEvents) Publish(_ context.Context, e models.MatchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type fixture struct {
	repo   *database.MemoryRepository
	svc    *problemstest.Service
	store  *Store
	events *recordingEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		repo: database.NewMemoryRepository(),
		svc: problemstest.New(
			models.Problem{Slug: "two-sum", Title: "Two Sum"},
			models.Problem{Slug: "valid-anagram", Title: "Valid Anagram"},
		),
		events: &recordingEvents{},
	}
	sel := problems.NewSelector(f.svc, problems.DefaultOptions(), logger)
	f.store = NewStore(f.repo, sel, logger, WithEvents(f.events))
	return f
}

func (f *fixture) player(t *testing.T, name string, rating, games int) models.Player {
	t.Helper()
	p := models.NewPlayer(name, name)
	p.Rating = rating
	p.GamesPlayed = games
	require.NoError(t, f.repo.SavePlayer(context.Background(), p))
	return p
}

func TestCreatePendingStoresSentinels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 5)
	y := f.player(t, "y", 1150, 3)

	pairing, err := f.store.CreatePending(ctx, x.ID, y.ID)
	require.NoError(t, err)
	m := pairing.Match
	assert.True(t, m.IsPending())
	assert.Equal(t, models.PendingProblemSlug, m.ProblemSlug)
	assert.Equal(t, "two-sum", m.AssignedSlug)
	assert.Equal(t, "two-sum", pairing.Problem.Slug)
	assert.Equal(t, 0, m.A.Delta)
	assert.Equal(t, models.UnknownRuntime, m.B.Runtime)
	assert.Equal(t, models.UnknownMemory, m.B.Memory)
	assert.Equal(t, 1200, m.A.Rating)
	assert.Equal(t, 3, m.B.GamesPlayed)

	self, opp := pairing.Player(y.ID)
	assert.Equal(t, y.ID, self.ID)
	assert.Equal(t, x.ID, opp.ID)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, models.EventMatchCreated, f.events.events[0].Event)
}

func TestCreatePendingPurgesStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 0)
	y := f.player(t, "y", 1200, 0)
	z := f.player(t, "z", 1200, 0)

	stale, err := f.store.CreatePending(ctx, x.ID, z.ID)
	require.NoError(t, err)

	fresh, err := f.store.CreatePending(ctx, x.ID, y.ID)
	require.NoError(t, err)

	_, err = f.store.Get(ctx, stale.Match.ID)
	assert.ErrorIs(t, err, ErrMatchNotFound)

	pending, err := f.store.PendingFor(ctx, x.ID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, fresh.Match.ID, pending.ID)

	pending, err = f.store.PendingFor(ctx, z.ID)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestCreatePendingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 0)

	_, err := f.store.CreatePending(ctx, x.ID, x.ID)
	assert.True(t, IsValidation(err))

	_, err = f.store.CreatePending(ctx, x.ID, uuid.New())
	assert.ErrorIs(t, err, ErrPlayerNotFound)
	assert.True(t, IsValidation(err))
}

func TestCreatePendingExcludesCompletedWhenRepeatsOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 0)
	y := f.player(t, "y", 1200, 0)

	first, err := f.store.CreatePending(ctx, x.ID, y.ID)
	require.NoError(t, err)
	require.Equal(t, "two-sum", first.Problem.Slug)
	_, err = f.store.Finalize(ctx, Resolution{MatchID: first.Match.ID, WinnerID: x.ID})
	require.NoError(t, err)

	y, _ = f.store.Player(ctx, y.ID)
	y.Preferences.AllowRepeats = false
	require.NoError(t, f.repo.SavePlayer(ctx, y))

	// the fake catalog would hand out two-sum again on the third draw
	for i := 0; i < 3; i++ {
		p, err := f.store.CreatePending(ctx, x.ID, y.ID)
		require.NoError(t, err)
		assert.Equal(t, "valid-anagram", p.Problem.Slug)
	}
}

func TestCreatePendingExhaustedStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 0)
	y := f.player(t, "y", 1200, 0)
	f.svc.RandomErr = &problems.ServiceError{Op: "random problem", Err: io.ErrUnexpectedEOF}

	_, err := f.store.CreatePending(ctx, x.ID, y.ID)
	require.Error(t, err)
	assert.True(t, problems.IsExhausted(err))

	pending, err := f.store.PendingFor(ctx, x.ID)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestFinalizeScenarioProvisionalPlayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 5)
	y := f.player(t, "y", 1150, 3)

	pairing, err := f.store.CreatePending(ctx, x.ID, y.ID)
	require.NoError(t, err)

	m, err := f.store.Finalize(ctx, Resolution{
		MatchID:         pairing.Match.ID,
		WinnerID:        x.ID,
		DurationSeconds: 300,
		Metrics:         &Metrics{Runtime: 52, Memory: 17.3},
	})
	require.NoError(t, err)

	assert.Equal(t, models.MatchCompleted, m.Status)
	assert.Equal(t, "two-sum", m.ProblemSlug)
	assert.Equal(t, 300, m.DurationSeconds)

	w, _ := m.WinnerState()
	l, _ := m.LoserState()
	assert.Equal(t, x.ID, w.PlayerID)
	assert.Equal(t, 17, w.Delta)
	assert.Equal(t, -17, l.Delta)
	assert.Equal(t, 52, w.Runtime)
	assert.Equal(t, 17.3, w.Memory)
	assert.Equal(t, models.UnknownRuntime, l.Runtime)
	assert.Equal(t, models.UnknownMemory, l.Memory)

	px, _ := f.store.Player(ctx, x.ID)
	py, _ := f.store.Player(ctx, y.ID)
	assert.Equal(t, 1217, px.Rating)
	assert.Equal(t, 6, px.GamesPlayed)
	assert.Equal(t, 1133, py.Rating)
	assert.Equal(t, 4, py.GamesPlayed)
}

func TestFinalizeWinnerInSecondSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 50)
	y := f.player(t, "y", 1250, 50)

	pairing, err := f.store.CreatePending(ctx, x.ID, y.ID)
	require.NoError(t, err)
	m, err := f.store.Finalize(ctx, Resolution{MatchID: pairing.Match.ID, WinnerID: y.ID})
	require.NoError(t, err)

	wantW, wantL := rating.MatchDeltas(1250, 1200, 50, 50, false)
	assert.Equal(t, models.SlotB, m.Winner)
	assert.Equal(t, wantW, m.B.Delta)
	assert.Equal(t, wantL, m.A.Delta)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 0)
	y := f.player(t, "y", 1200, 0)
	pairing, err := f.store.CreatePending(ctx, x.ID, y.ID)
	require.NoError(t, err)

	first, err := f.store.Finalize(ctx, Resolution{MatchID: pairing.Match.ID, WinnerID: x.ID})
	require.NoError(t, err)

	_, err = f.store.Finalize(ctx, Resolution{MatchID: pairing.Match.ID, WinnerID: y.ID})
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.True(t, IsConflict(err))

	stored, err := f.store.Get(ctx, pairing.Match.ID)
	require.NoError(t, err)
	assert.Equal(t, first.A.Delta, stored.A.Delta)
	assert.Equal(t, first.B.Delta, stored.B.Delta)
	assert.Equal(t, models.SlotA, stored.Winner)
}

func TestFinalizeConcurrentCallsCompleteOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 0)
	y := f.player(t, "y", 1200, 0)
	pairing, err := f.store.CreatePending(ctx, x.ID, y.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			winner := x.ID
			if i%2 == 1 {
				winner = y.ID
			}
			_, results[i] = f.store.Finalize(ctx, Resolution{MatchID: pairing.Match.ID, WinnerID: winner})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range results {
		if err == nil {
			ok++
		} else {
			assert.True(t, IsConflict(err))
		}
	}
	assert.Equal(t, 1, ok)

	px, _ := f.store.Player(ctx, x.ID)
	py, _ := f.store.Player(ctx, y.ID)
	assert.Equal(t, 1, px.GamesPlayed)
	assert.Equal(t, 2400, px.Rating+py.Rating)
}

func TestFinalizeRejectsOutsider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 0)
	y := f.player(t, "y", 1200, 0)
	pairing, err := f.store.CreatePending(ctx, x.ID, y.ID)
	require.NoError(t, err)

	_, err = f.store.Finalize(ctx, Resolution{MatchID: pairing.Match.ID, WinnerID: uuid.New()})
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.store.Finalize(ctx, Resolution{MatchID: uuid.New(), WinnerID: x.ID})
	assert.ErrorIs(t, err, ErrMatchNotFound)

	stored, _ := f.store.Get(ctx, pairing.Match.ID)
	assert.True(t, stored.IsPending())
}

func TestFinalizeUsesPairingSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 5)
	y := f.player(t, "y", 1150, 3)
	pairing, err := f.store.CreatePending(ctx, x.ID, y.ID)
	require.NoError(t, err)

	// another duel moved x's live rating in the meantime
	live, _ := f.store.Player(ctx, x.ID)
	live.Rating = 1500
	live.GamesPlayed = 40
	require.NoError(t, f.repo.SavePlayer(ctx, live))

	m, err := f.store.Finalize(ctx, Resolution{MatchID: pairing.Match.ID, WinnerID: x.ID})
	require.NoError(t, err)
	assert.Equal(t, 17, m.A.Delta)
	assert.Equal(t, -17, m.B.Delta)

	px, _ := f.store.Player(ctx, x.ID)
	assert.Equal(t, 1517, px.Rating)
}

func TestResign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1300, 40)
	y := f.player(t, "y", 1280, 12)
	pairing, err := f.store.CreatePending(ctx, x.ID, y.ID)
	require.NoError(t, err)

	m, err := f.store.Resign(ctx, pairing.Match.ID, x.ID, 95)
	require.NoError(t, err)

	wantW, wantL := rating.MatchDeltas(1280, 1300, 12, 40, false)
	assert.Equal(t, models.SlotB, m.Winner)
	assert.True(t, m.Resigned)
	assert.Equal(t, wantW, m.B.Delta)
	assert.Equal(t, wantL-rating.ResignationPenalty, m.A.Delta)
	assert.Equal(t, models.UnknownRuntime, m.A.Runtime)
	assert.Equal(t, models.UnknownRuntime, m.B.Runtime)
	assert.Equal(t, models.UnknownMemory, m.B.Memory)

	_, err = f.store.Resign(ctx, pairing.Match.ID, y.ID, 95)
	assert.True(t, IsConflict(err))

	_, err = f.store.Resign(ctx, pairing.Match.ID, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrNotParticipant)

	require.Len(t, f.events.events, 2)
	done := f.events.events[1]
	assert.Equal(t, models.EventMatchCompleted, done.Event)
	assert.Equal(t, y.ID, done.WinnerID)
	assert.True(t, done.Resigned)
}

func TestResultHistoryStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 5)
	y := f.player(t, "y", 1150, 3)

	pairing, err := f.store.CreatePending(ctx, x.ID, y.ID)
	require.NoError(t, err)

	pending, err := f.store.Result(ctx, pairing.Match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchPending, pending.Status)
	assert.Nil(t, pending.Winner)
	assert.Nil(t, pending.CompletedAt)

	_, err = f.store.Finalize(ctx, Resolution{
		MatchID: pairing.Match.ID, WinnerID: y.ID, DurationSeconds: 120,
		Metrics: &Metrics{Runtime: 3, Memory: 2.5},
	})
	require.NoError(t, err)

	res, err := f.store.Result(ctx, pairing.Match.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "y", res.Winner.Username)
	assert.Equal(t, 1150, res.Winner.RatingBefore)
	assert.Equal(t, 1150+res.Winner.Delta, res.Winner.RatingAfter)
	assert.Equal(t, 3, res.Winner.Runtime)
	assert.Equal(t, "x", res.Loser.Username)
	assert.Equal(t, "https://leetcode.com/problems/two-sum/", res.Problem.URL)
	assert.Equal(t, 120, res.DurationSeconds)
	assert.NotNil(t, res.CompletedAt)

	hist, err := f.store.History(ctx, x.ID, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.False(t, hist[0].Won)
	assert.Equal(t, y.ID, hist[0].OpponentID)
	assert.Equal(t, "y", hist[0].OpponentName)

	st, err := f.store.Stats(ctx, y.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Wins)
	assert.Equal(t, 100.0, st.WinRate)
	assert.Equal(t, 1, st.WinStreak)

	_, err = f.store.History(ctx, uuid.New(), 10)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.player(t, "x", 1200, 5)
	y := f.player(t, "y", 1150, 3)

	p, err := f.store.Preview(ctx, x.ID, y.ID)
	require.NoError(t, err)
	assert.Equal(t, 57.1, p.WinProbability)
	assert.Equal(t, 17, p.ChangeOnWin)

	_, err = f.store.Preview(ctx, x.ID, uuid.New())
	assert.True(t, IsValidation(err))
}
