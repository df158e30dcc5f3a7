package problems_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/jason-s-yu/codeduel/internal/models"
	"github.com/jason-s-yu/codeduel/internal/problems"
	"github.com/jason-s-yu/codeduel/internal/problems/problemstest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func catalog() []models.Problem {
	return []models.Problem{
		{Slug: "two-sum", Title: "Two Sum", Difficulty: "EASY", Tags: []string{"array"}},
		{Slug: "add-two-numbers", Title: "Add Two Numbers", Difficulty: "MEDIUM", Tags: []string{"linked-list"}},
		{Slug: "group-anagrams", Title: "Group Anagrams", Difficulty: "MEDIUM", Tags: []string{"hash-table"}},
	}
}

func TestIntersect(t *testing.T) {
	assert.Equal(t, []string{"b", "c"}, problems.Intersect([]string{"a", "b", "c", "b"}, []string{"c", "b", "d"}))
	assert.Empty(t, problems.Intersect([]string{"a"}, []string{"b"}))
	assert.Empty(t, problems.Intersect(nil, []string{"b"}))
}

func TestSelectProblemUsesSharedPreferences(t *testing.T) {
	svc := problemstest.New(catalog()...)
	sel := problems.NewSelector(svc, problems.DefaultOptions(), quietLogger())

	got, err := sel.SelectProblem(context.Background(), problems.Request{
		TopicsA:       []string{"array", "graph"},
		TopicsB:       []string{"graph"},
		DifficultiesA: []string{"EASY", "MEDIUM"},
		DifficultiesB: []string{"MEDIUM"},
	})
	require.NoError(t, err)
	assert.Equal(t, "two-sum", got.Problem.Slug)
	assert.Equal(t, "Two Sum", got.Problem.Title, "detail is fetched after the draw")
	assert.Equal(t, 1, got.Attempts)
	assert.False(t, got.TopicFallback)
	assert.False(t, got.DifficultyFallback)
	assert.Equal(t, []string{"graph"}, svc.LastFilter.Topics)
	assert.Equal(t, []string{"MEDIUM"}, svc.LastFilter.Difficulties)
}

func TestSelectProblemFallbackIsObservable(t *testing.T) {
	logger, hook := test.NewNullLogger()
	svc := problemstest.New(catalog()...)
	sel := problems.NewSelector(svc, problems.DefaultOptions(), logger)

	got, err := sel.SelectProblem(context.Background(), problems.Request{
		TopicsA:       []string{"graph"},
		TopicsB:       []string{"tree"},
		DifficultiesA: []string{"HARD"},
		DifficultiesB: []string{"EASY"},
	})
	require.NoError(t, err)
	assert.True(t, got.TopicFallback)
	assert.True(t, got.DifficultyFallback)
	assert.Equal(t, []string{"array", "string", "hash-table"}, got.Filter.Topics)
	assert.Equal(t, []string{"MEDIUM"}, got.Filter.Difficulties)

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.InfoLevel && e.Data["topic_fallback"] == true {
			found = true
		}
	}
	assert.True(t, found, "fallback substitution must be logged")
}

func TestSelectProblemSkipsExcluded(t *testing.T) {
	svc := problemstest.New(catalog()...)
	sel := problems.NewSelector(svc, problems.DefaultOptions(), quietLogger())

	got, err := sel.SelectProblem(context.Background(), problems.Request{
		Excluded: []string{"two-sum", "add-two-numbers"},
	})
	require.NoError(t, err)
	assert.Equal(t, "group-anagrams", got.Problem.Slug)
	assert.Equal(t, 3, got.Attempts)
}

func TestSelectProblemExhaustsAfterExactBudget(t *testing.T) {
	svc := problemstest.New(catalog()...)
	sel := problems.NewSelector(svc, problems.DefaultOptions(), quietLogger())

	_, err := sel.SelectProblem(context.Background(), problems.Request{
		Excluded: []string{"two-sum", "add-two-numbers", "group-anagrams"},
	})
	require.Error(t, err)
	assert.True(t, problems.IsExhausted(err))
	assert.Equal(t, problems.ExhaustedMessage, err.Error())
	assert.Equal(t, 10, svc.Calls())

	var ex *problems.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 10, ex.Attempts)
}

func TestSelectProblemTreatsServiceErrorsAsAttempts(t *testing.T) {
	svc := problemstest.New(catalog()...)
	svc.RandomErr = &problems.ServiceError{Op: "random problem", Err: errors.New("connection refused")}
	sel := problems.NewSelector(svc, problems.Options{MaxAttempts: 4}, quietLogger())

	_, err := sel.SelectProblem(context.Background(), problems.Request{})
	require.Error(t, err)
	assert.True(t, problems.IsExhausted(err))
	assert.ErrorIs(t, err, problems.ErrServiceUnavailable)
	assert.Equal(t, 4, svc.Calls())
}

func TestSelectProblemStopsOnCancel(t *testing.T) {
	svc := problemstest.New(catalog()...)
	sel := problems.NewSelector(svc, problems.DefaultOptions(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sel.SelectProblem(ctx, problems.Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, svc.Calls())
}

func TestParseMetrics(t *testing.T) {
	assert.Equal(t, 52, problems.ParseRuntime("52 ms"))
	assert.Equal(t, 7, problems.ParseRuntime("7ms"))
	assert.Equal(t, models.UnknownRuntime, problems.ParseRuntime("N/A"))
	assert.Equal(t, 17.3, problems.ParseMemory("17.3 MB"))
	assert.Equal(t, models.UnknownMemory, problems.ParseMemory(""))
}
