package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codeduel/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	items chan string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{items: make(chan string, 64)}
}

func (q *fakeQueue) push(t *testing.T, ev models.MatchEvent) {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	q.items <- string(data)
}

func (q *fakeQueue) BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	select {
	case p := <-q.items:
		return redis.NewStringSliceResult([]string{keys[0], p}, nil)
	case <-time.After(timeout):
		return redis.NewStringSliceResult(nil, redis.Nil)
	case <-ctx.Done():
		return redis.NewStringSliceResult(nil, ctx.Err())
	}
}

type fakeSink struct {
	mu      sync.Mutex
	batches [][]models.MatchEvent
	failFor int
}

func (s *fakeSink) InsertMatchEvents(_ context.Context, events []models.MatchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor > 0 {
		s.failFor--
		return errors.New("db down")
	}
	s.batches = append(s.batches, append([]models.MatchEvent(nil), events...))
	return nil
}

func (s *fakeSink) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, b := range s.batches {
		out = append(out, len(b))
	}
	return out
}

func event(kind string) models.MatchEvent {
	return models.MatchEvent{
		Event:     kind,
		MatchID:   uuid.New(),
		PlayerA:   uuid.New(),
		PlayerB:   uuid.New(),
		Timestamp: time.Now().Unix(),
	}
}

func start(t *testing.T, h *Historian) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, h.Run(ctx))
	}()
	return cancel, done
}

func TestFlushesFullBatches(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q, sink := newFakeQueue(), &fakeSink{}
	h := New(q, sink, Options{BatchSize: 2, FlushInterval: time.Hour, PollTimeout: 5 * time.Millisecond}, logger)
	for range 4 {
		q.push(t, event(models.EventMatchCreated))
	}

	cancel, done := start(t, h)
	assert.Eventually(t, func() bool { return h.Stored() == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, []int{2, 2}, sink.sizes())
}

func TestFlushesOnShutdown(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q, sink := newFakeQueue(), &fakeSink{}
	h := New(q, sink, Options{BatchSize: 10, FlushInterval: time.Hour, PollTimeout: 5 * time.Millisecond}, logger)
	for range 3 {
		q.push(t, event(models.EventMatchCompleted))
	}

	cancel, done := start(t, h)
	assert.Eventually(t, func() bool { return len(q.items) == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, []int{3}, sink.sizes())
}

func TestFlushesOnInterval(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q, sink := newFakeQueue(), &fakeSink{}
	h := New(q, sink, Options{BatchSize: 10, FlushInterval: 10 * time.Millisecond, PollTimeout: 5 * time.Millisecond}, logger)
	q.push(t, event(models.EventMatchCreated))

	cancel, done := start(t, h)
	defer func() { cancel(); <-done }()
	assert.Eventually(t, func() bool { return h.Stored() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestSkipsInvalidRecords(t *testing.T) {
	logger, hook := test.NewNullLogger()
	q, sink := newFakeQueue(), &fakeSink{}
	h := New(q, sink, Options{BatchSize: 1, PollTimeout: 5 * time.Millisecond}, logger)
	q.items <- "{not json"
	q.push(t, event(models.EventMatchCreated))

	cancel, done := start(t, h)
	assert.Eventually(t, func() bool { return h.Stored() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "invalid event record" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRetriesFailedFlush(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q, sink := newFakeQueue(), &fakeSink{failFor: 2}
	h := New(q, sink, Options{BatchSize: 1, FlushInterval: time.Millisecond, PollTimeout: 5 * time.Millisecond}, logger)
	q.push(t, event(models.EventMatchCreated))

	cancel, done := start(t, h)
	assert.Eventually(t, func() bool { return h.Stored() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, []int{1}, sink.sizes())
}

func TestBacklogDropsOldest(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := New(newFakeQueue(), &fakeSink{}, Options{BatchSize: 1, MaxBacklog: 2}, logger)
	var ids []uuid.UUID
	for range 3 {
		ev := event(models.EventMatchCreated)
		ids = append(ids, ev.MatchID)
		data, err := json.Marshal(ev)
		require.NoError(t, err)
		h.accept(string(data))
	}
	require.Len(t, h.batch, 2)
	assert.Equal(t, ids[1], h.batch[0].MatchID)
	assert.Equal(t, ids[2], h.batch[1].MatchID)
}

func TestOptionDefaults(t *testing.T) {
	var o Options
	o.FillDefaults()
	assert.Equal(t, "codeduel_events", o.Queue)
	assert.Equal(t, 20, o.BatchSize)
	assert.Equal(t, 1000, o.MaxBacklog)
}
