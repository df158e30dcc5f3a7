// Package historian drains the duel event queue from Redis and persists the
// records in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jason-s-yu/codeduel/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Queue is the blocking pop used to read the event list. *redis.Client satisfies it.
type Queue interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Sink stores a batch of events.
type Sink interface {
	InsertMatchEvents(ctx context.Context, events []models.MatchEvent) error
}

type Options struct {
	Queue         string        `toml:"queue"`
	BatchSize     int           `toml:"batch_size"`
	FlushInterval time.Duration `toml:"flush_interval"`
	PollTimeout   time.Duration `toml:"poll_timeout"`
	// MaxBacklog caps events held while the sink is failing; the oldest are dropped.
	MaxBacklog int `toml:"max_backlog"`
}

func (o *Options) FillDefaults() {
	if o.Queue == "" {
		o.Queue = "codeduel_events"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 3 * time.Second
	}
	if o.MaxBacklog <= 0 {
		o.MaxBacklog = 50 * o.BatchSize
	}
}

type Historian struct {
	queue  Queue
	sink   Sink
	opts   Options
	log    *logrus.Entry
	batch  []models.MatchEvent
	stored atomic.Int64
}

func New(queue Queue, sink Sink, opts Options, logger *logrus.Logger) *Historian {
	opts.FillDefaults()
	return &Historian{
		queue: queue,
		sink:  sink,
		opts:  opts,
		log:   logger.WithField("component", "historian"),
		batch: make([]models.MatchEvent, 0, opts.BatchSize),
	}
}

// Stored returns how many events were written so far.
func (h *Historian) Stored() int {
	return int(h.stored.Load())
}

// Run pops events until ctx is done, then flushes what is left.
func (h *Historian) Run(ctx context.Context) error {
	h.log.Infof("historian started on queue '%s'", h.opts.Queue)
	lastFlush := time.Now()
	for ctx.Err() == nil {
		res, err := h.queue.BLPop(ctx, h.opts.PollTimeout, h.opts.Queue).Result()
		switch {
		case err == nil && len(res) == 2:
			// res[0] is the queue name and res[1] the payload.
			h.accept(res[1])
		case err == nil, errors.Is(err, redis.Nil), ctx.Err() != nil:
		default:
			h.log.WithError(err).Warn("BLPop failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}

		if len(h.batch) >= h.opts.BatchSize || (len(h.batch) > 0 && time.Since(lastFlush) >= h.opts.FlushInterval) {
			h.flush(ctx)
			lastFlush = time.Now()
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.flush(flushCtx)
	h.log.Info("historian stopped")
	return nil
}

func (h *Historian) accept(payload string) {
	var ev models.MatchEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		h.log.WithError(err).Warn("invalid event record")
		return
	}
	h.batch = append(h.batch, ev)
	if over := len(h.batch) - h.opts.MaxBacklog; over > 0 {
		h.log.Warnf("backlog full, dropping %d oldest event(s)", over)
		h.batch = append(h.batch[:0], h.batch[over:]...)
	}
}

// flush writes the batch. A failed write keeps the events for the next attempt.
func (h *Historian) flush(ctx context.Context) {
	if len(h.batch) == 0 {
		return
	}
	if err := h.sink.InsertMatchEvents(ctx, h.batch); err != nil {
		h.log.WithError(err).Errorf("failed to flush %d event(s)", len(h.batch))
		return
	}
	h.log.Debugf("flushed %d event(s)", len(h.batch))
	h.stored.Add(int64(len(h.batch)))
	h.batch = h.batch[:0]
}
