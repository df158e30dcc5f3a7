// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/codeduel/internal/models"
	"github.com/jason-s-yu/codeduel/internal/problems"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list that receives duel lifecycle events.
const DefaultQueueName = "codeduel_events"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// EventPublisher pushes match events onto a Redis list.
type EventPublisher struct {
	rdb   redis.Cmdable
	queue string
}

func NewEventPublisher(rdb redis.Cmdable, queue string) *EventPublisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &EventPublisher{rdb: rdb, queue: queue}
}

// Publish serializes the event to JSON and RPushes it to the queue.
func (p *EventPublisher) Publish(ctx context.Context, event models.MatchEvent) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal match event: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// ProblemCache serves problem details from Redis before asking the wrapped service.
// Random draws and submissions always go to the wrapped service.
type ProblemCache struct {
	problems.Service
	rdb redis.Cmdable
	ttl time.Duration
}

func NewProblemCache(next problems.Service, rdb redis.Cmdable, ttl time.Duration) *ProblemCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ProblemCache{Service: next, rdb: rdb, ttl: ttl}
}

func problemKey(slug string) string {
	return "problem:" + slug
}

func (c *ProblemCache) FetchProblem(ctx context.Context, slug string) (models.Problem, error) {
	// a miss or a Redis failure falls through to the wrapped service
	if data, err := c.rdb.Get(ctx, problemKey(slug)).Bytes(); err == nil {
		var p models.Problem
		if json.Unmarshal(data, &p) == nil && p.Slug == slug {
			return p, nil
		}
	}

	p, err := c.Service.FetchProblem(ctx, slug)
	if err != nil {
		return models.Problem{}, err
	}
	if data, err := json.Marshal(p); err == nil {
		_ = c.rdb.SetEx(ctx, problemKey(slug), data, c.ttl).Err()
	}
	return p, nil
}
