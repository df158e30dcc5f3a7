// Package scheduler runs the periodic matchmaking maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Queue is the part of the session hub the jobs drive.
type Queue interface {
	Sweep(ctx context.Context) int
	PruneQueue(maxWait time.Duration) int
}

type Options struct {
	SweepInterval   time.Duration
	QueueStaleAfter time.Duration
	// PruneInterval defaults to a minute, or QueueStaleAfter if shorter.
	PruneInterval time.Duration
}

type Scheduler struct {
	sched  gocron.Scheduler
	queue  Queue
	opts   Options
	log    *logrus.Entry
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers the sweep and prune jobs. Nothing runs until Start.
func New(queue Queue, opts Options, logger *logrus.Logger) (*Scheduler, error) {
	if opts.SweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", opts.SweepInterval)
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = time.Minute
		if opts.QueueStaleAfter > 0 && opts.QueueStaleAfter < opts.PruneInterval {
			opts.PruneInterval = opts.QueueStaleAfter
		}
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sched:  sched,
		queue:  queue,
		opts:   opts,
		log:    logger.WithField("component", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(opts.SweepInterval),
		gocron.NewTask(s.sweep),
		gocron.WithName("pairing-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to schedule pairing sweep: %w", err)
	}

	if opts.QueueStaleAfter > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(opts.PruneInterval),
			gocron.NewTask(s.prune),
			gocron.WithName("queue-prune"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to schedule queue prune: %w", err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.log.WithFields(logrus.Fields{
		"sweep_interval": s.opts.SweepInterval,
		"stale_after":    s.opts.QueueStaleAfter,
	}).Info("scheduler started")
}

// Shutdown cancels running jobs and waits for them.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}

func (s *Scheduler) sweep() {
	if n := s.queue.Sweep(s.ctx); n > 0 {
		s.log.Infof("sweep paired %d match(es)", n)
	}
}

func (s *Scheduler) prune() {
	if n := s.queue.PruneQueue(s.opts.QueueStaleAfter); n > 0 {
		s.log.Infof("pruned %d stale queue entr(ies)", n)
	}
}
