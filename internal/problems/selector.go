package problems

import (
	"context"
	"errors"

	"github.com/jason-s-yu/codeduel/internal/models"
	"github.com/sirupsen/logrus"
)

// Options tune the selector's retry budget and fallback preferences.
type Options struct {
	MaxAttempts        int      `toml:"max_attempts"`
	FallbackDifficulty string   `toml:"fallback_difficulty"`
	FallbackTopics     []string `toml:"fallback_topics"`
}

// DefaultOptions returns the production selector settings.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:        10,
		FallbackDifficulty: "MEDIUM",
		FallbackTopics:     []string{"array", "string", "hash-table"},
	}
}

// FillDefaults replaces zero values with the production settings.
func (o *Options) FillDefaults() {
	def := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.FallbackDifficulty == "" {
		o.FallbackDifficulty = def.FallbackDifficulty
	}
	if len(o.FallbackTopics) == 0 {
		o.FallbackTopics = def.FallbackTopics
	}
}

// Request holds both players' preferences and the slugs neither may see again.
type Request struct {
	TopicsA       []string
	TopicsB       []string
	DifficultiesA []string
	DifficultiesB []string
	Excluded      []string
}

// Selection is a chosen problem along with how it was found.
type Selection struct {
	Problem models.Problem
	// Filter is the effective filter after fallback substitution.
	Filter             Filter
	TopicFallback      bool
	DifficultyFallback bool
	Attempts           int
}

// Selector picks a random problem compatible with two players.
type Selector struct {
	service Service
	opts    Options
	logger  *logrus.Entry
}

func NewSelector(service Service, opts Options, logger *logrus.Logger) *Selector {
	opts.FillDefaults()
	return &Selector{
		service: service,
		opts:    opts,
		logger:  logger.WithField("component", "selector"),
	}
}

// Service returns the catalog the selector draws from.
func (s *Selector) Service() Service {
	return s.service
}

// Options returns the effective settings.
func (s *Selector) Options() Options {
	return s.opts
}

// Resolve computes the shared filter for a request. An axis whose
// intersection is empty is replaced by the configured fallback.
func (s *Selector) Resolve(req Request) Selection {
	sel := Selection{
		Filter: Filter{
			Topics:       Intersect(req.TopicsA, req.TopicsB),
			Difficulties: Intersect(req.DifficultiesA, req.DifficultiesB),
			Excluded:     make(map[string]struct{}, len(req.Excluded)),
		},
	}
	for _, slug := range req.Excluded {
		sel.Filter.Excluded[slug] = struct{}{}
	}

	if len(sel.Filter.Topics) == 0 {
		sel.TopicFallback = true
		sel.Filter.Topics = append([]string(nil), s.opts.FallbackTopics...)
	}
	if len(sel.Filter.Difficulties) == 0 {
		sel.DifficultyFallback = true
		sel.Filter.Difficulties = []string{s.opts.FallbackDifficulty}
	}
	if sel.TopicFallback || sel.DifficultyFallback {
		s.logger.WithFields(logrus.Fields{
			"topics_a":            req.TopicsA,
			"topics_b":            req.TopicsB,
			"difficulties_a":      req.DifficultiesA,
			"difficulties_b":      req.DifficultiesB,
			"topics":              sel.Filter.Topics,
			"difficulties":        sel.Filter.Difficulties,
			"topic_fallback":      sel.TopicFallback,
			"difficulty_fallback": sel.DifficultyFallback,
		}).Info("no shared preferences, substituting fallback filters")
	}
	return sel
}

// SelectProblem draws random problems until one is admissible or the attempt
// budget runs out. Service failures count as attempts.
func (s *Selector) SelectProblem(ctx context.Context, req Request) (Selection, error) {
	sel := s.Resolve(req)

	var last error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Selection{}, err
		}
		sel.Attempts = attempt
		entry := s.logger.WithField("attempt", attempt)

		candidate, err := s.service.FetchRandomProblem(ctx, sel.Filter)
		if err != nil {
			entry.WithError(err).Debug("random problem request failed")
			last = err
			continue
		}
		if candidate.Slug == "" {
			last = &ServiceError{Op: "random problem", Err: errors.New("empty slug")}
			entry.Debug("random problem had no slug")
			continue
		}
		if sel.Filter.IsExcluded(candidate.Slug) {
			entry.WithField("problem", candidate.Slug).Debug("discarding excluded problem")
			last = nil
			continue
		}

		problem, err := s.service.FetchProblem(ctx, candidate.Slug)
		if err != nil {
			entry.WithError(err).WithField("problem", candidate.Slug).Debug("problem detail request failed")
			last = err
			continue
		}
		sel.Problem = problem
		return sel, nil
	}

	s.logger.WithField("attempts", s.opts.MaxAttempts).Warn("problem selection exhausted")
	return Selection{}, &ExhaustedError{Attempts: s.opts.MaxAttempts, Last: last}
}

// Intersect returns the values present in both a and b, in a's order, without duplicates.
func Intersect(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, v := range b {
		in[v] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		if _, ok := in[v]; !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
