// Package problemstest provides an in-memory problem service for tests.
package problemstest

import (
	"context"
	"errors"
	"sync"

	"github.com/jason-s-yu/codeduel/internal/models"
	"github.com/jason-s-yu/codeduel/internal/problems"
)

// Service cycles through its problems in insertion order on every random draw.
type Service struct {
	mu          sync.Mutex
	problems    map[string]models.Problem
	order       []string
	next        int
	submissions map[string]*models.Submission

	// RandomErr, when set, fails every random draw.
	RandomErr   error
	RandomCalls int
	LastFilter  problems.Filter
}

var _ problems.Service = (*Service)(nil)

func New(ps ...models.Problem) *Service {
	s := &Service{
		problems:    make(map[string]models.Problem),
		submissions: make(map[string]*models.Submission),
	}
	for _, p := range ps {
		s.Add(p)
	}
	return s
}

// Add registers p for both detail lookups and random draws.
func (s *Service) Add(p models.Problem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.problems[p.Slug]; !ok {
		s.order = append(s.order, p.Slug)
	}
	s.problems[p.Slug] = p
}

// SetSubmission sets the recent submission returned for handle. nil clears it.
func (s *Service) SetSubmission(handle string, sub *models.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub == nil {
		delete(s.submissions, handle)
		return
	}
	s.submissions[handle] = sub
}

// Calls returns the number of random draws made so far.
func (s *Service) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.RandomCalls
}

func (s *Service) FetchProblem(_ context.Context, slug string) (models.Problem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.problems[slug]
	if !ok {
		return models.Problem{}, &problems.ServiceError{Op: "problem", Err: errors.New("unknown slug " + slug)}
	}
	return p, nil
}

func (s *Service) FetchRandomProblem(_ context.Context, filter problems.Filter) (models.Problem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RandomCalls++
	s.LastFilter = filter
	if s.RandomErr != nil {
		return models.Problem{}, s.RandomErr
	}
	if len(s.order) == 0 {
		return models.Problem{}, &problems.ServiceError{Op: "random problem", Err: errors.New("empty catalog")}
	}
	slug := s.order[s.next%len(s.order)]
	s.next++
	return models.Problem{Slug: slug}, nil
}

func (s *Service) FetchRecentSubmission(_ context.Context, handle string) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.submissions[handle]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, nil
}
