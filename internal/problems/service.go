// Package problems selects duel problems from an external catalog.
package problems

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jason-s-yu/codeduel/internal/models"
)

// Filter narrows a random problem request.
type Filter struct {
	Topics       []string
	Difficulties []string
	Excluded     map[string]struct{}
}

// IsExcluded reports whether slug is in the exclusion set.
func (f Filter) IsExcluded(slug string) bool {
	_, ok := f.Excluded[slug]
	return ok
}

// Service is the external problem catalog.
type Service interface {
	FetchProblem(ctx context.Context, slug string) (models.Problem, error)
	FetchRandomProblem(ctx context.Context, filter Filter) (models.Problem, error)
	// FetchRecentSubmission returns nil, nil when the handle has no accepted submissions.
	FetchRecentSubmission(ctx context.Context, handle string) (*models.Submission, error)
}

// ErrServiceUnavailable tags transport and decoding failures from a Service.
var ErrServiceUnavailable = errors.New("problem service unavailable")

// ServiceError wraps a failed call to the problem service.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("problem service %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	return []error{ErrServiceUnavailable, e.Err}
}

// ExhaustedMessage is shown to players when no admissible problem was found.
const ExhaustedMessage = "all matching problems already completed; widen filters or enable repeats"

// ExhaustedError is returned once the selector has used its attempt budget.
type ExhaustedError struct {
	Attempts int
	// Last is the final attempt's error, if it failed rather than hit an excluded slug.
	Last error
}

func (e *ExhaustedError) Error() string {
	return ExhaustedMessage
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsExhausted reports whether err came from an exhausted selection.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// ParseRuntime turns "52 ms" into 52. Unparseable text yields the unknown sentinel.
func ParseRuntime(text string) int {
	f, ok := leadingNumber(text)
	if !ok {
		return models.UnknownRuntime
	}
	return int(f)
}

// ParseMemory turns "17.3 MB" into 17.3. Unparseable text yields the unknown sentinel.
func ParseMemory(text string) float64 {
	f, ok := leadingNumber(text)
	if !ok {
		return models.UnknownMemory
	}
	return f
}

func leadingNumber(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	end := 0
	for end < len(text) && (text[end] >= '0' && text[end] <= '9' || text[end] == '.') {
		end++
	}
	if end == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(text[:end], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
