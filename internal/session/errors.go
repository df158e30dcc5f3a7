package session

import (
	"errors"
	"fmt"

	"github.com/jason-s-yu/codeduel/internal/match"
	"github.com/jason-s-yu/codeduel/internal/matchmaking"
	"github.com/jason-s-yu/codeduel/internal/problems"
)

// ErrSubmissionInvalid is returned when a player's latest accepted submission
// does not solve the assigned problem. The match stays pending.
var ErrSubmissionInvalid = errors.New("submission_invalid")

// ErrRateLimited is returned for inbound messages over the connection's budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// ErrUnknownMessage is returned for an unrecognised inbound type.
var ErrUnknownMessage = errors.New("unknown message type")

// SubmissionMismatchError describes why a submission was rejected.
type SubmissionMismatchError struct {
	Expected string
	// Got is empty when the player has no accepted submission.
	Got    string
	Reason string
}

func (e *SubmissionMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("submission_invalid: %s", e.Reason)
	}
	if e.Got == "" {
		return fmt.Sprintf("submission_invalid: no accepted submission found, expected %s", e.Expected)
	}
	return fmt.Sprintf("submission_invalid: latest accepted submission is %s, expected %s", e.Got, e.Expected)
}

func (e *SubmissionMismatchError) Is(target error) bool {
	return target == ErrSubmissionInvalid
}

// DescribeError is the single place internal errors become user-facing text.
// The websocket and HTTP surfaces both use it.
func DescribeError(err error) string {
	var mismatch *SubmissionMismatchError
	switch {
	case err == nil:
		return ""
	case problems.IsExhausted(err):
		return problems.ExhaustedMessage
	case errors.As(err, &mismatch):
		return ErrSubmissionInvalid.Error()
	case errors.Is(err, problems.ErrServiceUnavailable):
		return "problem service unavailable, try again later"
	case errors.Is(err, match.ErrAlreadyCompleted):
		return "match already completed"
	case errors.Is(err, match.ErrNotParticipant):
		return "you are not a participant in this match"
	case errors.Is(err, match.ErrMatchNotFound):
		return "match not found"
	case errors.Is(err, match.ErrPlayerNotFound):
		return "player not found"
	case errors.Is(err, match.ErrSamePlayer):
		return "cannot duel yourself"
	case errors.Is(err, matchmaking.ErrPairingInProgress):
		return "pairing already in progress"
	case errors.Is(err, ErrRateLimited):
		return "rate limit exceeded, slow down"
	case errors.Is(err, ErrUnknownMessage):
		return err.Error()
	default:
		return "internal error"
	}
}

// errorMessage builds the outbound error event for err.
func errorMessage(err error) Message {
	msg := Message{
		"type":    "error",
		"message": DescribeError(err),
	}
	var mismatch *SubmissionMismatchError
	if errors.As(err, &mismatch) {
		msg["detail"] = mismatch.Error()
		msg["expected"] = mismatch.Expected
	}
	return msg
}
