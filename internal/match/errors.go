package match

import "errors"

// Validation errors are the caller's fault and are never retried.
var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrMatchNotFound  = errors.New("match not found")
	ErrNotParticipant = errors.New("player is not a participant in this match")
	ErrSamePlayer     = errors.New("a player cannot duel themselves")
)

// ErrAlreadyCompleted is the conflict returned when a match was resolved before this call.
var ErrAlreadyCompleted = errors.New("match already completed")

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrMatchNotFound) ||
		errors.Is(err, ErrNotParticipant) ||
		errors.Is(err, ErrSamePlayer)
}

// IsConflict reports whether err means the match can no longer change.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted)
}
