package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codeduel/internal/match"
	"github.com/jason-s-yu/codeduel/internal/matchmaking"
	"github.com/jason-s-yu/codeduel/internal/problems"
	"github.com/jason-s-yu/codeduel/internal/session"
	"github.com/sirupsen/logrus"
)

// errUnauthorized is reported when a request carries no valid token.
var errUnauthorized = errors.New("missing or invalid auth token")

// statusFor maps a domain error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrSubmissionInvalid):
		return http.StatusUnprocessableEntity
	case problems.IsExhausted(err), errors.Is(err, problems.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, match.ErrPlayerNotFound), errors.Is(err, match.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, match.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, match.ErrSamePlayer):
		return http.StatusBadRequest
	case match.IsConflict(err), errors.Is(err, matchmaking.ErrPairingInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports err with the same text a websocket client would get.
func writeError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	status := statusFor(err)
	msg := session.DescribeError(err)
	if errors.Is(err, errUnauthorized) {
		msg = err.Error()
	}
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("request failed")
	}
	body := map[string]interface{}{"error": msg}
	var mismatch *session.SubmissionMismatchError
	if errors.As(err, &mismatch) {
		body["detail"] = mismatch.Error()
		body["expected"] = mismatch.Expected
	}
	writeJSON(w, status, body)
}

// decodeBody reads an optional JSON body into v. An empty body is not an error.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// pathUUID parses a path wildcard, reporting a malformed id as notFound.
func pathUUID(r *http.Request, name string, notFound error) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, notFound
	}
	return id, nil
}
