// internal/handlers/api.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codeduel/internal/auth"
	"github.com/jason-s-yu/codeduel/internal/match"
	"github.com/jason-s-yu/codeduel/internal/models"
	"github.com/jason-s-yu/codeduel/internal/session"
	"github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// API serves the HTTP surface of the matchmaking service.
type API struct {
	hub    *session.Hub
	store  *match.Store
	logger *logrus.Logger

	// OriginPatterns is forwarded to the websocket upgrader.
	OriginPatterns []string
	// SecureCookies marks the auth cookie Secure.
	SecureCookies bool
}

func NewAPI(hub *session.Hub, store *match.Store, logger *logrus.Logger) *API {
	return &API{hub: hub, store: store, logger: logger}
}

// Routes registers every endpoint on mux, each wrapped by mw.
func (a *API) Routes(mux *http.ServeMux, mw func(http.Handler) http.Handler) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, mw(h))
	}

	handle("GET /ws/matchmaking", MatchmakingWSHandler(a.logger, a.hub, a.store, a.OriginPatterns))

	handle("POST /players/register", a.RegisterPlayer)
	handle("GET /players/me", a.CurrentPlayer)
	handle("PUT /players/me/preferences", a.UpdatePreferences)
	handle("GET /players/{id}/history", a.History)
	handle("GET /players/{id}/stats", a.Stats)

	handle("POST /queue/join", a.JoinQueue)
	handle("POST /queue/leave", a.LeaveQueue)

	handle("GET /match/status", a.MatchStatus)
	handle("POST /match/{id}/submit", a.Submit)
	handle("POST /match/{id}/resign", a.Resign)
	handle("GET /match/{id}/result", a.Result)

	handle("GET /rating/preview", a.RatingPreview)
}

// authenticate resolves the caller or writes a 401.
func (a *API) authenticate(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := auth.AuthenticateRequest(r)
	if err != nil {
		a.logger.Debugf("authentication failed from %s: %v", r.RemoteAddr, err)
		writeError(w, a.logger, fmt.Errorf("%w: %v", errUnauthorized, err))
		return uuid.Nil, false
	}
	return id, true
}

type registerRequest struct {
	Username    string              `json:"username"`
	Handle      string              `json:"handle"`
	Preferences *models.Preferences `json:"preferences,omitempty"`
}

// RegisterPlayer creates a player and issues an auth token for them.
func (a *API) RegisterPlayer(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Handle = strings.TrimSpace(req.Handle)
	if req.Username == "" || req.Handle == "" {
		http.Error(w, "username and handle are required", http.StatusBadRequest)
		return
	}

	p, err := a.store.RegisterPlayer(r.Context(), req.Username, req.Handle)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	if req.Preferences != nil {
		if p, err = a.store.UpdatePreferences(r.Context(), p.ID, *req.Preferences); err != nil {
			writeError(w, a.logger, err)
			return
		}
	}

	token, err := auth.CreateJWT(p.ID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   a.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"player": p,
		"token":  token,
	})
}

func (a *API) CurrentPlayer(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	p, err := a.store.Player(r.Context(), id)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	var prefs models.Preferences
	if err := decodeBody(r, &prefs); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p, err := a.store.UpdatePreferences(r.Context(), id, prefs)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) History(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.authenticate(w, r); !ok {
		return
	}
	playerID, err := pathUUID(r, "id", match.ErrPlayerNotFound)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	entries, err := a.store.History(r.Context(), playerID, limit)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"player_id": playerID,
		"matches":   entries,
	})
}

func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.authenticate(w, r); !ok {
		return
	}
	playerID, err := pathUUID(r, "id", match.ErrPlayerNotFound)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	st, err := a.store.Stats(r.Context(), playerID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type pairingView struct {
	MatchID  uuid.UUID        `json:"match_id"`
	Problem  match.ProblemRef `json:"problem"`
	Opponent opponentView     `json:"opponent"`
}

type opponentView struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Rating   int       `json:"rating"`
}

// JoinQueue enqueues the caller. Live events still go to their websocket.
func (a *API) JoinQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	res, err := a.hub.JoinQueue(r.Context(), id, uuid.Nil)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	body := map[string]interface{}{
		"queued":    res.Pairing == nil,
		"pool_size": res.PoolSize,
	}
	if p := res.Pairing; p != nil {
		_, opp := p.Player(id)
		body["match"] = pairingView{
			MatchID: p.Match.ID,
			Problem: match.ProblemRef{
				Slug:  p.Problem.Slug,
				Title: p.Problem.Title,
				URL:   p.Problem.URL(),
			},
			Opponent: opponentView{ID: opp.ID, Username: opp.Username, Rating: opp.Rating},
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *API) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"was_queued": a.hub.LeaveQueue(id)})
}

func (a *API) MatchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	st, err := a.hub.Status(r.Context(), id)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type completionRequest struct {
	ClientElapsedSeconds float64 `json:"client_elapsed_seconds"`
}

func (a *API) Submit(w http.ResponseWriter, r *http.Request) {
	a.complete(w, r, a.hub.SubmitSolution)
}

func (a *API) Resign(w http.ResponseWriter, r *http.Request) {
	a.complete(w, r, a.hub.ResignMatch)
}

type completeFunc func(ctx context.Context, playerID, matchID uuid.UUID, elapsed float64) (models.Match, error)

// complete runs a submit or resign for the caller and returns the result view.
func (a *API) complete(w http.ResponseWriter, r *http.Request, fn completeFunc) {
	id, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	matchID, err := pathUUID(r, "id", match.ErrMatchNotFound)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	var req completionRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	m, err := fn(r.Context(), id, matchID, req.ClientElapsedSeconds)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	res, err := a.store.Result(r.Context(), m.ID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) Result(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.authenticate(w, r); !ok {
		return
	}
	matchID, err := pathUUID(r, "id", match.ErrMatchNotFound)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	res, err := a.store.Result(r.Context(), matchID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RatingPreview shows the caller's odds and rating swing against ?opponent=.
func (a *API) RatingPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	opp, err := uuid.Parse(r.URL.Query().Get("opponent"))
	if err != nil {
		http.Error(w, "opponent must be a player id", http.StatusBadRequest)
		return
	}
	p, err := a.store.Preview(r.Context(), id, opp)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
