// Package session runs live duels: it tracks connected players, drives each
// duel's countdown timer and relays lifecycle events to both participants.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codeduel/internal/match"
	"github.com/jason-s-yu/codeduel/internal/matchmaking"
	"github.com/jason-s-yu/codeduel/internal/models"
	"github.com/jason-s-yu/codeduel/internal/problems"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Options control duel timing and per-connection limits.
type Options struct {
	Countdown        int
	TickInterval     time.Duration
	LivenessInterval time.Duration
	InboundRate      float64
	InboundBurst     int
	ClientBuffer     int
}

// DefaultOptions returns production timings.
func DefaultOptions() Options {
	return Options{
		Countdown:        3,
		TickInterval:     time.Second,
		LivenessInterval: 30 * time.Second,
		InboundRate:      5,
		InboundBurst:     10,
		ClientBuffer:     16,
	}
}

func (o *Options) fillDefaults() {
	def := DefaultOptions()
	if o.Countdown <= 0 {
		o.Countdown = def.Countdown
	}
	if o.TickInterval <= 0 {
		o.TickInterval = def.TickInterval
	}
	if o.LivenessInterval <= 0 {
		o.LivenessInterval = def.LivenessInterval
	}
	if o.InboundRate <= 0 {
		o.InboundRate = def.InboundRate
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = def.InboundBurst
	}
	if o.ClientBuffer <= 0 {
		o.ClientBuffer = def.ClientBuffer
	}
}

// maxClientElapsed is the longest client-reported duel time accepted.
const maxClientElapsed = 24 * time.Hour

// Hub owns the live sessions and duel timers of a single instance.
type Hub struct {
	mu       sync.Mutex
	clients  map[uuid.UUID]*Client
	duels    map[uuid.UUID]*duel
	byPlayer map[uuid.UUID]uuid.UUID

	engine  *matchmaking.Engine
	store   *match.Store
	service problems.Service
	opts    Options
	logger  *logrus.Logger
	log     *logrus.Entry
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(engine *matchmaking.Engine, store *match.Store, service problems.Service, opts Options, logger *logrus.Logger) *Hub {
	opts.fillDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:  make(map[uuid.UUID]*Client),
		duels:    make(map[uuid.UUID]*duel),
		byPlayer: make(map[uuid.UUID]uuid.UUID),
		engine:   engine,
		store:    store,
		service:  service,
		opts:     opts,
		logger:   logger,
		log:      logger.WithField("component", "session"),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close stops every duel timer and waits for them to exit.
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()
}

// NewClient builds a client with the hub's buffer and rate limits.
func (h *Hub) NewClient(playerID uuid.UUID) *Client {
	limiter := rate.NewLimiter(rate.Limit(h.opts.InboundRate), h.opts.InboundBurst)
	return NewClient(playerID, h.opts.ClientBuffer, limiter, h.logger)
}

// Register makes c the player's live connection. A player reconnecting
// during a duel is sent the duel's current state.
func (h *Hub) Register(ctx context.Context, c *Client) {
	h.mu.Lock()
	h.clients[c.PlayerID] = c
	matchID, inDuel := h.byPlayer[c.PlayerID]
	d := h.duels[matchID]
	h.mu.Unlock()

	h.log.WithField("player_id", c.PlayerID).Info("player connected")
	if inDuel && d != nil {
		h.resume(ctx, c, d)
	}
}

// Unregister drops the connection and its queue entry. Pending matches are
// left alone so the player can reconnect and finish them.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c.PlayerID] == c {
		delete(h.clients, c.PlayerID)
	}
	h.mu.Unlock()

	h.engine.DequeueConn(c.PlayerID, c.ID)
	h.log.WithField("player_id", c.PlayerID).Info("player disconnected")
}

// Connected reports whether the player has a live connection.
func (h *Hub) Connected(playerID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[playerID]
	return ok
}

func (h *Hub) send(playerID uuid.UUID, msg Message) {
	h.mu.Lock()
	c := h.clients[playerID]
	h.mu.Unlock()
	if c != nil {
		c.Write(msg)
	}
}

type inbound struct {
	Type                 string  `json:"type"`
	MatchID              string  `json:"match_id"`
	ClientElapsedSeconds float64 `json:"client_elapsed_seconds"`
}

// HandleMessage dispatches one inbound message from c. Failures are reported
// to c as error events.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, data []byte) {
	if !c.Allow() {
		c.Write(errorMessage(ErrRateLimited))
		return
	}
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		c.WriteError("invalid JSON format")
		return
	}

	var err error
	switch in.Type {
	case "ping":
		c.Write(Message{"type": "pong"})
	case "join_queue":
		_, err = h.JoinQueue(ctx, c.PlayerID, c.ID)
	case "leave_queue":
		h.LeaveQueue(c.PlayerID)
	case "submit_solution":
		var id uuid.UUID
		if id, err = parseMatchID(in.MatchID); err == nil {
			_, err = h.SubmitSolution(ctx, c.PlayerID, id, in.ClientElapsedSeconds)
		}
	case "resign_match":
		var id uuid.UUID
		if id, err = parseMatchID(in.MatchID); err == nil {
			_, err = h.ResignMatch(ctx, c.PlayerID, id, in.ClientElapsedSeconds)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownMessage, in.Type)
	}

	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"player_id": c.PlayerID,
			"type":      in.Type,
		}).Debug("message failed")
		c.Write(errorMessage(err))
	}
}

func parseMatchID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", match.ErrMatchNotFound, s)
	}
	return id, nil
}

// JoinResult is the outcome of joining the queue.
type JoinResult struct {
	// Pairing is set when the player was matched immediately.
	Pairing  *match.Pairing
	PoolSize int
}

// JoinQueue enqueues the player and tries to pair them straight away.
func (h *Hub) JoinQueue(ctx context.Context, playerID, connID uuid.UUID) (JoinResult, error) {
	p, err := h.store.Player(ctx, playerID)
	if err != nil {
		return JoinResult{}, err
	}
	if err := h.engine.Enqueue(p.ID, p.Rating, connID); err != nil {
		return JoinResult{}, err
	}
	size := h.engine.Len()
	h.send(p.ID, Message{
		"type":      "queue_joined",
		"rating":    p.Rating,
		"pool_size": size,
	})
	h.log.WithFields(logrus.Fields{"player_id": p.ID, "rating": p.Rating}).Info("player queued")

	pairing, err := h.engine.FindImmediateMatch(ctx, p.ID)
	if err != nil {
		if !h.pairingFailed(err, p.ID) {
			return JoinResult{}, err
		}
		// Still queued; the sweep retries the pair.
		return JoinResult{PoolSize: h.engine.Len()}, nil
	}
	if pairing == nil {
		return JoinResult{PoolSize: size}, nil
	}
	h.StartDuel(*pairing)
	return JoinResult{Pairing: pairing, PoolSize: h.engine.Len()}, nil
}

// LeaveQueue removes the player from the pool. Any pending match is kept.
func (h *Hub) LeaveQueue(playerID uuid.UUID) bool {
	removed := h.engine.Dequeue(playerID)
	h.send(playerID, Message{
		"type":       "queue_left",
		"was_queued": removed,
	})
	return removed
}

// Sweep pairs every compatible pair left in the pool and starts their duels.
func (h *Hub) Sweep(ctx context.Context) int {
	pairings, errs := h.engine.PairAll(ctx)
	for _, p := range pairings {
		h.StartDuel(p)
	}
	for _, err := range errs {
		h.pairingFailed(err, uuid.Nil)
	}
	return len(pairings)
}

// PruneQueue removes players that have waited longer than maxWait.
func (h *Hub) PruneQueue(maxWait time.Duration) int {
	pruned := h.engine.PruneOlderThan(maxWait)
	for _, en := range pruned {
		h.send(en.PlayerID, Message{
			"type":       "queue_left",
			"was_queued": true,
			"reason":     "timeout",
		})
	}
	return len(pruned)
}

// pairingFailed decides what happens to two players whose pairing could not
// be stored. Players other than initiator are told about terminal failures;
// transient failures put both back in the pool. It reports whether the
// players were requeued.
func (h *Hub) pairingFailed(err error, initiator uuid.UUID) bool {
	var pe *matchmaking.PairingError
	if !errors.As(err, &pe) {
		return false
	}
	if problems.IsExhausted(err) || match.IsValidation(err) {
		for _, en := range []matchmaking.Entry{pe.A, pe.B} {
			if en.PlayerID != initiator {
				h.send(en.PlayerID, errorMessage(err))
			}
		}
		return false
	}
	h.engine.Requeue(pe.A, pe.B)
	h.log.WithFields(logrus.Fields{
		"player_a": pe.A.PlayerID,
		"player_b": pe.B.PlayerID,
	}).Info("pairing failed, players requeued")
	return true
}

func problemPayload(p models.Problem) map[string]interface{} {
	return map[string]interface{}{
		"id":              p.ID,
		"slug":            p.Slug,
		"title":           p.Title,
		"difficulty":      p.Difficulty,
		"tags":            p.Tags,
		"acceptance_rate": p.AcceptanceRate,
		"content":         p.Content,
		"url":             p.URL(),
	}
}

func matchFound(matchID uuid.UUID, problem models.Problem, opponent models.Player) Message {
	return Message{
		"type":     "match_found",
		"match_id": matchID.String(),
		"problem":  problemPayload(problem),
		"opponent": map[string]interface{}{
			"id":       opponent.ID.String(),
			"username": opponent.Username,
			"rating":   opponent.Rating,
		},
	}
}

// StartDuel announces a pairing to both players and starts its timer.
func (h *Hub) StartDuel(p match.Pairing) {
	d := newDuel(h.ctx, p.Match.ID, p.A.ID, p.B.ID, p.Match.CreatedAt)

	// Pairing purged any older pending match of either player, so those
	// duels end here.
	var evicted []*duel
	h.mu.Lock()
	for _, id := range d.players {
		if old, ok := h.duels[h.byPlayer[id]]; ok {
			h.removeDuelLocked(old)
			evicted = append(evicted, old)
		}
	}
	h.duels[d.matchID] = d
	for _, id := range d.players {
		h.byPlayer[id] = d.matchID
	}
	h.mu.Unlock()

	for _, old := range evicted {
		for _, id := range old.players {
			if id != d.players[0] && id != d.players[1] {
				h.send(id, matchCancelled(old.matchID))
			}
		}
	}
	for _, id := range d.players {
		_, opponent := p.Player(id)
		h.send(id, matchFound(p.Match.ID, p.Problem, opponent))
	}

	h.wg.Add(1)
	go h.runTimer(d)
}

// matchCancelled tells a player their pending match was dropped because the
// opponent entered a new pairing. No rating changes.
func matchCancelled(matchID uuid.UUID) Message {
	return Message{
		"type":          "match_completed",
		"match_id":      matchID.String(),
		"result":        "cancelled",
		"elo_change":    "+0",
		"rating_change": 0,
		"reason":        "opponent_rematched",
	}
}

func (h *Hub) removeDuelLocked(d *duel) {
	if h.duels[d.matchID] == d {
		delete(h.duels, d.matchID)
	}
	for _, id := range d.players {
		if h.byPlayer[id] == d.matchID {
			delete(h.byPlayer, id)
		}
	}
	d.stop()
}

func (h *Hub) broadcast(d *duel, msg Message) {
	for _, id := range d.players {
		h.send(id, msg)
	}
}

// runTimer drives COUNTDOWN -> START -> ACTIVE and then checks on the match
// until it is completed or disappears.
func (h *Hub) runTimer(d *duel) {
	defer h.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			h.log.WithField("match_id", d.matchID).Errorf("duel timer panic: %v", r)
		}
	}()
	entry := h.log.WithField("match_id", d.matchID)

	for n := h.opts.Countdown; n >= 1; n-- {
		d.setPhase(PhaseCountdown)
		h.broadcast(d, Message{"type": "timer_update", "phase": PhaseCountdown, "countdown": n})
		if !sleep(d.ctx, h.opts.TickInterval) {
			return
		}
	}

	d.setPhase(PhaseStart)
	h.broadcast(d, Message{"type": "timer_update", "phase": PhaseStart})

	start := h.now()
	d.activate(start)
	h.broadcast(d, Message{"type": "timer_update", "phase": PhaseActive, "start_timestamp": start.UnixMilli()})
	entry.Debug("duel active")

	ticker := time.NewTicker(h.opts.LivenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			pending, gone := h.check(d)
			if pending {
				continue
			}
			entry.Info("duel no longer pending, stopping timer")
			var stranded []uuid.UUID
			h.mu.Lock()
			if gone {
				for _, id := range d.players {
					if h.byPlayer[id] == d.matchID {
						stranded = append(stranded, id)
					}
				}
			}
			h.removeDuelLocked(d)
			h.mu.Unlock()
			for _, id := range stranded {
				h.send(id, matchCancelled(d.matchID))
			}
			return
		}
	}
}

// check reports whether the duel's match is still pending, and whether its
// record is gone entirely. Other lookup failures count as pending.
func (h *Hub) check(d *duel) (pending, gone bool) {
	ctx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
	defer cancel()
	m, err := h.store.Get(ctx, d.matchID)
	if err != nil {
		if errors.Is(err, match.ErrMatchNotFound) {
			return false, true
		}
		return true, false
	}
	return m.IsPending(), false
}

func (h *Hub) resume(ctx context.Context, c *Client, d *duel) {
	m, err := h.store.Get(ctx, d.matchID)
	if err != nil || !m.IsPending() {
		return
	}
	problem, _ := h.store.Problem(ctx, m)
	opponent, err := h.store.Player(ctx, m.Opponent(c.PlayerID))
	if err != nil {
		return
	}
	c.Write(matchFound(m.ID, problem, opponent))
	if phase, started := d.state(); phase == PhaseActive {
		c.Write(Message{"type": "timer_update", "phase": PhaseActive, "start_timestamp": started.UnixMilli()})
	}
}

// elapsedSeconds prefers the client's clock and falls back to the server's
// when the client value is missing or out of range.
func (h *Hub) elapsedSeconds(m models.Match, client float64) int {
	if client > 0 && client <= maxClientElapsed.Seconds() {
		return int(math.Round(client))
	}
	start := m.CreatedAt
	h.mu.Lock()
	d := h.duels[m.ID]
	h.mu.Unlock()
	if d != nil {
		if phase, started := d.state(); phase == PhaseActive {
			start = started
		}
	}
	secs := int(h.now().Sub(start).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}

func (h *Hub) participantMatch(ctx context.Context, playerID, matchID uuid.UUID) (models.Match, error) {
	m, err := h.store.Get(ctx, matchID)
	if err != nil {
		return models.Match{}, err
	}
	if !m.Involves(playerID) {
		return models.Match{}, fmt.Errorf("%w: %s", match.ErrNotParticipant, playerID)
	}
	if !m.IsPending() {
		return models.Match{}, fmt.Errorf("%w: %s", match.ErrAlreadyCompleted, m.ID)
	}
	return m, nil
}

// SubmitSolution completes the match for playerID if their latest accepted
// submission solves the assigned problem. Otherwise the match stays pending.
func (h *Hub) SubmitSolution(ctx context.Context, playerID, matchID uuid.UUID, clientElapsed float64) (models.Match, error) {
	m, err := h.participantMatch(ctx, playerID, matchID)
	if err != nil {
		return models.Match{}, err
	}
	p, err := h.store.Player(ctx, playerID)
	if err != nil {
		return models.Match{}, err
	}

	sub, err := h.service.FetchRecentSubmission(ctx, p.Handle)
	if err != nil {
		return models.Match{}, fmt.Errorf("failed to check submission: %w", err)
	}
	switch {
	case sub == nil:
		return models.Match{}, &SubmissionMismatchError{Expected: m.AssignedSlug}
	case sub.ProblemSlug != m.AssignedSlug:
		return models.Match{}, &SubmissionMismatchError{Expected: m.AssignedSlug, Got: sub.ProblemSlug}
	case !sub.Timestamp.IsZero() && sub.Timestamp.Before(m.CreatedAt.Truncate(time.Second)):
		return models.Match{}, &SubmissionMismatchError{
			Expected: m.AssignedSlug,
			Got:      sub.ProblemSlug,
			Reason:   "latest accepted submission predates the match",
		}
	}

	final, err := h.store.Finalize(ctx, match.Resolution{
		MatchID:         m.ID,
		WinnerID:        playerID,
		DurationSeconds: h.elapsedSeconds(m, clientElapsed),
		Metrics: &match.Metrics{
			Runtime: problems.ParseRuntime(sub.RuntimeText),
			Memory:  problems.ParseMemory(sub.MemoryText),
		},
	})
	if err != nil {
		return models.Match{}, err
	}
	h.completeDuel(final)
	return final, nil
}

// ResignMatch forfeits the match to the opponent.
func (h *Hub) ResignMatch(ctx context.Context, playerID, matchID uuid.UUID, clientElapsed float64) (models.Match, error) {
	m, err := h.participantMatch(ctx, playerID, matchID)
	if err != nil {
		return models.Match{}, err
	}
	final, err := h.store.Resign(ctx, m.ID, playerID, h.elapsedSeconds(m, clientElapsed))
	if err != nil {
		return models.Match{}, err
	}
	h.completeDuel(final)
	return final, nil
}

// completeDuel stops the timer and sends match_completed to both players.
func (h *Hub) completeDuel(m models.Match) {
	h.mu.Lock()
	if d, ok := h.duels[m.ID]; ok {
		h.removeDuelLocked(d)
	}
	h.mu.Unlock()

	for _, slot := range []models.Slot{models.SlotA, models.SlotB} {
		seat := m.Seat(slot)
		won := slot == m.Winner
		h.send(seat.PlayerID, Message{
			"type":          "match_completed",
			"match_id":      m.ID.String(),
			"result":        resultLabel(won),
			"elo_change":    fmt.Sprintf("%+d", seat.Delta),
			"rating_change": seat.Delta,
			"new_rating":    seat.Rating + seat.Delta,
			"reason":        completionReason(won, m.Resigned),
			"problem":       m.ProblemSlug,
			"duration":      m.DurationSeconds,
		})
	}
}

func resultLabel(won bool) string {
	if won {
		return "won"
	}
	return "lost"
}

func completionReason(won, resigned bool) string {
	switch {
	case resigned && won:
		return "opponent_resigned"
	case resigned:
		return "resigned"
	case won:
		return "solved"
	default:
		return "opponent_solved"
	}
}

// Status is the pull-style view of a player's queue and match state.
type Status struct {
	Queued         bool          `json:"queued"`
	PoolSize       int           `json:"pool_size"`
	Match          *match.Result `json:"match,omitempty"`
	Phase          string        `json:"phase,omitempty"`
	StartTimestamp int64         `json:"start_timestamp,omitempty"`
}

// Status reads the same store the push path writes to.
func (h *Hub) Status(ctx context.Context, playerID uuid.UUID) (Status, error) {
	if _, err := h.store.Player(ctx, playerID); err != nil {
		return Status{}, err
	}
	st := Status{
		Queued:   h.engine.Contains(playerID),
		PoolSize: h.engine.Len(),
	}
	pending, err := h.store.PendingFor(ctx, playerID)
	if err != nil {
		return Status{}, err
	}
	if pending == nil {
		return st, nil
	}
	res, err := h.store.Result(ctx, pending.ID)
	if err != nil {
		return Status{}, err
	}
	st.Match = &res

	h.mu.Lock()
	d := h.duels[pending.ID]
	h.mu.Unlock()
	if d != nil {
		phase, started := d.state()
		st.Phase = phase
		if phase == PhaseActive {
			st.StartTimestamp = started.UnixMilli()
		}
	}
	return st, nil
}
