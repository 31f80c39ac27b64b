// Package engine binds two independently connected players into a shared
// challenge. Each live session is served by one actor goroutine that
// serializes membership, runtime progress and the read-modify-write cycle
// against the durable record; distinct sessions run in parallel.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playperu/globetrotter/internal/broker"
	"github.com/playperu/globetrotter/internal/globetrotter"
	"github.com/playperu/globetrotter/internal/quiz"
)

// Store is the durable session record.
type Store interface {
	CreateChallenge(ctx context.Context, challenger string, questionIDs []int64) (globetrotter.Challenge, error)
	Challenge(ctx context.Context, id string) (globetrotter.Challenge, error)
	UpdateChallenge(ctx context.Context, id string, u globetrotter.ChallengeUpdate) (globetrotter.Challenge, error)
	MarkStarted(ctx context.Context, id string) (bool, error)
}

// Catalog provides the questions a challenge is built from.
type Catalog interface {
	Destination(ctx context.Context, id int64) (globetrotter.Destination, error)
	SampleDestinationIDs(ctx context.Context, n int) ([]int64, error)
}

type Publisher interface {
	Publish(ctx context.Context, sessionID string, ev broker.Event)
}

type Options struct {
	MailboxSize      int
	DefaultQuestions int
	MaxQuestions     int
	IdleTTL          time.Duration
	FinishedTTL      time.Duration
	SweepInterval    time.Duration
	Clock            clockwork.Clock
}

func (o *Options) setDefaults() {
	if o.MailboxSize <= 0 {
		o.MailboxSize = 32
	}
	if o.DefaultQuestions <= 0 {
		o.DefaultQuestions = 5
	}
	if o.MaxQuestions <= 0 {
		o.MaxQuestions = 20
	}
	if o.IdleTTL <= 0 {
		o.IdleTTL = 30 * time.Minute
	}
	if o.FinishedTTL <= 0 {
		o.FinishedTTL = 10 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}

type Engine struct {
	store   Store
	catalog Catalog
	pub     Publisher
	logger  *slog.Logger
	opts    Options

	mu    sync.Mutex
	rooms map[string]*room
	conns map[string]map[string]string // connID -> sessionID -> username
}

func New(store Store, catalog Catalog, pub Publisher, logger *slog.Logger, opts Options) *Engine {
	opts.setDefaults()
	return &Engine{
		store:   store,
		catalog: catalog,
		pub:     pub,
		logger:  logger,
		opts:    opts,
		rooms:   make(map[string]*room),
		conns:   make(map[string]map[string]string),
	}
}

// acquire returns the room for id, starting its actor on first use. With
// create false it returns nil for sessions that have no live room.
func (e *Engine) acquire(id string, create bool) *room {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rooms[id]
	if !ok {
		if !create {
			return nil
		}
		r = newRoom(id, e.opts.Clock, e.opts.MailboxSize)
		e.rooms[id] = r
		go r.loop()
		e.logger.Debug("room opened", "session", id)
	}
	r.refs++
	return r
}

func (e *Engine) release(r *room) {
	e.mu.Lock()
	r.refs--
	e.mu.Unlock()
}

// do runs fn on the session's actor and waits for it. The room cannot be
// evicted while the command is queued or running.
func (e *Engine) do(ctx context.Context, id string, create bool, fn func(ctx context.Context, r *room) error) error {
	r := e.acquire(id, create)
	if r == nil {
		return errRoomGone
	}
	defer e.release(r)

	cmd := command{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case r.mailbox <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Create samples n distinct questions and persists a new challenge with only
// the challenger set. n <= 0 selects the default count.
func (e *Engine) Create(ctx context.Context, challenger string, n int) (globetrotter.Challenge, error) {
	challenger = strings.TrimSpace(challenger)
	if challenger == "" {
		return globetrotter.Challenge{}, globetrotter.Invalid("username is required")
	}
	if n <= 0 {
		n = e.opts.DefaultQuestions
	}
	if n > e.opts.MaxQuestions {
		return globetrotter.Challenge{}, globetrotter.Invalid("numQuestions must be between 1 and %d", e.opts.MaxQuestions)
	}

	ids, err := e.catalog.SampleDestinationIDs(ctx, n)
	if err != nil {
		return globetrotter.Challenge{}, err
	}
	c, err := e.store.CreateChallenge(ctx, challenger, ids)
	if err != nil {
		return globetrotter.Challenge{}, err
	}
	e.logger.Info("challenge created", "session", c.ID, "challenger", challenger, "questions", len(ids))
	return c, nil
}

// Join attaches connID to the session as username, claims the friend slot
// when it is free, and starts the challenge once both participants are
// attached. A third user attaches as a spectator.
func (e *Engine) Join(ctx context.Context, sessionID, connID, username string) (globetrotter.Challenge, error) {
	username = strings.TrimSpace(username)
	if sessionID == "" || connID == "" || username == "" {
		return globetrotter.Challenge{}, globetrotter.Invalid("sessionId and username are required")
	}

	var out globetrotter.Challenge
	err := e.do(ctx, sessionID, true, func(ctx context.Context, r *room) error {
		c, err := e.load(ctx, r, sessionID)
		if err != nil {
			return err
		}
		if c, err = e.claimFriend(ctx, c, username); err != nil {
			return err
		}

		r.members[connID] = username
		e.register(connID, sessionID, username)
		e.publish(ctx, r, EventUserJoined, UserJoinedPayload{Username: username})

		if err := e.checkBarrier(ctx, r, c); err != nil {
			return err
		}
		if out, err = e.store.Challenge(ctx, sessionID); err != nil {
			return err
		}
		e.publish(ctx, r, EventChallengeUpdate, out)
		return nil
	})
	return out, err
}

// Claim is the connectionless join: it claims the friend slot without
// attaching to the broadcast channel. Participants claiming again are a
// no-op; a third user gets a conflict.
func (e *Engine) Claim(ctx context.Context, sessionID, username string) (globetrotter.Challenge, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return globetrotter.Challenge{}, globetrotter.Invalid("username is required")
	}

	var out globetrotter.Challenge
	err := e.do(ctx, sessionID, true, func(ctx context.Context, r *room) error {
		c, err := e.load(ctx, r, sessionID)
		if err != nil {
			return err
		}
		if c.RoleOf(username) != globetrotter.RoleNone {
			out = c
			return nil
		}
		if c.FriendUsername != nil {
			return globetrotter.Conflict("challenge %s already has two participants", sessionID)
		}
		if c, err = e.claimFriend(ctx, c, username); err != nil {
			return err
		}
		if err := e.checkBarrier(ctx, r, c); err != nil {
			return err
		}
		if out, err = e.store.Challenge(ctx, sessionID); err != nil {
			return err
		}
		e.publish(ctx, r, EventChallengeUpdate, out)
		return nil
	})
	return out, err
}

// claimFriend fills an empty friend slot with a non-challenger username.
func (e *Engine) claimFriend(ctx context.Context, c globetrotter.Challenge, username string) (globetrotter.Challenge, error) {
	if c.FriendUsername != nil || username == c.ChallengerUsername {
		return c, nil
	}
	c, err := e.store.UpdateChallenge(ctx, c.ID, globetrotter.ChallengeUpdate{FriendUsername: &username})
	if err != nil {
		return c, err
	}
	e.logger.Info("friend joined", "session", c.ID, "friend", username)
	return c, nil
}

// load reads the durable record on the room's actor. The first successful
// read of a room decides whether it owns the session's progress: a room
// opened for a challenge that already started has no answer history to
// resume from, so it refuses play.
func (e *Engine) load(ctx context.Context, r *room, id string) (globetrotter.Challenge, error) {
	c, err := e.store.Challenge(ctx, id)
	if err != nil {
		return c, err
	}
	if !r.loaded {
		r.loaded = true
		if c.Started {
			r.started = true
			r.orphaned = true
			e.logger.Warn("room reopened without progress", "session", id)
		}
	}
	return c, nil
}

// checkBarrier starts the challenge the first time both participants are
// attached. The conditional durable flip makes it fire at most once even
// across processes sharing the store.
func (e *Engine) checkBarrier(ctx context.Context, r *room, c globetrotter.Challenge) error {
	if c.Started || !c.Ready() {
		return nil
	}
	if !r.present(c.ChallengerUsername) || !r.present(c.Friend()) {
		return nil
	}
	started, err := e.store.MarkStarted(ctx, c.ID)
	if err != nil || !started {
		return err
	}
	r.started = true
	e.logger.Info("challenge started", "session", c.ID)
	e.publish(ctx, r, EventStart, StartPayload{SessionID: c.ID})
	e.publish(ctx, r, EventNextQuestion, NextQuestionPayload{QuestionIndex: r.current})
	return nil
}

type AnswerInput struct {
	SessionID     string
	QuestionIndex int
	Username      string
	Answer        string
}

type AnswerResult struct {
	QuestionIndex int
	Correct       bool
	Score         int
	Advanced      bool
	NextIndex     int
	Finished      bool
}

// Answer records a participant's answer for the current question, recomputes
// their score from the full history and advances once both have answered.
// Answers for any other question, before the start, or after the end are
// rejected.
func (e *Engine) Answer(ctx context.Context, in AnswerInput) (AnswerResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Answer = strings.TrimSpace(in.Answer)
	switch {
	case in.SessionID == "" || in.Username == "":
		return AnswerResult{}, globetrotter.Invalid("sessionId and username are required")
	case in.Answer == "":
		return AnswerResult{}, globetrotter.Invalid("answer is required")
	case in.QuestionIndex < 0:
		return AnswerResult{}, globetrotter.Invalid("questionIndex must not be negative")
	}

	res := AnswerResult{QuestionIndex: in.QuestionIndex}
	err := e.do(ctx, in.SessionID, true, func(ctx context.Context, r *room) error {
		c, err := e.load(ctx, r, in.SessionID)
		if err != nil {
			return err
		}
		role := c.RoleOf(in.Username)
		switch {
		case role == globetrotter.RoleNone:
			return globetrotter.Conflict("%s is not a participant", in.Username)
		case !c.Started:
			return globetrotter.Conflict("challenge has not started")
		case r.orphaned:
			return globetrotter.Conflict("progress of challenge %s is no longer available", c.ID)
		case r.finished:
			return globetrotter.Conflict("challenge is finished")
		case in.QuestionIndex != r.current:
			return globetrotter.Conflict("question %d is not open, current is %d", in.QuestionIndex, r.current)
		case r.current >= c.QuestionCount():
			return globetrotter.Conflict("no question at index %d", r.current)
		}

		r.record(r.current, in.Username, in.Answer)

		score, err := e.score(ctx, r, c, in.Username)
		if err != nil {
			return err
		}
		res.Score = score
		city, err := e.city(ctx, r, c.QuestionIDs[r.current])
		if err != nil {
			return err
		}
		res.Correct = quiz.Matches(in.Answer, city)

		u := globetrotter.ChallengeUpdate{ChallengerScore: &score}
		if role == globetrotter.RoleFriend {
			u = globetrotter.ChallengeUpdate{FriendScore: &score}
		}
		if c, err = e.store.UpdateChallenge(ctx, c.ID, u); err != nil {
			return err
		}
		e.publish(ctx, r, EventChallengeUpdate, c)

		e.advance(ctx, r, c, &res)
		return nil
	})
	return res, err
}

// score replays every recorded answer of username. Any unreadable question
// aborts the whole recomputation.
func (e *Engine) score(ctx context.Context, r *room, c globetrotter.Challenge, username string) (int, error) {
	score := 0
	for index, byUser := range r.answers {
		answer, ok := byUser[username]
		if !ok || index >= c.QuestionCount() {
			continue
		}
		city, err := e.city(ctx, r, c.QuestionIDs[index])
		if err != nil {
			return 0, err
		}
		if quiz.Matches(answer, city) {
			score++
		}
	}
	return score, nil
}

func (e *Engine) city(ctx context.Context, r *room, id int64) (string, error) {
	if city, ok := r.cities[id]; ok {
		return city, nil
	}
	d, err := e.catalog.Destination(ctx, id)
	if err != nil {
		var ue *globetrotter.UpstreamError
		if errors.As(err, &ue) {
			return "", err
		}
		return "", globetrotter.Upstream("reading question", err)
	}
	r.cities[id] = d.City
	return d.City, nil
}

func (e *Engine) advance(ctx context.Context, r *room, c globetrotter.Challenge, res *AnswerResult) {
	if !r.answered(r.current, c.ChallengerUsername) || !r.answered(r.current, c.Friend()) {
		return
	}
	next := r.current + 1
	finished := next >= c.QuestionCount()
	e.publish(ctx, r, EventProceed, ProceedPayload{NextIndex: next, Finished: finished})

	res.Advanced = true
	res.NextIndex = next
	res.Finished = finished
	if finished {
		r.finished = true
		r.finishedAt = e.opts.Clock.Now()
		e.logger.Info("challenge finished", "session", c.ID,
			"challenger_score", deref(c.ChallengerScore), "friend_score", deref(c.FriendScore))
		return
	}
	r.current = next
	e.publish(ctx, r, EventNextQuestion, NextQuestionPayload{QuestionIndex: next})
}

// SubmitScore writes a participant's final score. A user who is not yet a
// participant claims the friend slot if it is free.
func (e *Engine) SubmitScore(ctx context.Context, sessionID, username string, score int) (globetrotter.Challenge, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return globetrotter.Challenge{}, globetrotter.Invalid("username is required")
	}
	if score < 0 {
		return globetrotter.Challenge{}, globetrotter.Invalid("score must not be negative")
	}

	var out globetrotter.Challenge
	err := e.do(ctx, sessionID, true, func(ctx context.Context, r *room) error {
		c, err := e.load(ctx, r, sessionID)
		if err != nil {
			return err
		}
		if score > c.QuestionCount() {
			return globetrotter.Invalid("score %d exceeds %d questions", score, c.QuestionCount())
		}

		var u globetrotter.ChallengeUpdate
		switch c.RoleOf(username) {
		case globetrotter.RoleChallenger:
			u.ChallengerScore = &score
		case globetrotter.RoleFriend:
			u.FriendScore = &score
		default:
			if c.FriendUsername != nil {
				return globetrotter.Conflict("%s is not a participant", username)
			}
			u.FriendUsername = &username
			u.FriendScore = &score
		}
		if out, err = e.store.UpdateChallenge(ctx, sessionID, u); err != nil {
			return err
		}
		e.publish(ctx, r, EventChallengeUpdate, out)
		return nil
	})
	return out, err
}

// OverrideFriend replaces the friend slot. It exists for admin repair only.
func (e *Engine) OverrideFriend(ctx context.Context, sessionID, friend string) (globetrotter.Challenge, error) {
	friend = strings.TrimSpace(friend)
	if friend == "" {
		return globetrotter.Challenge{}, globetrotter.Invalid("friendUsername is required")
	}

	var out globetrotter.Challenge
	err := e.do(ctx, sessionID, true, func(ctx context.Context, r *room) error {
		c, err := e.load(ctx, r, sessionID)
		if err != nil {
			return err
		}
		if friend == c.ChallengerUsername {
			return globetrotter.Invalid("friend must differ from the challenger")
		}
		if c, err = e.store.UpdateChallenge(ctx, sessionID, globetrotter.ChallengeUpdate{FriendUsername: &friend}); err != nil {
			return err
		}
		e.logger.Warn("friend overridden", "session", sessionID, "friend", friend)
		if err := e.checkBarrier(ctx, r, c); err != nil {
			return err
		}
		if out, err = e.store.Challenge(ctx, sessionID); err != nil {
			return err
		}
		e.publish(ctx, r, EventChallengeUpdate, out)
		return nil
	})
	return out, err
}

// Leave detaches a closed connection from every session it joined. Runtime
// progress is kept so the user can rejoin. Unknown connections are ignored.
func (e *Engine) Leave(ctx context.Context, connID string) {
	e.mu.Lock()
	sessions := e.conns[connID]
	delete(e.conns, connID)
	e.mu.Unlock()

	for sessionID, username := range sessions {
		err := e.do(ctx, sessionID, false, func(_ context.Context, r *room) error {
			delete(r.members, connID)
			return nil
		})
		if err != nil && !errors.Is(err, errRoomGone) {
			e.logger.Warn("leave failed", "session", sessionID, "conn", connID, "error", err)
			continue
		}
		e.logger.Debug("connection left", "session", sessionID, "username", username)
	}
}

func (e *Engine) register(connID, sessionID, username string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conns[connID] == nil {
		e.conns[connID] = make(map[string]string)
	}
	e.conns[connID][sessionID] = username
}

// Snapshot is the runtime view of a session. Stale marks a room reopened for
// a challenge whose progress was lost to eviction or a restart.
type Snapshot struct {
	SessionID    string   `json:"sessionId"`
	CurrentIndex int      `json:"currentIndex"`
	Finished     bool     `json:"finished"`
	Stale        bool     `json:"stale,omitempty"`
	Members      []string `json:"members"`
	Answered     []string `json:"answered"`
}

func (e *Engine) State(ctx context.Context, sessionID string) (Snapshot, error) {
	var s Snapshot
	err := e.do(ctx, sessionID, true, func(ctx context.Context, r *room) error {
		if _, err := e.load(ctx, r, sessionID); err != nil {
			return err
		}
		s = Snapshot{
			SessionID:    sessionID,
			CurrentIndex: r.current,
			Finished:     r.finished,
			Stale:        r.orphaned,
			Members:      r.usernames(),
			Answered:     r.answeredBy(r.current),
		}
		return nil
	})
	return s, err
}

// Rooms returns the number of live rooms.
func (e *Engine) Rooms() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rooms)
}

func deref(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
