package engine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var errRoomGone = errors.New("room evicted")

type command struct {
	ctx  context.Context
	fn   func(ctx context.Context, r *room) error
	done chan error
}

// room is the runtime state and membership of one session. Every field below
// the mailbox is owned by the actor goroutine; stats is the only part other
// goroutines read.
type room struct {
	id      string
	clock   clockwork.Clock
	mailbox chan command
	quit    chan struct{}

	// refs counts in-flight commands. Guarded by Engine.mu.
	refs int

	// loaded is set by the first successful read of the durable record.
	// started tracks the barrier; orphaned marks a room opened after the
	// challenge had already started, whose history is gone.
	loaded   bool
	started  bool
	orphaned bool

	current    int
	answers    map[int]map[string]string
	finished   bool
	finishedAt time.Time
	members    map[string]string // connID -> username
	cities     map[int64]string  // destination id -> correct city

	stats roomStats
}

type roomStats struct {
	mu         sync.Mutex
	lastActive time.Time
	started    bool
	orphaned   bool
	finished   bool
	finishedAt time.Time
	members    int
}

func newRoom(id string, clock clockwork.Clock, mailbox int) *room {
	return &room{
		id:      id,
		clock:   clock,
		mailbox: make(chan command, mailbox),
		quit:    make(chan struct{}),
		answers: make(map[int]map[string]string),
		members: make(map[string]string),
		cities:  make(map[int64]string),
	}
}

func (r *room) loop() {
	for {
		select {
		case cmd := <-r.mailbox:
			err := cmd.ctx.Err()
			if err == nil {
				err = cmd.fn(cmd.ctx, r)
			}
			r.syncStats(err == nil)
			cmd.done <- err
		case <-r.quit:
			return
		}
	}
}

// syncStats publishes the actor's view for the sweeper. Rooms are only
// marked active by commands that succeed, so lookups of unknown sessions
// leave an immediately evictable room behind.
func (r *room) syncStats(touched bool) {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()
	if touched {
		r.stats.lastActive = r.clock.Now()
	}
	r.stats.started = r.started
	r.stats.orphaned = r.orphaned
	r.stats.finished = r.finished
	r.stats.finishedAt = r.finishedAt
	r.stats.members = len(r.members)
}

// expired reports whether the sweeper may drop the room. A started room
// still in play holds the only copy of its answers and is never dropped
// for idleness.
func (r *room) expired(now time.Time, idleTTL, finishedTTL time.Duration) bool {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()
	switch {
	case r.stats.finished:
		return now.Sub(r.stats.finishedAt) > finishedTTL
	case r.stats.started && !r.stats.orphaned:
		return false
	default:
		return r.stats.members == 0 && now.Sub(r.stats.lastActive) > idleTTL
	}
}

// present reports whether username has at least one attached connection.
func (r *room) present(username string) bool {
	if username == "" {
		return false
	}
	for _, u := range r.members {
		if u == username {
			return true
		}
	}
	return false
}

func (r *room) usernames() []string {
	names := make([]string, 0, len(r.members))
	for _, u := range r.members {
		if !slices.Contains(names, u) {
			names = append(names, u)
		}
	}
	slices.Sort(names)
	return names
}

func (r *room) record(index int, username, answer string) {
	if r.answers[index] == nil {
		r.answers[index] = make(map[string]string)
	}
	r.answers[index][username] = answer
}

func (r *room) answered(index int, username string) bool {
	_, ok := r.answers[index][username]
	return ok
}

func (r *room) answeredBy(index int) []string {
	names := make([]string, 0, len(r.answers[index]))
	for u := range r.answers[index] {
		names = append(names, u)
	}
	slices.Sort(names)
	return names
}
