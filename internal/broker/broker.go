// Package broker is the per-session broadcast channel. Delivery is
// best-effort: slow subscribers lose messages and nothing is replayed.
package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// Event is the envelope published to session subscribers.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Subscription receives JSON-encoded events for one session.
type Subscription struct {
	SessionID string
	C         <-chan []byte
	ch        chan []byte
}

// Relay forwards published events between server instances.
type Relay interface {
	Publish(ctx context.Context, sessionID string, data []byte) error
	Subscribe(ctx context.Context, deliver func(sessionID string, data []byte)) error
	Ping(ctx context.Context) error
	Close() error
}

// Broker is an in-process pub/sub keyed by session ID, optionally fanned out
// across processes through a Relay. The relay only shares broadcasts: room
// membership and progress live in the engine of one instance, so both
// participants of a session must be routed to the same instance. Other
// instances can only serve spectators.
type Broker struct {
	logger *slog.Logger
	relay  Relay

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// New returns a broker. relay may be nil for single-process delivery.
func New(logger *slog.Logger, relay Relay) *Broker {
	return &Broker{
		logger: logger,
		relay:  relay,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

func (b *Broker) Subscribe(sessionID string) *Subscription {
	ch := make(chan []byte, 16)
	sub := &Subscription{SessionID: sessionID, C: ch, ch: ch}
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*Subscription]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is safe.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[sub.SessionID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(b.subs, sub.SessionID)
	}
}

// Subscribers returns the number of local subscribers of a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// Publish sends ev to every subscriber of the session. With a relay the event
// goes out through it and comes back via Run.
func (b *Broker) Publish(ctx context.Context, sessionID string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("encoding event", "event", ev.Event, "error", err)
		return
	}
	if b.relay != nil {
		if err := b.relay.Publish(ctx, sessionID, data); err != nil {
			b.logger.Error("relay publish", "session", sessionID, "event", ev.Event, "error", err)
		}
		return
	}
	b.deliver(sessionID, data)
}

func (b *Broker) deliver(sessionID string, data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[sessionID] {
		select {
		case sub.ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
}

// Run consumes relayed events until ctx is done. Without a relay it just
// waits for ctx.
func (b *Broker) Run(ctx context.Context) error {
	if b.relay == nil {
		<-ctx.Done()
		return nil
	}
	err := b.relay.Subscribe(ctx, b.deliver)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Ping checks the relay, if any.
func (b *Broker) Ping(ctx context.Context) error {
	if b.relay == nil {
		return nil
	}
	return b.relay.Ping(ctx)
}

func (b *Broker) Close() error {
	if b.relay == nil {
		return nil
	}
	return b.relay.Close()
}

func topic(prefix, sep, sessionID string) string {
	return strings.Join([]string{prefix, "challenge", sessionID}, sep)
}

func sessionFromTopic(prefix, sep, t string) (string, bool) {
	return strings.CutPrefix(t, prefix+sep+"challenge"+sep)
}
