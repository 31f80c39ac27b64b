package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case data, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestPublishScopedToSession(t *testing.T) {
	b := New(slog.Default(), nil)
	a := b.Subscribe("s1")
	other := b.Subscribe("s2")
	defer b.Unsubscribe(a)
	defer b.Unsubscribe(other)

	b.Publish(context.Background(), "s1", Event{Event: "user_joined", Data: map[string]string{"username": "alice"}})

	ev := recv(t, a)
	if ev.Event != "user_joined" {
		t.Errorf("event = %q", ev.Event)
	}
	select {
	case <-other.C:
		t.Error("event leaked to another session")
	default:
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := New(slog.Default(), nil)
	sub := b.Subscribe("s1")

	for i := 0; i < 40; i++ {
		b.Publish(context.Background(), "s1", Event{Event: "tick", Data: i})
	}
	if got := len(sub.C); got != cap(sub.ch) {
		t.Errorf("buffered = %d, want %d", got, cap(sub.ch))
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New(slog.Default(), nil)
	sub := b.Subscribe("s1")
	if b.Subscribers("s1") != 1 {
		t.Fatalf("subscribers = %d", b.Subscribers("s1"))
	}

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after unsubscribe")
	}
	if b.Subscribers("s1") != 0 {
		t.Errorf("subscribers = %d after unsubscribe", b.Subscribers("s1"))
	}
	// Publishing to a session with no subscribers is a no-op.
	b.Publish(context.Background(), "s1", Event{Event: "tick"})
}

func TestRedisRelayDelivers(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	b := New(slog.Default(), NewRedisRelay(rdb, "test"))
	t.Cleanup(func() { b.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for mr.PubSubNumPat() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("relay never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sub := b.Subscribe("abc")
	defer b.Unsubscribe(sub)

	b.Publish(ctx, "abc", Event{Event: "proceed", Data: map[string]any{"nextIndex": 1, "finished": false}})

	ev := recv(t, sub)
	if ev.Event != "proceed" {
		t.Errorf("event = %q", ev.Event)
	}

	if err := b.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("run did not return after cancel")
	}
}

func TestTopicRoundTrip(t *testing.T) {
	tp := topic("gt", ".", "abc-123")
	if tp != "gt.challenge.abc-123" {
		t.Fatalf("topic = %q", tp)
	}
	id, ok := sessionFromTopic("gt", ".", tp)
	if !ok || id != "abc-123" {
		t.Errorf("sessionFromTopic = %q, %v", id, ok)
	}
	if _, ok := sessionFromTopic("other", ".", tp); ok {
		t.Error("matched a foreign prefix")
	}
}

func TestDialRelayRejectsUnknownScheme(t *testing.T) {
	if _, err := DialRelay("amqp://localhost", "gt", slog.Default()); err == nil {
		t.Fatal("expected error")
	}
	r, err := DialRelay("", "gt", slog.Default())
	if err != nil || r != nil {
		t.Fatalf("empty url = %v, %v", r, err)
	}
}
