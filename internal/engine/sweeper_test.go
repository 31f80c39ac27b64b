package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/playperu/globetrotter/internal/globetrotter"
)

func TestSweepFinishedAfterTTL(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.started(t)

	for i, city := range cities {
		f.answer(t, c.ID, i, "alice", city)
		f.answer(t, c.ID, i, "bob", city)
	}

	f.clock.Advance(5 * time.Minute)
	if n := f.eng.sweep(); n != 0 {
		t.Fatalf("evicted %d rooms before FinishedTTL", n)
	}

	f.clock.Advance(6 * time.Minute)
	if n := f.eng.sweep(); n != 1 {
		t.Fatalf("evicted = %d, want 1", n)
	}
	if f.eng.Rooms() != 0 {
		t.Errorf("rooms = %d", f.eng.Rooms())
	}

	// The durable record outlives the room.
	got, err := f.store.Challenge(ctx, c.ID)
	if err != nil {
		t.Fatalf("record gone: %v", err)
	}
	if !got.Started || *got.ChallengerScore != 5 {
		t.Errorf("record = %+v", got)
	}

	// Eviction forgets the connections, so leaving afterwards is a no-op.
	f.eng.Leave(ctx, "conn-a")
	if f.eng.Rooms() != 0 {
		t.Error("leave reopened an evicted room")
	}
}

func TestSweepIdleRoomsWithoutMembers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.challenge(t)

	if _, err := f.eng.Join(ctx, c.ID, "conn-a", "alice"); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(time.Hour)
	if n := f.eng.sweep(); n != 0 {
		t.Fatal("evicted a room with an attached member")
	}

	f.eng.Leave(ctx, "conn-a")
	f.clock.Advance(29 * time.Minute)
	if n := f.eng.sweep(); n != 0 {
		t.Fatal("evicted before IdleTTL")
	}
	f.clock.Advance(2 * time.Minute)
	if n := f.eng.sweep(); n != 1 {
		t.Fatalf("evicted = %d, want 1", n)
	}
}

func TestAnswerAfterFinishedEvictionRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.started(t)
	for i, city := range cities {
		f.answer(t, c.ID, i, "alice", city)
		f.answer(t, c.ID, i, "bob", city)
	}

	f.clock.Advance(11 * time.Minute)
	if n := f.eng.sweep(); n != 1 {
		t.Fatalf("evicted = %d, want 1", n)
	}

	_, err := f.eng.Answer(ctx, AnswerInput{SessionID: c.ID, QuestionIndex: 0, Username: "alice", Answer: "Nowhere"})
	if !errors.Is(err, globetrotter.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ := f.store.Challenge(ctx, c.ID)
	if *got.ChallengerScore != 5 || *got.FriendScore != 5 {
		t.Errorf("scores = %d/%d, want 5/5", *got.ChallengerScore, *got.FriendScore)
	}

	// The reopened room holds nothing, so it goes once idle.
	f.clock.Advance(31 * time.Minute)
	if n := f.eng.sweep(); n != 1 {
		t.Errorf("reopened room evicted = %d, want 1", n)
	}
}

func TestStartedRoomSurvivesIdleSweep(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.started(t)
	for i := range 2 {
		f.answer(t, c.ID, i, "alice", cities[i])
		f.answer(t, c.ID, i, "bob", cities[i])
	}

	f.eng.Leave(ctx, "conn-a")
	f.eng.Leave(ctx, "conn-b")
	f.clock.Advance(31 * time.Minute)
	if n := f.eng.sweep(); n != 0 {
		t.Fatalf("evicted %d started rooms", n)
	}

	if _, err := f.eng.Join(ctx, c.ID, "conn-a2", "alice"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	snap, err := f.eng.State(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.CurrentIndex != 2 || snap.Stale {
		t.Fatalf("state after rejoin = %+v", snap)
	}

	if _, err := f.eng.Answer(ctx, AnswerInput{SessionID: c.ID, QuestionIndex: 0, Username: "alice", Answer: "Paris"}); !errors.Is(err, globetrotter.ErrConflict) {
		t.Errorf("replay of an old round: expected ErrConflict, got %v", err)
	}
	res := f.answer(t, c.ID, 2, "alice", cities[2])
	if res.Score != 3 {
		t.Errorf("score = %d, want 3", res.Score)
	}
}

func TestRunSweepsOnTick(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := f.eng.State(ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown session")
	}
	if f.eng.Rooms() != 1 {
		t.Fatalf("rooms = %d", f.eng.Rooms())
	}

	done := make(chan error, 1)
	go func() { done <- f.eng.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := f.clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("ticker never started: %v", err)
	}
	f.clock.Advance(time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for f.eng.Rooms() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room not evicted by Run")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("run: %v", err)
	}
}
