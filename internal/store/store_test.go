package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/playperu/globetrotter/internal/database"
	"github.com/playperu/globetrotter/internal/globetrotter"
	"github.com/playperu/globetrotter/internal/migrations"
)

func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Memory)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Run(ctx, db, slog.Default()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	s := New(db)
	if err := s.SeedDefault(ctx, slog.Default()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestCreateAndLoadChallenge(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	created, err := s.CreateChallenge(ctx, "alice", []int64{3, 1, 4, 5, 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.Challenge(ctx, created.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ChallengerUsername != "alice" {
		t.Errorf("challenger = %q", got.ChallengerUsername)
	}
	if got.FriendUsername != nil || got.ChallengerScore != nil || got.FriendScore != nil {
		t.Errorf("expected nullable fields to be nil, got %+v", got)
	}
	if got.Started {
		t.Error("new challenge should not be started")
	}
	want := []int64{3, 1, 4, 5, 2}
	if len(got.QuestionIDs) != len(want) {
		t.Fatalf("question ids = %v", got.QuestionIDs)
	}
	for i := range want {
		if got.QuestionIDs[i] != want[i] {
			t.Errorf("question_ids[%d] = %d, want %d", i, got.QuestionIDs[i], want[i])
		}
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, created.CreatedAt)
	}
}

func TestChallengeNotFound(t *testing.T) {
	s := setupStore(t)

	_, err := s.Challenge(context.Background(), "missing")
	if !errors.Is(err, globetrotter.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateChallengePartial(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	c, _ := s.CreateChallenge(ctx, "alice", []int64{1, 2})

	bob := "bob"
	got, err := s.UpdateChallenge(ctx, c.ID, globetrotter.ChallengeUpdate{FriendUsername: &bob})
	if err != nil {
		t.Fatalf("update friend: %v", err)
	}
	if got.Friend() != "bob" {
		t.Errorf("friend = %q", got.Friend())
	}

	score := 2
	got, err = s.UpdateChallenge(ctx, c.ID, globetrotter.ChallengeUpdate{FriendScore: &score})
	if err != nil {
		t.Fatalf("update score: %v", err)
	}
	if got.FriendScore == nil || *got.FriendScore != 2 {
		t.Errorf("friend score = %v", got.FriendScore)
	}
	if got.Friend() != "bob" {
		t.Error("friend slot lost by unrelated update")
	}
	if got.ChallengerScore != nil {
		t.Error("challenger score touched by unrelated update")
	}

	if _, err := s.UpdateChallenge(ctx, "missing", globetrotter.ChallengeUpdate{FriendScore: &score}); !errors.Is(err, globetrotter.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestMarkStartedOnce(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	c, _ := s.CreateChallenge(ctx, "alice", []int64{1})

	first, err := s.MarkStarted(ctx, c.ID)
	if err != nil || !first {
		t.Fatalf("first MarkStarted = %v, %v; want true, nil", first, err)
	}
	second, err := s.MarkStarted(ctx, c.ID)
	if err != nil || second {
		t.Fatalf("second MarkStarted = %v, %v; want false, nil", second, err)
	}

	got, _ := s.Challenge(ctx, c.ID)
	if !got.Started {
		t.Error("started flag not persisted")
	}

	if _, err := s.MarkStarted(ctx, "missing"); !errors.Is(err, globetrotter.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSampleDestinationIDs(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	ids, err := s.SampleDestinationIDs(ctx, 5)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(ids) != 5 {
		t.Fatalf("got %d ids", len(ids))
	}
	seen := map[int64]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %d", id)
		}
		seen[id] = true
	}

	if _, err := s.SampleDestinationIDs(ctx, 1000); !errors.Is(err, globetrotter.ErrValidation) {
		t.Errorf("expected ErrValidation for oversized sample, got %v", err)
	}
}

func TestDestinationAndDecoys(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	d, err := s.Destination(ctx, 1)
	if err != nil {
		t.Fatalf("destination: %v", err)
	}
	if d.City != "Paris" || len(d.Clues) == 0 {
		t.Errorf("unexpected destination %+v", d)
	}

	decoys, err := s.SampleDecoyCities(ctx, "Paris", 3)
	if err != nil {
		t.Fatalf("decoys: %v", err)
	}
	if len(decoys) != 3 {
		t.Fatalf("got %d decoys", len(decoys))
	}
	for _, c := range decoys {
		if c == "Paris" {
			t.Error("decoys contain the excluded city")
		}
	}

	if _, err := s.Destination(ctx, 999); !errors.Is(err, globetrotter.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSeedIdempotent(t *testing.T) {
	s := setupStore(t)
	if err := s.SeedDefault(context.Background(), slog.Default()); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM destinations`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 12 {
		t.Errorf("destinations = %d, want 12", n)
	}
}

func TestParseCatalogRejectsDuplicates(t *testing.T) {
	data := []byte(`
destinations:
  - id: 1
    city: Paris
  - id: 1
    city: Rome
`)
	if _, err := ParseCatalog(data); !errors.Is(err, globetrotter.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
