// Package store is the libSQL-backed Session Store and trivia catalog.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/globetrotter/internal/globetrotter"
)

const timeFormat = time.RFC3339Nano

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const challengeColumns = `id, challenger_username, friend_username, question_ids,
	challenger_score, friend_score, started, created_at`

func (s *SQLiteStore) CreateChallenge(ctx context.Context, challenger string, questionIDs []int64) (globetrotter.Challenge, error) {
	ids, err := json.Marshal(questionIDs)
	if err != nil {
		return globetrotter.Challenge{}, fmt.Errorf("encoding question ids: %w", err)
	}

	c := globetrotter.Challenge{
		ID:                 uuid.NewString(),
		ChallengerUsername: challenger,
		QuestionIDs:        append([]int64(nil), questionIDs...),
		CreatedAt:          s.now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO challenges (id, challenger_username, question_ids, started, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, c.ID, c.ChallengerUsername, string(ids), c.CreatedAt.Format(timeFormat))
	if err != nil {
		return globetrotter.Challenge{}, globetrotter.Upstream("inserting challenge", err)
	}
	return c, nil
}

func (s *SQLiteStore) Challenge(ctx context.Context, id string) (globetrotter.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, id)
	c, err := scanChallenge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("challenge %s: %w", id, globetrotter.ErrNotFound)
	}
	if err != nil {
		return c, globetrotter.Upstream("loading challenge", err)
	}
	return c, nil
}

// UpdateChallenge applies the non-nil fields of u and returns the updated
// record.
func (s *SQLiteStore) UpdateChallenge(ctx context.Context, id string, u globetrotter.ChallengeUpdate) (globetrotter.Challenge, error) {
	var (
		sets []string
		args []any
	)
	if u.FriendUsername != nil {
		sets = append(sets, "friend_username = ?")
		args = append(args, *u.FriendUsername)
	}
	if u.ChallengerScore != nil {
		sets = append(sets, "challenger_score = ?")
		args = append(args, *u.ChallengerScore)
	}
	if u.FriendScore != nil {
		sets = append(sets, "friend_score = ?")
		args = append(args, *u.FriendScore)
	}
	if len(sets) == 0 {
		return s.Challenge(ctx, id)
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE challenges SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return globetrotter.Challenge{}, globetrotter.Upstream("updating challenge", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return globetrotter.Challenge{}, fmt.Errorf("challenge %s: %w", id, globetrotter.ErrNotFound)
	}
	return s.Challenge(ctx, id)
}

// MarkStarted flips started from false to true. It reports whether this call
// performed the transition; the flag never reverts.
func (s *SQLiteStore) MarkStarted(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE challenges SET started = 1 WHERE id = ? AND started = 0`, id)
	if err != nil {
		return false, globetrotter.Upstream("marking challenge started", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, globetrotter.Upstream("marking challenge started", err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.Challenge(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row scanner) (globetrotter.Challenge, error) {
	var (
		c          globetrotter.Challenge
		friend     sql.NullString
		ids        string
		challenger sql.NullInt64
		friendSc   sql.NullInt64
		started    int
		createdAt  string
	)
	err := row.Scan(&c.ID, &c.ChallengerUsername, &friend, &ids, &challenger, &friendSc, &started, &createdAt)
	if err != nil {
		return c, err
	}

	if friend.Valid {
		c.FriendUsername = &friend.String
	}
	if challenger.Valid {
		v := int(challenger.Int64)
		c.ChallengerScore = &v
	}
	if friendSc.Valid {
		v := int(friendSc.Int64)
		c.FriendScore = &v
	}
	c.Started = started != 0
	if err := json.Unmarshal([]byte(ids), &c.QuestionIDs); err != nil {
		return c, fmt.Errorf("decoding question ids: %w", err)
	}
	if c.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return c, fmt.Errorf("decoding created_at: %w", err)
	}
	return c, nil
}
