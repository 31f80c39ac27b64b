package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playperu/globetrotter/internal/globetrotter"
)

func (s *SQLiteStore) Destination(ctx context.Context, id int64) (globetrotter.Destination, error) {
	var (
		d                      globetrotter.Destination
		clues, funFact, trivia string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, city, country, clues, fun_fact, trivia
		FROM destinations WHERE id = ?
	`, id).Scan(&d.ID, &d.City, &d.Country, &clues, &funFact, &trivia)
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("destination %d: %w", id, globetrotter.ErrNotFound)
	}
	if err != nil {
		return d, globetrotter.Upstream("loading destination", err)
	}

	for _, f := range []struct {
		raw string
		dst *[]string
	}{{clues, &d.Clues}, {funFact, &d.FunFacts}, {trivia, &d.Trivia}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return d, fmt.Errorf("decoding destination %d: %w", id, err)
		}
	}
	return d, nil
}

// SampleDestinationIDs returns n distinct destination ids in random order.
func (s *SQLiteStore) SampleDestinationIDs(ctx context.Context, n int) ([]int64, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM destinations`).Scan(&total); err != nil {
		return nil, globetrotter.Upstream("counting destinations", err)
	}
	if total < n {
		return nil, globetrotter.Invalid("not enough destinations for a %d question challenge", n)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM destinations ORDER BY RANDOM() LIMIT ?`, n)
	if err != nil {
		return nil, globetrotter.Upstream("sampling destinations", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, n)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, globetrotter.Upstream("sampling destinations", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, globetrotter.Upstream("sampling destinations", err)
	}
	return ids, nil
}

// SampleDecoyCities returns n distinct cities other than exclude.
func (s *SQLiteStore) SampleDecoyCities(ctx context.Context, exclude string, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT city FROM cities WHERE city != ? ORDER BY RANDOM() LIMIT ?
	`, exclude, n)
	if err != nil {
		return nil, globetrotter.Upstream("sampling cities", err)
	}
	defer rows.Close()

	cities := make([]string, 0, n)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, globetrotter.Upstream("sampling cities", err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, globetrotter.Upstream("sampling cities", err)
	}
	if len(cities) < n {
		return nil, fmt.Errorf("need %d decoy cities, have %d: %w", n, len(cities), globetrotter.ErrNotFound)
	}
	return cities, nil
}
