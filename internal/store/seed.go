package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/playperu/globetrotter/internal/globetrotter"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the seed file layout: destinations plus extra decoy cities.
type Catalog struct {
	Destinations []globetrotter.Destination `yaml:"destinations"`
	Cities       []string                   `yaml:"cities"`
}

// ParseCatalog decodes a YAML catalog and checks that ids and cities are set.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decoding catalog: %w", err)
	}
	seen := make(map[int64]bool, len(c.Destinations))
	for _, d := range c.Destinations {
		if d.ID <= 0 || d.City == "" {
			return c, globetrotter.Invalid("destination %d needs a positive id and a city", d.ID)
		}
		if seen[d.ID] {
			return c, globetrotter.Invalid("duplicate destination id %d", d.ID)
		}
		seen[d.ID] = true
	}
	return c, nil
}

// SeedDefault loads the embedded catalog. Idempotent: existing rows are kept.
func (s *SQLiteStore) SeedDefault(ctx context.Context, logger *slog.Logger) error {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		return err
	}
	return s.Seed(ctx, logger, c)
}

func (s *SQLiteStore) Seed(ctx context.Context, logger *slog.Logger, c Catalog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return globetrotter.Upstream("beginning seed", err)
	}
	defer tx.Rollback()

	var added int
	for _, d := range c.Destinations {
		clues, _ := json.Marshal(nonNil(d.Clues))
		funFact, _ := json.Marshal(nonNil(d.FunFacts))
		trivia, _ := json.Marshal(nonNil(d.Trivia))
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO destinations (id, city, country, clues, fun_fact, trivia)
			VALUES (?, ?, ?, ?, ?, ?)
		`, d.ID, d.City, d.Country, string(clues), string(funFact), string(trivia))
		if err != nil {
			return globetrotter.Upstream("seeding destination", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO cities (city) VALUES (?)`, d.City); err != nil {
			return globetrotter.Upstream("seeding city", err)
		}
	}
	for _, city := range c.Cities {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO cities (city) VALUES (?)`, city); err != nil {
			return globetrotter.Upstream("seeding city", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return globetrotter.Upstream("committing seed", err)
	}
	if added > 0 {
		logger.Info("catalog seeded", "destinations", added)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
