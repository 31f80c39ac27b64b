// Package quiz builds the client-facing view of a catalog destination and
// checks guesses against it.
package quiz

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/playperu/globetrotter/internal/globetrotter"
)

// Decoys is the number of wrong options shown next to the correct city.
const Decoys = 3

// Catalog is the read side of the trivia catalog.
type Catalog interface {
	Destination(ctx context.Context, id int64) (globetrotter.Destination, error)
	SampleDecoyCities(ctx context.Context, exclude string, n int) ([]string, error)
}

type Service struct {
	catalog Catalog
	shuffle func(n int, swap func(i, j int))
}

func NewService(catalog Catalog) *Service {
	return &Service{catalog: catalog, shuffle: rand.Shuffle}
}

// Question returns the destination's clues with the correct city placed at a
// random position among Decoys other cities.
func (s *Service) Question(ctx context.Context, id int64) (globetrotter.Question, error) {
	d, err := s.catalog.Destination(ctx, id)
	if err != nil {
		return globetrotter.Question{}, err
	}
	decoys, err := s.catalog.SampleDecoyCities(ctx, d.City, Decoys)
	if err != nil {
		return globetrotter.Question{}, err
	}

	options := append([]string{d.City}, decoys...)
	s.shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })

	return globetrotter.Question{
		ID:      d.ID,
		Clues:   d.Clues,
		Options: options,
		FunFact: d.FunFacts,
		Trivia:  d.Trivia,
	}, nil
}

// Result is the outcome of a stateless guess. Facts are only revealed on a
// correct guess.
type Result struct {
	Correct bool     `json:"correct"`
	FunFact []string `json:"fun_fact,omitempty"`
	Trivia  []string `json:"trivia,omitempty"`
}

func (s *Service) Check(ctx context.Context, id int64, guess string) (Result, error) {
	d, err := s.catalog.Destination(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !Matches(guess, d.City) {
		return Result{}, nil
	}
	return Result{Correct: true, FunFact: d.FunFacts, Trivia: d.Trivia}, nil
}

// Matches reports whether guess names city exactly. Only surrounding space
// is stripped from the guess; case and inner spelling must match the option.
func Matches(guess, city string) bool {
	guess = strings.TrimSpace(guess)
	return guess != "" && guess == city
}
