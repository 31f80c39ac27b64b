package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/globetrotter/internal/globetrotter"
	"github.com/playperu/globetrotter/internal/quiz"
)

type GuessRequest struct {
	Guess string `json:"guess"`
}

// questionID resolves the {index} path parameter to the challenge's
// destination id at that position.
func questionID(challenges Challenges, r *http.Request) (int64, error) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, globetrotter.Invalid("question index must be a number")
	}
	c, err := challenges.Challenge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= c.QuestionCount() {
		return 0, fmt.Errorf("question %d of challenge %s: %w", index, c.ID, globetrotter.ErrNotFound)
	}
	return c.QuestionIDs[index], nil
}

func handleGetQuestion(logger *slog.Logger, challenges Challenges, svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := questionID(challenges, r)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		q, err := svc.Question(r.Context(), id)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// handleCheckGuess answers "is this the right city" without touching the
// challenge's progress; scoring happens on the WebSocket channel.
func handleCheckGuess(logger *slog.Logger, challenges Challenges, svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GuessRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		id, err := questionID(challenges, r)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		res, err := svc.Check(r.Context(), id, req.Guess)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
