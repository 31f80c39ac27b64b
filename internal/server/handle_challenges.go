package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/globetrotter/internal/engine"
	"github.com/playperu/globetrotter/internal/globetrotter"
)

type CreateChallengeRequest struct {
	Username     string `json:"username"`
	NumQuestions int    `json:"numQuestions,omitempty"`
}

type CreateChallengeResponse struct {
	Challenge globetrotter.Challenge `json:"challenge"`
	Link      string                 `json:"link"`
}

type JoinChallengeRequest struct {
	Username string `json:"username"`
}

type SubmitScoreRequest struct {
	Username string `json:"username"`
	Score    *int   `json:"score"`
}

type OverrideFriendRequest struct {
	FriendUsername string `json:"friendUsername"`
}

func challengeLink(publicURL, id string) string {
	return strings.TrimRight(publicURL, "/") + "/challenge/" + id
}

func handleCreateChallenge(logger *slog.Logger, eng *engine.Engine, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateChallengeRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.NumQuestions < 0 {
			writeError(w, http.StatusBadRequest, "numQuestions must not be negative")
			return
		}

		c, err := eng.Create(r.Context(), req.Username, req.NumQuestions)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, CreateChallengeResponse{
			Challenge: c,
			Link:      challengeLink(publicURL, c.ID),
		})
	}
}

func handleGetChallenge(logger *slog.Logger, challenges Challenges) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := challenges.Challenge(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleChallengeState(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := eng.State(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleJoinChallenge(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinChallengeRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		c, err := eng.Claim(r.Context(), chi.URLParam(r, "id"), req.Username)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleSubmitScore(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitScoreRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Score == nil {
			writeError(w, http.StatusBadRequest, "score is required")
			return
		}

		c, err := eng.SubmitScore(r.Context(), chi.URLParam(r, "id"), req.Username, *req.Score)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleOverrideFriend(logger *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OverrideFriendRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		c, err := eng.OverrideFriend(r.Context(), chi.URLParam(r, "id"), req.FriendUsername)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}
