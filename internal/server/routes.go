package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Globetrotter API", "/openapi.json", "/docs"))
	r.Get("/ws", handleWS(logger, deps.Engine, deps.Broker, deps.CORSOrigins))

	r.Route("/api/challenges", func(r chi.Router) {
		r.Post("/", handleCreateChallenge(logger, deps.Engine, deps.PublicURL))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGetChallenge(logger, deps.Challenges))
			r.Get("/state", handleChallengeState(logger, deps.Engine))
			r.Get("/invite.png", handleInvite(logger, deps.Challenges, deps.PublicURL))
			r.Post("/join", handleJoinChallenge(logger, deps.Engine))
			r.Post("/submit", handleSubmitScore(logger, deps.Engine))
			r.Patch("/friend", handleOverrideFriend(logger, deps.Engine))

			r.Get("/questions/{index}", handleGetQuestion(logger, deps.Challenges, deps.Quiz))
			r.Post("/questions/{index}/answer", handleCheckGuess(logger, deps.Challenges, deps.Quiz))
		})
	})
}
