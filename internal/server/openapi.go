package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/globetrotter/internal/engine"
	"github.com/playperu/globetrotter/internal/globetrotter"
	"github.com/playperu/globetrotter/internal/quiz"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse documents /healthz: one status per checked dependency.
type HealthResponse map[string]struct {
	Status string `json:"status"`
}

type ChallengeParams struct {
	ID string `path:"id"`
}

type QuestionParams struct {
	ID    string `path:"id"`
	Index int    `path:"index"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Globetrotter API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Two-player city trivia challenges.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/ws")
	getWS.SetSummary("Challenge channel")
	getWS.SetDescription("Upgrades to a WebSocket. Messages are JSON envelopes {event, data}. " +
		"Send join_challenge and answer; receive start_challenge, next_question, challenge_update, " +
		"user_joined, proceed, answer_result and error.")
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	// POST /api/challenges
	create, _ := r.NewOperationContext(http.MethodPost, "/api/challenges")
	create.SetSummary("Create challenge")
	create.SetDescription("Creates a challenge over a random sample of destinations and returns the share link.")
	create.AddReqStructure(CreateChallengeRequest{})
	create.AddRespStructure(CreateChallengeResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	create.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	create.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadGateway))
	_ = r.AddOperation(create)

	// GET /api/challenges/{id}
	get, _ := r.NewOperationContext(http.MethodGet, "/api/challenges/{id}")
	get.SetSummary("Get challenge")
	get.AddReqStructure(ChallengeParams{})
	get.AddRespStructure(globetrotter.Challenge{}, openapi.WithHTTPStatus(http.StatusOK))
	get.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(get)

	// GET /api/challenges/{id}/state
	state, _ := r.NewOperationContext(http.MethodGet, "/api/challenges/{id}/state")
	state.SetSummary("Get live progress")
	state.SetDescription("Returns the current question index, completion and attached players.")
	state.AddReqStructure(ChallengeParams{})
	state.AddRespStructure(engine.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	state.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(state)

	// GET /api/challenges/{id}/invite.png
	invite, _ := r.NewOperationContext(http.MethodGet, "/api/challenges/{id}/invite.png")
	invite.SetSummary("Invite QR code")
	invite.AddReqStructure(ChallengeParams{})
	invite.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK), openapi.WithContentType("image/png"))
	invite.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(invite)

	// POST /api/challenges/{id}/join
	join, _ := r.NewOperationContext(http.MethodPost, "/api/challenges/{id}/join")
	join.SetSummary("Join challenge")
	join.SetDescription("Claims the friend slot. Idempotent for existing participants.")
	join.AddReqStructure(struct {
		ChallengeParams
		JoinChallengeRequest
	}{})
	join.AddRespStructure(globetrotter.Challenge{}, openapi.WithHTTPStatus(http.StatusOK))
	join.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	join.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(join)

	// POST /api/challenges/{id}/submit
	submit, _ := r.NewOperationContext(http.MethodPost, "/api/challenges/{id}/submit")
	submit.SetSummary("Submit final score")
	submit.AddReqStructure(struct {
		ChallengeParams
		SubmitScoreRequest
	}{})
	submit.AddRespStructure(globetrotter.Challenge{}, openapi.WithHTTPStatus(http.StatusOK))
	submit.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	submit.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(submit)

	// PATCH /api/challenges/{id}/friend
	override, _ := r.NewOperationContext(http.MethodPatch, "/api/challenges/{id}/friend")
	override.SetSummary("Override friend")
	override.SetDescription("Replaces the friend username. Administrative repair only.")
	override.AddReqStructure(struct {
		ChallengeParams
		OverrideFriendRequest
	}{})
	override.AddRespStructure(globetrotter.Challenge{}, openapi.WithHTTPStatus(http.StatusOK))
	override.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(override)

	// GET /api/challenges/{id}/questions/{index}
	question, _ := r.NewOperationContext(http.MethodGet, "/api/challenges/{id}/questions/{index}")
	question.SetSummary("Get question")
	question.SetDescription("Returns the clues and four city options for the question at index.")
	question.AddReqStructure(QuestionParams{})
	question.AddRespStructure(globetrotter.Question{}, openapi.WithHTTPStatus(http.StatusOK))
	question.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(question)

	// POST /api/challenges/{id}/questions/{index}/answer
	check, _ := r.NewOperationContext(http.MethodPost, "/api/challenges/{id}/questions/{index}/answer")
	check.SetSummary("Check a guess")
	check.SetDescription("Checks a guess without recording it. Facts are revealed on a correct guess.")
	check.AddReqStructure(struct {
		QuestionParams
		GuessRequest
	}{})
	check.AddRespStructure(quiz.Result{}, openapi.WithHTTPStatus(http.StatusOK))
	check.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(check)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
