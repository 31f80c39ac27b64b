package engine

import (
	"context"

	"github.com/playperu/globetrotter/internal/broker"
)

// Server-to-client event names.
const (
	EventStart           = "start_challenge"
	EventNextQuestion    = "next_question"
	EventChallengeUpdate = "challenge_update"
	EventUserJoined      = "user_joined"
	EventProceed         = "proceed"
)

type StartPayload struct {
	SessionID string `json:"sessionId"`
}

type NextQuestionPayload struct {
	QuestionIndex int `json:"questionIndex"`
}

type UserJoinedPayload struct {
	Username string `json:"username"`
}

type ProceedPayload struct {
	NextIndex int  `json:"nextIndex"`
	Finished  bool `json:"finished"`
}

// publish broadcasts to the room. Broadcasts are not cancelled with the
// request that caused them.
func (e *Engine) publish(ctx context.Context, r *room, name string, data any) {
	e.pub.Publish(context.WithoutCancel(ctx), r.id, broker.Event{Event: name, Data: data})
}
