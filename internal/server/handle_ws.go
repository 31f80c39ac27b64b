package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/playperu/globetrotter/internal/broker"
	"github.com/playperu/globetrotter/internal/engine"
)

// Client-to-server events.
const (
	eventJoinChallenge = "join_challenge"
	eventAnswer        = "answer"
)

// Server-to-client events that only go to the connection that caused them.
const (
	eventAnswerResult = "answer_result"
	eventError        = "error"
)

type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type JoinChallengeEvent struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
}

type AnswerEvent struct {
	SessionID     string `json:"sessionId"`
	QuestionIndex int    `json:"questionIndex"`
	Username      string `json:"username"`
	Answer        string `json:"answer"`
}

type AnswerResultEvent struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
	Score         int  `json:"score"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func acceptOptions(origins []string) *websocket.AcceptOptions {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	opts := &websocket.AcceptOptions{}
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		}
	}
	return opts
}

// wsConn is one WebSocket client. A connection may follow several sessions;
// each subscription is pumped by its own goroutine.
type wsConn struct {
	id     string
	conn   *websocket.Conn
	logger *slog.Logger
	eng    *engine.Engine
	broker *broker.Broker

	wg   sync.WaitGroup
	subs map[string]*broker.Subscription
}

func handleWS(logger *slog.Logger, eng *engine.Engine, b *broker.Broker, origins []string) http.HandlerFunc {
	opts := acceptOptions(origins)

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		id := uuid.NewString()
		c := &wsConn{
			id:     id,
			conn:   conn,
			logger: logger.With("conn", id),
			eng:    eng,
			broker: b,
			subs:   make(map[string]*broker.Subscription),
		}
		c.serve(r.Context())
	}
}

func (c *wsConn) serve(ctx context.Context) {
	defer func() {
		c.eng.Leave(context.WithoutCancel(ctx), c.id)
		for _, sub := range c.subs {
			c.broker.Unsubscribe(sub)
		}
		c.wg.Wait()
	}()

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			c.logger.Debug("websocket read ended", "error", err)
			return
		}
		if typ != websocket.MessageText {
			c.sendError(ctx, "validation", "expected a text frame")
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(ctx, "validation", "invalid message")
			continue
		}

		switch msg.Event {
		case eventJoinChallenge:
			c.join(ctx, msg.Data)
		case eventAnswer:
			c.answer(ctx, msg.Data)
		default:
			c.sendError(ctx, "validation", "unknown event "+msg.Event)
		}
	}
}

func (c *wsConn) join(ctx context.Context, raw json.RawMessage) {
	var ev JoinChallengeEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.SessionID == "" {
		c.sendError(ctx, "validation", "sessionId and username are required")
		return
	}

	// Subscribe first so the events caused by this join reach us too.
	sub, subscribed := c.subs[ev.SessionID]
	if !subscribed {
		sub = c.broker.Subscribe(ev.SessionID)
		c.subs[ev.SessionID] = sub
		c.wg.Add(1)
		go c.forward(ctx, sub)
	}

	if _, err := c.eng.Join(ctx, ev.SessionID, c.id, ev.Username); err != nil {
		if !subscribed {
			c.broker.Unsubscribe(sub)
			delete(c.subs, ev.SessionID)
		}
		c.sendDomainError(ctx, err)
	}
}

func (c *wsConn) answer(ctx context.Context, raw json.RawMessage) {
	var ev AnswerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.sendError(ctx, "validation", "invalid answer")
		return
	}

	res, err := c.eng.Answer(ctx, engine.AnswerInput{
		SessionID:     ev.SessionID,
		QuestionIndex: ev.QuestionIndex,
		Username:      ev.Username,
		Answer:        ev.Answer,
	})
	if err != nil {
		c.sendDomainError(ctx, err)
		return
	}
	c.send(ctx, eventAnswerResult, AnswerResultEvent{
		QuestionIndex: res.QuestionIndex,
		Correct:       res.Correct,
		Score:         res.Score,
	})
}

// forward copies broadcast events to the socket until the subscription is
// closed. Writes on a websocket.Conn are safe for concurrent use.
func (c *wsConn) forward(ctx context.Context, sub *broker.Subscription) {
	defer c.wg.Done()
	for data := range sub.C {
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			c.logger.Debug("websocket write failed", "session", sub.SessionID, "error", err)
		}
	}
}

func (c *wsConn) send(ctx context.Context, event string, data any) {
	if err := wsjson.Write(ctx, c.conn, broker.Event{Event: event, Data: data}); err != nil {
		c.logger.Debug("websocket write failed", "event", event, "error", err)
	}
}

func (c *wsConn) sendError(ctx context.Context, code, message string) {
	c.send(ctx, eventError, ErrorEvent{Code: code, Message: message})
}

func (c *wsConn) sendDomainError(ctx context.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		if !errors.Is(err, context.Canceled) {
			c.logger.Error("websocket event failed", "error", err)
		}
		c.sendError(ctx, code, http.StatusText(status))
		return
	}
	c.sendError(ctx, code, err.Error())
}
