package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"contest-engine/internal/app"
	"contest-engine/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	engine   *app.Engine
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Engine, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int `json:"questionIndex"`
	SelectedIndex int `json:"selectedIndex"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: wsError{Code: domain.Code(err), Message: err.Error()}}
}

// ServeWS upgrades HTTP requests to websockets, joins (or reconnects) the
// user and relays room events until either side goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	contestID := r.URL.Query().Get("contestId")
	userID := r.URL.Query().Get("userId")
	if contestID == "" || userID == "" {
		http.Error(w, "missing contestId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Subscribe before joining so the user's own join event is delivered.
	events, cancel, err := h.engine.Subscribe(r.Context(), contestID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()

	joined, err := h.join(r.Context(), contestID, userID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer func() {
		if err := h.engine.MarkDisconnected(context.Background(), contestID, userID); err != nil && !errors.Is(err, domain.ErrContestNotFound) {
			h.logger.Warn("mark disconnected", "contest_id", contestID, "user_id", userID, "error", err)
		}
	}()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// Only the writer goroutine touches the connection for writes. Closing
	// the connection on a write error also ends the reader loop below.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "error", err)
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				msg := outboundMessage[any]{Type: string(event.Type), Payload: event}
				select {
				case send <- msg:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if deliver(send, writerDone, outboundMessage[any]{Type: "joined", Payload: joined}) {
		for {
			var inbound inboundMessage
			if err := conn.ReadJSON(&inbound); err != nil {
				break
			}
			if !deliver(send, writerDone, h.reply(r.Context(), contestID, userID, inbound)) {
				break
			}
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// deliver hands msg to the writer. It reports false once the writer has
// stopped, so a dead connection never blocks the caller.
func deliver(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func (h *WSHandler) reply(ctx context.Context, contestID, userID string, inbound inboundMessage) outboundMessage[any] {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return outboundMessage[any]{Type: "error", Payload: wsError{Code: "INVALID_REQUEST", Message: "invalid answer payload"}}
		}
		receipt, err := h.engine.SubmitAnswer(ctx, contestID, userID, payload.QuestionIndex, payload.SelectedIndex, h.engine.Clock().Now())
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "answer_accepted", Payload: receipt}
	case "snapshot":
		snap, err := h.engine.GetSnapshot(ctx, contestID)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "snapshot", Payload: snap}
	case "ping":
		return outboundMessage[any]{Type: "pong", Payload: map[string]time.Time{"at": h.engine.Clock().Now()}}
	default:
		return outboundMessage[any]{Type: "error", Payload: wsError{Code: "INVALID_REQUEST", Message: "unsupported message type"}}
	}
}

// join adds the user, or marks them reconnected if they already joined.
func (h *WSHandler) join(ctx context.Context, contestID, userID string) (domain.RoomSnapshot, error) {
	snap, err := h.engine.JoinContest(ctx, contestID, userID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, domain.ErrAlreadyJoined) {
		return domain.RoomSnapshot{}, err
	}
	if err := h.engine.MarkReconnected(ctx, contestID, userID); err != nil {
		return domain.RoomSnapshot{}, err
	}
	return h.engine.GetSnapshot(ctx, contestID)
}
