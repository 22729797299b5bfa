package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"assessment-attempt-service/internal/app"
	"assessment-attempt-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var validate = validator.New()

type WSHandler struct {
	service  *app.AttemptService
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(service *app.AttemptService, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log.With().Str("component", "ws").Logger(),
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

type selectPayload struct {
	QuestionID string `json:"questionId" validate:"required"`
	OptionID   string `json:"optionId" validate:"required"`
}

type jumpPayload struct {
	Index *int `json:"index" validate:"required,gte=0"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type optionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type questionView struct {
	ID       string              `json:"id"`
	Order    int                 `json:"order"`
	Text     string              `json:"text"`
	ImageURL string              `json:"imageUrl,omitempty"`
	Points   int                 `json:"points"`
	Type     domain.QuestionType `json:"type"`
	Options  []optionView        `json:"options"`
}

type assessmentView struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	DurationMinutes int    `json:"durationMinutes"`
	TotalPoints     int    `json:"totalPoints"`
}

type attemptView struct {
	AttemptID  string                 `json:"attemptId"`
	Assessment assessmentView         `json:"assessment"`
	Questions  []questionView         `json:"questions"`
	State      domain.AttemptSnapshot `json:"state"`
}

// ServeWS upgrades the request and attaches the connection to the user's attempt.
// The attempt ends when its last connection closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	assessmentID := r.URL.Query().Get("assessmentId")
	userID := r.URL.Query().Get("userId")
	if assessmentID == "" || userID == "" {
		http.Error(w, "missing assessmentId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	a, err := h.service.Connect(r.Context(), assessmentID, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	log := h.log.With().Str("attempt_id", a.ID).Str("user_id", userID).Logger()

	events, unsubscribe := a.Subscribe()
	defer unsubscribe()

	// Bound to the connection, not the request, so submissions outlive a read error until teardown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan outboundMessage[any], 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	var submits sync.WaitGroup

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		case <-writerDone:
		}
	}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				push(outboundMessage[any]{Type: string(ev.Type), Payload: ev})
			case <-closeSignals:
				return
			}
		}
	}()

	push(outboundMessage[any]{Type: "attempt", Payload: newAttemptView(a)})

	reply := func(err error) {
		switch {
		case err == nil:
		case domain.IsPolicyRejection(err):
			push(outboundMessage[any]{Type: "ignored", Payload: errorPayload{Message: err.Error()}})
		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := decodePayload(inbound.Payload, &payload); err != nil {
				reply(errors.New("invalid select payload"))
				continue
			}
			reply(a.Select(payload.QuestionID, payload.OptionID))
		case "next":
			a.Next()
		case "previous":
			a.Previous()
		case "jump":
			var payload jumpPayload
			if err := decodePayload(inbound.Payload, &payload); err != nil {
				reply(errors.New("invalid jump payload"))
				continue
			}
			reply(a.Jump(*payload.Index))
		case "requestSubmit":
			reply(a.RequestSubmit())
		case "cancelSubmit":
			reply(a.CancelSubmit())
		case "confirmSubmit":
			// Runs beside the read loop so a repeated confirm is answered while grading is pending.
			submits.Add(1)
			go func() {
				defer submits.Done()
				err := a.ConfirmSubmit(ctx)
				var subErr *domain.SubmissionError
				if errors.As(err, &subErr) {
					// Already surfaced as a failed event.
					return
				}
				reply(err)
			}()
		case "state":
			push(outboundMessage[any]{Type: "state", Payload: a.Snapshot()})
		default:
			reply(errors.New("unsupported message type"))
		}
	}

	close(closeSignals)
	h.service.Disconnect(context.Background(), a)
	submits.Wait()
	cancel()
	<-updatesDone
	close(send)
	<-writerDone
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return err
	}
	return validate.Struct(v)
}

func newAttemptView(a *app.Attempt) attemptView {
	content := a.Content()
	questions := make([]questionView, 0, len(content.Questions))
	for _, q := range content.Questions {
		options := make([]optionView, 0, len(q.Options))
		for _, opt := range q.Options {
			options = append(options, optionView{ID: opt.ID, Text: opt.Text})
		}
		questions = append(questions, questionView{
			ID:       q.ID,
			Order:    q.Order,
			Text:     q.Text,
			ImageURL: q.ImageURL,
			Points:   q.Points,
			Type:     q.Type,
			Options:  options,
		})
	}
	return attemptView{
		AttemptID: a.ID,
		Assessment: assessmentView{
			ID:              content.Assessment.ID,
			Title:           content.Assessment.Title,
			DurationMinutes: content.Assessment.DurationMinutes,
			TotalPoints:     content.Assessment.TotalPoints,
		},
		Questions: questions,
		State:     a.Snapshot(),
	}
}
