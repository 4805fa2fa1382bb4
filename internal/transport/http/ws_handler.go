package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"forms-response-service/internal/app"
	"forms-response-service/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSHandler drives one respondent's submission over a websocket.
type WSHandler struct {
	submissions *app.SubmissionService
	sessions    app.SessionRegistry
	upgrader    websocket.Upgrader
}

func NewWSHandler(submissions *app.SubmissionService, sessions app.SessionRegistry) *WSHandler {
	return &WSHandler{
		submissions: submissions,
		sessions:    sessions,
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

type answerMessage struct {
	QuestionID     string   `json:"questionId"`
	Text           *string  `json:"text,omitempty"`
	AlternativeIDs []string `json:"alternativeIds,omitempty"`
}

type startedPayload struct {
	Group   domain.ResponseGroup `json:"group"`
	Resumed bool                 `json:"resumed"`
	CanEdit bool                 `json:"canEdit"`
	Answers []domain.Answer      `json:"answers"`
}

type finalizedPayload struct {
	GroupID string `json:"groupId"`
	CanEdit bool   `json:"canEdit"`
}

type cancelledPayload struct {
	GroupID string `json:"groupId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

func errorMessage(err error) outboundMessage[any] {
	payload, _ := describeError(err)
	return outboundMessage[any]{Type: "error", Payload: payload}
}

// ServeWS upgrades the request, starts or resumes the respondent's submission and then
// handles answer, finalize and cancel messages until the client leaves or cancels.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	formID := query.Get("formId")
	respondentID := query.Get("respondentId")
	classID := query.Get("classId")
	if formID == "" || respondentID == "" {
		http.Error(w, "missing formId or respondentId", http.StatusBadRequest)
		return
	}
	role, err := domain.ParseRole(query.Get("role"))
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	client := clientInfo(r)
	ctx := app.WithClientInfo(r.Context(), client)

	started, err := h.submissions.StartSubmission(ctx, app.StartRequest{
		FormID:       formID,
		RespondentID: respondentID,
		Role:         role,
		ClassID:      classID,
		Client:       client,
	})
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	groupID := started.Group.ID

	owner := uuid.NewString()
	if err := h.sessions.Acquire(ctx, groupID, owner); err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.sessions.Release(releaseCtx, groupID, owner)
	}()

	answers, err := h.submissions.Answers(ctx, groupID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	out := startOutbox(func(msg outboundMessage[any]) error {
		err := conn.WriteJSON(msg)
		if err != nil {
			log.Debug().Err(err).Str("groupID", groupID).Msg("ws write error")
		}
		return err
	}, 16)
	defer out.close()

	if answers == nil {
		answers = []domain.Answer{}
	}
	if !out.push(outboundMessage[any]{Type: "started", Payload: startedPayload{
		Group:   started.Group,
		Resumed: started.Resumed,
		CanEdit: started.CanEdit,
		Answers: answers,
	}}) {
		return
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		var reply outboundMessage[any]
		done := false
		switch inbound.Type {
		case "answer":
			var msg answerMessage
			if err := json.Unmarshal(inbound.Payload, &msg); err != nil || msg.QuestionID == "" {
				reply = outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "INVALID_REQUEST", Message: "invalid answer payload"}}
				break
			}
			saved, err := h.submissions.SaveAnswer(ctx, groupID, msg.QuestionID, domain.AnswerPayload{
				Text:           msg.Text,
				AlternativeIDs: msg.AlternativeIDs,
			})
			if err != nil {
				reply = errorMessage(err)
				break
			}
			reply = outboundMessage[any]{Type: "answerSaved", Payload: saved}
		case "finalize":
			if err := h.submissions.Finalize(ctx, groupID); err != nil {
				reply = errorMessage(err)
				break
			}
			canEdit, err := h.submissions.CanEdit(ctx, groupID)
			if err != nil {
				reply = errorMessage(err)
				break
			}
			reply = outboundMessage[any]{Type: "finalized", Payload: finalizedPayload{GroupID: groupID, CanEdit: canEdit}}
		case "cancel":
			if err := h.submissions.Cancel(ctx, groupID); err != nil {
				reply = errorMessage(err)
				break
			}
			reply = outboundMessage[any]{Type: "cancelled", Payload: cancelledPayload{GroupID: groupID}}
			done = true
		default:
			reply = outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "INVALID_REQUEST", Message: "unsupported message type"}}
		}
		if !out.push(reply) || done {
			return
		}
	}
}

// outbox serializes writes to a connection on one goroutine. Once a write fails the writer
// stops and every later push reports false instead of blocking.
type outbox struct {
	queue chan outboundMessage[any]
	done  chan struct{}
}

func startOutbox(write func(outboundMessage[any]) error, size int) *outbox {
	o := &outbox{
		queue: make(chan outboundMessage[any], size),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(o.done)
		for msg := range o.queue {
			if err := write(msg); err != nil {
				return
			}
		}
	}()
	return o
}

func (o *outbox) push(msg outboundMessage[any]) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.queue <- msg:
		return true
	case <-o.done:
		return false
	}
}

// close flushes queued messages and waits for the writer. push must not be called afterwards.
func (o *outbox) close() {
	close(o.queue)
	<-o.done
}
