package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"forms-response-service/internal/domain"
	"github.com/rs/zerolog/log"
)

type errorPayload struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	QuestionIDs []string `json:"questionIds,omitempty"`
}

// describeError maps a use case error to a client code and HTTP status.
// Unclassified errors are logged and reported without detail.
func describeError(err error) (errorPayload, int) {
	var (
		code   string
		status int
	)
	switch {
	case domain.IsNotFound(err):
		code, status = "NOT_FOUND", http.StatusNotFound
	case errors.Is(err, domain.ErrFormClosed):
		code, status = "FORM_CLOSED", http.StatusConflict
	case errors.Is(err, domain.ErrAlreadySubmitted):
		code, status = "ALREADY_SUBMITTED", http.StatusConflict
	case errors.Is(err, domain.ErrAlreadyFinalized):
		code, status = "ALREADY_FINALIZED", http.StatusConflict
	case errors.Is(err, domain.ErrSessionActive):
		code, status = "SESSION_ACTIVE", http.StatusConflict
	case errors.Is(err, domain.ErrRoleNotPermitted):
		code, status = "ROLE_NOT_PERMITTED", http.StatusForbidden
	case errors.Is(err, domain.ErrMissingRequiredAnswers):
		missing, _ := domain.MissingQuestions(err)
		return errorPayload{Code: "MISSING_REQUIRED_ANSWERS", Message: err.Error(), QuestionIDs: missing}, http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidAnswerShape):
		code, status = "INVALID_ANSWER", http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidRole):
		code, status = "INVALID_REQUEST", http.StatusBadRequest
	default:
		log.Error().Err(err).Msg("unhandled request error")
		return errorPayload{Code: "INTERNAL", Message: "internal error"}, http.StatusInternalServerError
	}
	return errorPayload{Code: code, Message: err.Error()}, status
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	payload, status := describeError(err)
	writeJSON(w, status, payload)
}

// clientInfo takes the first X-Forwarded-For hop, or the peer address.
func clientInfo(r *http.Request) domain.ClientInfo {
	ip := ""
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if ip == "" {
		ip = r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
	}
	return domain.ClientInfo{IPAddress: ip, UserAgent: r.UserAgent()}
}
