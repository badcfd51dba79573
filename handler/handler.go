package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"session-memory/internal/domain"
	"session-memory/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxCorrelationLen = 128
	sessionIDParam    = "session_id"
	viewParam         = "view"
	viewFull          = "full"
	viewSession       = "session"

	msgNotFound = "session not found"
	msgInternal = "internal server error"
)

// SessionGetter is the use case consumed by the handler.
type SessionGetter interface {
	GetSession(ctx context.Context, in usecase.GetSessionInput) (domain.SessionResult, error)
}

type Handler struct {
	sessions SessionGetter
	fullView bool
}

type Option func(*Handler)

// WithFullView makes the success envelope carry session, metadata and
// messages unless the request asks for view=session.
func WithFullView(enabled bool) Option {
	return func(h *Handler) { h.fullView = enabled }
}

type successResponse struct {
	Data any `json:"data"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func NewHandler(sessions SessionGetter, opts ...Option) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("handler: session getter must not be nil")
	}
	h := &Handler{sessions: sessions}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle serves GET /sessions/{session_id} behind an API Gateway proxy integration.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" || len(correlationID) > maxCorrelationLen {
		correlationID = uuid.NewString()
	}
	logger := slog.With("correlation_id", correlationID)

	out, err := h.sessions.GetSession(ctx, usecase.GetSessionInput{
		SessionID: req.PathParameters[sessionIDParam],
	})
	if err != nil {
		status, body := errorBody(err)
		logFailure(logger, err)
		return respond(status, correlationID, body), nil
	}

	if h.wantsFullView(req.QueryStringParameters[viewParam]) {
		return respond(http.StatusOK, correlationID, successResponse{Data: out}), nil
	}
	return respond(http.StatusOK, correlationID, successResponse{Data: out.Session}), nil
}

func (h *Handler) wantsFullView(view string) bool {
	switch strings.ToLower(strings.TrimSpace(view)) {
	case viewFull:
		return true
	case viewSession:
		return false
	}
	return h.fullView
}

func errorBody(err error) (int, errorResponse) {
	var usecaseErr *usecase.Error
	if !errors.As(err, &usecaseErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Message: msgInternal}
	}
	switch usecaseErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, errorResponse{Error: string(usecaseErr.Code), Message: usecaseErr.Message}
	case usecase.ErrorNotFound:
		return http.StatusNotFound, errorResponse{Error: string(usecaseErr.Code), Message: msgNotFound}
	default:
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Message: msgInternal}
	}
}

func logFailure(logger *slog.Logger, err error) {
	var usecaseErr *usecase.Error
	if !errors.As(err, &usecaseErr) {
		logger.Error("get session failed", "code", usecase.ErrorInternal, "err", err)
		return
	}
	switch usecaseErr.Code {
	case usecase.ErrorInvalidInput, usecase.ErrorNotFound:
		logger.Info("get session rejected", "code", usecaseErr.Code, "reason", usecaseErr.Reason)
	default:
		logger.Error("get session failed", "code", usecaseErr.Code, "reason", usecaseErr.Reason, "err", usecaseErr.Err)
	}
}

func respond(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		slog.Error("failed to encode response", "correlation_id", correlationID, "err", err)
		status = http.StatusInternalServerError
		raw, _ = json.Marshal(errorResponse{Error: string(usecase.ErrorInternal), Message: msgInternal})
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"content-type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(raw),
	}
}

// headerValue looks up name case-insensitively; API Gateway preserves the
// client's header casing.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
