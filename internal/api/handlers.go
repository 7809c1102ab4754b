// Package api exposes HTTP handlers for the activity log service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"example.com/activitylog/internal/domain"
)

// Ingress accepts new activities for asynchronous recording.
type Ingress interface {
	Accept(ctx context.Context, input domain.CreateActivityInput) (domain.ActivityEvent, error)
}

// Queries serves recorded activities.
type Queries interface {
	List(ctx context.Context, params domain.QueryParams) (domain.ListResult, error)
	Get(ctx context.Context, eventID string) (domain.ActivityView, error)
	Stats(ctx context.Context, userID string) ([]domain.ActivityStat, error)
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	ingress Ingress
	queries Queries
	logger  *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(ingress Ingress, queries Queries, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ingress: ingress, queries: queries, logger: logger}
}

// RegisterRoutes wires the activity endpoints. The create route goes through
// idempotency when it is non-nil.
func (h *Handler) RegisterRoutes(r chi.Router, idempotency func(http.Handler) http.Handler) {
	r.Route("/v1/activities", func(r chi.Router) {
		if idempotency != nil {
			r.With(idempotency).Post("/", h.createActivity)
		} else {
			r.Post("/", h.createActivity)
		}
		r.Get("/", h.listActivities)
		r.Get("/stats", h.activityStats)
		r.Get("/{eventId}", h.getActivity)
	})
}

// CreateActivityRequest is the payload for POST /v1/activities.
type CreateActivityRequest struct {
	UserID       string          `json:"userId"`
	ActivityType string          `json:"activityType"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

func (r CreateActivityRequest) metadata() (map[string]any, error) {
	raw := bytes.TrimSpace(r.Metadata)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}
	var out map[string]any
	if raw[0] != '{' || json.Unmarshal(raw, &out) != nil {
		return nil, domain.NewValidationError("metadata", "must be a JSON object")
	}
	return out, nil
}

// CreateActivityResponse describes the 202 body for create.
type CreateActivityResponse struct {
	EventID      string              `json:"eventId"`
	UserID       string              `json:"userId"`
	ActivityType domain.ActivityType `json:"activityType"`
	OccurredAt   time.Time           `json:"occurredAt"`
}

// StatsResponse wraps aggregated counts.
type StatsResponse struct {
	Items []domain.ActivityStat `json:"items"`
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateActivityRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body", "")
		return
	}
	if _, err := dec.Token(); err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid_request", "unexpected data after body", "")
		return
	}

	metadata, err := req.metadata()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	event, err := h.ingress.Accept(r.Context(), domain.CreateActivityInput{
		UserID:       req.UserID,
		ActivityType: req.ActivityType,
		Metadata:     metadata,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, CreateActivityResponse{
		EventID:      event.EventID,
		UserID:       event.UserID,
		ActivityType: event.ActivityType,
		OccurredAt:   event.OccurredAt,
	})
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := intParam(query.Get("page"), "page")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	limit, err := intParam(query.Get("limit"), "limit")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	result, err := h.queries.List(r.Context(), domain.QueryParams{
		UserID:       query.Get("userId"),
		ActivityType: query.Get("activityType"),
		From:         query.Get("from"),
		To:           query.Get("to"),
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	view, err := h.queries.Get(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) activityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queries.Stats(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Items: stats})
}

func intParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(field, "must be an integer")
	}
	return value, nil
}

// writeDomainError maps the domain error kinds onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *domain.ValidationError
		transportErr  *domain.TransportError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_failed", validationErr.Error(), validationErr.Field)
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found", "")
	case errors.As(err, &transportErr):
		h.logger.ErrorContext(r.Context(), "publish failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "publish_failed", "activity could not be queued", "")
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error", "")
	}
}

type errorResponse struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
	Field  string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail, field string) {
	writeJSON(w, status, errorResponse{Type: code, Detail: detail, Field: field})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
