package submission

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"formbuilder/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc submissionService
}

type submissionService interface {
	Create(ctx context.Context, in CreateSubmissionInput) (*Submission, error)
	Get(ctx context.Context, id string) (*Submission, error)
	Update(ctx context.Context, in UpdateSubmissionInput) (*Submission, error)
	Complete(ctx context.Context, id string) (*Submission, error)
	List(ctx context.Context, in ListSubmissionsInput) ([]Submission, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createSubmissionRequest struct {
	FormSlug      string          `json:"form_slug"`
	UserSessionID string          `json:"user_session_id"`
	UserEmail     string          `json:"user_email"`
	Answers       json.RawMessage `json:"answers"`
	IsComplete    bool            `json:"is_complete"`
}

type updateSubmissionRequest struct {
	Answers    json.RawMessage `json:"answers"`
	IsComplete *bool           `json:"is_complete"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// clientIP prefers the first X-Forwarded-For entry, falling back to
// the connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.Create(r.Context(), CreateSubmissionInput{
		FormSlug:      req.FormSlug,
		UserSessionID: req.UserSessionID,
		UserEmail:     req.UserEmail,
		IPAddress:     clientIP(r),
		Answers:       req.Answers,
		IsComplete:    req.IsComplete,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.Update(r.Context(), UpdateSubmissionInput{
		ID:         chi.URLParam(r, "id"),
		Answers:    req.Answers,
		IsComplete: req.IsComplete,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), ListSubmissionsInput{
		FormSlug:      strings.TrimSpace(r.URL.Query().Get("form_slug")),
		UserSessionID: strings.TrimSpace(r.URL.Query().Get("user_session_id")),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrFormNotFound),
		errors.Is(err, ErrNoPublishedVersion),
		errors.Is(err, ErrSubmissionNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, strings.TrimSpace(payload.Error))
}
