package version

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"formbuilder/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc versionService
}

type versionService interface {
	NextVersionNumber(ctx context.Context, formSlug string) (int, error)
	CreateVersion(ctx context.Context, in CreateVersionInput) (*Version, error)
	Draft(ctx context.Context, formSlug string) (*FormDoc, error)
	Publish(ctx context.Context, formSlug string, number int) (*Version, error)
	LatestPublished(ctx context.Context, formSlug string) (*Version, error)
	ListVersions(ctx context.Context, formSlug string) ([]Version, error)
	GetVersion(ctx context.Context, formSlug string, number int) (*Version, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createVersionRequest struct {
	Notes     string `json:"notes"`
	CreatedBy string `json:"created_by"`
	Publish   bool   `json:"publish"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	var req createVersionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
			return
		}
	}

	item, err := h.svc.CreateVersion(r.Context(), CreateVersionInput{
		FormSlug:  chi.URLParam(r, "slug"),
		Notes:     req.Notes,
		CreatedBy: req.CreatedBy,
		Publish:   req.Publish,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListVersions(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid version number"})
		return
	}

	item, err := h.svc.GetVersion(r.Context(), chi.URLParam(r, "slug"), number)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid version number"})
		return
	}

	item, err := h.svc.Publish(r.Context(), chi.URLParam(r, "slug"), number)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) LatestPublished(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.LatestPublished(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) NextVersionNumber(w http.ResponseWriter, r *http.Request) {
	next, err := h.svc.NextVersionNumber(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]int{"next_version_number": next}})
}

func (h *Handler) Draft(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Draft(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: doc})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrFormNotFound),
		errors.Is(err, ErrVersionNotFound),
		errors.Is(err, ErrNoPublishedVersion):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrVersionConflict):
		writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
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
