package form

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"formbuilder/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc formService
}

type formService interface {
	CreateForm(ctx context.Context, in CreateFormInput) (*Form, error)
	ListForms(ctx context.Context) ([]Form, error)
	GetForm(ctx context.Context, slug string) (*Form, error)
	UpdateForm(ctx context.Context, in UpdateFormInput) (*Form, error)
	DeleteForm(ctx context.Context, slug string) error
	CreatePage(ctx context.Context, in CreatePageInput) (*Page, error)
	ListPages(ctx context.Context, formSlug string) ([]Page, error)
	UpdatePage(ctx context.Context, in UpdatePageInput) (*Page, error)
	DeletePage(ctx context.Context, formSlug, pageID string) error
	ReorderPages(ctx context.Context, formSlug string, orderedIDs []string) ([]Page, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createFormRequest struct {
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	SkipDefaultPage bool   `json:"skip_default_page"`
}

type updateFormRequest struct {
	Name *string `json:"name"`
	Slug *string `json:"slug"`
}

type createPageRequest struct {
	Name              string          `json:"name"`
	Slug              string          `json:"slug"`
	ConditionalLogic  json.RawMessage `json:"conditional_logic"`
	DisabledCondition json.RawMessage `json:"disabled_condition"`
	Config            json.RawMessage `json:"config"`
}

type updatePageRequest struct {
	Name              *string         `json:"name"`
	Slug              *string         `json:"slug"`
	ConditionalLogic  json.RawMessage `json:"conditional_logic"`
	DisabledCondition json.RawMessage `json:"disabled_condition"`
	Config            json.RawMessage `json:"config"`
}

type reorderRequest struct {
	OrderedIDs []string `json:"ordered_ids"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateForm(w http.ResponseWriter, r *http.Request) {
	var req createFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.CreateForm(r.Context(), CreateFormInput{
		Name:            req.Name,
		Slug:            req.Slug,
		SkipDefaultPage: req.SkipDefaultPage,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) ListForms(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListForms(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.GetForm(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	var req updateFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.UpdateForm(r.Context(), UpdateFormInput{
		Slug:    chi.URLParam(r, "slug"),
		Name:    req.Name,
		NewSlug: req.Slug,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) DeleteForm(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteForm(r.Context(), chi.URLParam(r, "slug")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true})
}

func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req createPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.CreatePage(r.Context(), CreatePageInput{
		FormSlug:          chi.URLParam(r, "slug"),
		Name:              req.Name,
		Slug:              req.Slug,
		ConditionalLogic:  req.ConditionalLogic,
		DisabledCondition: req.DisabledCondition,
		Config:            req.Config,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListPages(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	var req updatePageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.UpdatePage(r.Context(), UpdatePageInput{
		FormSlug:          chi.URLParam(r, "slug"),
		PageID:            chi.URLParam(r, "pageID"),
		Name:              req.Name,
		Slug:              req.Slug,
		ConditionalLogic:  req.ConditionalLogic,
		DisabledCondition: req.DisabledCondition,
		Config:            req.Config,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) DeletePage(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePage(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "pageID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true})
}

func (h *Handler) ReorderPages(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	items, err := h.svc.ReorderPages(r.Context(), chi.URLParam(r, "slug"), req.OrderedIDs)
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
	case errors.Is(err, ErrFormNotFound), errors.Is(err, ErrPageNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrSlugTaken):
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
