package question

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
	svc questionService
}

type questionService interface {
	CreateQuestionType(ctx context.Context, in CreateQuestionTypeInput) (*QuestionType, error)
	ListQuestionTypes(ctx context.Context) ([]QuestionType, error)
	GetQuestionType(ctx context.Context, slug string) (*QuestionType, error)
	CreateTemplate(ctx context.Context, in CreateTemplateInput) (*GroupTemplate, error)
	ListTemplates(ctx context.Context) ([]GroupTemplate, error)
	GetTemplate(ctx context.Context, slug string) (*GroupTemplate, error)
	CreateQuestion(ctx context.Context, formSlug string, in CreateQuestionInput) (*Question, error)
	ListQuestions(ctx context.Context, parent ParentRef) ([]Question, error)
	UpdateQuestion(ctx context.Context, in UpdateQuestionInput) (*Question, error)
	DeleteQuestion(ctx context.Context, id string) error
	ReorderQuestions(ctx context.Context, formSlug string, parent ParentRef, orderedIDs []string) ([]Question, error)
	CreateGroup(ctx context.Context, in CreateGroupInput) (*QuestionGroup, error)
	ListGroups(ctx context.Context, formSlug, pageID string) ([]QuestionGroup, error)
	UpdateGroup(ctx context.Context, in UpdateGroupInput) (*QuestionGroup, error)
	DeleteGroup(ctx context.Context, formSlug, groupID string) error
	ReorderGroups(ctx context.Context, formSlug, pageID string, orderedIDs []string) ([]QuestionGroup, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createQuestionTypeRequest struct {
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Config      json.RawMessage `json:"config"`
}

type createTemplateRequest struct {
	Name             string          `json:"name"`
	Slug             string          `json:"slug"`
	Description      string          `json:"description"`
	DisplayType      string          `json:"display_type"`
	Config           json.RawMessage `json:"config"`
	QuestionTemplate json.RawMessage `json:"question_template"`
}

type createQuestionRequest struct {
	TypeSlug          string          `json:"type"`
	Name              string          `json:"name"`
	Slug              string          `json:"slug"`
	Text              string          `json:"text"`
	Subtext           string          `json:"subtext"`
	Required          bool            `json:"required"`
	Config            json.RawMessage `json:"config"`
	Validation        json.RawMessage `json:"validation"`
	ConditionalLogic  json.RawMessage `json:"conditional_logic"`
	DisabledCondition json.RawMessage `json:"disabled_condition"`
}

type updateQuestionRequest struct {
	TypeSlug          *string         `json:"type"`
	Name              *string         `json:"name"`
	Slug              *string         `json:"slug"`
	Text              *string         `json:"text"`
	Subtext           *string         `json:"subtext"`
	Required          *bool           `json:"required"`
	Config            json.RawMessage `json:"config"`
	Validation        json.RawMessage `json:"validation"`
	ConditionalLogic  json.RawMessage `json:"conditional_logic"`
	DisabledCondition json.RawMessage `json:"disabled_condition"`
}

type createGroupRequest struct {
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	DisplayType  string          `json:"display_type"`
	Config       json.RawMessage `json:"config"`
	TemplateSlug string          `json:"template_slug"`
}

type updateGroupRequest struct {
	Name        *string         `json:"name"`
	Slug        *string         `json:"slug"`
	DisplayType *string         `json:"display_type"`
	Config      json.RawMessage `json:"config"`
}

type reorderRequest struct {
	OrderedIDs []string `json:"ordered_ids"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateQuestionType(w http.ResponseWriter, r *http.Request) {
	var req createQuestionTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.CreateQuestionType(r.Context(), CreateQuestionTypeInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Config:      req.Config,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) ListQuestionTypes(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListQuestionTypes(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) GetQuestionType(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.GetQuestionType(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.CreateTemplate(r.Context(), CreateTemplateInput{
		Name:             req.Name,
		Slug:             req.Slug,
		Description:      req.Description,
		DisplayType:      req.DisplayType,
		Config:           req.Config,
		QuestionTemplate: req.QuestionTemplate,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListTemplates(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.GetTemplate(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) CreatePageQuestion(w http.ResponseWriter, r *http.Request) {
	h.createQuestion(w, r, ParentRef{PageID: chi.URLParam(r, "pageID")})
}

func (h *Handler) CreateGroupQuestion(w http.ResponseWriter, r *http.Request) {
	h.createQuestion(w, r, ParentRef{GroupID: chi.URLParam(r, "groupID")})
}

func (h *Handler) createQuestion(w http.ResponseWriter, r *http.Request, parent ParentRef) {
	var req createQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.CreateQuestion(r.Context(), chi.URLParam(r, "slug"), CreateQuestionInput{
		Parent:            parent,
		TypeSlug:          req.TypeSlug,
		Name:              req.Name,
		Slug:              req.Slug,
		Text:              req.Text,
		Subtext:           req.Subtext,
		Required:          req.Required,
		Config:            req.Config,
		Validation:        req.Validation,
		ConditionalLogic:  req.ConditionalLogic,
		DisabledCondition: req.DisabledCondition,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) ListPageQuestions(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListQuestions(r.Context(), ParentRef{PageID: chi.URLParam(r, "pageID")})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) ListGroupQuestions(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListQuestions(r.Context(), ParentRef{GroupID: chi.URLParam(r, "groupID")})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var req updateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.UpdateQuestion(r.Context(), UpdateQuestionInput{
		ID:                chi.URLParam(r, "id"),
		TypeSlug:          req.TypeSlug,
		Name:              req.Name,
		Slug:              req.Slug,
		Text:              req.Text,
		Subtext:           req.Subtext,
		Required:          req.Required,
		Config:            req.Config,
		Validation:        req.Validation,
		ConditionalLogic:  req.ConditionalLogic,
		DisabledCondition: req.DisabledCondition,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteQuestion(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true})
}

func (h *Handler) ReorderPageQuestions(w http.ResponseWriter, r *http.Request) {
	h.reorderQuestions(w, r, ParentRef{PageID: chi.URLParam(r, "pageID")})
}

func (h *Handler) ReorderGroupQuestions(w http.ResponseWriter, r *http.Request) {
	h.reorderQuestions(w, r, ParentRef{GroupID: chi.URLParam(r, "groupID")})
}

func (h *Handler) reorderQuestions(w http.ResponseWriter, r *http.Request, parent ParentRef) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	items, err := h.svc.ReorderQuestions(r.Context(), chi.URLParam(r, "slug"), parent, req.OrderedIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.CreateGroup(r.Context(), CreateGroupInput{
		FormSlug:     chi.URLParam(r, "slug"),
		PageID:       chi.URLParam(r, "pageID"),
		Name:         req.Name,
		Slug:         req.Slug,
		DisplayType:  req.DisplayType,
		Config:       req.Config,
		TemplateSlug: req.TemplateSlug,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListGroups(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "pageID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req updateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	item, err := h.svc.UpdateGroup(r.Context(), UpdateGroupInput{
		FormSlug:    chi.URLParam(r, "slug"),
		PageID:      chi.URLParam(r, "pageID"),
		GroupID:     chi.URLParam(r, "groupID"),
		Name:        req.Name,
		Slug:        req.Slug,
		DisplayType: req.DisplayType,
		Config:      req.Config,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteGroup(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "groupID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true})
}

func (h *Handler) ReorderGroups(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	items, err := h.svc.ReorderGroups(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "pageID"), req.OrderedIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidParent):
		writeJSON(w, r, http.StatusUnprocessableEntity, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrTypeNotFound),
		errors.Is(err, ErrPageNotFound),
		errors.Is(err, ErrGroupNotFound),
		errors.Is(err, ErrQuestionNotFound),
		errors.Is(err, ErrTemplateNotFound):
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
