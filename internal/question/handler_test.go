package question

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type mockQuestionService struct {
	createTypeFn       func(ctx context.Context, in CreateQuestionTypeInput) (*QuestionType, error)
	listTypesFn        func(ctx context.Context) ([]QuestionType, error)
	getTypeFn          func(ctx context.Context, slug string) (*QuestionType, error)
	createTemplateFn   func(ctx context.Context, in CreateTemplateInput) (*GroupTemplate, error)
	listTemplatesFn    func(ctx context.Context) ([]GroupTemplate, error)
	getTemplateFn      func(ctx context.Context, slug string) (*GroupTemplate, error)
	createQuestionFn   func(ctx context.Context, formSlug string, in CreateQuestionInput) (*Question, error)
	listQuestionsFn    func(ctx context.Context, parent ParentRef) ([]Question, error)
	updateQuestionFn   func(ctx context.Context, in UpdateQuestionInput) (*Question, error)
	deleteQuestionFn   func(ctx context.Context, id string) error
	reorderQuestionsFn func(ctx context.Context, formSlug string, parent ParentRef, orderedIDs []string) ([]Question, error)
	createGroupFn      func(ctx context.Context, in CreateGroupInput) (*QuestionGroup, error)
	listGroupsFn       func(ctx context.Context, formSlug, pageID string) ([]QuestionGroup, error)
	updateGroupFn      func(ctx context.Context, in UpdateGroupInput) (*QuestionGroup, error)
	deleteGroupFn      func(ctx context.Context, formSlug, groupID string) error
	reorderGroupsFn    func(ctx context.Context, formSlug, pageID string, orderedIDs []string) ([]QuestionGroup, error)
}

func (m *mockQuestionService) CreateQuestionType(ctx context.Context, in CreateQuestionTypeInput) (*QuestionType, error) {
	if m.createTypeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createTypeFn(ctx, in)
}

func (m *mockQuestionService) ListQuestionTypes(ctx context.Context) ([]QuestionType, error) {
	if m.listTypesFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listTypesFn(ctx)
}

func (m *mockQuestionService) GetQuestionType(ctx context.Context, slug string) (*QuestionType, error) {
	if m.getTypeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getTypeFn(ctx, slug)
}

func (m *mockQuestionService) CreateTemplate(ctx context.Context, in CreateTemplateInput) (*GroupTemplate, error) {
	if m.createTemplateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createTemplateFn(ctx, in)
}

func (m *mockQuestionService) ListTemplates(ctx context.Context) ([]GroupTemplate, error) {
	if m.listTemplatesFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listTemplatesFn(ctx)
}

func (m *mockQuestionService) GetTemplate(ctx context.Context, slug string) (*GroupTemplate, error) {
	if m.getTemplateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getTemplateFn(ctx, slug)
}

func (m *mockQuestionService) CreateQuestion(ctx context.Context, formSlug string, in CreateQuestionInput) (*Question, error) {
	if m.createQuestionFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createQuestionFn(ctx, formSlug, in)
}

func (m *mockQuestionService) ListQuestions(ctx context.Context, parent ParentRef) ([]Question, error) {
	if m.listQuestionsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listQuestionsFn(ctx, parent)
}

func (m *mockQuestionService) UpdateQuestion(ctx context.Context, in UpdateQuestionInput) (*Question, error) {
	if m.updateQuestionFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateQuestionFn(ctx, in)
}

func (m *mockQuestionService) DeleteQuestion(ctx context.Context, id string) error {
	if m.deleteQuestionFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteQuestionFn(ctx, id)
}

func (m *mockQuestionService) ReorderQuestions(ctx context.Context, formSlug string, parent ParentRef, orderedIDs []string) ([]Question, error) {
	if m.reorderQuestionsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.reorderQuestionsFn(ctx, formSlug, parent, orderedIDs)
}

func (m *mockQuestionService) CreateGroup(ctx context.Context, in CreateGroupInput) (*QuestionGroup, error) {
	if m.createGroupFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createGroupFn(ctx, in)
}

func (m *mockQuestionService) ListGroups(ctx context.Context, formSlug, pageID string) ([]QuestionGroup, error) {
	if m.listGroupsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listGroupsFn(ctx, formSlug, pageID)
}

func (m *mockQuestionService) UpdateGroup(ctx context.Context, in UpdateGroupInput) (*QuestionGroup, error) {
	if m.updateGroupFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateGroupFn(ctx, in)
}

func (m *mockQuestionService) DeleteGroup(ctx context.Context, formSlug, groupID string) error {
	if m.deleteGroupFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteGroupFn(ctx, formSlug, groupID)
}

func (m *mockQuestionService) ReorderGroups(ctx context.Context, formSlug, pageID string, orderedIDs []string) ([]QuestionGroup, error) {
	if m.reorderGroupsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.reorderGroupsFn(ctx, formSlug, pageID, orderedIDs)
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCreatePageQuestionSetsPageParent(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		createQuestionFn: func(ctx context.Context, formSlug string, in CreateQuestionInput) (*Question, error) {
			if formSlug != "customer-intake" {
				t.Fatalf("unexpected form slug: %q", formSlug)
			}
			if in.Parent.PageID != "p1" || in.Parent.GroupID != "" {
				t.Fatalf("unexpected parent: %+v", in.Parent)
			}
			if in.TypeSlug != "short-text" {
				t.Fatalf("unexpected type: %q", in.TypeSlug)
			}
			return &Question{ID: "q1", TypeSlug: in.TypeSlug, Name: in.Name, Order: 1}, nil
		},
	}}

	payload := []byte(`{"type":"short-text","name":"Full Name","text":"Your full name"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/forms/customer-intake/pages/p1/questions", bytes.NewReader(payload))
	req = withParam(req, "slug", "customer-intake")
	req = withParam(req, "pageID", "p1")
	w := httptest.NewRecorder()

	h.CreatePageQuestion(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	body := decodeMap(t, w)
	if body["ok"] != true {
		t.Fatalf("expected ok=true")
	}
}

func TestCreateGroupQuestionSetsGroupParent(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		createQuestionFn: func(ctx context.Context, formSlug string, in CreateQuestionInput) (*Question, error) {
			if in.Parent.GroupID != "g1" || in.Parent.PageID != "" {
				t.Fatalf("unexpected parent: %+v", in.Parent)
			}
			return &Question{ID: "q2", TypeSlug: in.TypeSlug, Order: 3}, nil
		},
	}}

	payload := []byte(`{"type":"email","name":"Email"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/forms/customer-intake/pages/p1/groups/g1/questions", bytes.NewReader(payload))
	req = withParam(req, "slug", "customer-intake")
	req = withParam(req, "groupID", "g1")
	w := httptest.NewRecorder()

	h.CreateGroupQuestion(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
}

func TestCreateQuestionInvalidParentMapsTo422(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		createQuestionFn: func(ctx context.Context, formSlug string, in CreateQuestionInput) (*Question, error) {
			return nil, ErrInvalidParent
		},
	}}

	payload := []byte(`{"type":"short-text","name":"Orphan"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/forms/customer-intake/pages/p1/questions", bytes.NewReader(payload))
	req = withParam(req, "slug", "customer-intake")
	req = withParam(req, "pageID", "p1")
	w := httptest.NewRecorder()

	h.CreatePageQuestion(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestCreateGroupForwardsTemplateSlug(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		createGroupFn: func(ctx context.Context, in CreateGroupInput) (*QuestionGroup, error) {
			if in.TemplateSlug != "address" {
				t.Fatalf("unexpected template slug: %q", in.TemplateSlug)
			}
			if in.PageID != "p1" {
				t.Fatalf("unexpected page id: %q", in.PageID)
			}
			return &QuestionGroup{ID: "g1", PageID: in.PageID, Slug: "address-a1b2c3d4", DisplayType: "address"}, nil
		},
	}}

	payload := []byte(`{"template_slug":"address"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/forms/customer-intake/pages/p1/groups", bytes.NewReader(payload))
	req = withParam(req, "slug", "customer-intake")
	req = withParam(req, "pageID", "p1")
	w := httptest.NewRecorder()

	h.CreateGroup(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
}

func TestGetQuestionTypeNotFound(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		getTypeFn: func(ctx context.Context, slug string) (*QuestionType, error) {
			return nil, ErrTypeNotFound
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/question-types/missing", nil)
	req = withParam(req, "slug", "missing")
	w := httptest.NewRecorder()

	h.GetQuestionType(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestReorderGroupQuestionsForwardsScope(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		reorderQuestionsFn: func(ctx context.Context, formSlug string, parent ParentRef, orderedIDs []string) ([]Question, error) {
			if parent.GroupID != "g1" {
				t.Fatalf("unexpected parent: %+v", parent)
			}
			if len(orderedIDs) != 2 {
				t.Fatalf("unexpected ids: %+v", orderedIDs)
			}
			return []Question{{ID: orderedIDs[0], Order: 1}, {ID: orderedIDs[1], Order: 2}}, nil
		},
	}}

	payload := []byte(`{"ordered_ids":["q2","q1"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/forms/customer-intake/pages/p1/groups/g1/questions/reorder", bytes.NewReader(payload))
	req = withParam(req, "slug", "customer-intake")
	req = withParam(req, "groupID", "g1")
	w := httptest.NewRecorder()

	h.ReorderGroupQuestions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
