package submission

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

type mockSubmissionService struct {
	createFn   func(ctx context.Context, in CreateSubmissionInput) (*Submission, error)
	getFn      func(ctx context.Context, id string) (*Submission, error)
	updateFn   func(ctx context.Context, in UpdateSubmissionInput) (*Submission, error)
	completeFn func(ctx context.Context, id string) (*Submission, error)
	listFn     func(ctx context.Context, in ListSubmissionsInput) ([]Submission, error)
}

func (m *mockSubmissionService) Create(ctx context.Context, in CreateSubmissionInput) (*Submission, error) {
	if m.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createFn(ctx, in)
}

func (m *mockSubmissionService) Get(ctx context.Context, id string) (*Submission, error) {
	if m.getFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getFn(ctx, id)
}

func (m *mockSubmissionService) Update(ctx context.Context, in UpdateSubmissionInput) (*Submission, error) {
	if m.updateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateFn(ctx, in)
}

func (m *mockSubmissionService) Complete(ctx context.Context, id string) (*Submission, error) {
	if m.completeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.completeFn(ctx, id)
}

func (m *mockSubmissionService) List(ctx context.Context, in ListSubmissionsInput) ([]Submission, error) {
	if m.listFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listFn(ctx, in)
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"forwarded single", "203.0.113.7", "10.0.0.1:9000", "203.0.113.7"},
		{"forwarded chain takes first", "203.0.113.7, 10.0.0.2, 10.0.0.3", "10.0.0.1:9000", "203.0.113.7"},
		{"forwarded with spaces", "  203.0.113.7 , 10.0.0.2", "10.0.0.1:9000", "203.0.113.7"},
		{"no header uses remote host", "", "192.0.2.4:51234", "192.0.2.4"},
		{"remote without port", "", "192.0.2.4", "192.0.2.4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := clientIP(req); got != tc.want {
				t.Errorf("clientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCreateSubmissionCapturesIP(t *testing.T) {
	h := &Handler{svc: &mockSubmissionService{
		createFn: func(ctx context.Context, in CreateSubmissionInput) (*Submission, error) {
			if in.IPAddress != "203.0.113.7" {
				t.Fatalf("unexpected ip: %q", in.IPAddress)
			}
			if in.FormSlug != "customer-intake" {
				t.Fatalf("unexpected form slug: %q", in.FormSlug)
			}
			ip := in.IPAddress
			return &Submission{ID: "s1", FormSlug: in.FormSlug, IPAddress: &ip, Answers: json.RawMessage(`{}`)}, nil
		},
	}}

	payload := []byte(`{"form_slug":"customer-intake","user_session_id":"sess-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", bytes.NewReader(payload))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
}

func TestCreateSubmissionNoPublishedVersionIs404(t *testing.T) {
	h := &Handler{svc: &mockSubmissionService{
		createFn: func(ctx context.Context, in CreateSubmissionInput) (*Submission, error) {
			return nil, ErrNoPublishedVersion
		},
	}}

	payload := []byte(`{"form_slug":"customer-intake"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUpdateSubmissionForwardsCompletionFlag(t *testing.T) {
	h := &Handler{svc: &mockSubmissionService{
		updateFn: func(ctx context.Context, in UpdateSubmissionInput) (*Submission, error) {
			if in.ID != "s1" {
				t.Fatalf("unexpected id: %q", in.ID)
			}
			if in.IsComplete == nil || !*in.IsComplete {
				t.Fatalf("expected is_complete=true patch, got %+v", in.IsComplete)
			}
			return &Submission{ID: in.ID, IsComplete: true, Answers: json.RawMessage(`{"a":1}`)}, nil
		},
	}}

	payload := []byte(`{"answers":{"a":1},"is_complete":true}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/submissions/s1", bytes.NewReader(payload))
	req = withParam(req, "id", "s1")
	w := httptest.NewRecorder()

	h.Update(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestListSubmissionsForwardsFilters(t *testing.T) {
	h := &Handler{svc: &mockSubmissionService{
		listFn: func(ctx context.Context, in ListSubmissionsInput) ([]Submission, error) {
			if in.FormSlug != "customer-intake" || in.UserSessionID != "sess-1" {
				t.Fatalf("unexpected filters: %+v", in)
			}
			return []Submission{}, nil
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions?form_slug=customer-intake&user_session_id=sess-1", nil)
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
