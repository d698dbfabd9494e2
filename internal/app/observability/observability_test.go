package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizedPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"/api/v1/forms", "/api/v1/forms"},
		{"/api/v1/forms/customer-intake", "/api/v1/forms/{slug}"},
		{"/api/v1/forms/customer-intake/versions", "/api/v1/forms/{slug}/versions"},
		{"/api/v1/versions/3f2504e0-4f89-41d3-9a0c-0305e82c3301", "/api/v1/versions/{id}"},
		{"/api/v1/versions/3f2504e0-4f89-41d3-9a0c-0305e82c3301/publish", "/api/v1/versions/{id}/publish"},
		{"/api/v1/submissions/42", "/api/v1/submissions/{id}"},
		{"", "/"},
	}
	for _, tc := range cases {
		if got := normalizedPath(tc.in); got != tc.want {
			t.Errorf("normalizedPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCollectorMiddlewareAndMetrics(t *testing.T) {
	c := NewCollector(nil)

	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/forms", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.MetricsHandler(rr, req)

	body := rr.Body.String()
	if !strings.Contains(body, `formbuilder_http_requests_total{method="POST",path="/api/v1/forms",status="201"} 3`) {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
	if !strings.Contains(body, "formbuilder_uptime_seconds") {
		t.Errorf("metrics output missing uptime gauge")
	}
	if strings.Contains(body, "formbuilder_db_open_connections") {
		t.Errorf("db gauges should be omitted without a database")
	}
}
