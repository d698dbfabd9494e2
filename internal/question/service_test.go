package question

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParentRefValidate(t *testing.T) {
	cases := []struct {
		name    string
		parent  ParentRef
		wantErr bool
	}{
		{"page only", ParentRef{PageID: "p1"}, false},
		{"group only", ParentRef{GroupID: "g1"}, false},
		{"both parents", ParentRef{PageID: "p1", GroupID: "g1"}, true},
		{"no parent", ParentRef{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.parent.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidParent) {
					t.Fatalf("expected ErrInvalidParent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseBlueprints(t *testing.T) {
	raw := json.RawMessage(`[
		{"type_slug": "short-text", "name": "Street Address", "slug_suffix": "street", "text": "Street Address", "required": true},
		{"type_slug": "dropdown", "name": "Country", "slug_suffix": "country", "config": {"options": []}}
	]`)
	items, err := parseBlueprints(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 blueprints, got %d", len(items))
	}
	if items[0].SlugSuffix != "street" || !items[0].Required {
		t.Fatalf("unexpected first blueprint: %+v", items[0])
	}
	if items[1].TypeSlug != "dropdown" || items[1].Required {
		t.Fatalf("unexpected second blueprint: %+v", items[1])
	}
}

func TestParseBlueprintsRejectsBadEntries(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not an array", `{"type_slug": "text"}`},
		{"missing type", `[{"name": "X", "slug_suffix": "x"}]`},
		{"missing name", `[{"type_slug": "text", "slug_suffix": "x"}]`},
		{"bad suffix", `[{"type_slug": "text", "name": "X", "slug_suffix": "Bad Suffix"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseBlueprints(json.RawMessage(tc.raw)); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestParseBlueprintsEmpty(t *testing.T) {
	items, err := parseBlueprints(nil)
	if err != nil || items != nil {
		t.Fatalf("expected nil, nil for empty input, got %v, %v", items, err)
	}
	items, err = parseBlueprints(json.RawMessage(`[]`))
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty list, got %v, %v", items, err)
	}
}

func TestChildSlug(t *testing.T) {
	got := childSlug("address-a1b2c3d4", "postal_code")
	if got != "address-a1b2c3d4_postal_code" {
		t.Fatalf("childSlug = %q", got)
	}
	if strings.Count(got, "_") != 2 {
		t.Fatalf("expected suffix joined with underscore: %q", got)
	}
}
