package version

import (
	"encoding/json"
	"strings"
	"testing"

	"formbuilder/internal/form"
	"formbuilder/internal/question"
)

func strPtr(v string) *string { return &v }

func sampleTree() Tree {
	return Tree{
		Form: form.Form{ID: "f1", Name: "Customer Intake", Slug: "customer-intake"},
		Pages: []form.Page{
			{ID: "p2", FormID: "f1", Name: "Details", Slug: "details", Order: 2,
				ConditionalLogic:  json.RawMessage(`{}`),
				DisabledCondition: json.RawMessage(`{}`),
				Config:            json.RawMessage(`{}`)},
			{ID: "p1", FormID: "f1", Name: "Page 1", Slug: "page-1", Order: 1,
				ConditionalLogic:  json.RawMessage(`{"show_if":{"q":"x"}}`),
				DisabledCondition: json.RawMessage(`{}`),
				Config:            json.RawMessage(`{}`)},
		},
		QuestionsByPage: map[string][]question.Question{
			"p1": {
				{ID: "q2", TypeSlug: "email", Name: "Email", Slug: "email", Order: 2,
					Config: json.RawMessage(`{}`), Validation: json.RawMessage(`{"email":true}`),
					ConditionalLogic: json.RawMessage(`{}`), DisabledCondition: json.RawMessage(`{}`)},
				{ID: "q1", TypeSlug: "short-text", Name: "Full Name", Slug: "full-name", Order: 1, Required: true,
					Config: json.RawMessage(`{}`), Validation: json.RawMessage(`{}`),
					ConditionalLogic: json.RawMessage(`{}`), DisabledCondition: json.RawMessage(`{}`)},
			},
			"p2": {
				{ID: "q3", TypeSlug: "long-text", Name: "Notes", Slug: "notes", Order: 1,
					Config: json.RawMessage(`{}`), Validation: json.RawMessage(`{}`),
					ConditionalLogic: json.RawMessage(`{}`), DisabledCondition: json.RawMessage(`{}`)},
			},
		},
		GroupsByPage: map[string][]question.QuestionGroup{
			"p1": {
				{ID: "g1", PageID: "p1", Name: "Address", Slug: "address-a1b2c3d4",
					DisplayType: "address", Order: 1, Config: json.RawMessage(`{"layout":"stacked"}`)},
			},
		},
		QuestionsByGroup: map[string][]question.Question{
			"g1": {
				{ID: "q5", TypeSlug: "short-text", Name: "City", Slug: "address-a1b2c3d4_city", Order: 2,
					Config: json.RawMessage(`{}`), Validation: json.RawMessage(`{}`),
					ConditionalLogic: json.RawMessage(`{}`), DisabledCondition: json.RawMessage(`{}`)},
				{ID: "q4", TypeSlug: "short-text", Name: "Street Address", Slug: "address-a1b2c3d4_street", Order: 1,
					Config: json.RawMessage(`{}`), Validation: json.RawMessage(`{}`),
					ConditionalLogic: json.RawMessage(`{}`), DisabledCondition: json.RawMessage(`{}`)},
			},
		},
		TemplateSlugByGroup: map[string]*string{"g1": strPtr("address")},
	}
}

func TestBuildDocumentOrdersEveryLevel(t *testing.T) {
	doc := BuildDocument(sampleTree())

	if doc.FormID != "f1" || doc.Slug != "customer-intake" {
		t.Fatalf("unexpected form header: %+v", doc)
	}
	if len(doc.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(doc.Pages))
	}
	if doc.Pages[0].ID != "p1" || doc.Pages[1].ID != "p2" {
		t.Fatalf("pages not in ascending order: %s, %s", doc.Pages[0].ID, doc.Pages[1].ID)
	}

	p1 := doc.Pages[0]
	if len(p1.Questions) != 2 || p1.Questions[0].ID != "q1" || p1.Questions[1].ID != "q2" {
		t.Fatalf("page questions not in ascending order: %+v", p1.Questions)
	}
	if len(p1.QuestionGroups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(p1.QuestionGroups))
	}
	g := p1.QuestionGroups[0]
	if g.Questions[0].ID != "q4" || g.Questions[1].ID != "q5" {
		t.Fatalf("group questions not in ascending order: %+v", g.Questions)
	}
	if g.TemplateSlug == nil || *g.TemplateSlug != "address" {
		t.Fatalf("expected template_slug address, got %+v", g.TemplateSlug)
	}
}

func TestBuildDocumentOrdersAreScopeLocal(t *testing.T) {
	doc := BuildDocument(sampleTree())

	// Orders [1,2] on page 1 and [1] on page 2 are different scopes and
	// both must survive verbatim.
	if doc.Pages[0].Questions[0].Order != 1 || doc.Pages[0].Questions[1].Order != 2 {
		t.Fatalf("page 1 question orders mangled: %+v", doc.Pages[0].Questions)
	}
	if doc.Pages[1].Questions[0].Order != 1 {
		t.Fatalf("page 2 question order mangled: %+v", doc.Pages[1].Questions)
	}
}

func TestBuildDocumentTypeIsSlugString(t *testing.T) {
	doc := BuildDocument(sampleTree())

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"type":"short-text"`) {
		t.Fatalf("question type must serialize as the type slug string:\n%s", raw)
	}
	if strings.Contains(string(raw), `"max_length_default"`) {
		t.Fatalf("type rendering config must not be embedded in the document")
	}
}

func TestBuildDocumentEmptyFormHasEmptyPagesArray(t *testing.T) {
	doc := BuildDocument(Tree{Form: form.Form{ID: "f1", Name: "Empty", Slug: "empty"}})

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"pages":[]`) {
		t.Fatalf("expected empty pages array, got:\n%s", raw)
	}
}

func TestBuildDocumentEmptyPageCollections(t *testing.T) {
	tree := Tree{
		Form:  form.Form{ID: "f1", Name: "One Page", Slug: "one-page"},
		Pages: []form.Page{{ID: "p1", FormID: "f1", Name: "Page 1", Slug: "page-1", Order: 1}},
	}
	raw, err := json.Marshal(BuildDocument(tree))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"questions":[]`) || !strings.Contains(string(raw), `"question_groups":[]`) {
		t.Fatalf("expected empty collections on page, got:\n%s", raw)
	}
}

func TestBuildDocumentDoesNotMutateInput(t *testing.T) {
	tree := sampleTree()
	_ = BuildDocument(tree)

	// Input slices stay in their original, unsorted order.
	if tree.Pages[0].ID != "p2" {
		t.Fatalf("input pages were reordered: %+v", tree.Pages)
	}
	if tree.QuestionsByPage["p1"][0].ID != "q2" {
		t.Fatalf("input questions were reordered")
	}
}
