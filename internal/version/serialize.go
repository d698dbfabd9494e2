package version

import (
	"encoding/json"
	"sort"

	"formbuilder/internal/form"
	"formbuilder/internal/question"
)

// The serialized form document is a durable contract: previously
// published versions are read by consumers against exactly this shape.

type QuestionDoc struct {
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	Name              string          `json:"name"`
	Slug              string          `json:"slug"`
	Text              string          `json:"text"`
	Subtext           string          `json:"subtext"`
	Required          bool            `json:"required"`
	Config            json.RawMessage `json:"config"`
	Validation        json.RawMessage `json:"validation"`
	ConditionalLogic  json.RawMessage `json:"conditional_logic"`
	DisabledCondition json.RawMessage `json:"disabled_condition"`
	Order             int             `json:"order"`
}

type GroupDoc struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	DisplayType  string          `json:"display_type"`
	Config       json.RawMessage `json:"config"`
	Order        int             `json:"order"`
	TemplateSlug *string         `json:"template_slug"`
	Questions    []QuestionDoc   `json:"questions"`
}

type PageDoc struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Slug              string          `json:"slug"`
	Order             int             `json:"order"`
	ConditionalLogic  json.RawMessage `json:"conditional_logic"`
	DisabledCondition json.RawMessage `json:"disabled_condition"`
	Config            json.RawMessage `json:"config"`
	Questions         []QuestionDoc   `json:"questions"`
	QuestionGroups    []GroupDoc      `json:"question_groups"`
}

type FormDoc struct {
	FormID string    `json:"form_id"`
	Name   string    `json:"name"`
	Slug   string    `json:"slug"`
	Pages  []PageDoc `json:"pages"`
}

// Tree is the in-memory structural state of one form at snapshot time.
type Tree struct {
	Form                form.Form
	Pages               []form.Page
	QuestionsByPage     map[string][]question.Question
	GroupsByPage        map[string][]question.QuestionGroup
	QuestionsByGroup    map[string][]question.Question
	TemplateSlugByGroup map[string]*string
}

// BuildDocument walks the tree in ascending order at every level and
// emits the serialized form document. The question type is recorded as
// its slug only; type rendering config is resolved against the live
// registry by the consumer, so type edits never rewrite old snapshots.
func BuildDocument(t Tree) FormDoc {
	doc := FormDoc{
		FormID: t.Form.ID,
		Name:   t.Form.Name,
		Slug:   t.Form.Slug,
		Pages:  make([]PageDoc, 0, len(t.Pages)),
	}

	pages := append([]form.Page(nil), t.Pages...)
	sort.Slice(pages, func(i, j int) bool { return pages[i].Order < pages[j].Order })

	for _, p := range pages {
		pd := PageDoc{
			ID:                p.ID,
			Name:              p.Name,
			Slug:              p.Slug,
			Order:             p.Order,
			ConditionalLogic:  p.ConditionalLogic,
			DisabledCondition: p.DisabledCondition,
			Config:            p.Config,
			Questions:         buildQuestionDocs(t.QuestionsByPage[p.ID]),
			QuestionGroups:    make([]GroupDoc, 0, len(t.GroupsByPage[p.ID])),
		}

		groups := append([]question.QuestionGroup(nil), t.GroupsByPage[p.ID]...)
		sort.Slice(groups, func(i, j int) bool { return groups[i].Order < groups[j].Order })
		for _, g := range groups {
			pd.QuestionGroups = append(pd.QuestionGroups, GroupDoc{
				ID:           g.ID,
				Name:         g.Name,
				Slug:         g.Slug,
				DisplayType:  g.DisplayType,
				Config:       g.Config,
				Order:        g.Order,
				TemplateSlug: t.TemplateSlugByGroup[g.ID],
				Questions:    buildQuestionDocs(t.QuestionsByGroup[g.ID]),
			})
		}

		doc.Pages = append(doc.Pages, pd)
	}
	return doc
}

func buildQuestionDocs(items []question.Question) []QuestionDoc {
	out := make([]QuestionDoc, 0, len(items))
	sorted := append([]question.Question(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for _, q := range sorted {
		out = append(out, QuestionDoc{
			ID:                q.ID,
			Type:              q.TypeSlug,
			Name:              q.Name,
			Slug:              q.Slug,
			Text:              q.Text,
			Subtext:           q.Subtext,
			Required:          q.Required,
			Config:            q.Config,
			Validation:        q.Validation,
			ConditionalLogic:  q.ConditionalLogic,
			DisabledCondition: q.DisabledCondition,
			Order:             q.Order,
		})
	}
	return out
}
