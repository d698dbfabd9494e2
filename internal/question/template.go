package question

import (
	"encoding/json"
	"fmt"
	"strings"

	"formbuilder/internal/form"
)

// Blueprint is one entry of a template's question_template array.
type Blueprint struct {
	TypeSlug   string          `json:"type_slug"`
	Name       string          `json:"name"`
	SlugSuffix string          `json:"slug_suffix"`
	Text       string          `json:"text"`
	Subtext    string          `json:"subtext"`
	Required   bool            `json:"required"`
	Config     json.RawMessage `json:"config"`
	Validation json.RawMessage `json:"validation"`
}

func parseBlueprints(raw json.RawMessage) ([]Blueprint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []Blueprint
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: question_template must be a JSON array: %v", ErrInvalidInput, err)
	}
	for i := range items {
		bp := &items[i]
		bp.TypeSlug = strings.TrimSpace(bp.TypeSlug)
		bp.Name = strings.TrimSpace(bp.Name)
		bp.SlugSuffix = strings.TrimSpace(bp.SlugSuffix)
		if bp.TypeSlug == "" {
			return nil, fmt.Errorf("%w: blueprint %d is missing type_slug", ErrInvalidInput, i)
		}
		if bp.Name == "" {
			return nil, fmt.Errorf("%w: blueprint %d is missing name", ErrInvalidInput, i)
		}
		if !form.ValidSlug(bp.SlugSuffix) {
			return nil, fmt.Errorf("%w: blueprint %d has invalid slug_suffix %q", ErrInvalidInput, i, bp.SlugSuffix)
		}
	}
	return items, nil
}
