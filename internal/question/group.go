package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"formbuilder/internal/db"
	"formbuilder/internal/form"

	"github.com/google/uuid"
)

type QuestionGroup struct {
	ID          string          `json:"id"`
	PageID      string          `json:"page_id"`
	TemplateID  *string         `json:"template_id,omitempty"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	DisplayType string          `json:"display_type"`
	Order       int             `json:"order"`
	Config      json.RawMessage `json:"config"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Questions   []Question      `json:"questions,omitempty"`
}

type GroupTemplate struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Slug             string          `json:"slug"`
	Description      string          `json:"description"`
	DisplayType      string          `json:"display_type"`
	Config           json.RawMessage `json:"config"`
	QuestionTemplate json.RawMessage `json:"question_template"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type CreateGroupInput struct {
	FormSlug     string
	PageID       string
	Name         string
	Slug         string
	DisplayType  string
	Config       json.RawMessage
	TemplateSlug string
}

type UpdateGroupInput struct {
	FormSlug    string
	PageID      string
	GroupID     string
	Name        *string
	Slug        *string
	DisplayType *string
	Config      json.RawMessage
}

type CreateTemplateInput struct {
	Name             string
	Slug             string
	Description      string
	DisplayType      string
	Config           json.RawMessage
	QuestionTemplate json.RawMessage
}

func scanGroup(row rowScanner, out *QuestionGroup) error {
	return row.Scan(
		&out.ID,
		&out.PageID,
		&out.TemplateID,
		&out.Name,
		&out.Slug,
		&out.DisplayType,
		&out.Order,
		&out.Config,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
}

const groupColumns = `
	g.id, g.page_id, g.template_id, g.name, g.slug, g.display_type,
	g."order", g.config, g.created_at, g.updated_at`

// CreateGroup creates a question group on a page. When TemplateSlug is
// set the group and its questions come from the template blueprint and
// any caller-supplied name, slug, display type or config is ignored.
func (s *Service) CreateGroup(ctx context.Context, in CreateGroupInput) (*QuestionGroup, error) {
	if in.PageID == "" {
		return nil, fmt.Errorf("%w: page id is required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockPage(ctx, tx, in.FormSlug, in.PageID); err != nil {
		return nil, err
	}

	var out *QuestionGroup
	if in.TemplateSlug != "" {
		out, err = instantiateTemplate(ctx, tx, in.PageID, in.TemplateSlug)
	} else {
		out, err = insertPlainGroup(ctx, tx, in)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func insertPlainGroup(ctx context.Context, tx *sql.Tx, in CreateGroupInput) (*QuestionGroup, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	slug, err := resolveSlug(in.Name, in.Slug)
	if err != nil {
		return nil, err
	}
	displayType := strings.TrimSpace(in.DisplayType)
	if displayType == "" {
		displayType = "custom"
	}
	return insertGroup(ctx, tx, groupRow{
		PageID:      in.PageID,
		Name:        in.Name,
		Slug:        slug,
		DisplayType: displayType,
		Config:      emptyObject(in.Config),
	})
}

type groupRow struct {
	PageID      string
	TemplateID  string
	Name        string
	Slug        string
	DisplayType string
	Config      json.RawMessage
}

func insertGroup(ctx context.Context, tx *sql.Tx, in groupRow) (*QuestionGroup, error) {
	var next int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX("order"), 0) + 1 FROM question_groups WHERE page_id = $1
	`, in.PageID).Scan(&next); err != nil {
		return nil, fmt.Errorf("next group order: %w", err)
	}

	var out QuestionGroup
	row := tx.QueryRowContext(ctx, `
		INSERT INTO question_groups (
			id, page_id, template_id, name, slug, display_type, "order", config, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, now(), now())
		RETURNING id, page_id, template_id, name, slug, display_type, "order", config, created_at, updated_at
	`, uuid.New().String(), in.PageID, nullableID(in.TemplateID),
		in.Name, in.Slug, in.DisplayType, next, []byte(in.Config))
	if err := scanGroup(row, &out); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: group slug %q", ErrSlugTaken, in.Slug)
		}
		return nil, fmt.Errorf("insert group: %w", err)
	}
	return &out, nil
}

// instantiateTemplate expands a template into a concrete group plus
// its questions. The group slug is the template slug with a random
// 8-hex suffix so repeated use on one page never collides; each child
// slug is the group slug joined to the blueprint suffix with an
// underscore, and child orders follow blueprint positions.
func instantiateTemplate(ctx context.Context, tx *sql.Tx, pageID, templateSlug string) (*QuestionGroup, error) {
	var tpl GroupTemplate
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, slug, description, display_type, config, question_template, is_active, created_at, updated_at
		FROM question_group_templates
		WHERE slug = $1 AND is_active = TRUE
	`, templateSlug).Scan(
		&tpl.ID, &tpl.Name, &tpl.Slug, &tpl.Description, &tpl.DisplayType,
		&tpl.Config, &tpl.QuestionTemplate, &tpl.IsActive, &tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, templateSlug)
		}
		return nil, fmt.Errorf("load template: %w", err)
	}

	blueprints, err := parseBlueprints(tpl.QuestionTemplate)
	if err != nil {
		return nil, err
	}

	group, err := insertGroup(ctx, tx, groupRow{
		PageID:      pageID,
		TemplateID:  tpl.ID,
		Name:        tpl.Name,
		Slug:        tpl.Slug + "-" + form.RandomSuffix(4),
		DisplayType: tpl.DisplayType,
		Config:      emptyObject(tpl.Config),
	})
	if err != nil {
		return nil, err
	}

	group.Questions = make([]Question, 0, len(blueprints))
	for i, bp := range blueprints {
		typeID, err := typeIDBySlug(ctx, tx, bp.TypeSlug)
		if err != nil {
			return nil, err
		}
		q, err := insertQuestionAt(ctx, tx, CreateQuestionInput{
			Parent:     ParentRef{GroupID: group.ID},
			TypeSlug:   bp.TypeSlug,
			Name:       bp.Name,
			Text:       bp.Text,
			Subtext:    bp.Subtext,
			Required:   bp.Required,
			Config:     bp.Config,
			Validation: bp.Validation,
		}, childSlug(group.Slug, bp.SlugSuffix), typeID, i+1)
		if err != nil {
			return nil, err
		}
		group.Questions = append(group.Questions, *q)
	}
	return group, nil
}

func childSlug(groupSlug, suffix string) string {
	return groupSlug + "_" + suffix
}

func (s *Service) ListGroups(ctx context.Context, formSlug, pageID string) ([]QuestionGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+groupColumns+`
		FROM question_groups g
		JOIN pages p ON p.id = g.page_id
		JOIN forms f ON f.id = p.form_id
		WHERE g.page_id = $1 AND f.is_active = TRUE AND ($2 = '' OR f.slug = $2)
		ORDER BY g."order" ASC
	`, pageID, formSlug)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	items := make([]QuestionGroup, 0)
	for rows.Next() {
		var out QuestionGroup
		if err := scanGroup(rows, &out); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		items = append(items, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return items, nil
}

func (s *Service) UpdateGroup(ctx context.Context, in UpdateGroupInput) (*QuestionGroup, error) {
	if in.GroupID == "" {
		return nil, fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	if in.Slug != nil && !form.ValidSlug(*in.Slug) {
		return nil, fmt.Errorf("%w: slug %q is not valid", ErrInvalidInput, *in.Slug)
	}

	var cfg any
	if len(in.Config) > 0 {
		cfg = []byte(in.Config)
	}

	var out QuestionGroup
	row := s.db.QueryRowContext(ctx, `
		UPDATE question_groups g
		SET name = COALESCE($3, g.name),
			slug = COALESCE($4, g.slug),
			display_type = COALESCE($5, g.display_type),
			config = COALESCE($6::jsonb, g.config),
			updated_at = now()
		FROM pages p, forms f
		WHERE g.id = $2 AND g.page_id = p.id AND p.form_id = f.id
			AND f.is_active = TRUE AND ($1 = '' OR f.slug = $1)
		RETURNING g.id, g.page_id, g.template_id, g.name, g.slug, g.display_type,
			g."order", g.config, g.created_at, g.updated_at
	`, in.FormSlug, in.GroupID, in.Name, in.Slug, in.DisplayType, cfg)
	if err := scanGroup(row, &out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: group slug", ErrSlugTaken)
		}
		return nil, fmt.Errorf("update group: %w", err)
	}
	return &out, nil
}

func (s *Service) DeleteGroup(ctx context.Context, formSlug, groupID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM question_groups g
		USING pages p, forms f
		WHERE g.id = $2 AND g.page_id = p.id AND p.form_id = f.id
			AND f.is_active = TRUE AND ($1 = '' OR f.slug = $1)
	`, formSlug, groupID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// ReorderGroups follows the same two-pass protocol as page and
// question reorders.
func (s *Service) ReorderGroups(ctx context.Context, formSlug, pageID string, orderedIDs []string) ([]QuestionGroup, error) {
	if len(orderedIDs) == 0 {
		return nil, fmt.Errorf("%w: group ids are required", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate group id %s", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockPage(ctx, tx, formSlug, pageID); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM question_groups WHERE page_id = $1`, pageID)
	if err != nil {
		return nil, fmt.Errorf("query group ids: %w", err)
	}
	existing := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		existing[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group ids: %w", err)
	}
	if len(existing) != len(orderedIDs) {
		return nil, fmt.Errorf("%w: reorder must list every group exactly once", ErrInvalidInput)
	}
	for id := range seen {
		if _, ok := existing[id]; !ok {
			return nil, fmt.Errorf("%w: group %s does not belong to page", ErrInvalidInput, id)
		}
	}

	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE question_groups SET "order" = $1, updated_at = now() WHERE id = $2
		`, -(i + 1000), id); err != nil {
			return nil, fmt.Errorf("stage group order: %w", err)
		}
	}
	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE question_groups SET "order" = $1, updated_at = now() WHERE id = $2
		`, i+1, id); err != nil {
			return nil, fmt.Errorf("apply group order: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.ListGroups(ctx, formSlug, pageID)
}

func (s *Service) CreateTemplate(ctx context.Context, in CreateTemplateInput) (*GroupTemplate, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	slug, err := resolveSlug(in.Name, in.Slug)
	if err != nil {
		return nil, err
	}
	displayType := strings.TrimSpace(in.DisplayType)
	if displayType == "" {
		displayType = "custom"
	}
	if len(in.QuestionTemplate) == 0 {
		in.QuestionTemplate = json.RawMessage(`[]`)
	}
	if _, err := parseBlueprints(in.QuestionTemplate); err != nil {
		return nil, err
	}

	var out GroupTemplate
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO question_group_templates (
			id, name, slug, description, display_type, config, question_template,
			is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, TRUE, now(), now())
		RETURNING id, name, slug, description, display_type, config, question_template,
			is_active, created_at, updated_at
	`, uuid.New().String(), in.Name, slug, strings.TrimSpace(in.Description),
		displayType, []byte(emptyObject(in.Config)), []byte(in.QuestionTemplate),
	).Scan(
		&out.ID, &out.Name, &out.Slug, &out.Description, &out.DisplayType,
		&out.Config, &out.QuestionTemplate, &out.IsActive, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: template slug %q", ErrSlugTaken, slug)
		}
		return nil, fmt.Errorf("insert template: %w", err)
	}
	return &out, nil
}

func (s *Service) ListTemplates(ctx context.Context) ([]GroupTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, description, display_type, config, question_template,
			is_active, created_at, updated_at
		FROM question_group_templates
		WHERE is_active = TRUE
		ORDER BY slug ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	items := make([]GroupTemplate, 0)
	for rows.Next() {
		var out GroupTemplate
		if err := rows.Scan(
			&out.ID, &out.Name, &out.Slug, &out.Description, &out.DisplayType,
			&out.Config, &out.QuestionTemplate, &out.IsActive, &out.CreatedAt, &out.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		items = append(items, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return items, nil
}

func (s *Service) GetTemplate(ctx context.Context, slug string) (*GroupTemplate, error) {
	var out GroupTemplate
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, display_type, config, question_template,
			is_active, created_at, updated_at
		FROM question_group_templates
		WHERE slug = $1 AND is_active = TRUE
	`, slug).Scan(
		&out.ID, &out.Name, &out.Slug, &out.Description, &out.DisplayType,
		&out.Config, &out.QuestionTemplate, &out.IsActive, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("load template: %w", err)
	}
	return &out, nil
}
