package version

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"formbuilder/internal/db"
	"formbuilder/internal/form"
	"formbuilder/internal/question"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrFormNotFound       = errors.New("form not found")
	ErrVersionNotFound    = errors.New("form version not found")
	ErrNoPublishedVersion = errors.New("no published version")
	ErrVersionConflict    = errors.New("version number conflict")
)

type Service struct {
	db *sql.DB
}

func NewService(database *sql.DB) *Service {
	return &Service{db: database}
}

type Version struct {
	ID                 string          `json:"id"`
	FormID             string          `json:"form_id"`
	VersionNumber      int             `json:"version_number"`
	SerializedFormData json.RawMessage `json:"serialized_form_data"`
	IsPublished        bool            `json:"is_published"`
	Notes              string          `json:"notes"`
	CreatedBy          string          `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
}

type CreateVersionInput struct {
	FormSlug  string
	Notes     string
	CreatedBy string
	Publish   bool
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NextVersionNumber reports the number the next snapshot of the form
// would get: 1 for a form with no versions, max+1 otherwise. The
// authoritative computation happens again inside CreateVersion's
// transaction; this read is advisory.
func (s *Service) NextVersionNumber(ctx context.Context, formSlug string) (int, error) {
	formID, err := resolveForm(ctx, s.db, formSlug)
	if err != nil {
		return 0, err
	}
	return nextNumber(ctx, s.db, formID)
}

func resolveForm(ctx context.Context, q querier, formSlug string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `
		SELECT id FROM forms WHERE slug = $1 AND is_active = TRUE
	`, formSlug).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrFormNotFound
		}
		return "", fmt.Errorf("load form: %w", err)
	}
	return id, nil
}

func nextNumber(ctx context.Context, q querier, formID string) (int, error) {
	var next int
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version_number), 0) + 1 FROM form_versions WHERE form_id = $1
	`, formID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next version number: %w", err)
	}
	return next, nil
}

// CreateVersion snapshots the form's current structure into a new
// immutable version. Number assignment and document persistence share
// one transaction; the unique (form_id, version_number) constraint is
// the final arbiter, with a single recompute-and-retry on collision.
func (s *Service) CreateVersion(ctx context.Context, in CreateVersionInput) (*Version, error) {
	if in.FormSlug == "" {
		return nil, fmt.Errorf("%w: form slug is required", ErrInvalidInput)
	}

	out, err := s.createVersionOnce(ctx, in)
	if err != nil && db.IsUniqueViolation(err) {
		out, err = s.createVersionOnce(ctx, in)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return nil, ErrVersionConflict
			}
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"form":      in.FormSlug,
		"version":   out.VersionNumber,
		"published": out.IsPublished,
	}).Info("form version created")
	return out, nil
}

func (s *Service) createVersionOnce(ctx context.Context, in CreateVersionInput) (*Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var f form.Form
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, slug, is_active, created_at, updated_at
		FROM forms
		WHERE slug = $1 AND is_active = TRUE
		FOR UPDATE
	`, in.FormSlug).Scan(&f.ID, &f.Name, &f.Slug, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("lock form: %w", err)
	}

	tree, err := loadTree(ctx, tx, f)
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(BuildDocument(*tree))
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}

	number, err := nextNumber(ctx, tx, f.ID)
	if err != nil {
		return nil, err
	}

	var out Version
	err = tx.QueryRowContext(ctx, `
		INSERT INTO form_versions (
			id, form_id, version_number, serialized_form_data,
			is_published, notes, created_by, created_at
		) VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, now())
		RETURNING id, form_id, version_number, serialized_form_data,
			is_published, notes, created_by, created_at
	`, uuid.New().String(), f.ID, number, doc, in.Publish, in.Notes, in.CreatedBy).Scan(
		&out.ID, &out.FormID, &out.VersionNumber, &out.SerializedFormData,
		&out.IsPublished, &out.Notes, &out.CreatedBy, &out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &out, nil
}

// Draft builds the document for the form's current structure without
// persisting anything.
func (s *Service) Draft(ctx context.Context, formSlug string) (*FormDoc, error) {
	var f form.Form
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, is_active, created_at, updated_at
		FROM forms
		WHERE slug = $1 AND is_active = TRUE
	`, formSlug).Scan(&f.ID, &f.Name, &f.Slug, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("load form: %w", err)
	}

	tree, err := loadTree(ctx, s.db, f)
	if err != nil {
		return nil, err
	}
	doc := BuildDocument(*tree)
	return &doc, nil
}

func loadTree(ctx context.Context, q querier, f form.Form) (*Tree, error) {
	tree := &Tree{
		Form:                f,
		QuestionsByPage:     make(map[string][]question.Question),
		GroupsByPage:        make(map[string][]question.QuestionGroup),
		QuestionsByGroup:    make(map[string][]question.Question),
		TemplateSlugByGroup: make(map[string]*string),
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, form_id, name, slug, "order",
			conditional_logic, disabled_condition, config, created_at, updated_at
		FROM pages
		WHERE form_id = $1
		ORDER BY "order" ASC
	`, f.ID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	for rows.Next() {
		var p form.Page
		if err := rows.Scan(
			&p.ID, &p.FormID, &p.Name, &p.Slug, &p.Order,
			&p.ConditionalLogic, &p.DisabledCondition, &p.Config, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan page: %w", err)
		}
		tree.Pages = append(tree.Pages, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT g.id, g.page_id, g.template_id, g.name, g.slug, g.display_type,
			g."order", g.config, g.created_at, g.updated_at, tpl.slug
		FROM question_groups g
		JOIN pages p ON p.id = g.page_id
		LEFT JOIN question_group_templates tpl ON tpl.id = g.template_id
		WHERE p.form_id = $1
		ORDER BY g."order" ASC
	`, f.ID)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	for rows.Next() {
		var g question.QuestionGroup
		var templateSlug *string
		if err := rows.Scan(
			&g.ID, &g.PageID, &g.TemplateID, &g.Name, &g.Slug, &g.DisplayType,
			&g.Order, &g.Config, &g.CreatedAt, &g.UpdatedAt, &templateSlug,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan group: %w", err)
		}
		tree.GroupsByPage[g.PageID] = append(tree.GroupsByPage[g.PageID], g)
		tree.TemplateSlugByGroup[g.ID] = templateSlug
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT q.id, q.page_id, q.question_group_id, t.slug, q.name, q.slug,
			q.text, q.subtext, q.required, q.config, q.validation,
			q.conditional_logic, q.disabled_condition, q."order", q.created_at, q.updated_at
		FROM questions q
		JOIN question_types t ON t.id = q.type_id
		LEFT JOIN pages dp ON dp.id = q.page_id
		LEFT JOIN question_groups g ON g.id = q.question_group_id
		LEFT JOIN pages gp ON gp.id = g.page_id
		WHERE dp.form_id = $1 OR gp.form_id = $1
		ORDER BY q."order" ASC
	`, f.ID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	for rows.Next() {
		var qn question.Question
		if err := rows.Scan(
			&qn.ID, &qn.PageID, &qn.GroupID, &qn.TypeSlug, &qn.Name, &qn.Slug,
			&qn.Text, &qn.Subtext, &qn.Required, &qn.Config, &qn.Validation,
			&qn.ConditionalLogic, &qn.DisabledCondition, &qn.Order, &qn.CreatedAt, &qn.UpdatedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if qn.PageID != nil {
			tree.QuestionsByPage[*qn.PageID] = append(tree.QuestionsByPage[*qn.PageID], qn)
		} else if qn.GroupID != nil {
			tree.QuestionsByGroup[*qn.GroupID] = append(tree.QuestionsByGroup[*qn.GroupID], qn)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	return tree, nil
}

// Publish marks one version published. Re-publishing is a no-op and no
// other version is ever unpublished by this call.
func (s *Service) Publish(ctx context.Context, formSlug string, number int) (*Version, error) {
	if number <= 0 {
		return nil, fmt.Errorf("%w: version number must be positive", ErrInvalidInput)
	}

	var out Version
	err := s.db.QueryRowContext(ctx, `
		UPDATE form_versions v
		SET is_published = TRUE
		FROM forms f
		WHERE v.form_id = f.id AND f.slug = $1 AND f.is_active = TRUE AND v.version_number = $2
		RETURNING v.id, v.form_id, v.version_number, v.serialized_form_data,
			v.is_published, v.notes, v.created_by, v.created_at
	`, formSlug, number).Scan(
		&out.ID, &out.FormID, &out.VersionNumber, &out.SerializedFormData,
		&out.IsPublished, &out.Notes, &out.CreatedBy, &out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("publish version: %w", err)
	}

	log.WithFields(log.Fields{
		"form":    formSlug,
		"version": out.VersionNumber,
	}).Info("form version published")
	return &out, nil
}

// LatestPublished returns the published version with the highest
// number. A form with versions but nothing published is a routine
// not-found, not an error condition.
func (s *Service) LatestPublished(ctx context.Context, formSlug string) (*Version, error) {
	formID, err := resolveForm(ctx, s.db, formSlug)
	if err != nil {
		return nil, err
	}

	var out Version
	err = s.db.QueryRowContext(ctx, `
		SELECT id, form_id, version_number, serialized_form_data,
			is_published, notes, created_by, created_at
		FROM form_versions
		WHERE form_id = $1 AND is_published = TRUE
		ORDER BY version_number DESC
		LIMIT 1
	`, formID).Scan(
		&out.ID, &out.FormID, &out.VersionNumber, &out.SerializedFormData,
		&out.IsPublished, &out.Notes, &out.CreatedBy, &out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPublishedVersion
		}
		return nil, fmt.Errorf("load latest published: %w", err)
	}
	return &out, nil
}

func (s *Service) ListVersions(ctx context.Context, formSlug string) ([]Version, error) {
	formID, err := resolveForm(ctx, s.db, formSlug)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, form_id, version_number, serialized_form_data,
			is_published, notes, created_by, created_at
		FROM form_versions
		WHERE form_id = $1
		ORDER BY version_number DESC
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	items := make([]Version, 0)
	for rows.Next() {
		var out Version
		if err := rows.Scan(
			&out.ID, &out.FormID, &out.VersionNumber, &out.SerializedFormData,
			&out.IsPublished, &out.Notes, &out.CreatedBy, &out.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (s *Service) GetVersion(ctx context.Context, formSlug string, number int) (*Version, error) {
	if number <= 0 {
		return nil, fmt.Errorf("%w: version number must be positive", ErrInvalidInput)
	}
	formID, err := resolveForm(ctx, s.db, formSlug)
	if err != nil {
		return nil, err
	}

	var out Version
	err = s.db.QueryRowContext(ctx, `
		SELECT id, form_id, version_number, serialized_form_data,
			is_published, notes, created_by, created_at
		FROM form_versions
		WHERE form_id = $1 AND version_number = $2
	`, formID, number).Scan(
		&out.ID, &out.FormID, &out.VersionNumber, &out.SerializedFormData,
		&out.IsPublished, &out.Notes, &out.CreatedBy, &out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("load version: %w", err)
	}
	return &out, nil
}
