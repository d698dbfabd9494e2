package form

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"formbuilder/internal/db"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrFormNotFound = errors.New("form not found")
	ErrPageNotFound = errors.New("page not found")
	ErrSlugTaken    = errors.New("slug already in use")
)

type Service struct {
	db *sql.DB
}

func NewService(database *sql.DB) *Service {
	return &Service{db: database}
}

type Form struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Page struct {
	ID                string          `json:"id"`
	FormID            string          `json:"form_id"`
	Name              string          `json:"name"`
	Slug              string          `json:"slug"`
	Order             int             `json:"order"`
	ConditionalLogic  json.RawMessage `json:"conditional_logic"`
	DisabledCondition json.RawMessage `json:"disabled_condition"`
	Config            json.RawMessage `json:"config"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type CreateFormInput struct {
	Name            string
	Slug            string
	SkipDefaultPage bool
}

type UpdateFormInput struct {
	Slug    string
	Name    *string
	NewSlug *string
}

type CreatePageInput struct {
	FormSlug          string
	Name              string
	Slug              string
	ConditionalLogic  json.RawMessage
	DisabledCondition json.RawMessage
	Config            json.RawMessage
}

type UpdatePageInput struct {
	FormSlug          string
	PageID            string
	Name              *string
	Slug              *string
	ConditionalLogic  json.RawMessage
	DisabledCondition json.RawMessage
	Config            json.RawMessage
}

func emptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}

// resolveSlug keeps a caller-supplied slug untouched and only derives
// one from the name when the caller gave none.
func resolveSlug(name, slug string) (string, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if !ValidSlug(slug) {
		return "", fmt.Errorf("%w: slug %q is not valid", ErrInvalidInput, slug)
	}
	return slug, nil
}

func (s *Service) CreateForm(ctx context.Context, in CreateFormInput) (*Form, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	slug, err := resolveSlug(in.Name, in.Slug)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var out Form
	row := tx.QueryRowContext(ctx, `
		INSERT INTO forms (id, name, slug, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, now(), now())
		RETURNING id, name, slug, is_active, created_at, updated_at
	`, uuid.New().String(), in.Name, slug)
	if err := row.Scan(&out.ID, &out.Name, &out.Slug, &out.IsActive, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: form slug %q", ErrSlugTaken, slug)
		}
		return nil, fmt.Errorf("insert form: %w", err)
	}

	if !in.SkipDefaultPage {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pages (id, form_id, name, slug, "order", created_at, updated_at)
			VALUES ($1, $2, 'Page 1', 'page-1', 1, now(), now())
		`, uuid.New().String(), out.ID); err != nil {
			return nil, fmt.Errorf("insert default page: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &out, nil
}

func (s *Service) ListForms(ctx context.Context) ([]Form, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, is_active, created_at, updated_at
		FROM forms
		WHERE is_active = TRUE
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query forms: %w", err)
	}
	defer rows.Close()

	items := make([]Form, 0)
	for rows.Next() {
		var out Form
		if err := rows.Scan(&out.ID, &out.Name, &out.Slug, &out.IsActive, &out.CreatedAt, &out.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		items = append(items, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forms: %w", err)
	}
	return items, nil
}

func (s *Service) GetForm(ctx context.Context, slug string) (*Form, error) {
	var out Form
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, is_active, created_at, updated_at
		FROM forms
		WHERE slug = $1 AND is_active = TRUE
	`, slug).Scan(&out.ID, &out.Name, &out.Slug, &out.IsActive, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("load form: %w", err)
	}
	return &out, nil
}

func (s *Service) UpdateForm(ctx context.Context, in UpdateFormInput) (*Form, error) {
	if in.Name == nil && in.NewSlug == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	if in.NewSlug != nil && !ValidSlug(*in.NewSlug) {
		return nil, fmt.Errorf("%w: slug %q is not valid", ErrInvalidInput, *in.NewSlug)
	}

	var out Form
	err := s.db.QueryRowContext(ctx, `
		UPDATE forms
		SET name = COALESCE($2, name),
			slug = COALESCE($3, slug),
			updated_at = now()
		WHERE slug = $1 AND is_active = TRUE
		RETURNING id, name, slug, is_active, created_at, updated_at
	`, in.Slug, in.Name, in.NewSlug).Scan(&out.ID, &out.Name, &out.Slug, &out.IsActive, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFormNotFound
		}
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: form slug", ErrSlugTaken)
		}
		return nil, fmt.Errorf("update form: %w", err)
	}
	return &out, nil
}

// DeleteForm deactivates the form. Rows stay in place so existing
// versions and submissions keep resolving.
func (s *Service) DeleteForm(ctx context.Context, slug string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE forms SET is_active = FALSE, updated_at = now()
		WHERE slug = $1 AND is_active = TRUE
	`, slug)
	if err != nil {
		return fmt.Errorf("deactivate form: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrFormNotFound
	}
	return nil
}

// lockForm resolves an active form's id by slug and takes a row lock,
// serializing order assignment within the form.
func lockForm(ctx context.Context, tx *sql.Tx, slug string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM forms WHERE slug = $1 AND is_active = TRUE FOR UPDATE
	`, slug).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrFormNotFound
		}
		return "", fmt.Errorf("lock form: %w", err)
	}
	return id, nil
}

func (s *Service) CreatePage(ctx context.Context, in CreatePageInput) (*Page, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	slug, err := resolveSlug(in.Name, in.Slug)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	formID, err := lockForm(ctx, tx, in.FormSlug)
	if err != nil {
		return nil, err
	}

	var out Page
	row := tx.QueryRowContext(ctx, `
		INSERT INTO pages (id, form_id, name, slug, "order",
			conditional_logic, disabled_condition, config, created_at, updated_at)
		SELECT $1, $2, $3, $4,
			COALESCE(MAX("order"), 0) + 1,
			$5::jsonb, $6::jsonb, $7::jsonb, now(), now()
		FROM pages WHERE form_id = $2
		RETURNING id, form_id, name, slug, "order",
			conditional_logic, disabled_condition, config, created_at, updated_at
	`, uuid.New().String(), formID, in.Name, slug,
		[]byte(emptyObject(in.ConditionalLogic)),
		[]byte(emptyObject(in.DisabledCondition)),
		[]byte(emptyObject(in.Config)))
	if err := scanPage(row, &out); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: page slug %q", ErrSlugTaken, slug)
		}
		return nil, fmt.Errorf("insert page: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner, out *Page) error {
	return row.Scan(
		&out.ID,
		&out.FormID,
		&out.Name,
		&out.Slug,
		&out.Order,
		&out.ConditionalLogic,
		&out.DisabledCondition,
		&out.Config,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
}

func (s *Service) ListPages(ctx context.Context, formSlug string) ([]Page, error) {
	if _, err := s.GetForm(ctx, formSlug); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.form_id, p.name, p.slug, p."order",
			p.conditional_logic, p.disabled_condition, p.config, p.created_at, p.updated_at
		FROM pages p
		JOIN forms f ON f.id = p.form_id
		WHERE f.slug = $1 AND f.is_active = TRUE
		ORDER BY p."order" ASC
	`, formSlug)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	items := make([]Page, 0)
	for rows.Next() {
		var out Page
		if err := scanPage(rows, &out); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		items = append(items, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return items, nil
}

func (s *Service) UpdatePage(ctx context.Context, in UpdatePageInput) (*Page, error) {
	if in.PageID == "" {
		return nil, fmt.Errorf("%w: page id is required", ErrInvalidInput)
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	if in.Slug != nil && !ValidSlug(*in.Slug) {
		return nil, fmt.Errorf("%w: slug %q is not valid", ErrInvalidInput, *in.Slug)
	}

	var cl, dc, cfg any
	if len(in.ConditionalLogic) > 0 {
		cl = []byte(in.ConditionalLogic)
	}
	if len(in.DisabledCondition) > 0 {
		dc = []byte(in.DisabledCondition)
	}
	if len(in.Config) > 0 {
		cfg = []byte(in.Config)
	}

	var out Page
	row := s.db.QueryRowContext(ctx, `
		UPDATE pages p
		SET name = COALESCE($3, p.name),
			slug = COALESCE($4, p.slug),
			conditional_logic = COALESCE($5::jsonb, p.conditional_logic),
			disabled_condition = COALESCE($6::jsonb, p.disabled_condition),
			config = COALESCE($7::jsonb, p.config),
			updated_at = now()
		FROM forms f
		WHERE p.id = $2 AND p.form_id = f.id AND f.slug = $1 AND f.is_active = TRUE
		RETURNING p.id, p.form_id, p.name, p.slug, p."order",
			p.conditional_logic, p.disabled_condition, p.config, p.created_at, p.updated_at
	`, in.FormSlug, in.PageID, in.Name, in.Slug, cl, dc, cfg)
	if err := scanPage(row, &out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPageNotFound
		}
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: page slug", ErrSlugTaken)
		}
		return nil, fmt.Errorf("update page: %w", err)
	}
	return &out, nil
}

func (s *Service) DeletePage(ctx context.Context, formSlug, pageID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM pages p
		USING forms f
		WHERE p.id = $2 AND p.form_id = f.id AND f.slug = $1 AND f.is_active = TRUE
	`, formSlug, pageID)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrPageNotFound
	}
	return nil
}

// ReorderPages rewrites the page order of a form to match orderedIDs.
// The id set must cover the form's pages exactly. Orders move through
// disjoint negative placeholders first so the unique (form_id, order)
// constraint never trips mid-shuffle.
func (s *Service) ReorderPages(ctx context.Context, formSlug string, orderedIDs []string) ([]Page, error) {
	if len(orderedIDs) == 0 {
		return nil, fmt.Errorf("%w: page ids are required", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate page id %s", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	formID, err := lockForm(ctx, tx, formSlug)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM pages WHERE form_id = $1`, formID)
	if err != nil {
		return nil, fmt.Errorf("query page ids: %w", err)
	}
	existing := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan page id: %w", err)
		}
		existing[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page ids: %w", err)
	}
	if len(existing) != len(orderedIDs) {
		return nil, fmt.Errorf("%w: reorder must list every page exactly once", ErrInvalidInput)
	}
	for id := range seen {
		if _, ok := existing[id]; !ok {
			return nil, fmt.Errorf("%w: page %s does not belong to form", ErrInvalidInput, id)
		}
	}

	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE pages SET "order" = $1, updated_at = now() WHERE id = $2
		`, -(i + 1000), id); err != nil {
			return nil, fmt.Errorf("stage page order: %w", err)
		}
	}
	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE pages SET "order" = $1, updated_at = now() WHERE id = $2
		`, i+1, id); err != nil {
			return nil, fmt.Errorf("apply page order: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.ListPages(ctx, formSlug)
}
