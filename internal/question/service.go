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

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidParent    = errors.New("question needs exactly one parent")
	ErrTypeNotFound     = errors.New("question type not found")
	ErrPageNotFound     = errors.New("page not found")
	ErrGroupNotFound    = errors.New("question group not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrTemplateNotFound = errors.New("group template not found")
	ErrSlugTaken        = errors.New("slug already in use")
)

type Service struct {
	db *sql.DB
}

func NewService(database *sql.DB) *Service {
	return &Service{db: database}
}

type QuestionType struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Config      json.RawMessage `json:"config"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type CreateQuestionTypeInput struct {
	Name        string
	Slug        string
	Description string
	Config      json.RawMessage
}

// ParentRef points a question at its owner. Exactly one of the two
// ids must be set; a question hangs off a page or off a group, never
// both and never neither.
type ParentRef struct {
	PageID  string `json:"page_id,omitempty"`
	GroupID string `json:"question_group_id,omitempty"`
}

func (p ParentRef) Validate() error {
	if (p.PageID == "") == (p.GroupID == "") {
		return ErrInvalidParent
	}
	return nil
}

type Question struct {
	ID                string          `json:"id"`
	PageID            *string         `json:"page_id,omitempty"`
	GroupID           *string         `json:"question_group_id,omitempty"`
	TypeSlug          string          `json:"type"`
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
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type CreateQuestionInput struct {
	Parent            ParentRef
	TypeSlug          string
	Name              string
	Slug              string
	Text              string
	Subtext           string
	Required          bool
	Config            json.RawMessage
	Validation        json.RawMessage
	ConditionalLogic  json.RawMessage
	DisabledCondition json.RawMessage
}

type UpdateQuestionInput struct {
	ID                string
	TypeSlug          *string
	Name              *string
	Slug              *string
	Text              *string
	Subtext           *string
	Required          *bool
	Config            json.RawMessage
	Validation        json.RawMessage
	ConditionalLogic  json.RawMessage
	DisabledCondition json.RawMessage
}

func emptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}

func resolveSlug(name, slug string) (string, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = form.Slugify(name)
	}
	if !form.ValidSlug(slug) {
		return "", fmt.Errorf("%w: slug %q is not valid", ErrInvalidInput, slug)
	}
	return slug, nil
}

func (s *Service) CreateQuestionType(ctx context.Context, in CreateQuestionTypeInput) (*QuestionType, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	slug, err := resolveSlug(in.Name, in.Slug)
	if err != nil {
		return nil, err
	}

	var out QuestionType
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO question_types (id, name, slug, description, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, now(), now())
		RETURNING id, name, slug, description, config, created_at, updated_at
	`, uuid.New().String(), in.Name, slug, strings.TrimSpace(in.Description),
		[]byte(emptyObject(in.Config)),
	).Scan(&out.ID, &out.Name, &out.Slug, &out.Description, &out.Config, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: question type slug %q", ErrSlugTaken, slug)
		}
		return nil, fmt.Errorf("insert question type: %w", err)
	}
	return &out, nil
}

func (s *Service) ListQuestionTypes(ctx context.Context) ([]QuestionType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, description, config, created_at, updated_at
		FROM question_types
		ORDER BY slug ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query question types: %w", err)
	}
	defer rows.Close()

	items := make([]QuestionType, 0)
	for rows.Next() {
		var out QuestionType
		if err := rows.Scan(&out.ID, &out.Name, &out.Slug, &out.Description, &out.Config, &out.CreatedAt, &out.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan question type: %w", err)
		}
		items = append(items, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question types: %w", err)
	}
	return items, nil
}

func (s *Service) GetQuestionType(ctx context.Context, slug string) (*QuestionType, error) {
	var out QuestionType
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, config, created_at, updated_at
		FROM question_types
		WHERE slug = $1
	`, slug).Scan(&out.ID, &out.Name, &out.Slug, &out.Description, &out.Config, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTypeNotFound
		}
		return nil, fmt.Errorf("load question type: %w", err)
	}
	return &out, nil
}

// lockPage takes a row lock on the page, serializing order assignment
// underneath it. formSlug is optional; when set the page must belong
// to that active form.
func lockPage(ctx context.Context, tx *sql.Tx, formSlug, pageID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT p.id
		FROM pages p
		JOIN forms f ON f.id = p.form_id
		WHERE p.id = $1 AND f.is_active = TRUE AND ($2 = '' OR f.slug = $2)
		FOR UPDATE OF p
	`, pageID, formSlug).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPageNotFound
		}
		return fmt.Errorf("lock page: %w", err)
	}
	return nil
}

func lockGroup(ctx context.Context, tx *sql.Tx, groupID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT g.id
		FROM question_groups g
		JOIN pages p ON p.id = g.page_id
		JOIN forms f ON f.id = p.form_id
		WHERE g.id = $1 AND f.is_active = TRUE
		FOR UPDATE OF g
	`, groupID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("lock group: %w", err)
	}
	return nil
}

// lockQuestion resolves the question's form through either parent
// path and requires it to be active, so by-id mutations cannot touch
// the structure of a soft-deleted form.
func lockQuestion(ctx context.Context, tx *sql.Tx, questionID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT q.id
		FROM questions q
		LEFT JOIN pages dp ON dp.id = q.page_id
		LEFT JOIN question_groups g ON g.id = q.question_group_id
		LEFT JOIN pages gp ON gp.id = g.page_id
		JOIN forms f ON f.id = COALESCE(dp.form_id, gp.form_id)
		WHERE q.id = $1 AND f.is_active = TRUE
		FOR UPDATE OF q
	`, questionID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("lock question: %w", err)
	}
	return nil
}

func lockParent(ctx context.Context, tx *sql.Tx, formSlug string, parent ParentRef) error {
	if parent.PageID != "" {
		return lockPage(ctx, tx, formSlug, parent.PageID)
	}
	return lockGroup(ctx, tx, parent.GroupID)
}

func typeIDBySlug(ctx context.Context, tx *sql.Tx, slug string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM question_types WHERE slug = $1`, slug).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %q", ErrTypeNotFound, slug)
		}
		return "", fmt.Errorf("load question type: %w", err)
	}
	return id, nil
}

func nextQuestionOrder(ctx context.Context, tx *sql.Tx, parent ParentRef) (int, error) {
	var (
		query string
		arg   string
	)
	if parent.PageID != "" {
		query = `SELECT COALESCE(MAX("order"), 0) + 1 FROM questions WHERE page_id = $1`
		arg = parent.PageID
	} else {
		query = `SELECT COALESCE(MAX("order"), 0) + 1 FROM questions WHERE question_group_id = $1`
		arg = parent.GroupID
	}
	var next int
	if err := tx.QueryRowContext(ctx, query, arg).Scan(&next); err != nil {
		return 0, fmt.Errorf("next question order: %w", err)
	}
	return next, nil
}

func nullableID(v string) any {
	if v == "" {
		return nil
	}
	return v
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner, out *Question) error {
	return row.Scan(
		&out.ID,
		&out.PageID,
		&out.GroupID,
		&out.TypeSlug,
		&out.Name,
		&out.Slug,
		&out.Text,
		&out.Subtext,
		&out.Required,
		&out.Config,
		&out.Validation,
		&out.ConditionalLogic,
		&out.DisabledCondition,
		&out.Order,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
}

const questionColumns = `
	q.id, q.page_id, q.question_group_id, t.slug, q.name, q.slug,
	q.text, q.subtext, q.required, q.config, q.validation,
	q.conditional_logic, q.disabled_condition, q."order", q.created_at, q.updated_at`

// CreateQuestion attaches a question to its parent scope. formSlug may
// be empty when the caller addresses the parent by id alone.
func (s *Service) CreateQuestion(ctx context.Context, formSlug string, in CreateQuestionInput) (*Question, error) {
	if err := in.Parent.Validate(); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	in.TypeSlug = strings.TrimSpace(in.TypeSlug)
	if in.TypeSlug == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidInput)
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

	out, err := insertQuestion(ctx, tx, formSlug, in, slug)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// insertQuestion runs inside an open transaction whose parent scope
// the caller is responsible for having locked, or locks it here.
func insertQuestion(ctx context.Context, tx *sql.Tx, formSlug string, in CreateQuestionInput, slug string) (*Question, error) {
	if err := lockParent(ctx, tx, formSlug, in.Parent); err != nil {
		return nil, err
	}
	typeID, err := typeIDBySlug(ctx, tx, in.TypeSlug)
	if err != nil {
		return nil, err
	}
	order, err := nextQuestionOrder(ctx, tx, in.Parent)
	if err != nil {
		return nil, err
	}
	return insertQuestionAt(ctx, tx, in, slug, typeID, order)
}

func insertQuestionAt(ctx context.Context, tx *sql.Tx, in CreateQuestionInput, slug, typeID string, order int) (*Question, error) {
	var out Question
	row := tx.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO questions (
				id, page_id, question_group_id, type_id, name, slug,
				text, subtext, required, config, validation,
				conditional_logic, disabled_condition, "order", created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6,
				$7, $8, $9, $10::jsonb, $11::jsonb,
				$12::jsonb, $13::jsonb, $14, now(), now()
			)
			RETURNING *
		)
		SELECT`+questionColumns+`
		FROM inserted q
		JOIN question_types t ON t.id = q.type_id
	`, uuid.New().String(),
		nullableID(in.Parent.PageID), nullableID(in.Parent.GroupID),
		typeID, in.Name, slug,
		strings.TrimSpace(in.Text), strings.TrimSpace(in.Subtext), in.Required,
		[]byte(emptyObject(in.Config)), []byte(emptyObject(in.Validation)),
		[]byte(emptyObject(in.ConditionalLogic)), []byte(emptyObject(in.DisabledCondition)),
		order)
	if err := scanQuestion(row, &out); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: question slug %q", ErrSlugTaken, slug)
		}
		return nil, fmt.Errorf("insert question: %w", err)
	}
	return &out, nil
}

// ListQuestions returns the questions of one parent scope in order.
func (s *Service) ListQuestions(ctx context.Context, parent ParentRef) ([]Question, error) {
	if err := parent.Validate(); err != nil {
		return nil, err
	}
	where := `q.page_id = $1`
	arg := parent.PageID
	if parent.GroupID != "" {
		where = `q.question_group_id = $1`
		arg = parent.GroupID
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+questionColumns+`
		FROM questions q
		JOIN question_types t ON t.id = q.type_id
		WHERE `+where+`
		ORDER BY q."order" ASC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	items := make([]Question, 0)
	for rows.Next() {
		var out Question
		if err := scanQuestion(rows, &out); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		items = append(items, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return items, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, in UpdateQuestionInput) (*Question, error) {
	if in.ID == "" {
		return nil, fmt.Errorf("%w: question id is required", ErrInvalidInput)
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	if in.Slug != nil && !form.ValidSlug(*in.Slug) {
		return nil, fmt.Errorf("%w: slug %q is not valid", ErrInvalidInput, *in.Slug)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockQuestion(ctx, tx, in.ID); err != nil {
		return nil, err
	}

	var typeID any
	if in.TypeSlug != nil {
		id, err := typeIDBySlug(ctx, tx, *in.TypeSlug)
		if err != nil {
			return nil, err
		}
		typeID = id
	}

	var cfg, val, cl, dc any
	if len(in.Config) > 0 {
		cfg = []byte(in.Config)
	}
	if len(in.Validation) > 0 {
		val = []byte(in.Validation)
	}
	if len(in.ConditionalLogic) > 0 {
		cl = []byte(in.ConditionalLogic)
	}
	if len(in.DisabledCondition) > 0 {
		dc = []byte(in.DisabledCondition)
	}

	var out Question
	row := tx.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE questions
			SET type_id = COALESCE($2, type_id),
				name = COALESCE($3, name),
				slug = COALESCE($4, slug),
				text = COALESCE($5, text),
				subtext = COALESCE($6, subtext),
				required = COALESCE($7, required),
				config = COALESCE($8::jsonb, config),
				validation = COALESCE($9::jsonb, validation),
				conditional_logic = COALESCE($10::jsonb, conditional_logic),
				disabled_condition = COALESCE($11::jsonb, disabled_condition),
				updated_at = now()
			WHERE id = $1
			RETURNING *
		)
		SELECT`+questionColumns+`
		FROM updated q
		JOIN question_types t ON t.id = q.type_id
	`, in.ID, typeID, in.Name, in.Slug, in.Text, in.Subtext, in.Required, cfg, val, cl, dc)
	if err := scanQuestion(row, &out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: question slug", ErrSlugTaken)
		}
		return nil, fmt.Errorf("update question: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &out, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: question id is required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockQuestion(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReorderQuestions rewrites the order of one parent scope to match
// orderedIDs, which must cover the scope's questions exactly. Orders
// pass through disjoint negative placeholders so the partial unique
// indexes never trip mid-shuffle.
func (s *Service) ReorderQuestions(ctx context.Context, formSlug string, parent ParentRef, orderedIDs []string) ([]Question, error) {
	if err := parent.Validate(); err != nil {
		return nil, err
	}
	if len(orderedIDs) == 0 {
		return nil, fmt.Errorf("%w: question ids are required", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate question id %s", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockParent(ctx, tx, formSlug, parent); err != nil {
		return nil, err
	}

	where := `page_id = $1`
	arg := parent.PageID
	if parent.GroupID != "" {
		where = `question_group_id = $1`
		arg = parent.GroupID
	}
	rows, err := tx.QueryContext(ctx, `SELECT id FROM questions WHERE `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("query question ids: %w", err)
	}
	existing := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question id: %w", err)
		}
		existing[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question ids: %w", err)
	}
	if len(existing) != len(orderedIDs) {
		return nil, fmt.Errorf("%w: reorder must list every question exactly once", ErrInvalidInput)
	}
	for id := range seen {
		if _, ok := existing[id]; !ok {
			return nil, fmt.Errorf("%w: question %s does not belong to scope", ErrInvalidInput, id)
		}
	}

	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE questions SET "order" = $1, updated_at = now() WHERE id = $2
		`, -(i + 1000), id); err != nil {
			return nil, fmt.Errorf("stage question order: %w", err)
		}
	}
	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE questions SET "order" = $1, updated_at = now() WHERE id = $2
		`, i+1, id); err != nil {
			return nil, fmt.Errorf("apply question order: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.ListQuestions(ctx, parent)
}
