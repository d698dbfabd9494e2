package submission

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrFormNotFound       = errors.New("form not found")
	ErrNoPublishedVersion = errors.New("no published version")
	ErrSubmissionNotFound = errors.New("submission not found")
)

type Service struct {
	db *sql.DB
}

func NewService(database *sql.DB) *Service {
	return &Service{db: database}
}

type Submission struct {
	ID            string          `json:"id"`
	FormVersionID string          `json:"form_version_id"`
	FormSlug      string          `json:"form_slug"`
	VersionNumber int             `json:"version_number"`
	Answers       json.RawMessage `json:"answers"`
	UserSessionID *string         `json:"user_session_id,omitempty"`
	UserEmail     *string         `json:"user_email,omitempty"`
	IPAddress     *string         `json:"ip_address,omitempty"`
	IsComplete    bool            `json:"is_complete"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CreateSubmissionInput struct {
	FormSlug      string
	UserSessionID string
	UserEmail     string
	IPAddress     string
	Answers       json.RawMessage
	IsComplete    bool
}

type UpdateSubmissionInput struct {
	ID         string
	Answers    json.RawMessage
	IsComplete *bool
}

type ListSubmissionsInput struct {
	FormSlug      string
	UserSessionID string
}

// mergeAnswers folds update into existing key by key. Keys absent from
// the update survive untouched; colliding keys take the update's value.
func mergeAnswers(existing, update json.RawMessage) (json.RawMessage, error) {
	merged := make(map[string]any)
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &merged); err != nil {
			return nil, fmt.Errorf("decode existing answers: %w", err)
		}
	}
	if len(update) > 0 {
		patch := make(map[string]any)
		if err := json.Unmarshal(update, &patch); err != nil {
			return nil, fmt.Errorf("%w: answers must be a JSON object", ErrInvalidInput)
		}
		for k, v := range patch {
			merged[k] = v
		}
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode merged answers: %w", err)
	}
	return out, nil
}

func nullStringPtr(v string) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return v
}

const submissionColumns = `
	s.id, s.form_version_id, f.slug, v.version_number, s.answers,
	s.user_session_id, s.user_email, s.ip_address, s.is_complete,
	s.started_at, s.completed_at, s.created_at, s.updated_at`

const submissionJoins = `
	FROM form_submissions s
	JOIN form_versions v ON v.id = s.form_version_id
	JOIN forms f ON f.id = v.form_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner, out *Submission) error {
	return row.Scan(
		&out.ID,
		&out.FormVersionID,
		&out.FormSlug,
		&out.VersionNumber,
		&out.Answers,
		&out.UserSessionID,
		&out.UserEmail,
		&out.IPAddress,
		&out.IsComplete,
		&out.StartedAt,
		&out.CompletedAt,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
}

// Create binds a new submission to the form's latest published
// version. The binding never changes afterwards, even when newer
// versions are published while the submission is in flight.
func (s *Service) Create(ctx context.Context, in CreateSubmissionInput) (*Submission, error) {
	if in.FormSlug == "" {
		return nil, fmt.Errorf("%w: form slug is required", ErrInvalidInput)
	}

	answers, err := mergeAnswers(nil, in.Answers)
	if err != nil {
		return nil, err
	}

	var formExists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM forms WHERE slug = $1 AND is_active = TRUE)
	`, in.FormSlug).Scan(&formExists); err != nil {
		return nil, fmt.Errorf("check form: %w", err)
	}
	if !formExists {
		return nil, ErrFormNotFound
	}

	var versionID string
	err = s.db.QueryRowContext(ctx, `
		SELECT v.id
		FROM form_versions v
		JOIN forms f ON f.id = v.form_id
		WHERE f.slug = $1 AND f.is_active = TRUE AND v.is_published = TRUE
		ORDER BY v.version_number DESC
		LIMIT 1
	`, in.FormSlug).Scan(&versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPublishedVersion
		}
		return nil, fmt.Errorf("resolve published version: %w", err)
	}

	var completedAt any
	if in.IsComplete {
		completedAt = time.Now()
	}

	var out Submission
	row := s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO form_submissions (
				id, form_version_id, answers, user_session_id, user_email, ip_address,
				is_complete, started_at, completed_at, created_at, updated_at
			) VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, now(), $8, now(), now())
			RETURNING *
		)
		SELECT`+submissionColumns+`
		FROM inserted s
		JOIN form_versions v ON v.id = s.form_version_id
		JOIN forms f ON f.id = v.form_id
	`, uuid.New().String(), versionID, []byte(answers),
		nullStringPtr(in.UserSessionID), nullStringPtr(in.UserEmail), nullStringPtr(in.IPAddress),
		in.IsComplete, completedAt)
	if err := scanSubmission(row, &out); err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}

	if out.IsComplete {
		log.WithFields(log.Fields{
			"submission": out.ID,
			"form":       out.FormSlug,
			"version":    out.VersionNumber,
		}).Info("submission completed")
	}
	return &out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Submission, error) {
	var out Submission
	row := s.db.QueryRowContext(ctx, `
		SELECT`+submissionColumns+submissionJoins+`
		WHERE s.id = $1
	`, id)
	if err := scanSubmission(row, &out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("load submission: %w", err)
	}
	return &out, nil
}

// Update merges answers into the submission and optionally flips
// is_complete. The merge happens under a row lock so concurrent
// updates to one submission serialize; completed_at is stamped only on
// the first false→true transition and never touched again.
func (s *Service) Update(ctx context.Context, in UpdateSubmissionInput) (*Submission, error) {
	if in.ID == "" {
		return nil, fmt.Errorf("%w: submission id is required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		existing    json.RawMessage
		isComplete  bool
		completedAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT answers, is_complete, completed_at FROM form_submissions WHERE id = $1 FOR UPDATE
	`, in.ID).Scan(&existing, &isComplete, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("lock submission: %w", err)
	}

	merged, err := mergeAnswers(existing, in.Answers)
	if err != nil {
		return nil, err
	}

	newComplete := isComplete
	if in.IsComplete != nil {
		newComplete = *in.IsComplete
	}
	// The timestamp is written once: a later uncomplete/re-complete
	// cycle must not replace it, so the guard is NULL-ness, not the
	// flag transition.
	firstCompletion := newComplete && !isComplete && !completedAt.Valid

	var out Submission
	row := tx.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE form_submissions
			SET answers = $2::jsonb,
				is_complete = $3,
				completed_at = CASE WHEN $4 AND completed_at IS NULL THEN now() ELSE completed_at END,
				updated_at = now()
			WHERE id = $1
			RETURNING *
		)
		SELECT`+submissionColumns+`
		FROM updated s
		JOIN form_versions v ON v.id = s.form_version_id
		JOIN forms f ON f.id = v.form_id
	`, in.ID, []byte(merged), newComplete, firstCompletion)
	if err := scanSubmission(row, &out); err != nil {
		return nil, fmt.Errorf("update submission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if firstCompletion {
		log.WithFields(log.Fields{
			"submission": out.ID,
			"form":       out.FormSlug,
			"version":    out.VersionNumber,
		}).Info("submission completed")
	}
	return &out, nil
}

// Complete is the dedicated mark-complete operation. Idempotent:
// repeat calls leave completed_at exactly as the first one set it.
func (s *Service) Complete(ctx context.Context, id string) (*Submission, error) {
	done := true
	return s.Update(ctx, UpdateSubmissionInput{ID: id, IsComplete: &done})
}

func (s *Service) List(ctx context.Context, in ListSubmissionsInput) ([]Submission, error) {
	query := `SELECT` + submissionColumns + submissionJoins + ` WHERE 1=1`
	args := make([]any, 0, 2)
	if in.FormSlug != "" {
		args = append(args, in.FormSlug)
		query += fmt.Sprintf(` AND f.slug = $%d`, len(args))
	}
	if in.UserSessionID != "" {
		args = append(args, in.UserSessionID)
		query += fmt.Sprintf(` AND s.user_session_id = $%d`, len(args))
	}
	query += ` ORDER BY s.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	items := make([]Submission, 0)
	for rows.Next() {
		var out Submission
		if err := scanSubmission(rows, &out); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		items = append(items, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return items, nil
}
