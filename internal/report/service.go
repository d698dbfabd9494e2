package report

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"formbuilder/internal/submission"
	"formbuilder/internal/version"

	"github.com/xuri/excelize/v2"
)

var (
	ErrFormNotFound       = errors.New("form not found")
	ErrNoPublishedVersion = errors.New("no published version")
)

type Service struct {
	db          *sql.DB
	versions    *version.Service
	submissions *submission.Service
}

func NewService(database *sql.DB) *Service {
	return &Service{
		db:          database,
		versions:    version.NewService(database),
		submissions: submission.NewService(database),
	}
}

type FormSummary struct {
	FormSlug             string `json:"form_slug"`
	Versions             int    `json:"versions"`
	PublishedVersions    int    `json:"published_versions"`
	LatestPublished      *int   `json:"latest_published,omitempty"`
	Submissions          int    `json:"submissions"`
	CompletedSubmissions int    `json:"completed_submissions"`
}

// ExportSubmissionsExcel renders every submission of a form as one
// spreadsheet row. Answer columns follow the question slugs of the
// latest published document in document order, so the export matches
// what respondents actually saw.
func (s *Service) ExportSubmissionsExcel(ctx context.Context, formSlug string) ([]byte, error) {
	latest, err := s.versions.LatestPublished(ctx, formSlug)
	if err != nil {
		if errors.Is(err, version.ErrFormNotFound) {
			return nil, ErrFormNotFound
		}
		if errors.Is(err, version.ErrNoPublishedVersion) {
			return nil, ErrNoPublishedVersion
		}
		return nil, err
	}

	var doc version.FormDoc
	if err := json.Unmarshal(latest.SerializedFormData, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	slugs := questionSlugs(doc)

	items, err := s.submissions.List(ctx, submission.ListSubmissionsInput{FormSlug: formSlug})
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := append([]string{
		"submission_id", "version", "user_session_id", "user_email",
		"ip_address", "is_complete", "started_at", "completed_at",
	}, slugs...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, it := range items {
		row := i + 2
		sessionID := ""
		if it.UserSessionID != nil {
			sessionID = *it.UserSessionID
		}
		email := ""
		if it.UserEmail != nil {
			email = *it.UserEmail
		}
		ip := ""
		if it.IPAddress != nil {
			ip = *it.IPAddress
		}
		completedAt := ""
		if it.CompletedAt != nil {
			completedAt = it.CompletedAt.Format("2006-01-02 15:04:05")
		}

		var answers map[string]json.RawMessage
		if len(it.Answers) > 0 {
			if err := json.Unmarshal(it.Answers, &answers); err != nil {
				return nil, fmt.Errorf("decode answers for %s: %w", it.ID, err)
			}
		}

		values := []any{
			it.ID,
			it.VersionNumber,
			sessionID,
			email,
			ip,
			it.IsComplete,
			it.StartedAt.Format("2006-01-02 15:04:05"),
			completedAt,
		}
		for _, slug := range slugs {
			values = append(values, answerCell(answers[slug]))
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "H", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// questionSlugs flattens the document's question slugs in display
// order: per page the direct questions first, then each group's
// questions.
func questionSlugs(doc version.FormDoc) []string {
	slugs := make([]string, 0)
	for _, p := range doc.Pages {
		for _, q := range p.Questions {
			slugs = append(slugs, q.Slug)
		}
		for _, g := range p.QuestionGroups {
			for _, q := range g.Questions {
				slugs = append(slugs, q.Slug)
			}
		}
	}
	return slugs
}

// answerCell renders one answer value for a spreadsheet cell: strings
// verbatim, everything else as compact JSON.
func answerCell(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return string(raw)
}

func (s *Service) Summary(ctx context.Context, formSlug string) (*FormSummary, error) {
	var formID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM forms WHERE slug = $1 AND is_active = TRUE
	`, formSlug).Scan(&formID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("load form: %w", err)
	}

	out := FormSummary{FormSlug: formSlug}
	var latest sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM form_versions WHERE form_id = $1),
			(SELECT count(*) FROM form_versions WHERE form_id = $1 AND is_published),
			(SELECT max(version_number) FROM form_versions WHERE form_id = $1 AND is_published),
			(SELECT count(*) FROM form_submissions s JOIN form_versions v ON v.id = s.form_version_id WHERE v.form_id = $1),
			(SELECT count(*) FROM form_submissions s JOIN form_versions v ON v.id = s.form_version_id WHERE v.form_id = $1 AND s.is_complete)
	`, formID).Scan(&out.Versions, &out.PublishedVersions, &latest, &out.Submissions, &out.CompletedSubmissions)
	if err != nil {
		return nil, fmt.Errorf("aggregate summary: %w", err)
	}
	if latest.Valid {
		n := int(latest.Int64)
		out.LatestPublished = &n
	}
	return &out, nil
}
