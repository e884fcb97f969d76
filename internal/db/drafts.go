package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opsdeck/opsdeck/internal/models"
)

// ErrDraftNotFound marks a missing quiz draft.
var ErrDraftNotFound = errors.New("quiz draft not found")

// Draft is a quiz-builder work in progress, keyed by slug. Drafts survive
// daemon restarts so an unsaved tree is never lost.
type Draft struct {
	Slug      string
	Title     string
	Quiz      models.Quiz
	UpdatedAt time.Time
}

// SaveDraft inserts or replaces the draft for the quiz's slug.
func (s *Store) SaveDraft(ctx context.Context, quiz models.Quiz) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if strings.TrimSpace(quiz.Slug) == "" {
		return errors.New("draft slug is required")
	}
	payload, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal draft %s: %w", quiz.Slug, err)
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO quiz_drafts (slug, title, quiz_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET title = excluded.title, quiz_json = excluded.quiz_json, updated_at = excluded.updated_at`,
		quiz.Slug, quiz.Title, string(payload), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save draft %s: %w", quiz.Slug, err)
	}
	return nil
}

// GetDraft loads one draft by slug.
func (s *Store) GetDraft(ctx context.Context, slug string) (Draft, error) {
	if s == nil || s.DB == nil {
		return Draft{}, errors.New("db store is nil")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Draft{}, errors.New("draft slug is required")
	}
	row := s.DB.QueryRowContext(ctx, `SELECT slug, title, quiz_json, updated_at FROM quiz_drafts WHERE slug = ?`, slug)
	draft, err := scanDraftRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, fmt.Errorf("%w: %s", ErrDraftNotFound, slug)
	}
	return draft, err
}

// ListDrafts returns every draft, most recently updated first, without the
// quiz trees.
func (s *Store) ListDrafts(ctx context.Context) ([]Draft, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT slug, title, updated_at FROM quiz_drafts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()
	var out []Draft
	for rows.Next() {
		var d Draft
		var updated string
		if err := rows.Scan(&d.Slug, &d.Title, &updated); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		if d.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("parse draft updated_at: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return out, nil
}

// DeleteDraft removes a draft, typically after a successful upstream save.
func (s *Store) DeleteDraft(ctx context.Context, slug string) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return errors.New("draft slug is required")
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM quiz_drafts WHERE slug = ?`, slug)
	if err != nil {
		return fmt.Errorf("delete draft %s: %w", slug, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete draft %s: %w", slug, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrDraftNotFound, slug)
	}
	return nil
}

func scanDraftRow(scanner interface{ Scan(dest ...any) error }) (Draft, error) {
	var d Draft
	var quizJSON, updated string
	if err := scanner.Scan(&d.Slug, &d.Title, &quizJSON, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Draft{}, err
		}
		return Draft{}, fmt.Errorf("scan draft: %w", err)
	}
	if err := json.Unmarshal([]byte(quizJSON), &d.Quiz); err != nil {
		return Draft{}, fmt.Errorf("parse draft quiz: %w", err)
	}
	var err error
	if d.UpdatedAt, err = parseTime(updated); err != nil {
		return Draft{}, fmt.Errorf("parse draft updated_at: %w", err)
	}
	return d, nil
}
