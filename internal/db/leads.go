package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opsdeck/opsdeck/internal/models"
)

// StoredLead is the daemon's local copy of a submitted lead. The upstream
// quiz-api owns the canonical record; this journal survives even when the
// upstream endpoint is later redeployed or wiped.
type StoredLead struct {
	ID             int64
	QuizID         int
	UpstreamLeadID int
	SegmentKey     string
	Contact        models.ContactInfo
	Answers        map[int]int
	CreatedAt      time.Time
}

// RecordLead journals a lead after a successful upstream submit.
// upstreamID may be 0 when the endpoint did not return one.
func (s *Store) RecordLead(ctx context.Context, lead models.Lead, upstreamID int) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if lead.QuizID <= 0 {
		return errors.New("lead quiz id is required")
	}
	answers, err := json.Marshal(lead.Answers)
	if err != nil {
		return fmt.Errorf("marshal lead answers: %w", err)
	}
	var upstream any
	if upstreamID > 0 {
		upstream = upstreamID
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO leads (quiz_id, upstream_lead_id, segment_key, name, phone, email, answers_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.QuizID, upstream, lead.SegmentKey, lead.Contact.Name, lead.Contact.Phone,
		nullIfEmpty(lead.Contact.Email), string(answers), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record lead: %w", err)
	}
	return nil
}

// ListLeadsByQuiz returns a quiz's journaled leads, oldest first.
func (s *Store) ListLeadsByQuiz(ctx context.Context, quizID int) ([]StoredLead, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	if quizID <= 0 {
		return nil, errors.New("quiz id must be positive")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, quiz_id, upstream_lead_id, segment_key, name, phone, email, answers_json, created_at
		FROM leads WHERE quiz_id = ? ORDER BY id ASC`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()
	var out []StoredLead
	for rows.Next() {
		lead, err := scanLeadRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return out, nil
}

func scanLeadRow(scanner interface{ Scan(dest ...any) error }) (StoredLead, error) {
	var lead StoredLead
	var upstream sql.NullInt64
	var email sql.NullString
	var answersJSON, created string
	if err := scanner.Scan(&lead.ID, &lead.QuizID, &upstream, &lead.SegmentKey,
		&lead.Contact.Name, &lead.Contact.Phone, &email, &answersJSON, &created); err != nil {
		return StoredLead{}, fmt.Errorf("scan lead: %w", err)
	}
	if upstream.Valid {
		lead.UpstreamLeadID = int(upstream.Int64)
	}
	lead.Contact.Email = email.String
	if err := json.Unmarshal([]byte(answersJSON), &lead.Answers); err != nil {
		return StoredLead{}, fmt.Errorf("parse lead answers: %w", err)
	}
	var err error
	if lead.CreatedAt, err = parseTime(created); err != nil {
		return StoredLead{}, fmt.Errorf("parse lead created_at: %w", err)
	}
	return lead, nil
}
