package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Operation is one journaled daemon action: a VM create, a deploy, a
// migration run. The journal is what the operator scrolls through to see
// what the daemon did and when.
type Operation struct {
	ID      int64
	Time    time.Time
	Kind    string
	Subject string
	OK      bool
	Message string
	Logs    []string
}

// RecordOperation appends one entry to the journal.
func (s *Store) RecordOperation(ctx context.Context, op Operation) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if strings.TrimSpace(op.Kind) == "" {
		return errors.New("operation kind is required")
	}
	if op.Time.IsZero() {
		op.Time = time.Now()
	}
	var logsJSON any
	if len(op.Logs) > 0 {
		data, err := json.Marshal(op.Logs)
		if err != nil {
			return fmt.Errorf("marshal operation logs: %w", err)
		}
		logsJSON = string(data)
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO operations (ts, kind, subject, ok, message, logs_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(op.Time), op.Kind, nullIfEmpty(op.Subject), boolToInt(op.OK), nullIfEmpty(op.Message), logsJSON)
	if err != nil {
		return fmt.Errorf("record operation: %w", err)
	}
	return nil
}

// ListOperationsTail returns the most recent entries in chronological
// order.
func (s *Store) ListOperationsTail(ctx context.Context, limit int) ([]Operation, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, ts, kind, subject, ok, message, logs_json
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()
	var out []Operation
	for rows.Next() {
		op, err := scanOperationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanOperationRow(scanner interface{ Scan(dest ...any) error }) (Operation, error) {
	var op Operation
	var ts string
	var subject, message, logsJSON sql.NullString
	var ok int
	if err := scanner.Scan(&op.ID, &ts, &op.Kind, &subject, &ok, &message, &logsJSON); err != nil {
		return Operation{}, err
	}
	parsed, err := parseTime(ts)
	if err != nil {
		return Operation{}, fmt.Errorf("parse operation ts: %w", err)
	}
	op.Time = parsed
	op.Subject = subject.String
	op.OK = ok != 0
	op.Message = message.String
	if logsJSON.Valid && logsJSON.String != "" {
		if err := json.Unmarshal([]byte(logsJSON.String), &op.Logs); err != nil {
			return Operation{}, fmt.Errorf("parse operation logs: %w", err)
		}
	}
	return op, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
