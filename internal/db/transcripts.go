package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opsdeck/opsdeck/internal/models"
)

// AppendMessage stores one chat message at the end of a conversation.
func (s *Store) AppendMessage(conversationID string, msg models.ChatMessage) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errors.New("conversation id is required")
	}
	if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
		return fmt.Errorf("invalid chat role %q", msg.Role)
	}
	_, err := s.DB.Exec(`INSERT INTO chat_messages (conversation_id, role, content, ts)
		VALUES (?, ?, ?, ?)`,
		conversationID, string(msg.Role), msg.Content, formatTime(msg.Timestamp))
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// Messages returns a conversation's transcript in insertion order.
func (s *Store) Messages(conversationID string) ([]models.ChatMessage, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}
	rows, err := s.DB.Query(`SELECT role, content, ts FROM chat_messages
		WHERE conversation_id = ? ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()
	var out []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		var role, ts string
		if err := rows.Scan(&role, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.Role = models.ChatRole(role)
		if msg.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse chat message ts: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return out, nil
}

// DeleteConversation removes a conversation's transcript. It reports how
// many messages were dropped; zero means the conversation was unknown.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("db store is nil")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return 0, errors.New("conversation id is required")
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM chat_messages WHERE conversation_id = ?`,
		conversationID)
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	dropped, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	return int(dropped), nil
}

// ListConversations returns the distinct conversation ids, most recent
// first.
func (s *Store) ListConversations(ctx context.Context) ([]string, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT conversation_id FROM chat_messages
		GROUP BY conversation_id ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}
