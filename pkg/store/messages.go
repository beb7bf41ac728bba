package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// approxTokenCount is a cheap token estimate (chars/4) used for the
// unobserved-token-count bookkeeping that drives observer scheduling
// (§4.7). It deliberately avoids pulling in a tokenizer dependency for a
// bookkeeping heuristic that only needs to be roughly right.
func approxTokenCount(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}

// AddMessage atomically inserts a message, touches the owning conversation's
// updated_at, and bumps its unobserved token count (§4.1).
func (s *Store) AddMessage(ctx context.Context, conversationID string, role MessageRole, content string) (Message, error) {
	now := time.Now().UTC()
	msg := Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Message{}, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (:id, :conversation_id, :role, :content, :created_at)
	`, msg); err != nil {
		return Message{}, errors.Wrap(err, "failed to insert message")
	}

	if err := s.touchConversation(ctx, tx, conversationID, now); err != nil {
		return Message{}, errors.Wrap(err, "failed to touch conversation")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE memory_state SET unobserved_token_count = unobserved_token_count + ? WHERE conversation_id = ?
	`, approxTokenCount(content), conversationID); err != nil {
		return Message{}, errors.Wrap(err, "failed to bump unobserved token count")
	}

	if err := tx.Commit(); err != nil {
		return Message{}, errors.Wrap(err, "failed to commit message insert")
	}
	return msg, nil
}

// ListMessages returns messages for a conversation in chronological order,
// optionally limited to the most recent N (0 means all).
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	var msgs []Message
	var err error
	if limit > 0 {
		err = s.db.SelectContext(ctx, &msgs, `
			SELECT * FROM (
				SELECT * FROM messages WHERE conversation_id = ? ORDER BY created_at DESC LIMIT ?
			) ORDER BY created_at ASC
		`, conversationID, limit)
	} else {
		err = s.db.SelectContext(ctx, &msgs, `
			SELECT * FROM messages WHERE conversation_id = ? ORDER BY created_at ASC
		`, conversationID)
	}
	return msgs, errors.Wrap(err, "failed to list messages")
}

// ListMessagesSince returns messages created after a given message id's
// timestamp, used by the observer to find the unobserved tail (§4.7).
func (s *Store) ListMessagesSince(ctx context.Context, conversationID string, afterMessageID *string) ([]Message, error) {
	if afterMessageID == nil {
		return s.ListMessages(ctx, conversationID, 0)
	}

	var cursor Message
	if err := s.db.GetContext(ctx, &cursor, `SELECT * FROM messages WHERE id = ?`, *afterMessageID); err != nil {
		return nil, errors.Wrap(err, "failed to load cursor message")
	}

	var msgs []Message
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages WHERE conversation_id = ? AND created_at > ? ORDER BY created_at ASC
	`, conversationID, cursor.CreatedAt)
	return msgs, errors.Wrap(err, "failed to list messages since cursor")
}
