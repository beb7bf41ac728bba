package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// GetOrCreateConversation loads a conversation by id, creating it (and its
// memory-state row) lazily on first use if id is empty or unknown (§3).
func (s *Store) GetOrCreateConversation(ctx context.Context, id string) (Conversation, error) {
	if id != "" {
		conv, err := s.GetConversation(ctx, id)
		if err == nil {
			return conv, nil
		}
	}

	now := time.Now().UTC()
	if id == "" {
		id = uuid.New().String()
	}
	conv := Conversation{ID: id, CreatedAt: now, UpdatedAt: now}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Conversation{}, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO conversations (id, title, created_at, updated_at) VALUES (:id, :title, :created_at, :updated_at)
	`, conv); err != nil {
		return Conversation{}, errors.Wrap(err, "failed to insert conversation")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memory_state (conversation_id, unobserved_token_count, observation_token_count, lock_version)
		VALUES (?, 0, 0, 0)
	`, conv.ID); err != nil {
		return Conversation{}, errors.Wrap(err, "failed to insert memory state")
	}

	if err := tx.Commit(); err != nil {
		return Conversation{}, errors.Wrap(err, "failed to commit conversation creation")
	}
	return conv, nil
}

// GetConversation loads a conversation row by id.
func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var conv Conversation
	err := s.db.GetContext(ctx, &conv, `SELECT * FROM conversations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, errors.Errorf("conversation not found: %s", id)
	}
	return conv, errors.Wrap(err, "failed to load conversation")
}

// ConversationQuery filters and sorts the conversation listing (supplemented
// search/sort feature, additive to the plain listing).
type ConversationQuery struct {
	Search string
	SortBy string // "createdAt", "updatedAt" (default), or "messageCount"
	Limit  int
}

// ListConversations returns conversations matching q, most recently updated
// first unless q.SortBy says otherwise. Search matches case-insensitively
// against the conversation title.
func (s *Store) ListConversations(ctx context.Context, q ConversationQuery) ([]Conversation, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	sortColumn := "c.updated_at"
	switch q.SortBy {
	case "createdAt":
		sortColumn = "c.created_at"
	case "messageCount":
		sortColumn = "message_count"
	}

	query := `
		SELECT c.*, (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count
		FROM conversations c`
	args := []any{}
	if q.Search != "" {
		query += ` WHERE LOWER(c.title) LIKE ?`
		args = append(args, "%"+strings.ToLower(q.Search)+"%")
	}
	query += ` ORDER BY ` + sortColumn + ` DESC LIMIT ?`
	args = append(args, limit)

	var rows []conversationWithCount
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}

	convs := make([]Conversation, len(rows))
	for i, row := range rows {
		convs[i] = row.Conversation
	}
	return convs, nil
}

type conversationWithCount struct {
	Conversation
	MessageCount int `db:"message_count" json:"messageCount"`
}

func (s *Store) touchConversation(ctx context.Context, tx txLike, id string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, at, id)
	return err
}

// txLike is satisfied by both *sqlx.Tx and *sqlx.DB, letting helpers run
// either inside or outside an explicit transaction.
type txLike interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
