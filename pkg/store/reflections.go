package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CreateReflection records a reflector pass that replaced one observation
// log version with a compressed one (§4.7).
func (s *Store) CreateReflection(ctx context.Context, conversationID string, replacedVersion, newVersion int) (Reflection, error) {
	r := Reflection{
		ID:              uuid.New().String(),
		ConversationID:  conversationID,
		ReplacedVersion: replacedVersion,
		NewVersion:      newVersion,
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO reflections (id, conversation_id, replaced_version, new_version, created_at)
		VALUES (:id, :conversation_id, :replaced_version, :new_version, CURRENT_TIMESTAMP)
	`, r)
	return r, errors.Wrap(err, "failed to insert reflection")
}

// ListReflections returns every reflection for a conversation, oldest first.
func (s *Store) ListReflections(ctx context.Context, conversationID string) ([]Reflection, error) {
	var rs []Reflection
	err := s.db.SelectContext(ctx, &rs, `
		SELECT * FROM reflections WHERE conversation_id = ? ORDER BY created_at ASC
	`, conversationID)
	return rs, errors.Wrap(err, "failed to list reflections")
}
