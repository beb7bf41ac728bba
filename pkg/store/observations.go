package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CreateObservation persists a single observer-produced summary of a
// contiguous message range (§4.7).
func (s *Store) CreateObservation(ctx context.Context, obs Observation) (Observation, error) {
	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO observations (id, conversation_id, created_at, text, token_count, tags, source_message_from, source_message_to)
		VALUES (:id, :conversation_id, :created_at, :text, :token_count, :tags, :source_message_from, :source_message_to)
	`, obs)
	return obs, errors.Wrap(err, "failed to insert observation")
}

// ListObservations returns every observation for a conversation, oldest first.
func (s *Store) ListObservations(ctx context.Context, conversationID string) ([]Observation, error) {
	var obs []Observation
	err := s.db.SelectContext(ctx, &obs, `
		SELECT * FROM observations WHERE conversation_id = ? ORDER BY created_at ASC
	`, conversationID)
	return obs, errors.Wrap(err, "failed to list observations")
}

// UpsertObservationLog appends a new version of the reflector's active
// long-term-memory summary block for a conversation. Versions are
// append-only (§3): a new row is inserted with version = previous + 1,
// never mutated in place, so the history can be audited or rolled back.
func (s *Store) UpsertObservationLog(ctx context.Context, conversationID, text string, tokenCount int) (ObservationLogVersion, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ObservationLogVersion{}, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var nextVersion int
	err = tx.GetContext(ctx, &nextVersion, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM observation_log WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return ObservationLogVersion{}, errors.Wrap(err, "failed to compute next observation log version")
	}

	entry := ObservationLogVersion{
		ConversationID: conversationID,
		Version:        nextVersion,
		Text:           text,
		TokenCount:     tokenCount,
	}
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO observation_log (conversation_id, version, text, token_count, created_at)
		VALUES (:conversation_id, :version, :text, :token_count, CURRENT_TIMESTAMP)
	`, entry); err != nil {
		return ObservationLogVersion{}, errors.Wrap(err, "failed to insert observation log version")
	}

	if err := tx.Commit(); err != nil {
		return ObservationLogVersion{}, errors.Wrap(err, "failed to commit observation log append")
	}

	return s.GetLatestObservationLog(ctx, conversationID)
}

// GetLatestObservationLog loads the most recent observation log version for
// a conversation, used by the context builder's long-term memory block
// (§4.6).
func (s *Store) GetLatestObservationLog(ctx context.Context, conversationID string) (ObservationLogVersion, error) {
	var entry ObservationLogVersion
	err := s.db.GetContext(ctx, &entry, `
		SELECT * FROM observation_log WHERE conversation_id = ? ORDER BY version DESC LIMIT 1
	`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return ObservationLogVersion{}, nil
	}
	return entry, errors.Wrap(err, "failed to load latest observation log")
}
