package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CreateHandoffNote persists the outgoing brain's resumable state ahead of
// a transfer handshake (§4.11).
func (s *Store) CreateHandoffNote(ctx context.Context, note HandoffNote) (HandoffNote, error) {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO handoff_notes (id, from_version, to_version, active_conversations, pending_schedules, agent_notes, created_at)
		VALUES (:id, :from_version, :to_version, :active_conversations, :pending_schedules, :agent_notes, :created_at)
	`, note)
	return note, errors.Wrap(err, "failed to insert handoff note")
}

// GetLatestHandoffNote loads the most recently written handoff note, read
// by an incoming brain on startup to resume prior state (§4.11).
func (s *Store) GetLatestHandoffNote(ctx context.Context) (HandoffNote, error) {
	var note HandoffNote
	err := s.db.GetContext(ctx, &note, `SELECT * FROM handoff_notes ORDER BY created_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return HandoffNote{}, nil
	}
	return note, errors.Wrap(err, "failed to load latest handoff note")
}

// SetHandoffNoteToVersion records which incoming version claimed a note.
func (s *Store) SetHandoffNoteToVersion(ctx context.Context, id, toVersion string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE handoff_notes SET to_version = ? WHERE id = ?`, toVersion, id)
	return errors.Wrap(err, "failed to set handoff note to_version")
}
