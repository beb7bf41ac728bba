package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// memoryStateColumns allowlists the memory_state columns that
// UpdateMemoryState may set. Callers pass a map of column name to value;
// any key outside this set is rejected before it ever reaches SQL, so a
// caller-supplied field name can never be interpolated into the query
// (§4.1, §9).
var memoryStateColumns = map[string]bool{
	"observed_cursor_message_id": true,
	"unobserved_token_count":     true,
	"observation_token_count":    true,
	"last_observer_run":          true,
	"last_reflector_run":         true,
}

// GetMemoryState loads the memory bookkeeping row for a conversation.
func (s *Store) GetMemoryState(ctx context.Context, conversationID string) (MemoryState, error) {
	var ms MemoryState
	err := s.db.GetContext(ctx, &ms, `SELECT * FROM memory_state WHERE conversation_id = ?`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return MemoryState{}, errors.Errorf("memory state not found: %s", conversationID)
	}
	return ms, errors.Wrap(err, "failed to load memory state")
}

// UpdateMemoryState applies an allowlisted set of column updates under
// optimistic concurrency control: the write only applies if the row's
// current lock_version still equals expectedLockVersion, and the row's
// lock_version is incremented on success (§3, §4.7, §9). It reports
// whether the write applied; a false return with a nil error means the
// caller lost the race and should reload and retry.
func (s *Store) UpdateMemoryState(ctx context.Context, conversationID string, updates map[string]any, expectedLockVersion int) (bool, error) {
	if len(updates) == 0 {
		return true, nil
	}

	setClauses := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+3)
	for col, val := range updates {
		if !memoryStateColumns[col] {
			return false, errors.Errorf("column not allowed in memory state update: %s", col)
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", col))
		args = append(args, val)
	}
	setClauses = append(setClauses, "lock_version = lock_version + 1")

	query := fmt.Sprintf(
		"UPDATE memory_state SET %s WHERE conversation_id = ? AND lock_version = ?",
		strings.Join(setClauses, ", "),
	)
	args = append(args, conversationID, expectedLockVersion)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, "failed to update memory state")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	return rows == 1, nil
}
