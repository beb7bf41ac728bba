package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateMemoryState_AppliesWhenLockVersionMatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	now := time.Now().UTC()
	applied, err := s.UpdateMemoryState(ctx, conv.ID, map[string]any{
		"unobserved_token_count": 0,
		"last_observer_run":      now,
	}, 0)
	require.NoError(t, err)
	assert.True(t, applied)

	ms, err := s.GetMemoryState(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ms.LockVersion)
	require.NotNil(t, ms.LastObserverRun)
}

func TestUpdateMemoryState_RejectsStaleLockVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	applied, err := s.UpdateMemoryState(ctx, conv.ID, map[string]any{"unobserved_token_count": 5}, 7)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestUpdateMemoryState_RejectsUnknownColumn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	_, err = s.UpdateMemoryState(ctx, conv.ID, map[string]any{"conversation_id": "evil"}, 0)
	assert.ErrorContains(t, err, "column not allowed")
}
