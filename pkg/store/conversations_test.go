package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateConversation_CreatesOnMiss(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)

	ms, err := s.GetMemoryState(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, ms.LockVersion)
	assert.Equal(t, 0, ms.UnobservedTokenCount)
}

func TestGetOrCreateConversation_ReturnsExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	second, err := s.GetOrCreateConversation(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestListConversations_OrdersByUpdatedAtDesc(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)
	second, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, first.ID, RoleUser, "touch me last")
	require.NoError(t, err)

	convs, err := s.ListConversations(ctx, ConversationQuery{})
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID, convs[0].ID)
	assert.Equal(t, second.ID, convs[1].ID)
}

func TestListConversations_FiltersBySearchTerm(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)
	title := "Trip planning"
	_, execErr := s.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, conv.ID)
	require.NoError(t, execErr)

	other, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	matches, err := s.ListConversations(ctx, ConversationQuery{Search: "trip"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, conv.ID, matches[0].ID)

	none, err := s.ListConversations(ctx, ConversationQuery{Search: "nonexistent"})
	require.NoError(t, err)
	assert.Empty(t, none)
	_ = other
}

func TestListConversations_SortsByMessageCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	quiet, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)
	busy, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, busy.ID, RoleUser, "one")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, busy.ID, RoleUser, "two")
	require.NoError(t, err)

	convs, err := s.ListConversations(ctx, ConversationQuery{SortBy: "messageCount"})
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, busy.ID, convs[0].ID)
	assert.Equal(t, quiet.ID, convs[1].ID)
}
