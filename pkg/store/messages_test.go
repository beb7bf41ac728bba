package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMessage_BumpsUnobservedTokenCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, conv.ID, RoleUser, "hello there")
	require.NoError(t, err)

	ms, err := s.GetMemoryState(ctx, conv.ID)
	require.NoError(t, err)
	assert.Greater(t, ms.UnobservedTokenCount, 0)
}

func TestListMessages_ChronologicalOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	first, err := s.AddMessage(ctx, conv.ID, RoleUser, "first")
	require.NoError(t, err)
	second, err := s.AddMessage(ctx, conv.ID, RoleAssistant, "second")
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, second.ID, msgs[1].ID)
}

func TestListMessagesSince_ReturnsOnlyTail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	first, err := s.AddMessage(ctx, conv.ID, RoleUser, "first")
	require.NoError(t, err)
	second, err := s.AddMessage(ctx, conv.ID, RoleAssistant, "second")
	require.NoError(t, err)

	tail, err := s.ListMessagesSince(ctx, conv.ID, &first.ID)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, second.ID, tail[0].ID)

	all, err := s.ListMessagesSince(ctx, conv.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
