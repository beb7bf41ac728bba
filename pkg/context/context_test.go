package context

import (
	stdcontext "context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baker-street/brain/pkg/memory"
	"github.com/baker-street/brain/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := stdcontext.Background()
	s, err := store.Open(ctx, t.TempDir()+"/brain.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBuild_IncludesIdentityPrefixWhenOAuth(t *testing.T) {
	ctx := stdcontext.Background()
	s := newTestStore(t)
	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	built, err := Build(ctx, s, Params{
		ConversationID: conv.ID,
		SystemPrompt:   "be helpful",
		UseOAuth:       true,
	})
	require.NoError(t, err)
	require.Len(t, built.System, 2)
	assert.Contains(t, built.System[0].Text, "Claude Code")
	assert.Equal(t, "be helpful", built.System[1].Text)
	assert.True(t, built.System[1].Cacheable, "cache marker falls on last block when no observation log exists")
}

func TestBuild_ObservationBlockIsCacheableAndLabeled(t *testing.T) {
	ctx := stdcontext.Background()
	s := newTestStore(t)
	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)
	_, err = s.UpsertObservationLog(ctx, conv.ID, "- discussed weather", 8)
	require.NoError(t, err)

	built, err := Build(ctx, s, Params{ConversationID: conv.ID, SystemPrompt: "be helpful"})
	require.NoError(t, err)
	require.Len(t, built.System, 2)
	assert.True(t, built.System[1].Cacheable)
	assert.Contains(t, built.System[1].Text, "Conversation Context (Observations)")
	assert.False(t, built.System[0].Cacheable)
}

func TestBuild_LongTermMemoryBlock(t *testing.T) {
	ctx := stdcontext.Background()
	s := newTestStore(t)
	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	built, err := Build(ctx, s, Params{
		ConversationID: conv.ID,
		SystemPrompt:   "be helpful",
		LongTermMemories: []memory.LongTermMemory{
			{ID: "mem-1", Category: "preference", Content: "prefers terse replies"},
		},
	})
	require.NoError(t, err)
	last := built.System[len(built.System)-1]
	assert.Contains(t, last.Text, "[preference] prefers terse replies (id: mem-1)")
}

func TestBuild_ChannelHintSkippedForWeb(t *testing.T) {
	ctx := stdcontext.Background()
	s := newTestStore(t)
	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	built, err := Build(ctx, s, Params{ConversationID: conv.ID, SystemPrompt: "be helpful", Channel: "web"})
	require.NoError(t, err)
	for _, b := range built.System {
		assert.NotContains(t, b.Text, "responding over")
	}
}

func TestBuild_ChannelHintIncludedForDiscord(t *testing.T) {
	ctx := stdcontext.Background()
	s := newTestStore(t)
	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	built, err := Build(ctx, s, Params{ConversationID: conv.ID, SystemPrompt: "be helpful", Channel: "discord"})
	require.NoError(t, err)
	last := built.System[len(built.System)-1]
	assert.Contains(t, last.Text, "discord")
}

func TestBuild_TailFloorKeepsLastMessagesEvenAtCursorEnd(t *testing.T) {
	ctx := stdcontext.Background()
	s := newTestStore(t)
	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	var lastID string
	for i := 0; i < 5; i++ {
		msg, err := s.AddMessage(ctx, conv.ID, store.RoleUser, "message")
		require.NoError(t, err)
		lastID = msg.ID
	}

	applied, err := s.UpdateMemoryState(ctx, conv.ID, map[string]any{"observed_cursor_message_id": lastID}, 0)
	require.NoError(t, err)
	require.True(t, applied)

	built, err := Build(ctx, s, Params{ConversationID: conv.ID, SystemPrompt: "be helpful", KeepLastMessages: 3})
	require.NoError(t, err)
	assert.Len(t, built.Messages, 3)
}

func TestBuild_ObserveAndReflectFlags(t *testing.T) {
	ctx := stdcontext.Background()
	s := newTestStore(t)
	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conv.ID, store.RoleUser, "a message long enough to carry some tokens")
	require.NoError(t, err)

	built, err := Build(ctx, s, Params{
		ConversationID:   conv.ID,
		SystemPrompt:     "be helpful",
		ObserveThreshold: 1,
		ReflectThreshold: 1000,
	})
	require.NoError(t, err)
	assert.True(t, built.ShouldObserve)
	assert.False(t, built.ShouldReflect)
}
