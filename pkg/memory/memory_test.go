package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baker-street/brain/pkg/router"
	"github.com/baker-street/brain/pkg/store"
)

type fakeObserverAdapter struct {
	text string
}

func (f *fakeObserverAdapter) Chat(ctx context.Context, model router.ModelConfig, params router.ChatParams) (router.Response, error) {
	return router.Response{
		Content:    []router.ContentBlock{{Type: router.BlockText, Text: f.text}},
		StopReason: router.StopEndTurn,
		Usage:      router.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (f *fakeObserverAdapter) ChatStream(ctx context.Context, model router.ModelConfig, params router.ChatParams, emit func(router.StreamEvent)) error {
	return nil
}

func newTestObserverRouter(text string) *router.Router {
	cfg := router.Config{
		Providers: map[string]router.ProviderConfig{
			"primary": {Kind: router.ProviderAnthropicNative, APIKey: "sk-test"},
		},
		Models: []router.ModelConfig{
			{ID: "observer-model", Provider: "primary", MaxTokens: 4096},
		},
		Roles: map[string]string{"observer": "observer-model"},
	}
	factories := map[router.ProviderKind]router.AdapterFactory{
		router.ProviderAnthropicNative: func(router.ProviderConfig) router.Adapter { return &fakeObserverAdapter{text: text} },
	}
	return router.New(cfg, factories)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, t.TempDir()+"/brain.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestObserver_SummarizesUnobservedTailAndAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, conv.ID, store.RoleUser, "what's the weather like")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conv.ID, store.RoleAssistant, "it is sunny today")
	require.NoError(t, err)

	obs := NewObserver(s, newTestObserverRouter("- discussed today's weather"))
	require.NoError(t, obs.Run(ctx, conv.ID))

	ms, err := s.GetMemoryState(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, ms.ObservedCursorMessageID)
	assert.Equal(t, 0, ms.UnobservedTokenCount)
	assert.Equal(t, 1, ms.LockVersion)

	log, err := s.GetLatestObservationLog(ctx, conv.ID)
	require.NoError(t, err)
	assert.Contains(t, log.Text, "discussed today's weather")
}

func TestObserver_NoOpWhenNothingUnobserved(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	obs := NewObserver(s, newTestObserverRouter("irrelevant"))
	require.NoError(t, obs.Run(ctx, conv.ID))

	ms, err := s.GetMemoryState(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, ms.LockVersion)
}

func TestReflector_CompressesActiveLogAndRecordsReflection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	_, err = s.UpsertObservationLog(ctx, conv.ID, "- fact one\n- fact two\n- fact three", 30)
	require.NoError(t, err)

	refl := NewReflector(s, newTestObserverRouter("- facts one through three, compressed"))
	require.NoError(t, refl.Run(ctx, conv.ID))

	log, err := s.GetLatestObservationLog(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, log.Version)
	assert.Contains(t, log.Text, "compressed")

	reflections, err := s.ListReflections(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, reflections, 1)
	assert.Equal(t, 1, reflections[0].ReplacedVersion)
	assert.Equal(t, 2, reflections[0].NewVersion)
}

func TestReflector_NoOpWhenNoActiveLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	conv, err := s.GetOrCreateConversation(ctx, "")
	require.NoError(t, err)

	refl := NewReflector(s, newTestObserverRouter("irrelevant"))
	require.NoError(t, refl.Run(ctx, conv.ID))

	reflections, err := s.ListReflections(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, reflections)
}
