package channel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baker-street/brain/pkg/agent"
	"github.com/baker-street/brain/pkg/door"
	"github.com/baker-street/brain/pkg/memory"
	"github.com/baker-street/brain/pkg/registry"
	"github.com/baker-street/brain/pkg/router"
	"github.com/baker-street/brain/pkg/store"
)

func newTestDiscord(t *testing.T) *Discord {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, t.TempDir()+"/brain.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cfg := router.Config{
		Providers: map[string]router.ProviderConfig{"primary": {Kind: router.ProviderAnthropicNative, APIKey: "sk-test"}},
		Models:    []router.ModelConfig{{ID: "agent-model", Provider: "primary", MaxTokens: 4096}},
		Roles:     map[string]string{"agent": "agent-model"},
	}
	r := router.New(cfg, map[router.ProviderKind]router.AdapterFactory{
		router.ProviderAnthropicNative: func(router.ProviderConfig) router.Adapter { return noopAdapter{} },
	})
	ag := agent.New(s, r, noopToolRegistry{}, memory.NoopRetriever{}, agent.Config{SystemPrompt: "be helpful"})
	d := door.New(s, door.ModeOpen)

	disc, err := NewDiscord(DiscordConfig{BotToken: "fake-token"}, ag, d)
	require.NoError(t, err)
	return disc
}

type noopAdapter struct{}

func (noopAdapter) Chat(ctx context.Context, model router.ModelConfig, params router.ChatParams) (router.Response, error) {
	return router.Response{Content: []router.ContentBlock{{Type: router.BlockText, Text: "ok"}}, StopReason: router.StopEndTurn}, nil
}

func (noopAdapter) ChatStream(ctx context.Context, model router.ModelConfig, params router.ChatParams, emit func(router.StreamEvent)) error {
	resp := router.Response{Content: []router.ContentBlock{{Type: router.BlockText, Text: "ok"}}, StopReason: router.StopEndTurn}
	emit(router.StreamEvent{Type: router.EventTextDelta, Text: "ok"})
	emit(router.StreamEvent{Type: router.EventMessageDone, Response: &resp})
	return nil
}

type noopToolRegistry struct{}

func (noopToolRegistry) HasTool(name string) bool { return false }
func (noopToolRegistry) Execute(ctx context.Context, name string, input map[string]any) (registry.ExecuteResult, error) {
	return registry.ExecuteResult{}, nil
}
func (noopToolRegistry) AllToolDefinitions() []router.ToolDefinition { return nil }

func TestName_ReturnsDiscord(t *testing.T) {
	disc := newTestDiscord(t)
	assert.Equal(t, "discord", disc.Name())
}

func TestConversationFor_EmptyUntilSet(t *testing.T) {
	disc := newTestDiscord(t)
	assert.Equal(t, "", disc.conversationFor("chan-1"))

	disc.setConversation("chan-1", "conv-abc")
	assert.Equal(t, "conv-abc", disc.conversationFor("chan-1"))
	assert.Equal(t, "", disc.conversationFor("chan-2"))
}
