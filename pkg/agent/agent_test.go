package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baker-street/brain/pkg/memory"
	"github.com/baker-street/brain/pkg/registry"
	"github.com/baker-street/brain/pkg/router"
	"github.com/baker-street/brain/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, t.TempDir()+"/brain.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// scriptedAdapter replays a fixed sequence of router.Response values, one
// per ChatStream call, so a multi-turn tool-calling loop can be exercised
// deterministically.
type scriptedAdapter struct {
	turns []router.Response
	calls int
}

func (a *scriptedAdapter) Chat(ctx context.Context, model router.ModelConfig, params router.ChatParams) (router.Response, error) {
	return router.Response{}, nil
}

func (a *scriptedAdapter) ChatStream(ctx context.Context, model router.ModelConfig, params router.ChatParams, emit func(router.StreamEvent)) error {
	resp := a.turns[a.calls]
	a.calls++
	for _, block := range resp.Content {
		if block.Type == router.BlockText && block.Text != "" {
			emit(router.StreamEvent{Type: router.EventTextDelta, Text: block.Text})
		}
	}
	emit(router.StreamEvent{Type: router.EventMessageDone, Response: &resp})
	return nil
}

func newTestAgentRouter(turns []router.Response) *router.Router {
	cfg := router.Config{
		Providers: map[string]router.ProviderConfig{
			"primary": {Kind: router.ProviderAnthropicNative, APIKey: "sk-test"},
		},
		Models: []router.ModelConfig{
			{ID: "agent-model", Provider: "primary", MaxTokens: 4096},
		},
		Roles: map[string]string{"agent": "agent-model"},
	}
	adapter := &scriptedAdapter{turns: turns}
	factories := map[router.ProviderKind]router.AdapterFactory{
		router.ProviderAnthropicNative: func(router.ProviderConfig) router.Adapter { return adapter },
	}
	return router.New(cfg, factories)
}

type fakeToolRegistry struct {
	executed []string
}

func (f *fakeToolRegistry) HasTool(name string) bool { return name == "util_time" }

func (f *fakeToolRegistry) Execute(ctx context.Context, name string, input map[string]any) (registry.ExecuteResult, error) {
	f.executed = append(f.executed, name)
	return registry.ExecuteResult{Result: "2026-01-01T00:00:00Z"}, nil
}

func (f *fakeToolRegistry) AllToolDefinitions() []router.ToolDefinition {
	return []router.ToolDefinition{{Name: "util_time", Description: "returns the time"}}
}

func TestChatStream_PlainTurnEmitsDeltaAndDone(t *testing.T) {
	s := newTestStore(t)
	r := newTestAgentRouter([]router.Response{
		{Content: []router.ContentBlock{{Type: router.BlockText, Text: "hello there"}}, StopReason: router.StopEndTurn},
	})
	a := New(s, r, &fakeToolRegistry{}, memory.NoopRetriever{}, Config{SystemPrompt: "be helpful"})

	var events []StreamEvent
	a.ChatStream(context.Background(), "hi", ChatOptions{}, func(e StreamEvent) { events = append(events, e) })

	require.NotEmpty(t, events)
	assert.Equal(t, EventDelta, events[0].Type)
	assert.Equal(t, "hello there", events[0].Text)
	last := events[len(events)-1]
	assert.Equal(t, EventDone, last.Type)
	assert.Equal(t, 0, last.ToolCallCount)
}

type countingTurnTracker struct {
	begun, ended int
}

func (c *countingTurnTracker) BeginTurn() { c.begun++ }
func (c *countingTurnTracker) EndTurn()   { c.ended++ }

func TestChatStream_BracketsRegisteredTurnTracker(t *testing.T) {
	s := newTestStore(t)
	r := newTestAgentRouter([]router.Response{
		{Content: []router.ContentBlock{{Type: router.BlockText, Text: "hi"}}, StopReason: router.StopEndTurn},
	})
	a := New(s, r, &fakeToolRegistry{}, memory.NoopRetriever{}, Config{SystemPrompt: "be helpful"})

	tracker := &countingTurnTracker{}
	a.SetTurnTracker(tracker)

	a.ChatStream(context.Background(), "hi", ChatOptions{}, func(StreamEvent) {})

	assert.Equal(t, 1, tracker.begun)
	assert.Equal(t, 1, tracker.ended)
}

func TestChatStream_ToolCallLoopsAndEmitsToolEvents(t *testing.T) {
	s := newTestStore(t)
	r := newTestAgentRouter([]router.Response{
		{
			Content: []router.ContentBlock{
				{Type: router.BlockToolUse, ToolUseID: "tu1", ToolName: "util_time", ToolInput: map[string]any{}},
			},
			StopReason: router.StopToolUse,
		},
		{Content: []router.ContentBlock{{Type: router.BlockText, Text: "it is 2026-01-01T00:00:00Z"}}, StopReason: router.StopEndTurn},
	})
	tools := &fakeToolRegistry{}
	a := New(s, r, tools, memory.NoopRetriever{}, Config{SystemPrompt: "be helpful"})

	var events []StreamEvent
	a.ChatStream(context.Background(), "what time is it", ChatOptions{}, func(e StreamEvent) { events = append(events, e) })

	require.Equal(t, []string{"util_time"}, tools.executed)

	var sawThinking, sawToolResult, sawDone bool
	for _, e := range events {
		switch e.Type {
		case EventThinking:
			sawThinking = true
			assert.Equal(t, "util_time", e.Tool)
		case EventToolResult:
			sawToolResult = true
			assert.Equal(t, "2026-01-01T00:00:00Z", e.Summary)
		case EventDone:
			sawDone = true
			assert.Equal(t, 1, e.ToolCallCount)
		}
	}
	assert.True(t, sawThinking)
	assert.True(t, sawToolResult)
	assert.True(t, sawDone)
}

func TestChatStream_ExceedsMaxIterationsEmitsError(t *testing.T) {
	s := newTestStore(t)
	turns := make([]router.Response, maxToolIterations+1)
	for i := range turns {
		turns[i] = router.Response{
			Content: []router.ContentBlock{
				{Type: router.BlockToolUse, ToolUseID: "tu", ToolName: "util_time", ToolInput: map[string]any{}},
			},
			StopReason: router.StopToolUse,
		}
	}
	r := newTestAgentRouter(turns)
	a := New(s, r, &fakeToolRegistry{}, memory.NoopRetriever{}, Config{SystemPrompt: "be helpful"})

	var events []StreamEvent
	a.ChatStream(context.Background(), "loop forever", ChatOptions{}, func(e StreamEvent) { events = append(events, e) })

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Message, "maximum tool-call iterations")
}

func TestChat_DrainsStreamIntoSingleResponse(t *testing.T) {
	s := newTestStore(t)
	r := newTestAgentRouter([]router.Response{
		{Content: []router.ContentBlock{{Type: router.BlockText, Text: "hi there"}}, StopReason: router.StopEndTurn},
	})
	a := New(s, r, &fakeToolRegistry{}, memory.NoopRetriever{}, Config{SystemPrompt: "be helpful"})

	result, err := a.Chat(context.Background(), "hello", ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.Response)
	assert.NotEmpty(t, result.ConversationID)
}
