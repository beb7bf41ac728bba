package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter is a scripted Adapter used to exercise the router's role
// resolution, fallback and streaming logic without a live provider.
type fakeAdapter struct {
	chatErr   error
	chatResp  Response
	chatCalls int

	streamErr    error
	streamEvents []StreamEvent
}

func (f *fakeAdapter) Chat(ctx context.Context, model ModelConfig, params ChatParams) (Response, error) {
	f.chatCalls++
	if f.chatErr != nil {
		return Response{}, f.chatErr
	}
	return f.chatResp, nil
}

func (f *fakeAdapter) ChatStream(ctx context.Context, model ModelConfig, params ChatParams, emit func(StreamEvent)) error {
	if f.streamErr != nil {
		return f.streamErr
	}
	for _, evt := range f.streamEvents {
		emit(evt)
	}
	return nil
}

func okResponse() Response {
	return Response{
		Content:    []ContentBlock{{Type: BlockText, Text: "hi"}},
		StopReason: StopEndTurn,
		Usage:      Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func newTestRouter(primary, fallback *fakeAdapter) *Router {
	cfg := Config{
		Providers: map[string]ProviderConfig{
			"primary":  {Kind: ProviderAnthropicNative, APIKey: "sk-test"},
			"fallback": {Kind: ProviderOpenAICompat, APIKey: "sk-test-2"},
		},
		Models: []ModelConfig{
			{ID: "primary-model", Provider: "primary", MaxTokens: 4096, CostPer1MInput: 3.0, CostPer1MOutput: 15.0},
			{ID: "fallback-model", Provider: "fallback", MaxTokens: 4096},
		},
		Roles:         map[string]string{"agent": "primary-model"},
		FallbackChain: []string{"fallback-model"},
	}

	factories := map[ProviderKind]AdapterFactory{
		ProviderAnthropicNative: func(ProviderConfig) Adapter { return primary },
		ProviderOpenAICompat:    func(ProviderConfig) Adapter { return fallback },
	}
	return New(cfg, factories)
}

func TestChat_ResolvesRoleAndSucceeds(t *testing.T) {
	primary := &fakeAdapter{chatResp: okResponse()}
	r := newTestRouter(primary, &fakeAdapter{})

	resp, err := r.Chat(context.Background(), ChatParams{Role: "agent"})
	require.NoError(t, err)
	assert.Equal(t, StopEndTurn, resp.StopReason)
	assert.Equal(t, 1, primary.chatCalls)
}

func TestChat_UnknownRole(t *testing.T) {
	r := newTestRouter(&fakeAdapter{}, &fakeAdapter{})
	_, err := r.Chat(context.Background(), ChatParams{Role: "nonexistent"})
	assert.ErrorContains(t, err, "unknown role")
}

func TestChat_FallsThroughOnPrimaryFailure(t *testing.T) {
	primary := &fakeAdapter{chatErr: assertErr("primary down")}
	fallback := &fakeAdapter{chatResp: okResponse()}
	r := newTestRouter(primary, fallback)

	resp, err := r.Chat(context.Background(), ChatParams{Role: "agent"})
	require.NoError(t, err)
	assert.Equal(t, StopEndTurn, resp.StopReason)
	assert.Equal(t, 1, fallback.chatCalls)
}

func TestChat_InvalidResponseShape(t *testing.T) {
	primary := &fakeAdapter{chatResp: Response{Content: nil, Usage: Usage{InputTokens: 1}}}
	r := newTestRouter(primary, &fakeAdapter{chatErr: assertErr("fallback also bad")})

	_, err := r.Chat(context.Background(), ChatParams{Role: "agent"})
	assert.Error(t, err)
}

func TestChatStream_NoFallbackOnBreakerOpen(t *testing.T) {
	primary := &fakeAdapter{streamErr: assertErr("boom")}
	r := newTestRouter(primary, &fakeAdapter{})

	// Trip the breaker with enough failures.
	for i := 0; i < 5; i++ {
		_ = r.ChatStream(context.Background(), ChatParams{Role: "agent"}, func(StreamEvent) {})
	}

	var events []StreamEvent
	err := r.ChatStream(context.Background(), ChatParams{Role: "agent"}, func(e StreamEvent) { events = append(events, e) })
	assert.Error(t, err)
	assert.Empty(t, events)
}

func TestChatStream_EmitsEventsInOrder(t *testing.T) {
	resp := okResponse()
	primary := &fakeAdapter{streamEvents: []StreamEvent{
		{Type: EventTextDelta, Text: "hel"},
		{Type: EventTextDelta, Text: "lo"},
		{Type: EventMessageDone, Response: &resp},
	}}
	r := newTestRouter(primary, &fakeAdapter{})

	var events []StreamEvent
	err := r.ChatStream(context.Background(), ChatParams{Role: "agent"}, func(e StreamEvent) { events = append(events, e) })
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventMessageDone, events[2].Type)
}

func TestUpdateConfig_MergesRolesAndFallback(t *testing.T) {
	r := newTestRouter(&fakeAdapter{}, &fakeAdapter{})
	r.UpdateConfig(map[string]string{"observer": "fallback-model"}, nil)

	r.mu.RLock()
	defer r.mu.RUnlock()
	assert.Equal(t, "fallback-model", r.cfg.Roles["observer"])
	assert.Equal(t, "primary-model", r.cfg.Roles["agent"])
}

func TestChat_ComputesUsageCostFromModelRates(t *testing.T) {
	primary := &fakeAdapter{chatResp: okResponse()}
	r := newTestRouter(primary, &fakeAdapter{})

	resp, err := r.Chat(context.Background(), ChatParams{Role: "agent"})
	require.NoError(t, err)
	// okResponse uses 10 input / 5 output tokens against 3.0/15.0 per-million rates.
	assert.InDelta(t, 10.0/1_000_000*3.0, resp.Usage.InputCost, 1e-9)
	assert.InDelta(t, 5.0/1_000_000*15.0, resp.Usage.OutputCost, 1e-9)
}

func TestChat_EmitsAuditEventWithCost(t *testing.T) {
	primary := &fakeAdapter{chatResp: okResponse()}
	r := newTestRouter(primary, &fakeAdapter{})

	var captured AuditEvent
	r.SetOnAPICall(func(evt AuditEvent) { captured = evt })

	_, err := r.Chat(context.Background(), ChatParams{Role: "agent"})
	require.NoError(t, err)
	assert.Greater(t, captured.Cost, 0.0)
	require.NotNil(t, captured.InputTokens)
	assert.Equal(t, 10, *captured.InputTokens)
}

func TestUseOAuth_DetectsOAuthToken(t *testing.T) {
	cfg := Config{
		Providers: map[string]ProviderConfig{
			"primary": {Kind: ProviderAnthropicNative, OAuthToken: "sk-ant-oat01-abc"},
		},
		Models: []ModelConfig{{ID: "primary-model", Provider: "primary"}},
		Roles:  map[string]string{"agent": "primary-model"},
	}
	r := New(cfg, map[ProviderKind]AdapterFactory{ProviderAnthropicNative: func(ProviderConfig) Adapter { return &fakeAdapter{} }})

	assert.True(t, r.UseOAuth(ChatParams{Role: "agent"}))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
