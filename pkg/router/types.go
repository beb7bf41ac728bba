package router

import (
	"context"
	"strings"
)

// ContentBlockType enumerates the content-block kinds the router keeps
// after validating a response; unknown block types are dropped with a
// warning (§4.4).
type ContentBlockType string

const (
	BlockText       ContentBlockType = "text"
	BlockToolUse    ContentBlockType = "tool_use"
	BlockToolResult ContentBlockType = "tool_result"
)

// ContentBlock is a single unit of assistant content.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// Text is set for BlockText.
	Text string `json:"text,omitempty"`

	// ToolUse fields.
	ToolUseID   string         `json:"toolUseId,omitempty"`
	ToolName    string         `json:"toolName,omitempty"`
	ToolInput   map[string]any `json:"toolInput,omitempty"`

	// ToolResult fields.
	ToolResultForID string `json:"toolResultForId,omitempty"`
	ToolResultText  string `json:"toolResultText,omitempty"`
	ToolResultError bool   `json:"toolResultError,omitempty"`
}

// Message is a single turn passed to the router.
type Message struct {
	Role    string `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage is a convenience constructor for a plain single-text-block
// message, the common case for worker/observer roles.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// Usage carries token accounting for a single call.
type Usage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	InputCost    float64 `json:"inputCost,omitempty"`
	OutputCost   float64 `json:"outputCost,omitempty"`
}

// TotalCost sums the per-direction costs.
func (u Usage) TotalCost() float64 {
	return u.InputCost + u.OutputCost
}

// ToolDefinition is the schema handed to the model for one callable tool.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// StopReason mirrors the wire-level stop reasons the router cares about.
type StopReason string

const (
	StopEndTurn StopReason = "end_turn"
	StopToolUse StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Response is a validated, normalized model response (§4.4).
type Response struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// ChatParams is the input to Chat and ChatStream.
type ChatParams struct {
	Role          string
	ModelOverride string
	System        []SystemBlock
	Messages      []Message
	Tools         []ToolDefinition
	MaxTokens     int
}

// SystemBlock is one block of the system prompt, optionally cache-marked
// (§4.6).
type SystemBlock struct {
	Text      string
	Cacheable bool
}

// StreamEventType enumerates the lazy ChatStream event kinds (§4.4).
type StreamEventType string

const (
	EventTextDelta   StreamEventType = "text_delta"
	EventMessageDone StreamEventType = "message_done"
)

// StreamEvent is one event of a ChatStream sequence.
type StreamEvent struct {
	Type     StreamEventType
	Text     string
	Response *Response
}

// AuditEvent is passed to the callback registered via SetOnAPICall (§4.4).
// Cost is zero when Err is set or usage was unavailable.
type AuditEvent struct {
	Provider     string
	Model        string
	DurationMs   int64
	InputTokens  *int
	OutputTokens *int
	Cost         float64
	Err          error
}

// AuditFunc observes every adapter call, success or failure.
type AuditFunc func(AuditEvent)

// Adapter is implemented by a provider's wire-protocol client. The router
// constructs every adapter lazily, on the first call that needs it (§4.4).
type Adapter interface {
	// Chat performs one non-streaming call.
	Chat(ctx context.Context, model ModelConfig, params ChatParams) (Response, error)
	// ChatStream performs one streaming call, invoking emit for each event
	// in order. ChatStream must invoke emit with exactly one terminal
	// EventMessageDone event on success.
	ChatStream(ctx context.Context, model ModelConfig, params ChatParams, emit func(StreamEvent)) error
}

// ProviderKind enumerates the wire protocols the router understands.
type ProviderKind string

const (
	ProviderAnthropicNative ProviderKind = "anthropic-native"
	ProviderAnthropicCompat ProviderKind = "anthropic-compat"
	ProviderOpenAICompat    ProviderKind = "openai-compat"
)

// ProviderConfig is one entry of the router's providers map.
type ProviderConfig struct {
	Kind       ProviderKind
	APIKey     string
	OAuthToken string
	BaseURL    string
}

// useOAuth reports whether this provider's credentials resolve to an OAuth
// token rather than a plain API key, detected by the sk-ant-oat substring
// per §4.4.
func (p ProviderConfig) useOAuth() bool {
	return p.Kind == ProviderAnthropicNative && strings.Contains(p.OAuthToken, "sk-ant-oat")
}

// credential returns the token to present to the wire protocol and whether
// it resolved via OAuth.
func (p ProviderConfig) credential() (token string, isOAuth bool) {
	if p.useOAuth() {
		return p.OAuthToken, true
	}
	if p.OAuthToken != "" {
		return p.OAuthToken, strings.Contains(p.OAuthToken, "sk-ant-oat")
	}
	return p.APIKey, false
}

// ModelConfig is one entry of the router's ordered models list.
type ModelConfig struct {
	ID                string
	ModelName         string
	Provider          string
	MaxTokens         int
	CostPer1MInput    float64
	CostPer1MOutput   float64
}
