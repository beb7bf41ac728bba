// Package anthropic implements the router.Adapter for the anthropic-native
// and anthropic-compat provider kinds (§4.4), wrapping anthropic-sdk-go.
package anthropic

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/baker-street/brain/pkg/apperr"
	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/router"
)

// Adapter talks to Anthropic's Messages API, either the hosted native
// endpoint or an anthropic-compat endpoint at a custom base URL (e.g.
// OpenRouter).
type Adapter struct {
	client anthropic.Client
}

// New constructs an Adapter. token is either an API key or an OAuth
// bearer token; baseURL is empty for the native provider.
func New(token, baseURL string, isOAuth bool) *Adapter {
	opts := []option.RequestOption{}
	if isOAuth {
		opts = append(opts, option.WithHeader("Authorization", "Bearer "+token))
	} else if token != "" {
		opts = append(opts, option.WithAPIKey(token))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Adapter{client: anthropic.NewClient(opts...)}
}

func buildParams(model router.ModelConfig, params router.ChatParams) anthropic.MessageNewParams {
	systemBlocks := make([]anthropic.TextBlockParam, 0, len(params.System))
	for _, block := range params.System {
		tb := anthropic.TextBlockParam{Text: block.Text}
		if block.Cacheable {
			tb.CacheControl = anthropic.CacheControlEphemeralParam{Type: "ephemeral"}
		}
		systemBlocks = append(systemBlocks, tb)
	}

	messages := make([]anthropic.MessageParam, 0, len(params.Messages))
	for _, msg := range params.Messages {
		messages = append(messages, toAnthropicMessage(msg))
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(params.Tools))
	for _, t := range params.Tools {
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: t.InputSchema},
			},
		})
	}

	maxTokens := int64(params.MaxTokens)
	if maxTokens == 0 {
		maxTokens = int64(model.MaxTokens)
	}

	return anthropic.MessageNewParams{
		Model:     anthropic.Model(model.ModelName),
		MaxTokens: maxTokens,
		System:    systemBlocks,
		Messages:  messages,
		Tools:     tools,
	}
}

func toAnthropicMessage(msg router.Message) anthropic.MessageParam {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
	for _, b := range msg.Content {
		switch b.Type {
		case router.BlockText:
			blocks = append(blocks, anthropic.NewTextBlock(b.Text))
		case router.BlockToolResult:
			blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolResultForID, b.ToolResultText, b.ToolResultError))
		case router.BlockToolUse:
			blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUseID, b.ToolInput, b.ToolName))
		}
	}

	if msg.Role == "assistant" {
		return anthropic.NewAssistantMessage(blocks...)
	}
	return anthropic.NewUserMessage(blocks...)
}

func fromAnthropicMessage(msg *anthropic.Message) router.Response {
	blocks := make([]router.ContentBlock, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			blocks = append(blocks, router.ContentBlock{Type: router.BlockText, Text: variant.Text})
		case anthropic.ToolUseBlock:
			input := map[string]any{}
			if err := json.Unmarshal(variant.Input, &input); err != nil {
				input["_raw"] = string(variant.Input)
			}
			blocks = append(blocks, router.ContentBlock{
				Type:      router.BlockToolUse,
				ToolUseID: variant.ID,
				ToolName:  variant.Name,
				ToolInput: input,
			})
		}
	}

	stopReason := router.StopEndTurn
	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		stopReason = router.StopToolUse
	case anthropic.StopReasonMaxTokens:
		stopReason = router.StopMaxTokens
	}

	return router.Response{
		Content:    blocks,
		StopReason: stopReason,
		Usage: router.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}

// Chat performs one non-streaming call (§4.4).
func (a *Adapter) Chat(ctx context.Context, model router.ModelConfig, params router.ChatParams) (router.Response, error) {
	msg, err := a.client.Messages.New(ctx, buildParams(model, params))
	if err != nil {
		return router.Response{}, apperr.Transient("anthropic call failed", err)
	}
	return fromAnthropicMessage(msg), nil
}

// ChatStream performs one streaming call, accumulating deltas into a
// final message and emitting text_delta events as they arrive (§4.4).
func (a *Adapter) ChatStream(ctx context.Context, model router.ModelConfig, params router.ChatParams, emit func(router.StreamEvent)) error {
	stream := a.client.Messages.NewStreaming(ctx, buildParams(model, params))
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			logger.G(ctx).WithError(err).Warn("error accumulating anthropic stream event")
			continue
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := eventVariant.Delta.AsAny().(anthropic.TextDelta); ok {
				emit(router.StreamEvent{Type: router.EventTextDelta, Text: delta.Text})
			}
		}
	}

	if err := stream.Err(); err != nil {
		return apperr.Transient("anthropic stream failed", err)
	}

	resp := fromAnthropicMessage(&message)
	emit(router.StreamEvent{Type: router.EventMessageDone, Response: &resp})
	return nil
}
