// Package openaicompat implements the router.Adapter for the
// openai-compat provider kind (§4.4): OpenAI-style chat completions at a
// custom base URL, e.g. a local model server.
package openaicompat

import (
	"context"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/baker-street/brain/pkg/apperr"
	"github.com/baker-street/brain/pkg/router"
)

// Adapter talks to an OpenAI-compatible chat completions endpoint.
type Adapter struct {
	client *openai.Client
}

// New constructs an Adapter against baseURL with the given API key.
func New(apiKey, baseURL string) *Adapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Adapter{client: openai.NewClientWithConfig(cfg)}
}

func buildRequest(model router.ModelConfig, params router.ChatParams, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(params.System)+len(params.Messages))
	for _, sys := range params.System {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: sys.Text})
	}
	for _, msg := range params.Messages {
		messages = append(messages, toOpenAIMessage(msg))
	}

	tools := make([]openai.Tool, 0, len(params.Tools))
	for _, t := range params.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = model.MaxTokens
	}

	return openai.ChatCompletionRequest{
		Model:     model.ModelName,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: maxTokens,
		Stream:    stream,
	}
}

func toOpenAIMessage(msg router.Message) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	switch msg.Role {
	case "assistant":
		role = openai.ChatMessageRoleAssistant
	case "tool":
		role = openai.ChatMessageRoleTool
	}

	var text string
	var toolCallID string
	for _, b := range msg.Content {
		switch b.Type {
		case router.BlockText:
			text += b.Text
		case router.BlockToolResult:
			text += b.ToolResultText
			toolCallID = b.ToolResultForID
		}
	}

	return openai.ChatCompletionMessage{Role: role, Content: text, ToolCallID: toolCallID}
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) router.Response {
	if len(resp.Choices) == 0 {
		return router.Response{Content: []router.ContentBlock{}}
	}

	choice := resp.Choices[0]
	blocks := make([]router.ContentBlock, 0, 1+len(choice.Message.ToolCalls))
	if choice.Message.Content != "" {
		blocks = append(blocks, router.ContentBlock{Type: router.BlockText, Text: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		blocks = append(blocks, router.ContentBlock{
			Type:      router.BlockToolUse,
			ToolUseID: call.ID,
			ToolName:  call.Function.Name,
			ToolInput: map[string]any{"_raw": call.Function.Arguments},
		})
	}

	stopReason := router.StopEndTurn
	switch choice.FinishReason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		stopReason = router.StopToolUse
	case openai.FinishReasonLength:
		stopReason = router.StopMaxTokens
	}

	return router.Response{
		Content:    blocks,
		StopReason: stopReason,
		Usage: router.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
}

// Chat performs one non-streaming call (§4.4).
func (a *Adapter) Chat(ctx context.Context, model router.ModelConfig, params router.ChatParams) (router.Response, error) {
	resp, err := a.client.CreateChatCompletion(ctx, buildRequest(model, params, false))
	if err != nil {
		return router.Response{}, apperr.Transient("openai-compat call failed", err)
	}
	return fromOpenAIResponse(resp), nil
}

// ChatStream performs one streaming call (§4.4).
func (a *Adapter) ChatStream(ctx context.Context, model router.ModelConfig, params router.ChatParams, emit func(router.StreamEvent)) error {
	stream, err := a.client.CreateChatCompletionStream(ctx, buildRequest(model, params, true))
	if err != nil {
		return apperr.Transient("openai-compat stream failed", err)
	}
	defer stream.Close()

	var text string
	var finishReason openai.FinishReason
	var usage openai.Usage
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperr.Transient("openai-compat stream read failed", err)
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta != "" {
			text += delta
			emit(router.StreamEvent{Type: router.EventTextDelta, Text: delta})
		}
		if chunk.Choices[0].FinishReason != "" {
			finishReason = chunk.Choices[0].FinishReason
		}
	}

	stopReason := router.StopEndTurn
	if finishReason == openai.FinishReasonLength {
		stopReason = router.StopMaxTokens
	}

	resp := router.Response{
		Content:    []router.ContentBlock{{Type: router.BlockText, Text: text}},
		StopReason: stopReason,
		Usage: router.Usage{
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
		},
	}
	emit(router.StreamEvent{Type: router.EventMessageDone, Response: &resp})
	return nil
}
