package openaicompat

import (
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"

	"github.com/baker-street/brain/pkg/router"
)

func TestBuildRequest_MapsSystemAndMessages(t *testing.T) {
	model := router.ModelConfig{ModelName: "gpt-4o-mini", MaxTokens: 2048}
	params := router.ChatParams{
		System:   []router.SystemBlock{{Text: "be terse"}},
		Messages: []router.Message{router.TextMessage("user", "hi")},
	}

	req := buildRequest(model, params, false)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, 2048, req.MaxTokens)
	assert.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
}

func TestFromOpenAIResponse_MapsToolCalls(t *testing.T) {
	resp := openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{
				FinishReason: openai.FinishReasonToolCalls,
				Message: openai.ChatCompletionMessage{
					ToolCalls: []openai.ToolCall{
						{ID: "call-1", Function: openai.FunctionCall{Name: "util_time", Arguments: "{}"}},
					},
				},
			},
		},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 2},
	}

	result := fromOpenAIResponse(resp)
	assert.Equal(t, router.StopToolUse, result.StopReason)
	assert.Equal(t, 10, result.Usage.InputTokens)
	require := assert.New(t)
	require.Len(result.Content, 1)
	require.Equal(router.BlockToolUse, result.Content[0].Type)
	require.Equal("util_time", result.Content[0].ToolName)
}
