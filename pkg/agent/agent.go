// Package agent implements the streaming, tool-calling conversation
// runtime (§4.8): chat and chatStream drive the ModelRouter and the
// Unified Tool Registry, and persist the turn once it settles.
package agent

import (
	"context"
	"time"

	"github.com/pkg/errors"

	agentctx "github.com/baker-street/brain/pkg/context"
	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/memory"
	"github.com/baker-street/brain/pkg/metrics"
	"github.com/baker-street/brain/pkg/registry"
	"github.com/baker-street/brain/pkg/router"
	"github.com/baker-street/brain/pkg/store"
)

// maxToolIterations bounds the number of router round-trips a single turn
// may take before the loop is terminated with an error event (§4.8).
const maxToolIterations = 20

// StreamEventType enumerates the lazy chatStream event kinds (§4.8).
type StreamEventType string

const (
	EventDelta      StreamEventType = "delta"
	EventThinking   StreamEventType = "thinking"
	EventToolResult StreamEventType = "tool_result"
	EventDone       StreamEventType = "done"
	EventError      StreamEventType = "error"
)

// StreamEvent is one event of a chatStream sequence.
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	Text           string          `json:"text,omitempty"`
	Tool           string          `json:"tool,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	JobIDs         []string        `json:"jobIds,omitempty"`
	ToolCallCount  int             `json:"toolCallCount,omitempty"`
	Message        string          `json:"message,omitempty"`
	Err            error           `json:"-"`
}

// ChatOptions carries the optional parameters to chat/chatStream.
type ChatOptions struct {
	ConversationID string
	Channel        string
}

// ChatResult is the terminal result of a non-streaming chat call.
type ChatResult struct {
	Response      string
	ConversationID string
	JobIDs        []string
	ToolCallCount int
}

// ToolRegistry is the subset of the Unified Tool Registry the agent loop
// needs (§4.5).
type ToolRegistry interface {
	HasTool(name string) bool
	Execute(ctx context.Context, name string, input map[string]any) (registry.ExecuteResult, error)
	AllToolDefinitions() []router.ToolDefinition
}

// Config configures an Agent.
type Config struct {
	SystemPrompt     string
	UseOAuth         bool
	KeepLastMessages int
	ObserveThreshold int
	ReflectThreshold int
	RetrieveTopK     int
}

// TurnTracker brackets one in-flight agent turn so a brain transfer can
// wait for turns to drain before handing off. *brain.Brain satisfies this.
type TurnTracker interface {
	BeginTurn()
	EndTurn()
}

// Agent wires together the store, router, tool registry and memory
// collaborators into the turn algorithm described in §4.8.
type Agent struct {
	store     *store.Store
	router    *router.Router
	tools     ToolRegistry
	memories  memory.Retriever
	turns     TurnTracker
	observer  *memory.Observer
	reflector *memory.Reflector
	cfg       Config
}

// New constructs an Agent.
func New(st *store.Store, r *router.Router, tools ToolRegistry, memories memory.Retriever, cfg Config) *Agent {
	return &Agent{
		store:     st,
		router:    r,
		tools:     tools,
		memories:  memories,
		observer:  memory.NewObserver(st, r),
		reflector: memory.NewReflector(st, r),
		cfg:       cfg,
	}
}

// SetTurnTracker registers the brain whose in-flight turn count ChatStream
// should bracket. Optional; a nil tracker leaves turns untracked.
func (a *Agent) SetTurnTracker(t TurnTracker) {
	a.turns = t
}

// Chat performs one non-streaming turn by draining ChatStream into a
// single response string (§4.8).
func (a *Agent) Chat(ctx context.Context, message string, opts ChatOptions) (ChatResult, error) {
	var result ChatResult
	var text string
	var streamErr error

	a.ChatStream(ctx, message, opts, func(evt StreamEvent) {
		switch evt.Type {
		case EventDelta:
			text += evt.Text
		case EventDone:
			result = ChatResult{
				Response:       text,
				ConversationID: evt.ConversationID,
				JobIDs:         evt.JobIDs,
				ToolCallCount:  evt.ToolCallCount,
			}
		case EventError:
			if evt.Err != nil {
				streamErr = evt.Err
			} else {
				streamErr = errors.New(evt.Message)
			}
		}
	})
	if streamErr != nil {
		return ChatResult{}, streamErr
	}
	return result, nil
}

// ChatStream drives one turn of the agent loop, emitting events to emit in
// order (§4.8).
func (a *Agent) ChatStream(ctx context.Context, message string, opts ChatOptions, emit func(StreamEvent)) {
	turnStart := time.Now()
	defer func() { metrics.AgentTurnDuration.Observe(time.Since(turnStart).Seconds()) }()

	if a.turns != nil {
		a.turns.BeginTurn()
		defer a.turns.EndTurn()
	}

	conv, err := a.store.GetOrCreateConversation(ctx, opts.ConversationID)
	if err != nil {
		emit(StreamEvent{Type: EventError, Message: err.Error()})
		return
	}

	if _, err := a.store.AddMessage(ctx, conv.ID, store.RoleUser, message); err != nil {
		emit(StreamEvent{Type: EventError, Message: err.Error()})
		return
	}

	topK := a.cfg.RetrieveTopK
	if topK <= 0 {
		topK = 5
	}
	var longTerm []memory.LongTermMemory
	if a.memories != nil {
		longTerm, err = a.memories.Search(ctx, conv.ID, message, topK)
		if err != nil {
			logger.G(ctx).WithError(err).Warn("failed to retrieve long-term memories, continuing without them")
		}
	}

	built, err := agentctx.Build(ctx, a.store, agentctx.Params{
		ConversationID:   conv.ID,
		SystemPrompt:     a.cfg.SystemPrompt,
		LongTermMemories: longTerm,
		UseOAuth:         a.router.UseOAuth(router.ChatParams{Role: "agent"}),
		Channel:          opts.Channel,
		KeepLastMessages: a.cfg.KeepLastMessages,
		ObserveThreshold: a.cfg.ObserveThreshold,
		ReflectThreshold: a.cfg.ReflectThreshold,
	})
	if err != nil {
		emit(StreamEvent{Type: EventError, Message: err.Error()})
		return
	}

	tools := a.tools.AllToolDefinitions()
	messages := built.Messages
	var assistantText string
	var jobIDs []string
	toolCallCount := 0

	for iteration := 0; ; iteration++ {
		if iteration >= maxToolIterations {
			emit(StreamEvent{Type: EventError, Message: "exceeded maximum tool-call iterations"})
			a.persistPartial(ctx, conv.ID, assistantText)
			return
		}

		var turnText string
		var done *router.Response
		streamErr := a.router.ChatStream(ctx, router.ChatParams{
			Role:     "agent",
			System:   built.System,
			Tools:    tools,
			Messages: messages,
		}, func(evt router.StreamEvent) {
			switch evt.Type {
			case router.EventTextDelta:
				turnText += evt.Text
				emit(StreamEvent{Type: EventDelta, Text: evt.Text})
			case router.EventMessageDone:
				done = evt.Response
			}
		})
		if streamErr != nil {
			logger.G(ctx).WithError(streamErr).Error("router call failed mid-turn")
			emit(StreamEvent{Type: EventError, Message: streamErr.Error(), Err: streamErr})
			a.persistPartial(ctx, conv.ID, assistantText+turnText)
			return
		}
		if done == nil {
			emit(StreamEvent{Type: EventError, Message: "chat stream completed without a terminal response"})
			a.persistPartial(ctx, conv.ID, assistantText+turnText)
			return
		}

		assistantText += turnText

		if done.StopReason != router.StopToolUse {
			break
		}

		messages = append(messages, router.Message{Role: "assistant", Content: done.Content})

		for _, block := range done.Content {
			if block.Type != router.BlockToolUse {
				continue
			}
			toolCallCount++
			emit(StreamEvent{Type: EventThinking, Tool: block.ToolName})

			result, execErr := a.tools.Execute(ctx, block.ToolName, block.ToolInput)
			resultText := result.Result
			isError := false
			outcome := "success"
			if execErr != nil {
				resultText = execErr.Error()
				isError = true
				outcome = "error"
			}
			metrics.AgentToolCalls.WithLabelValues(block.ToolName, outcome).Inc()
			if result.JobID != "" {
				jobIDs = append(jobIDs, result.JobID)
			}

			messages = append(messages, router.Message{
				Role: "tool",
				Content: []router.ContentBlock{{
					Type:            router.BlockToolResult,
					ToolResultForID: block.ToolUseID,
					ToolResultText:  resultText,
					ToolResultError: isError,
				}},
			})
			emit(StreamEvent{Type: EventToolResult, Tool: block.ToolName, Summary: resultText})
		}
	}

	if _, err := a.store.AddMessage(ctx, conv.ID, store.RoleAssistant, assistantText); err != nil {
		logger.G(ctx).WithError(err).Error("failed to persist final assistant message")
	}

	emit(StreamEvent{
		Type:           EventDone,
		ConversationID: conv.ID,
		JobIDs:         jobIDs,
		ToolCallCount:  toolCallCount,
	})

	if built.ShouldObserve {
		go a.runBestEffort(conv.ID, a.observer.Run)
	}
	if built.ShouldReflect {
		go a.runBestEffort(conv.ID, a.reflector.Run)
	}
}

func (a *Agent) persistPartial(ctx context.Context, conversationID, text string) {
	if text == "" {
		return
	}
	if _, err := a.store.AddMessage(context.Background(), conversationID, store.RoleAssistant, text); err != nil {
		logger.G(ctx).WithError(err).Error("failed to persist partial assistant message after error")
	}
}

func (a *Agent) runBestEffort(conversationID string, fn func(context.Context, string) error) {
	ctx := context.Background()
	if err := fn(ctx, conversationID); err != nil {
		logger.WithConversation(ctx, conversationID).WithError(err).Warn("background memory pass failed")
	}
}
