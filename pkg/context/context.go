// Package context builds the system blocks, tail messages, and
// observe/reflect flags handed to the ModelRouter for one agent turn
// (§4.6).
package context

import (
	"context"
	"fmt"

	"github.com/baker-street/brain/pkg/memory"
	"github.com/baker-street/brain/pkg/router"
	"github.com/baker-street/brain/pkg/store"
)

// claudeCodeIdentityPrefix is prepended to the system prompt when the
// active model credential is an OAuth token, matching the identity the
// upstream provider expects from that credential (§4.4, §4.6).
const claudeCodeIdentityPrefix = "You are Claude Code, Anthropic's official CLI for Claude."

// Params is the input to Build.
type Params struct {
	ConversationID    string
	SystemPrompt      string
	LongTermMemories  []memory.LongTermMemory
	UseOAuth          bool
	Channel           string
	KeepLastMessages  int
	ObserveThreshold  int
	ReflectThreshold  int
}

// Built is the output of Build: the fully assembled system blocks, the
// tail messages to send, and the observe/reflect flags for this turn.
type Built struct {
	System        []router.SystemBlock
	Messages      []router.Message
	ShouldObserve bool
	ShouldReflect bool
}

const defaultKeepLastMessages = 20

// Build assembles the system blocks and tail messages for one agent turn
// (§4.6).
func Build(ctx context.Context, st *store.Store, params Params) (Built, error) {
	keepLast := params.KeepLastMessages
	if keepLast <= 0 {
		keepLast = defaultKeepLastMessages
	}

	ms, err := st.GetMemoryState(ctx, params.ConversationID)
	if err != nil {
		return Built{}, err
	}

	activeLog, err := st.GetLatestObservationLog(ctx, params.ConversationID)
	if err != nil {
		return Built{}, err
	}

	tail, err := buildTailMessages(ctx, st, params.ConversationID, ms.ObservedCursorMessageID, keepLast)
	if err != nil {
		return Built{}, err
	}

	return Built{
		System:        buildSystemBlocks(params, activeLog),
		Messages:      tail,
		ShouldObserve: ms.UnobservedTokenCount >= params.ObserveThreshold,
		ShouldReflect: ms.ObservationTokenCount >= params.ReflectThreshold,
	}, nil
}

func buildSystemBlocks(params Params, activeLog store.ObservationLogVersion) []router.SystemBlock {
	blocks := make([]router.SystemBlock, 0, 5)
	if params.UseOAuth {
		blocks = append(blocks, router.SystemBlock{Text: claudeCodeIdentityPrefix})
	}
	blocks = append(blocks, router.SystemBlock{Text: params.SystemPrompt})

	hasObservationBlock := activeLog.Text != ""
	if hasObservationBlock {
		blocks = append(blocks, router.SystemBlock{
			Text:      "Conversation Context (Observations)\n" + activeLog.Text,
			Cacheable: true,
		})
	}

	if len(params.LongTermMemories) > 0 {
		blocks = append(blocks, router.SystemBlock{Text: formatLongTermMemories(params.LongTermMemories)})
	}

	if params.Channel != "" && params.Channel != "web" {
		blocks = append(blocks, router.SystemBlock{
			Text: fmt.Sprintf("You are responding over %s. Keep responses concise.", params.Channel),
		})
	}

	if !hasObservationBlock && len(blocks) > 0 {
		blocks[len(blocks)-1].Cacheable = true
	}

	return blocks
}

func formatLongTermMemories(memories []memory.LongTermMemory) string {
	text := "Relevant long-term memories:\n"
	for _, m := range memories {
		text += fmt.Sprintf("- [%s] %s (id: %s)\n", m.Category, m.Content, m.ID)
	}
	return text
}

func buildTailMessages(ctx context.Context, st *store.Store, conversationID string, cursor *string, keepLast int) ([]router.Message, error) {
	var source []store.Message
	var err error
	if cursor == nil {
		source, err = st.ListMessages(ctx, conversationID, 0)
	} else {
		source, err = st.ListMessagesSince(ctx, conversationID, cursor)
	}
	if err != nil {
		return nil, err
	}

	if len(source) < keepLast {
		all, err := st.ListMessages(ctx, conversationID, keepLast)
		if err != nil {
			return nil, err
		}
		source = all
	}

	messages := make([]router.Message, 0, len(source))
	for _, m := range source {
		messages = append(messages, router.TextMessage(string(m.Role), m.Content))
	}
	return messages, nil
}
