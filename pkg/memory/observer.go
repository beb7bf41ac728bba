package memory

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/router"
	"github.com/baker-street/brain/pkg/store"
)

// Observer summarizes the unobserved tail of a conversation into a new
// observation, then appends it to the active observation log (§4.7). Both
// passes are best-effort: failures are logged but never surfaced to the
// user-visible turn.
type Observer struct {
	store  *store.Store
	router *router.Router
}

// NewObserver constructs an Observer.
func NewObserver(st *store.Store, r *router.Router) *Observer {
	return &Observer{store: st, router: r}
}

// Run selects the message range (observedCursor, latestMessage], summarizes
// it via the observer role, and CAS-updates memory state. On CAS failure
// (another pass already ran) it aborts cleanly without side effects.
func (o *Observer) Run(ctx context.Context, conversationID string) error {
	ms, err := o.store.GetMemoryState(ctx, conversationID)
	if err != nil {
		return errors.Wrap(err, "failed to load memory state")
	}

	tail, err := o.store.ListMessagesSince(ctx, conversationID, ms.ObservedCursorMessageID)
	if err != nil {
		return errors.Wrap(err, "failed to list unobserved messages")
	}
	if len(tail) == 0 {
		return nil
	}

	summary, err := o.summarize(ctx, tail)
	if err != nil {
		return errors.Wrap(err, "failed to summarize messages")
	}

	latest := tail[len(tail)-1]
	obs, err := o.store.CreateObservation(ctx, store.Observation{
		ConversationID:    conversationID,
		Text:              summary,
		TokenCount:        approxTokenCount(summary),
		SourceMessageFrom: tail[0].ID,
		SourceMessageTo:   latest.ID,
	})
	if err != nil {
		return errors.Wrap(err, "failed to persist observation")
	}

	previous, err := o.store.GetLatestObservationLog(ctx, conversationID)
	if err != nil {
		return errors.Wrap(err, "failed to load active observation log")
	}

	appended := previous.Text
	if appended != "" {
		appended += "\n"
	}
	appended += "- " + obs.Text

	newLog, err := o.store.UpsertObservationLog(ctx, conversationID, appended, approxTokenCount(appended))
	if err != nil {
		return errors.Wrap(err, "failed to append observation log")
	}

	observedTokens := 0
	for _, m := range tail {
		observedTokens += approxTokenCount(m.Content)
	}

	latestID := latest.ID
	applied, err := o.store.UpdateMemoryState(ctx, conversationID, map[string]any{
		"observed_cursor_message_id": latestID,
		"unobserved_token_count":     max(0, ms.UnobservedTokenCount-observedTokens),
		"observation_token_count":    newLog.TokenCount,
		"last_observer_run":         time.Now().UTC(),
	}, ms.LockVersion)
	if err != nil {
		return errors.Wrap(err, "failed to update memory state")
	}
	if !applied {
		logger.WithConversation(ctx, conversationID).Debug("observer lost the memory state CAS race, aborting")
	}
	return nil
}

func (o *Observer) summarize(ctx context.Context, messages []store.Message) (string, error) {
	var prompt strings.Builder
	prompt.WriteString("Summarize the following conversation turns into concise bullet points, preserving decisions, preferences, and facts:\n\n")
	for _, m := range messages {
		prompt.WriteString(string(m.Role))
		prompt.WriteString(": ")
		prompt.WriteString(m.Content)
		prompt.WriteString("\n")
	}

	resp, err := o.router.Chat(ctx, router.ChatParams{
		Role:     "observer",
		Messages: []router.Message{router.TextMessage("user", prompt.String())},
	})
	if err != nil {
		return "", err
	}
	return textOf(resp), nil
}

func textOf(resp router.Response) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == router.BlockText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

func approxTokenCount(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}
