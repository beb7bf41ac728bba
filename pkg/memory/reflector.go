package memory

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/router"
	"github.com/baker-street/brain/pkg/store"
)

// Reflector compresses the active observation log into a smaller one that
// preserves decisions, preferences, facts, and outcomes (§4.7).
type Reflector struct {
	store  *store.Store
	router *router.Router
}

// NewReflector constructs a Reflector.
func NewReflector(st *store.Store, r *router.Router) *Reflector {
	return &Reflector{store: st, router: r}
}

// Run compresses the current active observation log, records a reflection
// row, appends the compressed text as a new log version, and CAS-updates
// memory state. On CAS failure it aborts cleanly without side effects.
func (r *Reflector) Run(ctx context.Context, conversationID string) error {
	ms, err := r.store.GetMemoryState(ctx, conversationID)
	if err != nil {
		return errors.Wrap(err, "failed to load memory state")
	}

	active, err := r.store.GetLatestObservationLog(ctx, conversationID)
	if err != nil {
		return errors.Wrap(err, "failed to load active observation log")
	}
	if active.Text == "" {
		return nil
	}

	compressed, err := r.compress(ctx, active.Text)
	if err != nil {
		return errors.Wrap(err, "failed to compress observation log")
	}

	newLog, err := r.store.UpsertObservationLog(ctx, conversationID, compressed, approxTokenCount(compressed))
	if err != nil {
		return errors.Wrap(err, "failed to append compressed observation log")
	}

	if _, err := r.store.CreateReflection(ctx, conversationID, active.Version, newLog.Version); err != nil {
		return errors.Wrap(err, "failed to record reflection")
	}

	applied, err := r.store.UpdateMemoryState(ctx, conversationID, map[string]any{
		"observation_token_count": newLog.TokenCount,
		"last_reflector_run":      time.Now().UTC(),
	}, ms.LockVersion)
	if err != nil {
		return errors.Wrap(err, "failed to update memory state")
	}
	if !applied {
		logger.WithConversation(ctx, conversationID).Debug("reflector lost the memory state CAS race, aborting")
	}
	return nil
}

func (r *Reflector) compress(ctx context.Context, activeLog string) (string, error) {
	prompt := "Compress the following conversation memory log into a smaller one. " +
		"Preserve decisions, preferences, facts, and outcomes; drop anything redundant or stale:\n\n" + activeLog

	resp, err := r.router.Chat(ctx, router.ChatParams{
		Role:     "observer",
		Messages: []router.Message{router.TextMessage("user", prompt)},
	})
	if err != nil {
		return "", err
	}
	return textOf(resp), nil
}
