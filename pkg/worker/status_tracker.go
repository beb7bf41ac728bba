package worker

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/baker-street/brain/pkg/bus"
	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/store"
)

// StatusTracker subscribes to every job's status subject and applies the
// reported transition to the job row, relying on the store's monotonic
// guard to silently ignore demotions of a terminal state (§4.9).
type StatusTracker struct {
	store *store.Store
	bus   *bus.Bus
}

// NewStatusTracker constructs a StatusTracker.
func NewStatusTracker(st *store.Store, b *bus.Bus) *StatusTracker {
	return &StatusTracker{store: st, bus: b}
}

// Start subscribes to the status wildcard subject. The returned
// subscription stays active until Unsubscribe is called on it.
func (t *StatusTracker) Start(ctx context.Context) (*nats.Subscription, error) {
	return t.bus.Subscribe(bus.SubjectJobsStatusWildcard, func(msg *nats.Msg) {
		t.handle(ctx, msg.Data)
	})
}

func (t *StatusTracker) handle(ctx context.Context, data []byte) {
	var status StatusMessage
	if err := json.Unmarshal(data, &status); err != nil {
		logger.G(ctx).WithError(err).Error("failed to decode job status message")
		return
	}

	var workerID *string
	if status.WorkerID != "" {
		workerID = &status.WorkerID
	}

	if err := t.store.UpdateJobStatus(ctx, status.JobID, store.JobStatus(status.Status), workerID, status.Result, status.Error, status.DurationMs); err != nil {
		logger.G(ctx).WithError(err).WithField("job_id", status.JobID).Error("failed to apply job status update")
	}
}
