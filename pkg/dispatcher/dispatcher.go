// Package dispatcher turns a job request into a persisted, published
// JobDispatch (§4.9 step 1-4): the dispatcher is the only writer of the
// "dispatched" status, and the only publisher to the JOBS stream.
package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/baker-street/brain/pkg/bus"
	"github.com/baker-street/brain/pkg/metrics"
	"github.com/baker-street/brain/pkg/store"
	"github.com/baker-street/brain/pkg/telemetry"
)

// Params describes one unit of work to dispatch.
type Params struct {
	Type   store.JobType
	Source string
	Input  string
}

// Dispatch is the wire payload published to the JOBS stream and handed
// back to the caller.
type Dispatch struct {
	JobID        string            `json:"jobId"`
	Type         store.JobType     `json:"type"`
	Source       string            `json:"source"`
	Input        string            `json:"input"`
	CreatedAt    time.Time         `json:"createdAt"`
	TraceContext map[string]string `json:"traceContext,omitempty"`
}

// Dispatcher persists job rows and publishes them to the bus.
type Dispatcher struct {
	store *store.Store
	bus   *bus.Bus
}

// New constructs a Dispatcher.
func New(st *store.Store, b *bus.Bus) *Dispatcher {
	return &Dispatcher{store: st, bus: b}
}

// Dispatch builds, persists and publishes one job (§4.9 steps 1-4).
func (d *Dispatcher) Dispatch(ctx context.Context, params Params) (Dispatch, error) {
	var dispatch Dispatch
	err := telemetry.WithSpan(ctx, "dispatcher.dispatch", func(ctx context.Context) error {
		jobID := uuid.NewString()
		now := time.Now().UTC()

		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(ctx, carrier)

		dispatch = Dispatch{
			JobID:        jobID,
			Type:         params.Type,
			Source:       params.Source,
			Input:        params.Input,
			CreatedAt:    now,
			TraceContext: map[string]string(carrier),
		}

		if err := d.store.CreateJob(ctx, store.Job{
			JobID:     jobID,
			Type:      params.Type,
			Source:    params.Source,
			Input:     params.Input,
			Status:    store.JobDispatched,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return errors.Wrap(err, "failed to persist dispatched job")
		}

		payload, err := json.Marshal(dispatch)
		if err != nil {
			return errors.Wrap(err, "failed to marshal job dispatch")
		}

		if err := d.bus.PublishJob(ctx, jobID, payload); err != nil {
			return errors.Wrap(err, "failed to publish job dispatch")
		}
		return nil
	})
	if err != nil {
		return Dispatch{}, err
	}
	metrics.JobsDispatched.WithLabelValues(string(params.Type)).Inc()
	return dispatch, nil
}
