// Package bus wraps the durable publish/subscribe message bus the Brain
// uses for job dispatch, status propagation and the brain-transfer
// handshake (§4.2). It is a thin JetStream client: stream/consumer
// topology is declared once at startup and never touched again.
package bus

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/pkg/errors"

	"github.com/baker-street/brain/pkg/logger"
)

const (
	// StreamJobs is the durable stream backing job dispatch.
	StreamJobs = "JOBS"
	// SubjectJobsDispatch is the subject workers consume from.
	SubjectJobsDispatch = "bakerst.jobs.dispatch"
	// ConsumerWorkers is the durable consumer name shared by every worker.
	ConsumerWorkers = "WORKERS"

	// SubjectJobsStatusPrefix is the prefix of the per-job status subject;
	// the full subject is SubjectJobsStatusPrefix + jobId.
	SubjectJobsStatusPrefix = "bakerst.jobs.status."
	// SubjectJobsStatusWildcard subscribes to every job's status updates.
	SubjectJobsStatusWildcard = "bakerst.jobs.status.*"

	SubjectTransferReady = "bakerst.brain.transfer.ready"
	SubjectTransferClear = "bakerst.brain.transfer.clear"
	SubjectTransferAbort = "bakerst.brain.transfer.abort"

	SubjectExtensionsHeartbeatWildcard = "bakerst.extensions.*.heartbeat"
	SubjectCompanionsWildcard          = "bakerst.companions.*"

	workerAckWait    = 60 * time.Second
	workerMaxDeliver = 3
)

// Bus is the connected JetStream handle used by every Brain component that
// needs to publish or subscribe.
type Bus struct {
	conn *nats.Conn
	js   jetstream.JetStream

	extensionsSub *nats.Subscription
	companionsSub *nats.Subscription
}

// Connect dials the bus at url and ensures the JOBS stream and WORKERS
// durable consumer exist (§4.2). It is idempotent: re-running it against an
// already-provisioned bus is a no-op beyond the connection itself.
func Connect(ctx context.Context, url string) (*Bus, error) {
	conn, err := nats.Connect(url, nats.Name("baker-street-brain"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to message bus")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to create jetstream context")
	}

	b := &Bus{conn: conn, js: js}
	if err := b.ensureTopology(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if err := b.subscribeAmbient(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

// subscribeAmbient attaches the brain's passive listeners: companion
// devices and third-party extensions publish presence on these subjects,
// but the brain has no §4.2 consumer of its own for them yet beyond
// logging that traffic exists (§4.2 "Subscribers").
func (b *Bus) subscribeAmbient(ctx context.Context) error {
	extSub, err := b.conn.Subscribe(SubjectExtensionsHeartbeatWildcard, func(msg *nats.Msg) {
		logger.G(ctx).WithField("subject", msg.Subject).Debug("extension heartbeat received")
	})
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to extension heartbeats")
	}
	b.extensionsSub = extSub

	companionSub, err := b.conn.Subscribe(SubjectCompanionsWildcard, func(msg *nats.Msg) {
		logger.G(ctx).WithField("subject", msg.Subject).Debug("companion message received")
	})
	if err != nil {
		extSub.Unsubscribe()
		return errors.Wrap(err, "failed to subscribe to companion messages")
	}
	b.companionsSub = companionSub

	return nil
}

func (b *Bus) ensureTopology(ctx context.Context) error {
	stream, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamJobs,
		Subjects: []string{SubjectJobsDispatch},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create jobs stream")
	}

	if _, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       ConsumerWorkers,
		FilterSubject: SubjectJobsDispatch,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       workerAckWait,
		MaxDeliver:    workerMaxDeliver,
	}); err != nil {
		return errors.Wrap(err, "failed to create workers consumer")
	}

	return nil
}

// PublishJob publishes a job dispatch payload with msgID = jobId so the bus
// deduplicates redundant publishes (§4.9 step 3).
func (b *Bus) PublishJob(ctx context.Context, jobID string, payload []byte) error {
	_, err := b.js.Publish(ctx, SubjectJobsDispatch, payload, jetstream.WithMsgID(jobID))
	return errors.Wrap(err, "failed to publish job dispatch")
}

// WorkerConsumer returns the durable WORKERS consumer handle for pulling
// job dispatches.
func (b *Bus) WorkerConsumer(ctx context.Context) (jetstream.Consumer, error) {
	stream, err := b.js.Stream(ctx, StreamJobs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up jobs stream")
	}
	consumer, err := stream.Consumer(ctx, ConsumerWorkers)
	return consumer, errors.Wrap(err, "failed to look up workers consumer")
}

// PublishStatus publishes a job status update on its per-job subject
// (§4.2, §4.9).
func (b *Bus) PublishStatus(ctx context.Context, jobID string, payload []byte) error {
	return errors.Wrap(b.conn.Publish(SubjectJobsStatusPrefix+jobID, payload), "failed to publish job status")
}

// PublishTransfer publishes a brain-transfer handshake message on one of
// the three transfer subjects (§4.11).
func (b *Bus) PublishTransfer(subject string, payload []byte) error {
	return errors.Wrap(b.conn.Publish(subject, payload), "failed to publish transfer message")
}

// Subscribe creates a plain (non-JetStream) core-NATS subscription, used
// for status, transfer, heartbeat and companion subjects that do not need
// durable redelivery.
func (b *Bus) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(subject, handler)
	return sub, errors.Wrap(err, "failed to subscribe")
}

// Close drains and closes the underlying connection.
func (b *Bus) Close() {
	if b.extensionsSub != nil {
		_ = b.extensionsSub.Unsubscribe()
	}
	if b.companionsSub != nil {
		_ = b.companionsSub.Unsubscribe()
	}
	b.conn.Close()
}
