// Package brain implements the zero-downtime brain-transfer state machine
// (§4.11): a pending (incoming) brain waits to take over from an active
// (outgoing) brain without ever dropping a request.
package brain

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/baker-street/brain/pkg/bus"
	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/metrics"
	"github.com/baker-street/brain/pkg/store"
)

// State is one of the four brain lifecycle states (§4.11).
type State string

const (
	StateActive   State = "active"
	StatePending  State = "pending"
	StateDraining State = "draining"
	StateShutdown State = "shutdown"
)

// Role is the container's starting role, set by the orchestrator.
type Role string

const (
	RoleActive  Role = "active"
	RolePending Role = "pending"
)

const (
	pendingReadyTimeout  = 120 * time.Second
	drainDeadline        = 30 * time.Second
	handoffWindow        = 24 * time.Hour
)

type transferReadyMsg struct {
	Version string `json:"version"`
}

type transferClearMsg struct {
	NoteID    string `json:"noteId"`
	ToVersion string `json:"toVersion"`
}

// Brain owns the lifecycle state and the transfer handshake for one
// container instance (§4.11).
type Brain struct {
	store   *store.Store
	bus     *bus.Bus
	version string
	enabled bool

	mu    sync.RWMutex
	state State

	turns        sync.WaitGroup
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New constructs a Brain. enabled corresponds to the brain-transfer
// feature flag; when false the brain forces itself to active on Start
// (§4.11).
func New(st *store.Store, b *bus.Bus, version string, enabled bool) *Brain {
	return &Brain{
		store:      st,
		bus:        b,
		version:    version,
		enabled:    enabled,
		state:      StatePending,
		shutdownCh: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (br *Brain) State() State {
	br.mu.RLock()
	defer br.mu.RUnlock()
	return br.state
}

// IsReady reports whether the brain can serve health/state requests
// (§4.11).
func (br *Brain) IsReady() bool {
	s := br.State()
	return s == StateActive || s == StateDraining
}

// IsAcceptingRequests reports whether the brain accepts ordinary,
// non-health/non-state requests (§4.11).
func (br *Brain) IsAcceptingRequests() bool {
	return br.State() == StateActive
}

// ShutdownSignal is closed once the brain reaches the shutdown state,
// telling the server to begin its graceful shutdown path (§4.11 step 5).
func (br *Brain) ShutdownSignal() <-chan struct{} {
	return br.shutdownCh
}

// BeginTurn and EndTurn bracket one in-flight agent turn so a transfer can
// wait for turns to drain before writing the handoff note (§4.11 step 2).
func (br *Brain) BeginTurn() {
	br.turns.Add(1)
}

// EndTurn completes the bookkeeping started by BeginTurn.
func (br *Brain) EndTurn() {
	br.turns.Done()
}

var allStates = []string{string(StateActive), string(StatePending), string(StateDraining), string(StateShutdown)}

func (br *Brain) setState(s State) {
	br.mu.Lock()
	br.state = s
	br.mu.Unlock()
	metrics.SetBrainState(allStates, string(s))
}

// Start begins the brain's lifecycle for the given startup role (§4.11).
func (br *Brain) Start(ctx context.Context, role Role) error {
	if !br.enabled {
		br.setState(StateActive)
		return nil
	}

	if role == RoleActive {
		br.setState(StateActive)
		_, err := br.bus.Subscribe(bus.SubjectTransferReady, func(msg *nats.Msg) {
			var ready transferReadyMsg
			if err := json.Unmarshal(msg.Data, &ready); err != nil {
				logger.G(context.Background()).WithError(err).Error("failed to decode transfer.ready message")
				return
			}
			br.handleTransferReady(context.Background(), ready.Version)
		})
		return errors.Wrap(err, "failed to subscribe to transfer.ready")
	}

	br.setState(StatePending)
	return br.runPendingSequence(ctx)
}

// runPendingSequence implements the incoming-brain startup handshake
// (§4.11 "Pending brain").
func (br *Brain) runPendingSequence(ctx context.Context) error {
	cancelCh := make(chan struct{})
	var cancelOnce sync.Once
	cancel := func() { cancelOnce.Do(func() { close(cancelCh) }) }

	clearSub, err := br.bus.Subscribe(bus.SubjectTransferClear, func(msg *nats.Msg) {
		var clear transferClearMsg
		if err := json.Unmarshal(msg.Data, &clear); err != nil {
			logger.G(ctx).WithError(err).Error("failed to decode transfer.clear message")
			return
		}
		cancel()
		br.adoptHandoffNote(ctx, clear.NoteID)
		br.setState(StateActive)
	})
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to transfer.clear")
	}

	abortSub, err := br.bus.Subscribe(bus.SubjectTransferAbort, func(msg *nats.Msg) {
		cancel()
	})
	if err != nil {
		clearSub.Unsubscribe()
		return errors.Wrap(err, "failed to subscribe to transfer.abort")
	}

	payload, err := json.Marshal(transferReadyMsg{Version: br.version})
	if err != nil {
		clearSub.Unsubscribe()
		abortSub.Unsubscribe()
		return errors.Wrap(err, "failed to marshal transfer.ready payload")
	}
	if err := br.bus.PublishTransfer(bus.SubjectTransferReady, payload); err != nil {
		clearSub.Unsubscribe()
		abortSub.Unsubscribe()
		return errors.Wrap(err, "failed to publish transfer.ready")
	}

	go func() {
		select {
		case <-cancelCh:
		case <-time.After(pendingReadyTimeout):
			logger.G(ctx).Info("no active brain replied within the transfer timeout, starting fresh")
			br.setState(StateActive)
		}
	}()

	return nil
}

func (br *Brain) adoptHandoffNote(ctx context.Context, noteID string) {
	note, err := br.store.GetLatestHandoffNote(ctx)
	if err != nil {
		logger.G(ctx).WithError(err).Error("failed to read handoff note during transfer.clear")
		return
	}
	if note.ID != "" && note.ID != noteID {
		logger.G(ctx).WithField("expected", noteID).WithField("got", note.ID).Warn("handoff note id mismatch, proceeding with the latest note anyway")
	}
}

// handleTransferReady implements the outgoing brain's transfer sequence
// (§4.11 "Active brain"). Any failure before the handoff note is
// published aborts back to active.
func (br *Brain) handleTransferReady(ctx context.Context, toVersion string) {
	if br.State() != StateActive {
		return
	}
	br.setState(StateDraining)

	if err := br.drainAndHandoff(ctx, toVersion); err != nil {
		logger.G(ctx).WithError(err).Error("brain transfer failed, aborting back to active")
		if pubErr := br.bus.PublishTransfer(bus.SubjectTransferAbort, []byte("{}")); pubErr != nil {
			logger.G(ctx).WithError(pubErr).Error("failed to publish transfer.abort")
		}
		br.setState(StateActive)
		return
	}

	br.setState(StateShutdown)
	br.shutdownOnce.Do(func() { close(br.shutdownCh) })
}

func (br *Brain) drainAndHandoff(ctx context.Context, toVersion string) error {
	drained := make(chan struct{})
	go func() {
		br.turns.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainDeadline):
		logger.G(ctx).Warn("drain deadline elapsed with turns still in flight, proceeding with handoff anyway")
	}

	activeConversations, err := br.activeConversationIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to collect active conversations for handoff")
	}
	pendingSchedules, err := br.pendingScheduleIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to collect pending schedules for handoff")
	}

	note, err := br.store.CreateHandoffNote(ctx, store.HandoffNote{
		FromVersion:         br.version,
		ActiveConversations: activeConversations,
		PendingSchedules:    pendingSchedules,
		CreatedAt:           time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to write handoff note")
	}

	payload, err := json.Marshal(transferClearMsg{NoteID: note.ID, ToVersion: toVersion})
	if err != nil {
		return errors.Wrap(err, "failed to marshal transfer.clear payload")
	}
	return errors.Wrap(br.bus.PublishTransfer(bus.SubjectTransferClear, payload), "failed to publish transfer.clear")
}

func (br *Brain) activeConversationIDs(ctx context.Context) (string, error) {
	convs, err := br.store.ListConversations(ctx, store.ConversationQuery{Limit: 500})
	if err != nil {
		return "", err
	}
	cutoff := time.Now().UTC().Add(-handoffWindow)
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		if c.UpdatedAt.After(cutoff) {
			ids = append(ids, c.ID)
		}
	}
	encoded, err := json.Marshal(ids)
	return string(encoded), err
}

func (br *Brain) pendingScheduleIDs(ctx context.Context) (string, error) {
	scheds, err := br.store.ListSchedules(ctx, true)
	if err != nil {
		return "", err
	}
	ids := make([]string, 0, len(scheds))
	for _, s := range scheds {
		ids = append(ids, s.ID)
	}
	encoded, err := json.Marshal(ids)
	return string(encoded), err
}
