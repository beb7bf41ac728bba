// Package scheduler is the cron-like trigger runner (§4.10): it persists
// schedule rows and keeps an in-memory cron ticker per enabled schedule,
// dispatching a job through the Dispatcher each time one fires.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/baker-street/brain/pkg/dispatcher"
	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/store"
)

// maxLastOutputBytes bounds how much of a run's output is retained on the
// schedule row (§4.10).
const maxLastOutputBytes = 1024

// CreateParams describes a new schedule definition.
type CreateParams struct {
	Name     string
	CronExpr string
	Type     store.JobType
	Config   string
	Enabled  bool
}

// Scheduler owns the cron.Cron runtime and the mapping from schedule id to
// its active entry, so a schedule can be individually removed or
// re-registered on update (§4.10).
type Scheduler struct {
	store      *store.Store
	dispatcher *dispatcher.Dispatcher
	cron       *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New constructs a Scheduler. Start must be called before schedules begin
// firing.
func New(st *store.Store, d *dispatcher.Dispatcher) *Scheduler {
	return &Scheduler{
		store:      st,
		dispatcher: d,
		cron:       cron.New(),
		entries:    make(map[string]cron.EntryID),
	}
}

// Start loads every enabled schedule and registers its ticker, then starts
// the cron runtime (§4.10: "on startup loads all rows and registers
// tickers for enabled ones").
func (s *Scheduler) Start(ctx context.Context) error {
	scheds, err := s.store.ListSchedules(ctx, true)
	if err != nil {
		return errors.Wrap(err, "failed to load schedules at startup")
	}
	for _, sched := range scheds {
		if err := s.register(sched); err != nil {
			logger.G(ctx).WithError(err).WithField("schedule_id", sched.ID).Error("failed to register schedule at startup")
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runtime, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// List returns every schedule.
func (s *Scheduler) List(ctx context.Context) ([]store.Schedule, error) {
	return s.store.ListSchedules(ctx, false)
}

// Get loads one schedule by id.
func (s *Scheduler) Get(ctx context.Context, id string) (store.Schedule, error) {
	return s.store.GetSchedule(ctx, id)
}

// Create persists a new schedule and, if enabled, registers its ticker
// (§4.10).
func (s *Scheduler) Create(ctx context.Context, params CreateParams) (store.Schedule, error) {
	now := time.Now().UTC()
	sched := store.Schedule{
		ID:        uuid.NewString(),
		Name:      params.Name,
		ScheduleCron: params.CronExpr,
		Type:      params.Type,
		Config:    params.Config,
		Enabled:   params.Enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSchedule(ctx, sched); err != nil {
		return store.Schedule{}, err
	}
	if sched.Enabled {
		if err := s.register(sched); err != nil {
			return store.Schedule{}, err
		}
	}
	return sched, nil
}

// Update replaces a schedule's definition, re-registering or removing its
// ticker to match the new enabled state (§4.10).
func (s *Scheduler) Update(ctx context.Context, id, name, cronExpr string, jobType store.JobType, config string, enabled bool) (store.Schedule, error) {
	if err := s.store.UpdateScheduleConfig(ctx, id, name, cronExpr, jobType, config, enabled); err != nil {
		return store.Schedule{}, err
	}
	s.deregister(id)

	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return store.Schedule{}, err
	}
	if sched.Enabled {
		if err := s.register(sched); err != nil {
			return store.Schedule{}, err
		}
	}
	return sched, nil
}

// Delete removes a schedule and its ticker.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	s.deregister(id)
	return s.store.DeleteSchedule(ctx, id)
}

// Trigger fires a schedule immediately, out of band from its cron
// expression, and returns the dispatched job id (§4.10).
func (s *Scheduler) Trigger(ctx context.Context, id string) (string, error) {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return "", err
	}
	return s.fire(ctx, sched)
}

func (s *Scheduler) register(sched store.Schedule) error {
	entryID, err := s.cron.AddFunc(sched.ScheduleCron, func() {
		if _, err := s.fire(context.Background(), sched); err != nil {
			logger.G(context.Background()).WithError(err).WithField("schedule_id", sched.ID).Error("scheduled job dispatch failed")
		}
	})
	if err != nil {
		return errors.Wrapf(err, "invalid cron expression for schedule %s", sched.ID)
	}

	s.mu.Lock()
	s.entries[sched.ID] = entryID
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) deregister(id string) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if ok {
		s.cron.Remove(entryID)
	}
}

func (s *Scheduler) fire(ctx context.Context, sched store.Schedule) (string, error) {
	dispatch, err := s.dispatcher.Dispatch(ctx, dispatcher.Params{
		Type:   sched.Type,
		Source: "schedule:" + sched.ID,
		Input:  sched.Config,
	})

	status := "dispatched"
	output := dispatch.JobID
	if err != nil {
		status = "failed"
		output = err.Error()
	}
	if len(output) > maxLastOutputBytes {
		output = output[:maxLastOutputBytes]
	}
	if recErr := s.store.RecordScheduleRun(ctx, sched.ID, time.Now().UTC(), status, output); recErr != nil {
		logger.G(ctx).WithError(recErr).WithField("schedule_id", sched.ID).Error("failed to record schedule run")
	}

	return dispatch.JobID, err
}
