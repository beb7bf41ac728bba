package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// scheduleColumns allowlists the schedule columns updateScheduleRow may
// set, mirroring the memory_state allowlist (§4.1, §9): caller-supplied
// field names are validated against this set before they are ever used to
// build SQL, so no caller input is interpolated into the query text.
var scheduleColumns = map[string]bool{
	"name":        true,
	"schedule":    true,
	"type":        true,
	"config":      true,
	"enabled":     true,
	"last_run_at": true,
	"last_status": true,
	"last_output": true,
}

// CreateSchedule persists a new cron-like trigger (§4.10).
func (s *Store) CreateSchedule(ctx context.Context, sched Schedule) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO schedules (id, name, schedule, type, config, enabled, last_run_at, last_status, last_output, created_at, updated_at)
		VALUES (:id, :name, :schedule, :type, :config, :enabled, :last_run_at, :last_status, :last_output, :created_at, :updated_at)
	`, sched)
	return errors.Wrap(err, "failed to insert schedule")
}

// GetSchedule loads a schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id string) (Schedule, error) {
	var sched Schedule
	err := s.db.GetContext(ctx, &sched, `SELECT * FROM schedules WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, errors.Errorf("schedule not found: %s", id)
	}
	return sched, errors.Wrap(err, "failed to load schedule")
}

// ListSchedules returns every schedule, optionally only the enabled ones,
// used at startup to seed the cron runner (§4.10).
func (s *Store) ListSchedules(ctx context.Context, enabledOnly bool) ([]Schedule, error) {
	var scheds []Schedule
	var err error
	if enabledOnly {
		err = s.db.SelectContext(ctx, &scheds, `SELECT * FROM schedules WHERE enabled = 1 ORDER BY name ASC`)
	} else {
		err = s.db.SelectContext(ctx, &scheds, `SELECT * FROM schedules ORDER BY name ASC`)
	}
	return scheds, errors.Wrap(err, "failed to list schedules")
}

// updateScheduleRow applies an allowlisted set of column updates to a
// schedule row and bumps updated_at.
func (s *Store) updateScheduleRow(ctx context.Context, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+2)
	for col, val := range updates {
		if !scheduleColumns[col] {
			return errors.Errorf("column not allowed in schedule update: %s", col)
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", col))
		args = append(args, val)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC())

	query := fmt.Sprintf("UPDATE schedules SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	args = append(args, id)

	_, err := s.db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "failed to update schedule")
}

// UpdateScheduleConfig updates the editable definition fields of a schedule.
func (s *Store) UpdateScheduleConfig(ctx context.Context, id string, name, cronExpr string, jobType JobType, config string, enabled bool) error {
	return s.updateScheduleRow(ctx, id, map[string]any{
		"name":     name,
		"schedule": cronExpr,
		"type":     jobType,
		"config":   config,
		"enabled":  enabled,
	})
}

// RecordScheduleRun updates a schedule's last-run bookkeeping after the
// cron runner fires it (§4.10).
func (s *Store) RecordScheduleRun(ctx context.Context, id string, ranAt time.Time, status, output string) error {
	return s.updateScheduleRow(ctx, id, map[string]any{
		"last_run_at": ranAt,
		"last_status": status,
		"last_output": output,
	})
}

// DeleteSchedule removes a schedule.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	return errors.Wrap(err, "failed to delete schedule")
}
