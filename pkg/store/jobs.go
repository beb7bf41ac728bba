package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// CreateJob persists a new job row in the dispatched state (§4.1, §4.9 step 2).
func (s *Store) CreateJob(ctx context.Context, job Job) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO jobs (job_id, type, source, input, status, worker_id, result, error, duration_ms, created_at, updated_at)
		VALUES (:job_id, :type, :source, :input, :status, :worker_id, :result, :error, :duration_ms, :created_at, :updated_at)
	`, job)
	return errors.Wrap(err, "failed to insert job")
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (Job, error) {
	var job Job
	err := s.db.GetContext(ctx, &job, `SELECT * FROM jobs WHERE job_id = ?`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, errors.Errorf("job not found: %s", jobID)
	}
	return job, errors.Wrap(err, "failed to load job")
}

// ListJobs returns jobs ordered by most recent first, optionally filtered
// by status and/or type.
func (s *Store) ListJobs(ctx context.Context, status JobStatus, jobType JobType, limit int) ([]Job, error) {
	query := `SELECT * FROM jobs WHERE 1=1`
	args := map[string]any{}
	if status != "" {
		query += ` AND status = :status`
		args["status"] = status
	}
	if jobType != "" {
		query += ` AND type = :type`
		args["type"] = jobType
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT :limit`
		args["limit"] = limit
	}

	rows, err := s.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query jobs")
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.StructScan(&j); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// UpdateJobStatus applies a status transition reported by a worker or the
// status tracker (§4.9). It enforces the monotonic-status invariant
// (§3, §8): once a job is terminal, no further update may change its
// status, result, error or duration. The update is a silent no-op (not an
// error) when it would demote a terminal job, matching at-least-once
// redelivery semantics where a stale `running` message can arrive after
// `completed`.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, workerID, result, jobErr *string, durationMs *int64) error {
	current, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if current.Status.IsTerminal() {
		return nil
	}
	if jobStatusRank[status] < jobStatusRank[current.Status] {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, worker_id = COALESCE(?, worker_id), result = ?, error = ?, duration_ms = ?, updated_at = ?
		WHERE job_id = ?
	`, status, workerID, result, jobErr, durationMs, time.Now().UTC(), jobID)
	return errors.Wrap(err, "failed to update job status")
}
