package crdb

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/scheduler"
)

func (s *Store) InsertJob(ctx context.Context, job scheduler.Job) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO scheduled_jobs (id, kind, entry_id, event_id, run_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, job.ID, job.Kind, job.EntryID, job.EventID, job.RunAt, job.CreatedAt)
	return errors.Wrap(err, "insert job")
}

// ClaimDueJobs leases due jobs in one statement. SKIP LOCKED lets several
// workers claim disjoint batches.
func (s *Store) ClaimDueJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]scheduler.Job, error) {
	rows, err := s.db(ctx).Query(ctx, `
		UPDATE scheduled_jobs SET locked_until = $2, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM scheduled_jobs
			WHERE run_at <= $1 AND (locked_until IS NULL OR locked_until <= $1)
			ORDER BY run_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, entry_id, event_id, run_at, attempts, last_error, created_at
	`, now, now.Add(lease), limit)
	if err != nil {
		return nil, errors.Wrap(err, "claim due jobs")
	}
	defer rows.Close()

	var jobs []scheduler.Job
	for rows.Next() {
		var j scheduler.Job
		if err := rows.Scan(&j.ID, &j.Kind, &j.EntryID, &j.EventID, &j.RunAt, &j.Attempts, &j.LastError, &j.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		j.RunAt = j.RunAt.UTC()
		j.CreatedAt = j.CreatedAt.UTC()
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate jobs")
	}
	slices.SortFunc(jobs, func(a, b scheduler.Job) int {
		return a.RunAt.Compare(b.RunAt)
	})
	return jobs, nil
}

func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.db(ctx).Exec(ctx, `DELETE FROM scheduled_jobs WHERE id = $1`, id)
	return errors.Wrap(err, "complete job")
}

func (s *Store) FailJob(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.db(ctx).Exec(ctx, `UPDATE scheduled_jobs SET last_error = $2 WHERE id = $1`, id, reason)
	return errors.Wrap(err, "fail job")
}
