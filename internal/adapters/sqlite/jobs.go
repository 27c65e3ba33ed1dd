package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-waitlist/internal/scheduler"
)

func (s *Store) InsertJob(ctx context.Context, job scheduler.Job) error {
	_, err := s.exec(ctx, `
		INSERT INTO scheduled_jobs (id, kind, entry_id, event_id, run_at, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, 0, '', ?)`,
		job.ID.String(), job.Kind, job.EntryID.String(), job.EventID.String(),
		toMillis(job.RunAt), toMillis(job.CreatedAt))
	return errors.Wrap(err, "insert job")
}

func (s *Store) ClaimDueJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]scheduler.Job, error) {
	var jobs []scheduler.Job
	err := s.WithTx(ctx, func(ctx context.Context) error {
		rows, err := s.query(ctx, `
			SELECT id, kind, entry_id, event_id, run_at, attempts, last_error, created_at
			FROM scheduled_jobs
			WHERE run_at <= ? AND (locked_until IS NULL OR locked_until <= ?)
			ORDER BY run_at, id
			LIMIT ?`, toMillis(now), toMillis(now), limit)
		if err != nil {
			return errors.Wrap(err, "select due jobs")
		}
		jobs, err = scanJobs(rows)
		if err != nil {
			return err
		}
		for i := range jobs {
			if _, err := s.exec(ctx, `
				UPDATE scheduled_jobs SET locked_until = ?, attempts = attempts + 1 WHERE id = ?`,
				toMillis(now.Add(lease)), jobs[i].ID.String()); err != nil {
				return errors.Wrap(err, "lease job")
			}
			jobs[i].Attempts++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.exec(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id.String())
	return errors.Wrap(err, "complete job")
}

func (s *Store) FailJob(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.exec(ctx, `UPDATE scheduled_jobs SET last_error = ? WHERE id = ?`, reason, id.String())
	return errors.Wrap(err, "fail job")
}

// PendingJobs counts jobs that have not completed yet.
func (s *Store) PendingJobs(ctx context.Context) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM scheduled_jobs`).Scan(&n)
	return n, errors.Wrap(err, "count pending jobs")
}

func scanJobs(rows *sql.Rows) ([]scheduler.Job, error) {
	defer rows.Close()

	var jobs []scheduler.Job
	for rows.Next() {
		var (
			j                    scheduler.Job
			id, entryID, eventID string
			runAt, createdAt     int64
		)
		if err := rows.Scan(&id, &j.Kind, &entryID, &eventID, &runAt, &j.Attempts, &j.LastError, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		var err error
		if j.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrap(err, "parse job id")
		}
		if j.EntryID, err = uuid.Parse(entryID); err != nil {
			return nil, errors.Wrap(err, "parse job entry id")
		}
		if j.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, errors.Wrap(err, "parse job event id")
		}
		j.RunAt = fromMillis(runAt)
		j.CreatedAt = fromMillis(createdAt)
		jobs = append(jobs, j)
	}
	return jobs, errors.Wrap(rows.Err(), "iterate jobs")
}
