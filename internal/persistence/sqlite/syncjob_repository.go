package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/studysync/internal/persistence"
)

// SyncJobRepository implements persistence.SyncJobRepository using SQLite.
type SyncJobRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSyncJobRepository creates a new SQLite sync job repository.
func NewSyncJobRepository(pool *ConnectionPool) *SyncJobRepository {
	return &SyncJobRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// UpsertJob inserts the job or replaces the existing row with the same id,
// which makes rescheduling the same deterministic trigger idempotent.
func (r *SyncJobRepository) UpsertJob(ctx context.Context, job persistence.SyncJob) error {
	if job.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.helper.Exec(ctx, `
		INSERT INTO sync_jobs (id, kind, group_id, run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			group_id = excluded.group_id,
			run_at = excluded.run_at,
			updated_at = excluded.updated_at
	`,
		job.ID,
		job.Kind,
		job.GroupID,
		job.RunAt.UTC().Format(time.RFC3339),
		now,
		now,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// DeleteJob removes the job with the given id if present.
func (r *SyncJobRepository) DeleteJob(ctx context.Context, id string) error {
	_, err := r.helper.Exec(ctx, "DELETE FROM sync_jobs WHERE id = ?", id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// DeleteJobsMatching removes jobs whose id starts with prefix and returns
// the number removed.
func (r *SyncJobRepository) DeleteJobsMatching(ctx context.Context, prefix string) (int, error) {
	result, err := r.helper.Exec(ctx,
		"DELETE FROM sync_jobs WHERE id LIKE ? || '%'",
		prefix,
	)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// DueJobs returns jobs whose run time has arrived, ordered by run time.
func (r *SyncJobRepository) DueJobs(ctx context.Context, now time.Time) ([]persistence.SyncJob, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, kind, group_id, run_at, created_at, updated_at
		FROM sync_jobs
		WHERE run_at <= ?
		ORDER BY run_at ASC, id ASC
	`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var jobs []persistence.SyncJob
	for rows.Next() {
		var job persistence.SyncJob
		var runAtStr, createdAtStr, updatedAtStr string
		if err := rows.Scan(&job.ID, &job.Kind, &job.GroupID, &runAtStr, &createdAtStr, &updatedAtStr); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if job.RunAt, err = time.Parse(time.RFC3339, runAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse run_at: %w", err)
		}
		if job.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return jobs, nil
}
