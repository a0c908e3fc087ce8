package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"colosseum/internal/common"
	"colosseum/internal/domain/model"
)

type RescoreRepository interface {
	// Create writes the outbox row; callers pass the transaction of the
	// configuration edit that triggered the rescore.
	Create(ctx context.Context, tx *sql.Tx, job *model.RescoreJob) error
	FindByID(ctx context.Context, id string) (*model.RescoreJob, error)

	// ClaimNextPending atomically claims the oldest pending job, or returns
	// ErrNotFound when there is none. Safe with concurrent workers.
	ClaimNextPending(ctx context.Context) (*model.RescoreJob, error)

	// Claim marks a specific pending job as processing. ErrNotFound when the
	// job is gone or already claimed.
	Claim(ctx context.Context, id string) (*model.RescoreJob, error)

	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastError string) error
}

type pgRescoreRepository struct {
	db *sql.DB
}

func NewPgRescoreRepository(db *sql.DB) RescoreRepository {
	return &pgRescoreRepository{db: db}
}

func (r *pgRescoreRepository) execer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.db
}

const rescoreColumns = `id, contest_id, status, attempts, last_error, created_at, updated_at`

func (r *pgRescoreRepository) Create(ctx context.Context, tx *sql.Tx, job *model.RescoreJob) error {
	query := `INSERT INTO rescore_jobs (id, contest_id, status) VALUES ($1, $2, $3)`
	_, err := r.execer(tx).ExecContext(ctx, query, job.ID, job.ContestID, model.RescoreStatusPending)
	if err != nil {
		return fmt.Errorf("pgRescoreRepository.Create: %w", err)
	}
	return nil
}

func (r *pgRescoreRepository) FindByID(ctx context.Context, id string) (*model.RescoreJob, error) {
	query := `SELECT ` + rescoreColumns + ` FROM rescore_jobs WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *pgRescoreRepository) ClaimNextPending(ctx context.Context) (*model.RescoreJob, error) {
	query := `UPDATE rescore_jobs SET status = 'Processing', attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
	          WHERE id = (
	              SELECT id FROM rescore_jobs WHERE status = 'Pending'
	              ORDER BY created_at ASC
	              FOR UPDATE SKIP LOCKED
	              LIMIT 1)
	          RETURNING ` + rescoreColumns
	return r.scanOne(r.db.QueryRowContext(ctx, query))
}

func (r *pgRescoreRepository) Claim(ctx context.Context, id string) (*model.RescoreJob, error) {
	query := `UPDATE rescore_jobs SET status = 'Processing', attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $1 AND status = 'Pending'
	          RETURNING ` + rescoreColumns
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *pgRescoreRepository) MarkCompleted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rescore_jobs SET status = 'Completed', updated_at = CURRENT_TIMESTAMP WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgRescoreRepository.MarkCompleted: %w", err)
	}
	return nil
}

func (r *pgRescoreRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rescore_jobs SET status = 'Failed', last_error = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		lastError, id)
	if err != nil {
		return fmt.Errorf("pgRescoreRepository.MarkFailed: %w", err)
	}
	return nil
}

func (r *pgRescoreRepository) scanOne(row *sql.Row) (*model.RescoreJob, error) {
	job := &model.RescoreJob{}
	err := row.Scan(&job.ID, &job.ContestID, &job.Status, &job.Attempts, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgRescoreRepository.scanOne: %w", err)
	}
	return job, nil
}
