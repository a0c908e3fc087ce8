package repository

import (
	"context"
	"database/sql"
	"fmt"

	"colosseum/internal/domain/model"
)

type SubmissionRepository interface {
	ListByParticipation(ctx context.Context, participationID string) ([]model.ContestSubmission, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

func (r *pgSubmissionRepository) ListByParticipation(ctx context.Context, participationID string) ([]model.ContestSubmission, error) {
	query := `SELECT id, participation_id, contest_problem_id, points, bonus, is_pretest,
	                 updated_frozen, submitted_at
	          FROM contest_submissions WHERE participation_id = $1 ORDER BY submitted_at ASC`
	rows, err := r.db.QueryContext(ctx, query, participationID)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListByParticipation query: %w", err)
	}
	defer rows.Close()

	var subs []model.ContestSubmission
	for rows.Next() {
		var s model.ContestSubmission
		if err := rows.Scan(&s.ID, &s.ParticipationID, &s.ContestProblemID, &s.Points, &s.Bonus,
			&s.IsPretest, &s.UpdatedFrozen, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.ListByParticipation scan: %w", err)
		}
		subs = append(subs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListByParticipation rows.Err: %w", err)
	}
	return subs, nil
}
