package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"colosseum/internal/common"
	"colosseum/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type ParticipationRepository interface {
	Create(ctx context.Context, tx *sql.Tx, p *model.ContestParticipation) error
	Update(ctx context.Context, tx *sql.Tx, p *model.ContestParticipation) error
	FindByID(ctx context.Context, id string) (*model.ContestParticipation, error)
	Find(ctx context.Context, contestID, userID string, virtual int) (*model.ContestParticipation, error)
	MaxVirtual(ctx context.Context, contestID, userID string) (int, error)

	// ListLive returns live participations of listed users, ordered for the
	// scoreboard: disqualified last, then score descending, cumtime ascending.
	ListLive(ctx context.Context, contestID string) ([]model.ContestParticipation, error)

	// ListByContest returns every participation, for full-contest rescores.
	ListByContest(ctx context.Context, contestID string) ([]model.ContestParticipation, error)
}

type pgParticipationRepository struct {
	db *sql.DB
}

func NewPgParticipationRepository(db *sql.DB) ParticipationRepository {
	return &pgParticipationRepository{db: db}
}

func (r *pgParticipationRepository) execer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.db
}

const participationColumns = `id, contest_id, user_id, real_start, score, cumtime, is_disqualified, virtual, format_data`

func (r *pgParticipationRepository) Create(ctx context.Context, tx *sql.Tx, p *model.ContestParticipation) error {
	query := `INSERT INTO contest_participations
	            (id, contest_id, user_id, real_start, score, cumtime, is_disqualified, virtual, format_data)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.execer(tx).ExecContext(ctx, query,
		p.ID, p.ContestID, p.UserID, p.RealStart, p.Score, p.CumTime, p.IsDisqualified, p.Virtual, nullJSON(p.FormatData))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Racing join: the (contest, user, virtual) constraint is the
			// last line of defense. Retryable, not a crash.
			return fmt.Errorf("participation already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgParticipationRepository.Create: %w", err)
	}
	return nil
}

func (r *pgParticipationRepository) Update(ctx context.Context, tx *sql.Tx, p *model.ContestParticipation) error {
	query := `UPDATE contest_participations SET
	            score = $1, cumtime = $2, is_disqualified = $3, format_data = $4
	          WHERE id = $5`
	_, err := r.execer(tx).ExecContext(ctx, query,
		p.Score, p.CumTime, p.IsDisqualified, nullJSON(p.FormatData), p.ID)
	if err != nil {
		return fmt.Errorf("pgParticipationRepository.Update: %w", err)
	}
	return nil
}

func (r *pgParticipationRepository) FindByID(ctx context.Context, id string) (*model.ContestParticipation, error) {
	query := `SELECT ` + participationColumns + ` FROM contest_participations WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *pgParticipationRepository) Find(ctx context.Context, contestID, userID string, virtual int) (*model.ContestParticipation, error) {
	query := `SELECT ` + participationColumns + ` FROM contest_participations
	          WHERE contest_id = $1 AND user_id = $2 AND virtual = $3`
	return r.scanOne(r.db.QueryRowContext(ctx, query, contestID, userID, virtual))
}

func (r *pgParticipationRepository) scanOne(row *sql.Row) (*model.ContestParticipation, error) {
	p := &model.ContestParticipation{}
	var formatData []byte
	err := row.Scan(&p.ID, &p.ContestID, &p.UserID, &p.RealStart, &p.Score, &p.CumTime,
		&p.IsDisqualified, &p.Virtual, &formatData)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgParticipationRepository.scanOne: %w", err)
	}
	if len(formatData) > 0 {
		p.FormatData = formatData
	}
	return p, nil
}

func (r *pgParticipationRepository) MaxVirtual(ctx context.Context, contestID, userID string) (int, error) {
	var max int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(virtual), 0) FROM contest_participations WHERE contest_id = $1 AND user_id = $2`,
		contestID, userID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("pgParticipationRepository.MaxVirtual: %w", err)
	}
	return max, nil
}

func (r *pgParticipationRepository) ListLive(ctx context.Context, contestID string) ([]model.ContestParticipation, error) {
	query := `SELECT p.id, p.contest_id, p.user_id, p.real_start, p.score, p.cumtime,
	                 p.is_disqualified, p.virtual, p.format_data
	          FROM contest_participations p
	          JOIN users u ON p.user_id = u.id
	          WHERE p.contest_id = $1 AND p.virtual = 0 AND NOT u.is_unlisted
	          ORDER BY p.is_disqualified ASC, p.score DESC, p.cumtime ASC`
	return r.list(ctx, query, contestID)
}

func (r *pgParticipationRepository) ListByContest(ctx context.Context, contestID string) ([]model.ContestParticipation, error) {
	query := `SELECT ` + participationColumns + ` FROM contest_participations WHERE contest_id = $1`
	return r.list(ctx, query, contestID)
}

func (r *pgParticipationRepository) list(ctx context.Context, query string, args ...interface{}) ([]model.ContestParticipation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgParticipationRepository.list query: %w", err)
	}
	defer rows.Close()

	var participations []model.ContestParticipation
	for rows.Next() {
		var p model.ContestParticipation
		var formatData []byte
		if err := rows.Scan(&p.ID, &p.ContestID, &p.UserID, &p.RealStart, &p.Score, &p.CumTime,
			&p.IsDisqualified, &p.Virtual, &formatData); err != nil {
			return nil, fmt.Errorf("pgParticipationRepository.list scan: %w", err)
		}
		if len(formatData) > 0 {
			p.FormatData = formatData
		}
		participations = append(participations, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgParticipationRepository.list rows.Err: %w", err)
	}
	return participations, nil
}
