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

type ContestRepository interface {
	Create(ctx context.Context, tx *sql.Tx, c *model.Contest) error
	Update(ctx context.Context, tx *sql.Tx, c *model.Contest) error
	FindByKey(ctx context.Context, key string) (*model.Contest, error)
	FindByID(ctx context.Context, id string) (*model.Contest, error)
	ListVisible(ctx context.Context, u *model.User) ([]model.Contest, error)

	// RefreshUserCount recounts live participations into the denormalized
	// user_count column. Runs inside the join transaction so the count sees
	// the row being inserted.
	RefreshUserCount(ctx context.Context, tx *sql.Tx, contestID string) error
	AddBannedUser(ctx context.Context, tx *sql.Tx, contestID, userID string) error
	RemoveBannedUser(ctx context.Context, tx *sql.Tx, contestID, userID string) error
	SetOrganizers(ctx context.Context, tx *sql.Tx, contestID string, userIDs []string) error
	SetOrganizations(ctx context.Context, tx *sql.Tx, contestID string, orgIDs []string) error
	SetPrivateContestants(ctx context.Context, tx *sql.Tx, contestID string, userIDs []string) error

	GetProblems(ctx context.Context, contestID string) ([]model.ContestProblem, error)
	AddProblems(ctx context.Context, tx *sql.Tx, contestID string, problems []model.ContestProblem) error
}

type pgContestRepository struct {
	db *sql.DB
}

func NewPgContestRepository(db *sql.DB) ContestRepository {
	return &pgContestRepository{db: db}
}

// execer lets a method run inside an optional transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *pgContestRepository) execer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.db
}

const contestColumns = `id, key, name, description, summary, start_time, end_time,
	time_limit_seconds, is_visible, is_private, is_organization_private,
	is_private_viewable, hide_scoreboard, permanently_hide_scoreboard,
	run_pretests_only, freeze_submissions, access_code, format_name,
	format_config, label_strategy, user_count, created_at, updated_at`

func (r *pgContestRepository) Create(ctx context.Context, tx *sql.Tx, c *model.Contest) error {
	query := `INSERT INTO contests (id, key, name, description, summary, start_time, end_time,
	            time_limit_seconds, is_visible, is_private, is_organization_private,
	            is_private_viewable, hide_scoreboard, permanently_hide_scoreboard,
	            run_pretests_only, freeze_submissions, access_code, format_name,
	            format_config, label_strategy, user_count)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := r.execer(tx).ExecContext(ctx, query,
		c.ID, c.Key, c.Name, c.Description, c.Summary, c.StartTime, c.EndTime,
		timeLimitSeconds(c), c.IsVisible, c.IsPrivate, c.IsOrganizationPrivate,
		c.IsPrivateViewable, c.HideScoreboard, c.PermanentlyHideScoreboard,
		c.RunPretestsOnly, c.FreezeSubmissions, c.AccessCode, c.FormatName,
		nullJSON(c.FormatConfig), c.LabelStrategy, c.UserCount)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique constraint for key
			return fmt.Errorf("contest with this key already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgContestRepository.Create: %w", err)
	}
	return nil
}

func (r *pgContestRepository) Update(ctx context.Context, tx *sql.Tx, c *model.Contest) error {
	query := `UPDATE contests SET
	            key = $1, name = $2, description = $3, summary = $4, start_time = $5,
	            end_time = $6, time_limit_seconds = $7, is_visible = $8, is_private = $9,
	            is_organization_private = $10, is_private_viewable = $11, hide_scoreboard = $12,
	            permanently_hide_scoreboard = $13, run_pretests_only = $14, freeze_submissions = $15,
	            access_code = $16, format_name = $17, format_config = $18, label_strategy = $19,
	            updated_at = CURRENT_TIMESTAMP
	          WHERE id = $20`
	_, err := r.execer(tx).ExecContext(ctx, query,
		c.Key, c.Name, c.Description, c.Summary, c.StartTime,
		c.EndTime, timeLimitSeconds(c), c.IsVisible, c.IsPrivate,
		c.IsOrganizationPrivate, c.IsPrivateViewable, c.HideScoreboard,
		c.PermanentlyHideScoreboard, c.RunPretestsOnly, c.FreezeSubmissions,
		c.AccessCode, c.FormatName, nullJSON(c.FormatConfig), c.LabelStrategy, c.ID)
	if err != nil {
		return fmt.Errorf("pgContestRepository.Update: %w", err)
	}
	return nil
}

func (r *pgContestRepository) FindByKey(ctx context.Context, key string) (*model.Contest, error) {
	return r.findOne(ctx, "key = $1", key)
}

func (r *pgContestRepository) FindByID(ctx context.Context, id string) (*model.Contest, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *pgContestRepository) findOne(ctx context.Context, where string, arg interface{}) (*model.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests WHERE ` + where
	c, err := scanContest(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgContestRepository.findOne: %w", err)
	}
	if err := r.loadMembershipSets(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListVisible mirrors the visibility filter contestants see: globally
// editable users get everything, everyone else gets visible contests they
// organize or whose privacy requirements they satisfy.
func (r *pgContestRepository) ListVisible(ctx context.Context, u *model.User) ([]model.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests c`
	var args []interface{}

	if u == nil {
		query += ` WHERE c.is_visible AND NOT c.is_private AND NOT c.is_organization_private`
	} else if !u.CanEditAllContests {
		query += `
	        WHERE (c.is_visible OR EXISTS (
	                SELECT 1 FROM contest_organizers org WHERE org.contest_id = c.id AND org.user_id = $1))
	          AND ((NOT c.is_private AND NOT c.is_organization_private)
	            OR EXISTS (
	                SELECT 1 FROM contest_organizers org WHERE org.contest_id = c.id AND org.user_id = $1)
	            OR ((NOT c.is_private OR EXISTS (
	                    SELECT 1 FROM contest_private_contestants pc
	                    WHERE pc.contest_id = c.id AND pc.user_id = $1))
	              AND (NOT c.is_organization_private OR EXISTS (
	                    SELECT 1 FROM contest_organizations co
	                    JOIN organization_members om ON om.organization_id = co.organization_id
	                    WHERE co.contest_id = c.id AND om.user_id = $1))))`
		args = append(args, u.ID)
	}
	query += ` ORDER BY c.start_time DESC, c.key`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.ListVisible query: %w", err)
	}
	defer rows.Close()

	contests := []model.Contest{}
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("pgContestRepository.ListVisible scan: %w", err)
		}
		contests = append(contests, *c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgContestRepository.ListVisible rows.Err: %w", err)
	}
	return contests, nil
}

func (r *pgContestRepository) RefreshUserCount(ctx context.Context, tx *sql.Tx, contestID string) error {
	_, err := r.execer(tx).ExecContext(ctx,
		`UPDATE contests SET
		   user_count = (SELECT COUNT(*) FROM contest_participations
		                 WHERE contest_id = $1 AND virtual = 0),
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1`,
		contestID)
	if err != nil {
		return fmt.Errorf("pgContestRepository.RefreshUserCount: %w", err)
	}
	return nil
}

func (r *pgContestRepository) AddBannedUser(ctx context.Context, tx *sql.Tx, contestID, userID string) error {
	_, err := r.execer(tx).ExecContext(ctx,
		`INSERT INTO contest_banned_users (contest_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		contestID, userID)
	if err != nil {
		return fmt.Errorf("pgContestRepository.AddBannedUser: %w", err)
	}
	return nil
}

func (r *pgContestRepository) RemoveBannedUser(ctx context.Context, tx *sql.Tx, contestID, userID string) error {
	_, err := r.execer(tx).ExecContext(ctx,
		`DELETE FROM contest_banned_users WHERE contest_id = $1 AND user_id = $2`,
		contestID, userID)
	if err != nil {
		return fmt.Errorf("pgContestRepository.RemoveBannedUser: %w", err)
	}
	return nil
}

func (r *pgContestRepository) SetOrganizers(ctx context.Context, tx *sql.Tx, contestID string, userIDs []string) error {
	return r.replaceSet(ctx, tx, "contest_organizers", "user_id", contestID, userIDs)
}

func (r *pgContestRepository) SetOrganizations(ctx context.Context, tx *sql.Tx, contestID string, orgIDs []string) error {
	return r.replaceSet(ctx, tx, "contest_organizations", "organization_id", contestID, orgIDs)
}

func (r *pgContestRepository) SetPrivateContestants(ctx context.Context, tx *sql.Tx, contestID string, userIDs []string) error {
	return r.replaceSet(ctx, tx, "contest_private_contestants", "user_id", contestID, userIDs)
}

func (r *pgContestRepository) replaceSet(ctx context.Context, tx *sql.Tx, table, column, contestID string, ids []string) error {
	ex := r.execer(tx)
	if _, err := ex.ExecContext(ctx, `DELETE FROM `+table+` WHERE contest_id = $1`, contestID); err != nil {
		return fmt.Errorf("pgContestRepository.replaceSet delete %s: %w", table, err)
	}
	for _, id := range ids {
		_, err := ex.ExecContext(ctx,
			`INSERT INTO `+table+` (contest_id, `+column+`) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			contestID, id)
		if err != nil {
			return fmt.Errorf("pgContestRepository.replaceSet insert %s: %w", table, err)
		}
	}
	return nil
}

func (r *pgContestRepository) GetProblems(ctx context.Context, contestID string) ([]model.ContestProblem, error) {
	query := `SELECT cp.id, cp.contest_id, cp.problem_id, cp.points, cp.partial, cp.is_pretested,
	                 cp.sort_order, cp.output_prefix_override, cp.max_submissions,
	                 p.code, p.name
	          FROM contest_problems cp
	          JOIN problems p ON cp.problem_id = p.id
	          WHERE cp.contest_id = $1 ORDER BY cp.sort_order ASC`
	rows, err := r.db.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.GetProblems query: %w", err)
	}
	defer rows.Close()

	var problems []model.ContestProblem
	for rows.Next() {
		var cp model.ContestProblem
		if err := rows.Scan(&cp.ID, &cp.ContestID, &cp.ProblemID, &cp.Points, &cp.Partial, &cp.IsPretested,
			&cp.Order, &cp.OutputPrefixOverride, &cp.MaxSubmissions, &cp.ProblemCode, &cp.ProblemName); err != nil {
			return nil, fmt.Errorf("pgContestRepository.GetProblems scan: %w", err)
		}
		problems = append(problems, cp)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgContestRepository.GetProblems rows.Err: %w", err)
	}
	return problems, nil
}

func (r *pgContestRepository) AddProblems(ctx context.Context, tx *sql.Tx, contestID string, problems []model.ContestProblem) error {
	if len(problems) == 0 {
		return nil
	}
	query := `INSERT INTO contest_problems (id, contest_id, problem_id, points, partial,
	            is_pretested, sort_order, output_prefix_override, max_submissions)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, cp := range problems {
		_, err := r.execer(tx).ExecContext(ctx, query, cp.ID, contestID, cp.ProblemID, cp.Points,
			cp.Partial, cp.IsPretested, cp.Order, cp.OutputPrefixOverride, cp.MaxSubmissions)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("problem already in contest: %w", common.ErrConflict)
			}
			return fmt.Errorf("pgContestRepository.AddProblems: %w", err)
		}
	}
	return nil
}

func (r *pgContestRepository) loadMembershipSets(ctx context.Context, c *model.Contest) error {
	var err error
	if c.OrganizerIDs, err = r.idSet(ctx, "contest_organizers", "user_id", c.ID); err != nil {
		return err
	}
	if c.OrganizationIDs, err = r.idSet(ctx, "contest_organizations", "organization_id", c.ID); err != nil {
		return err
	}
	if c.PrivateContestantIDs, err = r.idSet(ctx, "contest_private_contestants", "user_id", c.ID); err != nil {
		return err
	}
	if c.BannedUserIDs, err = r.idSet(ctx, "contest_banned_users", "user_id", c.ID); err != nil {
		return err
	}
	return nil
}

func (r *pgContestRepository) idSet(ctx context.Context, table, column, contestID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+column+` FROM `+table+` WHERE contest_id = $1`, contestID)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.idSet %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgContestRepository.idSet scan %s: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContest(row rowScanner) (*model.Contest, error) {
	c := &model.Contest{}
	var limitSeconds sql.NullInt64
	var formatConfig []byte
	err := row.Scan(
		&c.ID, &c.Key, &c.Name, &c.Description, &c.Summary, &c.StartTime, &c.EndTime,
		&limitSeconds, &c.IsVisible, &c.IsPrivate, &c.IsOrganizationPrivate,
		&c.IsPrivateViewable, &c.HideScoreboard, &c.PermanentlyHideScoreboard,
		&c.RunPretestsOnly, &c.FreezeSubmissions, &c.AccessCode, &c.FormatName,
		&formatConfig, &c.LabelStrategy, &c.UserCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if limitSeconds.Valid {
		limit := secondsToDuration(limitSeconds.Int64)
		c.TimeLimit = &limit
	}
	if len(formatConfig) > 0 {
		c.FormatConfig = formatConfig
	}
	return c, nil
}
