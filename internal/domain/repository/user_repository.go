package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"colosseum/internal/common"
	"colosseum/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.User, error)

	// SetCurrentParticipation updates the user's current-contest pointer;
	// nil clears it.
	SetCurrentParticipation(ctx context.Context, tx *sql.Tx, userID string, participationID *string) error

	// OrganizationsByUser fetches each user's organizations, ordered by name.
	OrganizationsByUser(ctx context.Context, userIDs []string) (map[string][]model.Organization, error)
}

type pgUserRepository struct {
	db *sql.DB
}

func NewPgUserRepository(db *sql.DB) UserRepository {
	return &pgUserRepository{db: db}
}

func (r *pgUserRepository) execer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.db
}

const userColumns = `id, username, email, hashed_password, role, display_rank, is_unlisted,
	can_edit_all_contests, can_edit_own_contests, current_participation_id, created_at, updated_at`

func (r *pgUserRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (id, username, email, hashed_password, role, display_rank,
	            is_unlisted, can_edit_all_contests, can_edit_own_contests)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.HashedPassword,
		user.Role, user.DisplayRank, user.IsUnlisted, user.CanEditAllContests, user.CanEditOwnContests)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique constraint violation
			return fmt.Errorf("user with given username or email already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgUserRepository.Create: %w", err)
	}
	return nil
}

func (r *pgUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email = $1", email)
}

func (r *pgUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "username = $1", username)
}

func (r *pgUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *pgUserRepository) findOne(ctx context.Context, where string, arg interface{}) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.HashedPassword, &user.Role, &user.DisplayRank,
		&user.IsUnlisted, &user.CanEditAllContests, &user.CanEditOwnContests,
		&user.CurrentParticipationID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.findOne: %w", err)
	}
	if err := r.loadOrganizations(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *pgUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	users := map[string]*model.User{}
	if len(ids) == 0 {
		return users, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgUserRepository.FindByIDs query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(
			&user.ID, &user.Username, &user.Email, &user.HashedPassword, &user.Role, &user.DisplayRank,
			&user.IsUnlisted, &user.CanEditAllContests, &user.CanEditOwnContests,
			&user.CurrentParticipationID, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("pgUserRepository.FindByIDs scan: %w", err)
		}
		users[user.ID] = user
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgUserRepository.FindByIDs rows.Err: %w", err)
	}
	return users, nil
}

func (r *pgUserRepository) SetCurrentParticipation(ctx context.Context, tx *sql.Tx, userID string, participationID *string) error {
	_, err := r.execer(tx).ExecContext(ctx,
		`UPDATE users SET current_participation_id = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		participationID, userID)
	if err != nil {
		return fmt.Errorf("pgUserRepository.SetCurrentParticipation: %w", err)
	}
	return nil
}

func (r *pgUserRepository) OrganizationsByUser(ctx context.Context, userIDs []string) (map[string][]model.Organization, error) {
	result := map[string][]model.Organization{}
	if len(userIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(userIDs))
	args := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `SELECT om.user_id, o.id, o.name, o.slug, o.short_name
	          FROM organization_members om
	          JOIN organizations o ON om.organization_id = o.id
	          WHERE om.user_id IN (` + strings.Join(placeholders, ",") + `)
	          ORDER BY o.name`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgUserRepository.OrganizationsByUser query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var org model.Organization
		if err := rows.Scan(&userID, &org.ID, &org.Name, &org.Slug, &org.ShortName); err != nil {
			return nil, fmt.Errorf("pgUserRepository.OrganizationsByUser scan: %w", err)
		}
		result[userID] = append(result[userID], org)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgUserRepository.OrganizationsByUser rows.Err: %w", err)
	}
	return result, nil
}

func (r *pgUserRepository) loadOrganizations(ctx context.Context, user *model.User) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT organization_id FROM organization_members WHERE user_id = $1`, user.ID)
	if err != nil {
		return fmt.Errorf("pgUserRepository.loadOrganizations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("pgUserRepository.loadOrganizations scan: %w", err)
		}
		user.OrganizationIDs = append(user.OrganizationIDs, id)
	}
	return rows.Err()
}
