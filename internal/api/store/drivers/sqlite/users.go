package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cartogra/cartogra/internal/api/domain"
)

type usersRepo struct {
	q querier
}

const userColumns = `id, org_id, email, password_hash, first_name, last_name,
	is_superuser, is_active, last_login, created_at, updated_at`

func (r *usersRepo) scanUser(row interface{ Scan(dest ...any) error }) (domain.User, error) {
	var (
		u         domain.User
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.OrgID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Superuser, &u.Active, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.LastLogin = mapNullTimePtr(lastLogin)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, org_id, email, password_hash, first_name, last_name,
			is_superuser, is_active, last_login, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		u.ID, u.OrgID, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.Superuser, u.Active, mapOptionalTime(u.LastLogin),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return r.execOne(ctx, `
		UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, newHash, userID)
}

func (r *usersRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return r.execOne(ctx, `
		UPDATE users SET last_login = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, at.UTC(), userID)
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool) error {
	return r.execOne(ctx, `
		UPDATE users SET is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, active, userID)
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	return r.execOne(ctx, `DELETE FROM users WHERE id = ?`, userID)
}

func (r *usersRepo) CountByOrganization(ctx context.Context, orgID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE org_id = ?`, orgID).Scan(&n)
	return n, err
}

// execOne runs a write that targets a single row and maps zero affected rows
// to store.ErrNotFound so callers can tell a missing id from a no-op.
func (r *usersRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return mapConstraint(err)
	}
	return checkAffected(res)
}
