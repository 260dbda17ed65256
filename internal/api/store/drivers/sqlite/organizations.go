package sqlite

import (
	"context"

	"github.com/cartogra/cartogra/internal/api/domain"
)

type organizationsRepo struct {
	q querier
}

const orgColumns = `id, name, slug, is_active, created_at, updated_at`

func (r *organizationsRepo) scanOrg(row interface{ Scan(dest ...any) error }) (domain.Organization, error) {
	var o domain.Organization
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Organization{}, mapNotFound(err)
	}
	return o, nil
}

func (r *organizationsRepo) GetOrganizationByID(ctx context.Context, id string) (domain.Organization, error) {
	return r.scanOrg(r.q.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = ?`, id))
}

func (r *organizationsRepo) GetOrganizationBySlug(ctx context.Context, slug string) (domain.Organization, error) {
	return r.scanOrg(r.q.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE slug = ?`, slug))
}

func (r *organizationsRepo) CreateOrganization(ctx context.Context, o domain.Organization) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		o.ID, o.Name, o.Slug, o.Active,
	)
	return mapConstraint(err)
}

func (r *organizationsRepo) UpdateOrganizationName(ctx context.Context, orgID, name string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE organizations SET name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, name, orgID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *organizationsRepo) SetOrganizationActive(ctx context.Context, orgID string, active bool) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE organizations SET is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, active, orgID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}
