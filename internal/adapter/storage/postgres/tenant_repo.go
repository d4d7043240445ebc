package postgres

import (
	"context"
	"errors"
	"fmt"

	"groupbuy-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TenantRepo implements ports.TenantRepository.
type TenantRepo struct {
	pool Pool
}

// NewTenantRepo creates a new TenantRepo.
func NewTenantRepo(pool Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

const tenantColumns = `id, slug, name, channel_secret_enc, channel_token_enc, owner_line_user_id, status, created_at, updated_at`

// GetBySlug fetches a tenant by its public path segment.
func (r *TenantRepo) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	query := fmt.Sprintf(`SELECT %s FROM tenants WHERE slug = $1`, tenantColumns)
	return r.scanTenant(r.pool.QueryRow(ctx, query, slug))
}

// GetByID fetches a tenant by id.
func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	query := fmt.Sprintf(`SELECT %s FROM tenants WHERE id = $1`, tenantColumns)
	return r.scanTenant(r.pool.QueryRow(ctx, query, id))
}

func (r *TenantRepo) scanTenant(row pgx.Row) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	err := row.Scan(
		&t.ID, &t.Slug, &t.Name, &t.ChannelSecretEnc, &t.ChannelTokenEnc,
		&t.OwnerLineUserID, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return t, nil
}
