package postgres

import (
	"context"
	"errors"
	"fmt"

	"groupbuy-core/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// HostUserRepo implements ports.HostUserRepository.
type HostUserRepo struct {
	pool Pool
}

// NewHostUserRepo creates a new HostUserRepo.
func NewHostUserRepo(pool Pool) *HostUserRepo {
	return &HostUserRepo{pool: pool}
}

// GetByUsername fetches a host user within the tenant scope.
func (r *HostUserRepo) GetByUsername(ctx context.Context, scope domain.ScopeToken, username string) (*domain.HostUser, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}

	query := `SELECT id, tenant_id, username, password_hash, role, created_at
		FROM host_users WHERE tenant_id = $1 AND username = $2`

	u := &domain.HostUser{}
	err := r.pool.QueryRow(ctx, query, scope.TenantID(), username).Scan(
		&u.ID, &u.TenantID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get host user: %w", err)
	}
	return u, nil
}
