package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"groupbuy-core/internal/core/domain"
	"groupbuy-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CustomerRepo implements ports.CustomerRepository.
type CustomerRepo struct {
	pool Pool
}

// NewCustomerRepo creates a new CustomerRepo.
func NewCustomerRepo(pool Pool) *CustomerRepo {
	return &CustomerRepo{pool: pool}
}

const customerColumns = `id, tenant_id, display_name, phone, line_user_id, bind_nonce, created_at, updated_at`

// Create inserts a customer inside the supplied transaction.
func (r *CustomerRepo) Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, c *domain.Customer) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if c.TenantID != scope.TenantID() {
		return apperror.ErrCrossTenantDenied()
	}

	query := `INSERT INTO customers (id, tenant_id, display_name, phone, line_user_id, bind_nonce, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		c.ID, c.TenantID, c.DisplayName, c.Phone, c.LineUserID, c.BindNonce,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// GetByID fetches a customer within the tenant scope.
func (r *CustomerRepo) GetByID(ctx context.Context, scope domain.ScopeToken, id uuid.UUID) (*domain.Customer, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM customers WHERE id = $1 AND tenant_id = $2`, customerColumns)
	return r.scanCustomer(r.pool.QueryRow(ctx, query, id, scope.TenantID()))
}

// GetByLineUserID fetches a customer by external messaging identifier.
func (r *CustomerRepo) GetByLineUserID(ctx context.Context, scope domain.ScopeToken, lineUserID string) (*domain.Customer, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM customers WHERE line_user_id = $1 AND tenant_id = $2`, customerColumns)
	return r.scanCustomer(r.pool.QueryRow(ctx, query, lineUserID, scope.TenantID()))
}

// GetByBindNonce fetches a customer by its one-shot account-link nonce.
func (r *CustomerRepo) GetByBindNonce(ctx context.Context, scope domain.ScopeToken, nonce string) (*domain.Customer, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM customers WHERE bind_nonce = $1 AND tenant_id = $2`, customerColumns)
	return r.scanCustomer(r.pool.QueryRow(ctx, query, nonce, scope.TenantID()))
}

// BindLineUser sets the messaging identifier and clears the nonce, inside the
// webhook routing transaction.
func (r *CustomerRepo) BindLineUser(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, customerID uuid.UUID, lineUserID string) error {
	if err := requireScope(scope); err != nil {
		return err
	}

	query := `UPDATE customers SET line_user_id = $1, bind_nonce = NULL, updated_at = $2
		WHERE id = $3 AND tenant_id = $4`

	tag, err := tx.Exec(ctx, query, lineUserID, time.Now().UTC(), customerID, scope.TenantID())
	if err != nil {
		return fmt.Errorf("bind line user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var ownerID uuid.UUID
		err := r.pool.QueryRow(ctx, `SELECT tenant_id FROM customers WHERE id = $1`, customerID).Scan(&ownerID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.ErrNotFound("customer")
		}
		if err != nil {
			return fmt.Errorf("probe customer: %w", err)
		}
		return apperror.ErrCrossTenantDenied()
	}
	return nil
}

func (r *CustomerRepo) scanCustomer(row pgx.Row) (*domain.Customer, error) {
	c := &domain.Customer{}
	err := row.Scan(
		&c.ID, &c.TenantID, &c.DisplayName, &c.Phone, &c.LineUserID, &c.BindNonce,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	return c, nil
}
