package postgres

import (
	"context"
	"errors"
	"fmt"

	"groupbuy-core/internal/core/domain"
	"groupbuy-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a payment inside the transition's transaction.
func (r *PaymentRepo) Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, p *domain.Payment) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if p.TenantID != scope.TenantID() {
		return apperror.ErrCrossTenantDenied()
	}

	query := `INSERT INTO payments (id, tenant_id, order_id, amount, provider_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.TenantID, p.OrderID, p.Amount, p.ProviderRef, p.Status, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByOrderID fetches the payment recorded for an order.
func (r *PaymentRepo) GetByOrderID(ctx context.Context, scope domain.ScopeToken, orderID uuid.UUID) (*domain.Payment, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}

	query := `SELECT id, tenant_id, order_id, amount, provider_ref, status, created_at
		FROM payments WHERE order_id = $1 AND tenant_id = $2`

	p := &domain.Payment{}
	err := r.pool.QueryRow(ctx, query, orderID, scope.TenantID()).Scan(
		&p.ID, &p.TenantID, &p.OrderID, &p.Amount, &p.ProviderRef, &p.Status, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}
