package postgres

import (
	"context"
	"fmt"
	"time"

	"groupbuy-core/internal/core/domain"
	"groupbuy-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ShipmentRepo implements ports.ShipmentRepository.
type ShipmentRepo struct {
	pool Pool
}

// NewShipmentRepo creates a new ShipmentRepo.
func NewShipmentRepo(pool Pool) *ShipmentRepo {
	return &ShipmentRepo{pool: pool}
}

// Create inserts a shipment inside the transition's transaction.
func (r *ShipmentRepo) Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, s *domain.Shipment) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if s.TenantID != scope.TenantID() {
		return apperror.ErrCrossTenantDenied()
	}

	query := `INSERT INTO shipments (id, tenant_id, order_id, carrier_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		s.ID, s.TenantID, s.OrderID, s.CarrierRef, s.Status, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

// UpdateStatus marks the order's shipment, inside the transition's transaction.
func (r *ShipmentRepo) UpdateStatus(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, orderID uuid.UUID, status domain.ShipmentStatus) error {
	if err := requireScope(scope); err != nil {
		return err
	}

	query := `UPDATE shipments SET status = $1, updated_at = $2 WHERE order_id = $3 AND tenant_id = $4`

	tag, err := tx.Exec(ctx, query, status, time.Now().UTC(), orderID, scope.TenantID())
	if err != nil {
		return fmt.Errorf("update shipment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrNotFound("shipment")
	}
	return nil
}
