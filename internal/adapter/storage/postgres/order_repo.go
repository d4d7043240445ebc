package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"groupbuy-core/internal/core/domain"
	"groupbuy-core/internal/core/ports"
	"groupbuy-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderRepo implements ports.OrderRepository. Every query carries the tenant
// predicate from the scope token; a scoped write that matches nothing probes
// the row without the predicate to distinguish a stale CAS, a foreign-tenant
// row and a missing row.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create inserts the order and all its items inside the supplied transaction.
func (r *OrderRepo) Create(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, order *domain.Order) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if order.TenantID != scope.TenantID() {
		return apperror.ErrCrossTenantDenied()
	}

	query := `INSERT INTO orders (id, tenant_id, customer_id, total_amount, status, idempotency_key, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		order.ID, order.TenantID, order.CustomerID, order.TotalAmount,
		order.Status, order.IdempotencyKey, order.Version,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `INSERT INTO order_items (id, order_id, tenant_id, variant_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, item := range order.Items {
		if item.TenantID != scope.TenantID() {
			return apperror.ErrCrossTenantDenied()
		}
		if _, err := tx.Exec(ctx, itemQuery,
			item.ID, item.OrderID, item.TenantID, item.VariantID, item.Quantity, item.UnitPrice,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

const orderColumns = `id, tenant_id, customer_id, total_amount, status, idempotency_key, version, created_at, updated_at`

// GetByID fetches an order with its items. A probe that hits a foreign
// tenant's row fails with CROSS_TENANT_DENIED and never returns the row.
func (r *OrderRepo) GetByID(ctx context.Context, scope domain.ScopeToken, id uuid.UUID) (*domain.Order, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1 AND tenant_id = $2`, orderColumns)

	o := &domain.Order{}
	err := r.pool.QueryRow(ctx, query, id, scope.TenantID()).Scan(
		&o.ID, &o.TenantID, &o.CustomerID, &o.TotalAmount,
		&o.Status, &o.IdempotencyKey, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyMiss(ctx, scope, id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.loadItems(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

// TransitionStatus performs the compare-and-swap on (status, version).
func (r *OrderRepo) TransitionStatus(ctx context.Context, scope domain.ScopeToken, tx pgx.Tx, id uuid.UUID, from, to domain.OrderStatus, expectedVersion int64) error {
	if err := requireScope(scope); err != nil {
		return err
	}

	query := `UPDATE orders SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4 AND status = $5 AND version = $6`

	tag, err := tx.Exec(ctx, query, to, time.Now().UTC(), id, scope.TenantID(), from, expectedVersion)
	if err != nil {
		return fmt.Errorf("transition order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if missErr := r.classifyMiss(ctx, scope, id); missErr != nil {
			return missErr
		}
		// Row exists in-tenant; the (status, version) pair no longer matches.
		return apperror.ErrStaleOrderState()
	}
	return nil
}

// List fetches orders with filtering and pagination, tenant-scoped.
func (r *OrderRepo) List(ctx context.Context, scope domain.ScopeToken, params ports.OrderListParams) ([]domain.Order, int64, error) {
	if err := requireScope(scope); err != nil {
		return nil, 0, err
	}

	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIdx))
	args = append(args, scope.TenantID())
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= to_timestamp($%d)", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= to_timestamp($%d)", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM orders %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o := domain.Order{}
		err := rows.Scan(
			&o.ID, &o.TenantID, &o.CustomerID, &o.TotalAmount,
			&o.Status, &o.IdempotencyKey, &o.Version, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, total, nil
}

func (r *OrderRepo) loadItems(ctx context.Context, scope domain.ScopeToken, orderID uuid.UUID) ([]domain.OrderItem, error) {
	query := `SELECT id, order_id, tenant_id, variant_id, quantity, unit_price
		FROM order_items WHERE order_id = $1 AND tenant_id = $2 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, orderID, scope.TenantID())
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		i := domain.OrderItem{}
		if err := rows.Scan(&i.ID, &i.OrderID, &i.TenantID, &i.VariantID, &i.Quantity, &i.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// classifyMiss distinguishes a missing order from a foreign tenant's order.
// Returns nil when the row exists within the scope (the caller's predicate
// simply did not match).
func (r *OrderRepo) classifyMiss(ctx context.Context, scope domain.ScopeToken, id uuid.UUID) error {
	var ownerID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT tenant_id FROM orders WHERE id = $1`, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.ErrNotFound("order")
		}
		return fmt.Errorf("probe order: %w", err)
	}
	if ownerID != scope.TenantID() {
		return apperror.ErrCrossTenantDenied()
	}
	return nil
}
