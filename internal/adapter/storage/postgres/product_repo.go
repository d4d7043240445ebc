package postgres

import (
	"context"
	"fmt"

	"groupbuy-core/internal/core/domain"

	"github.com/google/uuid"
)

// ProductRepo implements ports.ProductRepository.
type ProductRepo struct {
	pool Pool
}

// NewProductRepo creates a new ProductRepo.
func NewProductRepo(pool Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

// GetVariants fetches the requested variants within the tenant scope. Ids
// belonging to another tenant simply do not come back; the intake engine
// treats the gap as a validation failure.
func (r *ProductRepo) GetVariants(ctx context.Context, scope domain.ScopeToken, ids []uuid.UUID) ([]domain.Variant, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id, product_id, tenant_id, sku, unit_price, orderable
		FROM product_variants WHERE tenant_id = $1 AND id = ANY($2)`

	rows, err := r.pool.Query(ctx, query, scope.TenantID(), ids)
	if err != nil {
		return nil, fmt.Errorf("get variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		v := domain.Variant{}
		if err := rows.Scan(&v.ID, &v.ProductID, &v.TenantID, &v.SKU, &v.UnitPrice, &v.Orderable); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}
