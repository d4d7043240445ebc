package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product represents a catalog entry owned by one tenant. Catalog management
// is external; the core reads variants to validate intake.
type Product struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Variant is an orderable product variant with its current unit price.
type Variant struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	SKU       string    `json:"sku"`
	UnitPrice int64     `json:"unit_price"`
	Orderable bool      `json:"orderable"`
}
