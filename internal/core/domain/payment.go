package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the state of a recorded payment.
type PaymentStatus string

const (
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
)

// Payment records a confirmed payment against an order. It drives the
// PENDING_PAYMENT -> PAID transition.
type Payment struct {
	ID          uuid.UUID     `json:"id"`
	TenantID    uuid.UUID     `json:"tenant_id"`
	OrderID     uuid.UUID     `json:"order_id"`
	Amount      int64         `json:"amount"`
	ProviderRef string        `json:"provider_ref"`
	Status      PaymentStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ShipmentStatus represents the state of a shipment.
type ShipmentStatus string

const (
	ShipmentStatusInTransit ShipmentStatus = "IN_TRANSIT"
	ShipmentStatusDelivered ShipmentStatus = "DELIVERED"
)

// Shipment records a dispatched order. It drives PAID -> SHIPPING and, on
// delivery confirmation, SHIPPING -> COMPLETED.
type Shipment struct {
	ID         uuid.UUID      `json:"id"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	OrderID    uuid.UUID      `json:"order_id"`
	CarrierRef string         `json:"carrier_ref"`
	Status     ShipmentStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
