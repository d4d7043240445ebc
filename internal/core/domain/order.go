package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusCreated        OrderStatus = "CREATED"
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaid           OrderStatus = "PAID"
	OrderStatusShipping       OrderStatus = "SHIPPING"
	OrderStatusCompleted      OrderStatus = "COMPLETED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

// TransitionAction is a host- or system-initiated lifecycle action.
type TransitionAction string

const (
	ActionAwaitPayment   TransitionAction = "await-payment" // automatic, on intake completion
	ActionConfirmPayment TransitionAction = "confirm-payment"
	ActionShip           TransitionAction = "ship"
	ActionComplete       TransitionAction = "complete"
	ActionCancel         TransitionAction = "cancel"
)

// transitions is the authoritative transition table. No other code path may
// change an order's status.
var transitions = map[OrderStatus]map[TransitionAction]OrderStatus{
	OrderStatusCreated: {
		ActionAwaitPayment: OrderStatusPendingPayment,
	},
	OrderStatusPendingPayment: {
		ActionConfirmPayment: OrderStatusPaid,
		ActionCancel:         OrderStatusCancelled,
	},
	OrderStatusPaid: {
		ActionShip:   OrderStatusShipping,
		ActionCancel: OrderStatusCancelled,
	},
	OrderStatusShipping: {
		ActionComplete: OrderStatusCompleted,
	},
}

// NextStatus returns the status reached by applying action in the current
// status, or false if the transition is not legal.
func NextStatus(current OrderStatus, action TransitionAction) (OrderStatus, bool) {
	next, ok := transitions[current][action]
	return next, ok
}

// IsTerminal returns true if no transition leaves the status.
func (s OrderStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Order represents a group-buy order. It is created once by intake in status
// CREATED and mutated only through version-checked status transitions. Orders
// are never physically deleted; cancellation is a terminal status.
type Order struct {
	ID             uuid.UUID   `json:"id"`
	TenantID       uuid.UUID   `json:"tenant_id"`
	CustomerID     uuid.UUID   `json:"customer_id"`
	Items          []OrderItem `json:"items"`
	TotalAmount    int64       `json:"total_amount"` // In smallest currency unit
	Status         OrderStatus `json:"status"`
	IdempotencyKey string      `json:"-"`
	Version        int64       `json:"version"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// OrderItem is a line item with its unit price snapshotted at creation.
// Immutable after order creation.
type OrderItem struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
}

// Subtotal returns quantity * unit price for the line.
func (i OrderItem) Subtotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}
