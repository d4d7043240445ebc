package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationTarget is who a message is addressed to.
type NotificationTarget string

const (
	NotificationTargetHost     NotificationTarget = "HOST"
	NotificationTargetCustomer NotificationTarget = "CUSTOMER"
)

// NotificationTrigger is the business event that produced the message.
type NotificationTrigger string

const (
	TriggerOrderCreated  NotificationTrigger = "order-created"
	TriggerStatusChanged NotificationTrigger = "status-changed"
)

// NotificationStatus is the delivery state of a queued message.
type NotificationStatus string

const (
	NotificationStatusPending      NotificationStatus = "PENDING"
	NotificationStatusSent         NotificationStatus = "SENT"
	NotificationStatusFailed       NotificationStatus = "FAILED" // Last attempt failed, retry scheduled
	NotificationStatusDeadLettered NotificationStatus = "DEAD_LETTERED"
)

// NotificationEvent is a durable outbound message. Rows are created inside
// the same transaction as the state change that triggered them and are
// mutated only by the dispatcher. Delivery is at-least-once; the push retry
// key (the event id) lets the provider dedup on its side.
type NotificationEvent struct {
	ID          uuid.UUID           `json:"id"`
	TenantID    uuid.UUID           `json:"tenant_id"`
	Target      NotificationTarget  `json:"target"`
	Trigger     NotificationTrigger `json:"trigger"`
	OrderID     uuid.UUID           `json:"order_id"`
	RecipientID *string             `json:"recipient_id,omitempty"` // LINE user id for customer targets
	Payload     []byte              `json:"payload"`
	Status      NotificationStatus  `json:"status"`
	Attempts    int                 `json:"attempts"`
	NextRetryAt time.Time           `json:"next_retry_at"`
	ClaimedBy   *string             `json:"claimed_by,omitempty"`
	LeaseExpiry *time.Time          `json:"lease_expiry,omitempty"`
	LastError   *string             `json:"last_error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// IsTerminal returns true once the dispatcher will never touch the row again.
func (n *NotificationEvent) IsTerminal() bool {
	return n.Status == NotificationStatusSent || n.Status == NotificationStatusDeadLettered
}
