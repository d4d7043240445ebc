package domain

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents a buyer known to one tenant. LineUserID is set by the
// webhook router when the provider reports an identity-binding event.
type Customer struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	DisplayName string    `json:"display_name"`
	Phone       string    `json:"phone,omitempty"`
	LineUserID  *string   `json:"line_user_id,omitempty"`
	BindNonce   *string   `json:"-"` // One-shot nonce for account linking
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
