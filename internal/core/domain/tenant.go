package domain

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus represents the state of a tenant account.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
)

// Tenant represents an isolated group-buy host organization. The slug is the
// public path segment and is immutable after provisioning. Channel credentials
// are stored AES-256-GCM encrypted and decrypted only at the point of use.
type Tenant struct {
	ID               uuid.UUID    `json:"id"`
	Slug             string       `json:"slug"`
	Name             string       `json:"name"`
	ChannelSecretEnc string       `json:"-"` // LINE channel secret, encrypted
	ChannelTokenEnc  string       `json:"-"` // LINE channel access token, encrypted
	OwnerLineUserID  string       `json:"-"` // Push target for host-facing notifications
	Status           TenantStatus `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// IsActive returns true if the tenant may serve traffic.
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}
