package domain

import "github.com/google/uuid"

// ScopeToken carries exactly one tenant identity through the data-access layer.
// It is produced per request by the tenant resolver, never persisted, and every
// repository operation requires one. A zero token is a programming error.
type ScopeToken struct {
	tenantID uuid.UUID
}

// NewScope creates a scope token for a tenant.
func NewScope(tenantID uuid.UUID) ScopeToken {
	return ScopeToken{tenantID: tenantID}
}

// TenantID returns the tenant this token is bound to.
func (s ScopeToken) TenantID() uuid.UUID {
	return s.tenantID
}

// IsZero reports whether the token carries no tenant.
func (s ScopeToken) IsZero() bool {
	return s.tenantID == uuid.Nil
}
