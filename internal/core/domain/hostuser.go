package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is a closed set of host-user roles. Capabilities per role live in the
// authorization service; handlers never branch on role directly.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleStaff  Role = "STAFF"
	RoleViewer Role = "VIEWER"
)

// HostUser represents a staff login belonging to one tenant.
type HostUser struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Argon2id, never exposed
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
