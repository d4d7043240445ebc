package service

import (
	"groupbuy-core/internal/core/domain"
	"groupbuy-core/internal/core/ports"
)

// roleCapabilities is the closed capability set per role. Route handlers
// consult Can through middleware; no conditional on role exists elsewhere.
var roleCapabilities = map[domain.Role]map[ports.Capability]bool{
	domain.RoleOwner: {
		ports.CapOrdersRead:       true,
		ports.CapOrdersTransition: true,
	},
	domain.RoleStaff: {
		ports.CapOrdersRead:       true,
		ports.CapOrdersTransition: true,
	},
	domain.RoleViewer: {
		ports.CapOrdersRead: true,
	},
}

// AuthzService implements ports.Authorizer.
type AuthzService struct{}

// NewAuthzService creates the authorization service.
func NewAuthzService() *AuthzService {
	return &AuthzService{}
}

// Can reports whether the role carries the capability.
func (s *AuthzService) Can(role domain.Role, cap ports.Capability) bool {
	return roleCapabilities[role][cap]
}
