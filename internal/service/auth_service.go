package service

import (
	"context"
	"time"

	"groupbuy-core/internal/core/domain"
	"groupbuy-core/internal/core/ports"
	"groupbuy-core/pkg/apperror"

	"github.com/rs/zerolog"
)

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	users    ports.HostUserRepository
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
	log      zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(users ports.HostUserRepository, hashSvc ports.HashService, tokenSvc ports.TokenService, log zerolog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, hashSvc: hashSvc, tokenSvc: tokenSvc, log: log}
}

// Login authenticates a host user within one tenant and issues a JWT bound to
// that tenant. Unknown username and wrong password are indistinguishable to
// the caller.
func (s *AuthServiceImpl) Login(ctx context.Context, scope domain.ScopeToken, username, password string) (string, time.Time, error) {
	user, err := s.users.GetByUsername(ctx, scope, username)
	if err != nil {
		return "", time.Time{}, err
	}
	if user == nil {
		return "", time.Time{}, apperror.ErrUnauthorized()
	}

	ok, err := s.hashSvc.Verify(password, user.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(err)
	}
	if !ok {
		s.log.Warn().
			Str("tenant_id", scope.TenantID().String()).
			Str("username", username).
			Msg("failed login attempt")
		return "", time.Time{}, apperror.ErrUnauthorized()
	}

	token, expiresAt, err := s.tokenSvc.Generate(user.ID, user.TenantID, user.Role)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(err)
	}
	return token, expiresAt, nil
}
