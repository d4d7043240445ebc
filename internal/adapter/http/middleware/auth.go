package middleware

import (
	"strings"

	"groupbuy-core/internal/core/domain"
	"groupbuy-core/internal/core/ports"
	"groupbuy-core/pkg/apperror"
	"groupbuy-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// JWTAuth validates the host bearer token and derives the request scope from
// the token's tenant claim. Host routes carry no slug; the token is the only
// tenant authority.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}

		c.Set(CtxClaims, claims)
		c.Set(CtxScope, domain.NewScope(claims.TenantID))
		c.Next()
	}
}

// RequireCapability gates a route on one capability for the authenticated
// role. Handlers behind it never branch on role.
func RequireCapability(authz ports.Authorizer, cap ports.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}
		if !authz.Can(claims.Role, cap) {
			response.Error(c, apperror.ErrForbidden())
			c.Abort()
			return
		}
		c.Next()
	}
}

// ClaimsFrom extracts the token claims set by JWTAuth.
func ClaimsFrom(c *gin.Context) (*ports.TokenClaims, bool) {
	v, ok := c.Get(CtxClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*ports.TokenClaims)
	return claims, ok
}
