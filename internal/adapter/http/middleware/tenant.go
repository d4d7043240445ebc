package middleware

import (
	"groupbuy-core/internal/core/domain"
	"groupbuy-core/internal/core/ports"
	"groupbuy-core/pkg/apperror"
	"groupbuy-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// TenantResolver maps the :slug path parameter to a tenant and stores the
// tenant plus its scope token in the request context. Every public and
// webhook route passes through here; downstream code never sees a raw slug.
func TenantResolver(tenants ports.TenantRepository, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := c.Param("slug")
		if slug == "" {
			response.Error(c, apperror.ErrNotFound("tenant"))
			c.Abort()
			return
		}

		tenant, err := tenants.GetBySlug(c.Request.Context(), slug)
		if err != nil {
			log.Error().Err(err).Str("slug", slug).Msg("tenant lookup failed")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		if tenant == nil {
			response.Error(c, apperror.ErrNotFound("tenant"))
			c.Abort()
			return
		}

		c.Set(CtxTenant, tenant)
		c.Set(CtxScope, domain.NewScope(tenant.ID))
		c.Next()
	}
}

// ScopeFrom extracts the scope token set by TenantResolver or JWTAuth.
func ScopeFrom(c *gin.Context) (domain.ScopeToken, bool) {
	v, ok := c.Get(CtxScope)
	if !ok {
		return domain.ScopeToken{}, false
	}
	scope, ok := v.(domain.ScopeToken)
	return scope, ok
}

// TenantFrom extracts the tenant set by TenantResolver.
func TenantFrom(c *gin.Context) (*domain.Tenant, bool) {
	v, ok := c.Get(CtxTenant)
	if !ok {
		return nil, false
	}
	tenant, ok := v.(*domain.Tenant)
	return tenant, ok
}
