package middleware

import (
	"fmt"
	"strconv"
	"time"

	"groupbuy-core/config"
	redisStore "groupbuy-core/internal/adapter/storage/redis"
	"groupbuy-core/pkg/apperror"
	"groupbuy-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Counters are keyed per tenant, falling back to client IP before tenant
// resolution. A Redis outage degrades to allowing traffic rather than taking
// the API down with it.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule config.RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimited())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier determines the rate limit key source.
func extractIdentifier(c *gin.Context) string {
	if scope, ok := ScopeFrom(c); ok {
		return scope.TenantID().String()
	}
	return c.ClientIP()
}
