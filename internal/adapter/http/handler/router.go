package handler

import (
	"groupbuy-core/config"
	"groupbuy-core/internal/adapter/http/middleware"
	redisStore "groupbuy-core/internal/adapter/storage/redis"
	"groupbuy-core/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	IntakeSvc      ports.IntakeService
	LifecycleSvc   ports.LifecycleService
	WebhookSvc     ports.WebhookService
	AuthSvc        ports.AuthService
	Authorizer     ports.Authorizer
	TokenSvc       ports.TokenService
	TenantRepo     ports.TenantRepository
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	RateLimitRules config.RateLimitConfig
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string, rule config.RateLimitRule) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	tenantResolver := middleware.TenantResolver(deps.TenantRepo, deps.Logger)

	// --- Public routes (tenant from slug, no auth) ---
	orderHandler := NewOrderHandler(deps.IntakeSvc)
	public := r.Group("/api/public/:slug", tenantResolver)
	{
		public.POST("/orders", rl("public_orders", deps.RateLimitRules.PublicOrders), orderHandler.CreateOrder)
	}

	// --- Provider webhooks (tenant from slug, signature auth) ---
	webhookHandler := NewWebhookHandler(deps.WebhookSvc, deps.Logger)
	webhooks := r.Group("/api/webhooks/line/:slug", tenantResolver)
	{
		webhooks.POST("", rl("webhooks", deps.RateLimitRules.Webhooks), webhookHandler.Receive)
	}

	// --- Host routes (JWT-authenticated, capability-gated) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	hostHandler := NewHostHandler(deps.AuthSvc, deps.LifecycleSvc, deps.TenantRepo)

	r.POST("/api/host/auth/login", rl("host", deps.RateLimitRules.Host), hostHandler.Login)

	orders := r.Group("/api/host/orders", jwtAuth, rl("host", deps.RateLimitRules.Host))
	{
		orders.GET("", middleware.RequireCapability(deps.Authorizer, ports.CapOrdersRead), hostHandler.ListOrders)
		orders.GET("/:id", middleware.RequireCapability(deps.Authorizer, ports.CapOrdersRead), hostHandler.GetOrder)
		orders.POST("/:id/transition", middleware.RequireCapability(deps.Authorizer, ports.CapOrdersTransition), hostHandler.Transition)
	}

	return r
}
