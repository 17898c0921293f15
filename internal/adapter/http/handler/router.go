package handler

import (
	"time"

	"wallet-registry/internal/adapter/http/middleware"
	redisStore "wallet-registry/internal/adapter/storage/redis"
	"wallet-registry/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc        ports.WalletService
	Maintainer       ports.IndexMaintainer // nil = no reindex endpoint
	TokenSvc         ports.TokenService    // nil = wallet routes are public
	RateLimitStore   *redisStore.RateLimitStore
	RateLimitRules   map[string]middleware.RateLimitRule // nil or missing group = unlimited
	IdempotencyCache ports.IdempotencyCache              // nil = no replay of POST
	IdempotencyTTL   time.Duration
	Metrics          *middleware.Metrics // nil = no /metrics
	HealthCheckers   []ports.HealthChecker
	BasePath         string
	AppName          string
	Logger           zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.AppName(deps.AppName))
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rl := func(group string) gin.HandlerFunc {
		rule, ok := deps.RateLimitRules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	idem := func(c *gin.Context) { c.Next() }
	if deps.IdempotencyCache != nil {
		idem = middleware.Idempotency(deps.IdempotencyCache, deps.IdempotencyTTL, deps.Logger)
	}

	api := r.Group(deps.BasePath)
	if deps.TokenSvc != nil {
		api.Use(middleware.JWTAuth(deps.TokenSvc, middleware.AuthorityUser, deps.Logger))
	}

	h := NewWalletHandler(deps.WalletSvc, deps.Maintainer, deps.BasePath)
	wallets := api.Group("/wallets")
	{
		wallets.POST("", rl(middleware.GroupWrite), idem, h.Create)
		wallets.PUT("", rl(middleware.GroupWrite), h.Update)
		wallets.GET("", rl(middleware.GroupRead), h.List)
		wallets.GET("/:id", rl(middleware.GroupRead), h.Get)
		wallets.DELETE("/:id", rl(middleware.GroupWrite), h.Delete)
	}
	api.GET("/_search/wallets", rl(middleware.GroupSearch), h.Search)
	if deps.Maintainer != nil {
		api.POST("/_reindex/wallets", rl(middleware.GroupReindex), h.Reindex)
	}

	return r
}
