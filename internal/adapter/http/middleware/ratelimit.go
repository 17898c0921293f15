package middleware

import (
	"fmt"
	"strconv"
	"time"

	redisStore "wallet-registry/internal/adapter/storage/redis"
	"wallet-registry/pkg/apperror"
	"wallet-registry/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Rate limit groups of the wallet resource.
const (
	GroupRead    = "wallets_read"
	GroupWrite   = "wallets_write"
	GroupSearch  = "wallets_search"
	GroupReindex = "wallets_reindex"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// WalletRateLimitRules returns per-minute limits for the wallet route groups.
// A full reindex is expensive and is limited to a few runs per minute.
func WalletRateLimitRules(read, write, search int64) map[string]RateLimitRule {
	return map[string]RateLimitRule{
		GroupRead:    {Limit: read, Window: time.Minute},
		GroupWrite:   {Limit: write, Window: time.Minute},
		GroupSearch:  {Limit: search, Window: time.Minute},
		GroupReindex: {Limit: 2, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
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
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys limits by authenticated subject, falling back to the client IP.
func extractIdentifier(c *gin.Context) string {
	if sub := c.GetString(CtxSubject); sub != "" {
		return "sub:" + sub
	}
	return "ip:" + c.ClientIP()
}
