package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chatline/chatline-api/pkg/config"
	appErrors "github.com/chatline/chatline-api/pkg/errors"
	"github.com/chatline/chatline-api/pkg/response"
)

var errRateLimited = appErrors.New("RATE_LIMITED", http.StatusTooManyRequests, "too many attempts, slow down")

// RateLimit applies a fixed-window counter per client IP and route, backed
// by Redis. The limiter fails open: without Redis, or when Redis errors,
// requests pass through.
func RateLimit(client *redis.Client, cfg config.RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if !cfg.Enabled || client == nil {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", c.FullPath(), c.ClientIP())
		ctx := c.Request.Context()

		count, err := client.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			if err := client.Expire(ctx, key, cfg.Window).Err(); err != nil {
				logger.Warn("rate limiter expire failed", zap.Error(err))
			}
		}

		if count > int64(cfg.MaxAttempts) {
			response.Error(c, errRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
