package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/filegate/internal/ratelimit"
	"go.uber.org/zap"
)

// RateLimiter returns a huma middleware applying per-endpoint sliding-window limits.
//
// Endpoints declare limits through operation metadata under ratelimit.MetadataKey.
// Endpoints without metadata get the limiter defaults; Disabled skips limiting.
// Counters are keyed by route template, so every /verify/{token} request from a
// client shares one counter regardless of the token.
func RateLimiter(api huma.API, limiter *ratelimit.Limiter, logger *zap.Logger) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		var (
			route  string
			limits []ratelimit.LimitConfig
		)

		if op := ctx.Operation(); op != nil {
			route = op.Path
		}

		if cfg := ratelimit.GetEndpointConfig(ctx); cfg != nil {
			if cfg.Disabled {
				next(ctx)

				return
			}

			limits = cfg.Limits
		}

		allowed, exceeded, err := limiter.Allow(ctx.Context(), clientKey(ctx), route, limits)
		if err != nil {
			logger.Error("rate limit check failed", zap.String("path", route), zap.Error(err))
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)

			return
		}

		if !allowed {
			logger.Warn("rate limit exceeded",
				zap.String("path", route),
				zap.String("method", ctx.Method()),
				zap.Int64("count", exceeded.Count),
				zap.Int64("max", exceeded.Config.Max),
				zap.Duration("window", exceeded.Config.Window),
				zap.String("client_ip", clientIP(ctx)),
			)

			ctx.SetHeader("Retry-After", strconv.Itoa(int(exceeded.RetryAfter().Seconds())))
			_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests,
				fmt.Sprintf("rate limit exceeded: %d requests in %s", exceeded.Config.Max, exceeded.Config.Window))

			return
		}

		next(ctx)
	}
}
