// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumera-id/lumera/internal/platform/constants"
	"github.com/lumera-id/lumera/internal/platform/ctxutil"
)

// fixedWindowScript increments the per-client counter and stamps the window
// TTL in one atomic round trip.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RateLimitRedis limits requests per IP using a fixed window counter shared
// across all server instances.
//
// # Failure Mode
//
// Fails open: when Redis is unreachable the request proceeds and the fault
// is logged. Availability of sign-in must not hinge on the cache tier.
//
// # Parameters
//   - client: Shared Redis client.
//   - limit: Maximum requests per window per client IP.
//   - window: Fixed window size.
func RateLimitRedis(client *redis.Client, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			clientIP := RealIP(request)

			// Bucket key rotates every window so counters reset naturally.
			windowIndex := time.Now().UnixMilli() / window.Milliseconds()
			key := fmt.Sprintf("%s%s:%d", constants.RedisPrefixRateLimit, clientIP, windowIndex)

			count, err := fixedWindowScript.Run(
				request.Context(),
				client,
				[]string{key},
				window.Milliseconds(),
			).Int64()

			if err != nil {
				ctxutil.GetLogger(request.Context()).WarnContext(request.Context(),
					"rate_limit_redis_unavailable",
					slog.Any("error", err),
				)
				next.ServeHTTP(writer, request)
				return
			}

			if count > int64(limit) {
				// Tell well-behaved clients when the window rolls over.
				retryAfter := window - time.Duration(time.Now().UnixMilli()%window.Milliseconds())*time.Millisecond
				writer.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				writeError(writer, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Rate limit exceeded")
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
