package http

import (
	"net/http"
	"strconv"

	"github.com/cartogra/cartogra/internal/api/ratelimit"
	"github.com/cartogra/cartogra/internal/api/service"
	"github.com/cartogra/cartogra/pkg/httpx"
	"github.com/cartogra/cartogra/pkg/jwtx"
	"github.com/cartogra/cartogra/pkg/slogx"
)

// TenantMiddleware resolves the caller's identity and tenant from the bearer
// token and attaches it to the request context. It never rejects a request:
// a missing or invalid token just leaves the request anonymous, and each
// endpoint decides whether anonymous access is acceptable.
func TenantMiddleware(tokens *service.TokenService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := httpx.BearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := tokens.Validate(ctx, raw, jwtx.KindAccess)
			if err != nil {
				slogx.FromContext(ctx).Debug("bearer token rejected", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(httpx.WithIdentity(ctx, id)))
		})
	}
}

// RateLimitMiddleware enforces the two-tier sliding window: authenticated
// callers are counted per user against the auth policy, everyone else per
// client IP against the anon policy. Run it after TenantMiddleware so the
// identity is already resolved.
func RateLimitMiddleware(limiter *ratelimit.Limiter, anon, auth ratelimit.Policy) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := ratelimit.IPKey(httpx.ClientIP(r))
			policy := anon
			if id, ok := httpx.IdentityFromContext(ctx); ok {
				key = ratelimit.UserKey(id.UserID)
				policy = auth
			}

			res, err := limiter.Allow(ctx, key, policy)
			if err != nil {
				log.Error("rate limit check failed", "error", err)
				httpx.WriteError(w, http.StatusServiceUnavailable,
					"rate_limit_unavailable", "try again later")
				return
			}

			if res.Disabled {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))

			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(res.RetryAfter, 10))
				log.Warn("rate limit exceeded",
					"key", key,
					"endpoint", r.URL.Path,
					"retry_after", res.RetryAfter,
				)
				httpx.WriteError(w, http.StatusTooManyRequests,
					"rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
