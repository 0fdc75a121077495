package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/maruel/songdb/internal/errors"
	"github.com/maruel/songdb/internal/server/ratelimit"
)

// withTimeout bounds the context of every request to d.
func withTimeout(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withRateLimit rejects requests of a limited tier once the client's bucket is
// empty. Limited responses carry the X-RateLimit headers.
func withRateLimit(limits *ratelimit.Config, next http.Handler) http.Handler {
	if limits == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tier := limits.Match(r.Method, r.URL.Path); tier != nil {
			result := tier.Limiter.Allow(tier.Key(clientIP(r)))
			w = ratelimit.NewResponseWriter(w, result)
			if !result.Allowed {
				writeError(r.Context(), w, apierrors.TooManyRequests())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client IP from an HTTP request, checking
// X-Forwarded-For and X-Real-IP headers for proxied requests.
func clientIP(r *http.Request) string {
	// The leftmost X-Forwarded-For entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if strings.HasPrefix(addr, "[") {
		if host, _, found := strings.Cut(addr, "]:"); found {
			return host[1:]
		}
		return strings.Trim(addr, "[]")
	}
	if host, _, found := strings.Cut(addr, ":"); found {
		return host
	}
	return addr
}
