package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	apperrors "house-price-workers/internal/common/errors"
	"house-price-workers/internal/common/logger"
	"house-price-workers/internal/common/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests by the matched route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// rateLimit rejects clients over budget. Redis errors let the request through.
func rateLimit(limiter *RateLimiter, trustForwardedFor bool, log logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, trustForwardedFor)

		allowed, remaining, err := limiter.Allow(r.Context(), ip)
		if err != nil {
			log.Warn("rate limiter unavailable, allowing request", map[string]interface{}{
				"client": ip,
				"error":  err.Error(),
			})
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if !allowed {
			metrics.RateLimited.Inc()
			writeError(w, apperrors.NewRateLimitedError(ip))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the peer address. X-Forwarded-For is set by the caller, so it
// is only read when a trusted proxy in front of the API rewrites it.
func clientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
