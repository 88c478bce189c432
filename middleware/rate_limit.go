package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"dukapay-billing-api/utils"
)

// RateLimiter throttles payment initiations with a Redis fixed window.
// Each initiation triggers an STK prompt on a customer's phone, so runaway
// callers are throttled hard.
type RateLimiter struct {
	client   *redis.Client
	requests int
	window   time.Duration
}

func NewRateLimiter(client *redis.Client, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client:   client,
		requests: requests,
		window:   window,
	}
}

// Middleware enforces the limit per authenticated caller, falling back to
// the client IP for unauthenticated routes.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.rateLimitKey(r)

			allowed, remaining, resetTime, err := rl.check(r.Context(), key)
			if err != nil {
				// Redis trouble should not block payments; allow and log.
				log.Printf("Rate limit check error: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				log.Printf("Rate limit exceeded for key %s on %s", key, r.URL.Path)
				w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(resetTime).Seconds()), 10))
				utils.SendErrorResponse(w, http.StatusTooManyRequests,
					"Too many payment initiations. Please slow down.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) rateLimitKey(r *http.Request) string {
	if client := GetClientFromContext(r.Context()); client != nil {
		return fmt.Sprintf("rate_limit:client:%s", client.ClientID)
	}
	return fmt.Sprintf("rate_limit:ip:%s", clientIP(r))
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		ips := strings.Split(ip, ",")
		return strings.TrimSpace(ips[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

func (rl *RateLimiter) check(ctx context.Context, key string) (allowed bool, remaining int, resetTime time.Time, err error) {
	now := time.Now()
	windowStart := now.Truncate(rl.window)
	resetTime = windowStart.Add(rl.window)

	windowKey := fmt.Sprintf("%s:%d", key, windowStart.Unix())

	count, err := rl.client.Incr(ctx, windowKey).Result()
	if err != nil {
		return false, 0, resetTime, err
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, windowKey, rl.window).Err(); err != nil {
			log.Printf("Warning: failed to set rate limit TTL for %s: %v", windowKey, err)
		}
	}

	remaining = rl.requests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return int(count) <= rl.requests, remaining, resetTime, nil
}
