// internal/api/middleware.go
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	rateWindow       = time.Minute
	redisLimitBudget = 200 * time.Millisecond
)

// LoggingMiddleware logs one line per request
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		endTime := time.Now()
		latency := endTime.Sub(startTime)

		log.Printf("[GIN] %v | %3d | %13v | %15s | %s | %s",
			endTime.Format("2006/01/02 - 15:04:05"),
			c.Writer.Status(),
			latency,
			c.ClientIP(),
			c.Request.Method,
			c.Request.URL.Path,
		)
	}
}

// CORSMiddleware allows the configured origins; "*" allows any.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware limits requests per client IP with a sliding window in
// redis. Without redis, or when redis fails, a per-IP token bucket in memory
// takes over.
func RateLimitMiddleware(rdb redis.UniversalClient, perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	local := newIPLimiter(perMinute)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		allowed := false
		if rdb != nil {
			ok, err := slidingWindowAllow(c.Request.Context(), rdb, ip, perMinute)
			if err != nil {
				log.Printf("Rate limit backend unavailable, using in-memory limiter: %v", err)
				allowed = local.Allow(ip)
			} else {
				allowed = ok
			}
		} else {
			allowed = local.Allow(ip)
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

func slidingWindowAllow(ctx context.Context, rdb redis.UniversalClient, ip string, limit int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisLimitBudget)
	defer cancel()

	key := fmt.Sprintf("repochat:rate_limit:%s", ip)
	now := time.Now()

	pipe := rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now.Add(-rateWindow).UnixNano()))
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, rateWindow)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return card.Val() <= int64(limit), nil
}

// ipLimiter keeps one token bucket per client IP
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Every(rateWindow / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

// Allow reports whether a request from ip may proceed now
func (l *ipLimiter) Allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// ErrorHandlerMiddleware logs errors attached to the context and reports the
// last one to the client if nothing has been written yet.
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		for _, err := range c.Errors {
			log.Printf("API error: %v", err.Err)
		}
		if c.Writer.Written() {
			return
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": c.Errors.Last().Error()})
	}
}
