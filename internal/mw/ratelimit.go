package mw

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ClientLimiters holds one token bucket per client address. A bucket idle for
// longer than it takes to refill is dropped, since a fresh one is equivalent.
type ClientLimiters struct {
	buckets *cache.Cache
	r       rate.Limit
	b       int
	idle    time.Duration
}

// NewClientLimiters creates limiters allowing r requests per second with burst b.
func NewClientLimiters(r rate.Limit, b int) *ClientLimiters {
	idle := time.Minute
	if r > 0 && r != rate.Inf {
		if refill := time.Duration(float64(b) / float64(r) * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &ClientLimiters{
		buckets: cache.New(idle, 2*idle),
		r:       r,
		b:       b,
		idle:    idle,
	}
}

// Allow takes one token from the client's bucket.
func (l *ClientLimiters) Allow(client string) bool {
	return l.bucket(client).Allow()
}

// Len returns the number of clients with a live bucket.
func (l *ClientLimiters) Len() int {
	return l.buckets.ItemCount()
}

func (l *ClientLimiters) bucket(client string) *rate.Limiter {
	if v, ok := l.buckets.Get(client); ok {
		limiter := v.(*rate.Limiter)
		l.buckets.Set(client, limiter, l.idle)
		return limiter
	}
	limiter := rate.NewLimiter(l.r, l.b)
	if err := l.buckets.Add(client, limiter, l.idle); err != nil {
		// Lost a race with another request from the same client.
		if v, ok := l.buckets.Get(client); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// RateLimiter rejects requests beyond the per-client rate with a JSON 429.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiters := NewClientLimiters(r, b)
	retryAfter := "1"
	if r > 0 && r < 1 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / float64(r))))
	}
	return func(c *gin.Context) {
		if !limiters.Allow(c.ClientIP()) {
			log.Debug().Str("client_ip", c.ClientIP()).Str("path", c.Request.URL.Path).Msg("rate limited")
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
