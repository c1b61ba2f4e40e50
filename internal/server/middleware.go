package server

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MosinFAM/forum-moderation/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// RequestLogger пишет каждый запрос в logrus
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request served")
		}
	}
}

// Metrics считает запросы и их длительность по шаблону маршрута
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ActiveRequests.Inc()
		timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(route))

		c.Next()

		timer.ObserveDuration()
		metrics.ActiveRequests.Dec()
		metrics.HttpRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Authenticator сверяет bearer-токен с bcrypt-хешем токена администратора
type Authenticator struct {
	hash []byte
}

func NewAuthenticator(hash []byte) *Authenticator {
	return &Authenticator{hash: hash}
}

// HashToken готовит хеш для токена, заданного открытым текстом
func HashToken(token string, cost int) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(token), cost)
}

// RequireAdmin: нет токена - 401, чужой токен - 403
func (a *Authenticator) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if err := bcrypt.CompareHashAndPassword(a.hash, []byte(strings.TrimSpace(token))); err != nil {
			log.WithField("client_ip", c.ClientIP()).Warn("Rejected moderation request with invalid token")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RateLimiter - token bucket на каждый IP
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	every    time.Duration
	burst    int
}

func NewRateLimiter(every time.Duration, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		every:    every,
		burst:    burst,
	}
}

// GetLimiter возвращает лимитер для IP, создавая его при первом обращении
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, exists := rl.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(rl.every), rl.burst)
		rl.limiters[ip] = limiter
	}
	rl.lastSeen[ip] = time.Now()
	return limiter
}

// Prune удаляет лимитеры, к которым не обращались дольше expire
func (rl *RateLimiter) Prune(expire time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-expire)
	removed := 0
	for ip, seen := range rl.lastSeen {
		if seen.Before(cutoff) {
			delete(rl.limiters, ip)
			delete(rl.lastSeen, ip)
			removed++
		}
	}
	return removed
}

// RunCleanup периодически чистит лимитеры, пока не закрыт stop
func (rl *RateLimiter) RunCleanup(every, expire time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := rl.Prune(expire); n > 0 {
				log.WithField("removed", n).Debug("Pruned idle rate limiters")
			}
		case <-stop:
			return
		}
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
