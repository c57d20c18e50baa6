package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/langchou/tripdash/internal/metrics"
)

// DefaultSessionCookie 会话 cookie 名
const DefaultSessionCookie = "tripdash_session"

// gin context 键
const (
	ContextSessionID   = "session_id"
	ContextSessionNew  = "session_new"
	ContextAccessToken = "access_token"
)

// Session 读取或签发会话 cookie
func (h *Handler) Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(h.opts.SessionCookie)
		if err == nil {
			_, err = uuid.Parse(id)
		}
		if err != nil {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(h.opts.SessionCookie, id, int(h.opts.SessionTTL.Seconds()), "/", "", h.opts.CookieSecure, true)
			c.Set(ContextSessionNew, true)
		}
		c.Set(ContextSessionID, id)
		c.Next()
	}
}

// Auth 从 Authorization 头读取 bearer token
//
// Debug 模式下没有 token 时使用开发 token
func (h *Handler) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && h.opts.Debug {
			token = h.opts.DevAccessToken
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(ContextAccessToken, token)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequestLogger 记录每个请求并计数
func RequestLogger(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if m != nil {
			m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		}

		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("session", c.GetString(ContextSessionID)),
		)
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按会话限流
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
	now      func() time.Time
}

// NewRateLimiter 创建限流器，rps <= 0 表示不限流
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// Allow 会话是否还有额度
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	rl.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Sweep 删除 idle 内未使用的限流器
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) >= idle {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// limitKey 刚签发的会话按客户端 IP 限流，丢弃 cookie 不能绕过限流
func limitKey(c *gin.Context) string {
	if c.GetBool(ContextSessionNew) {
		return "ip:" + c.ClientIP()
	}
	return "session:" + c.GetString(ContextSessionID)
}

// Middleware 超出额度时返回 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(limitKey(c)) {
			retryAfter := 1
			if rl.limit > 0 && rl.limit != rate.Inf && rl.limit < 1 {
				retryAfter = int(1/float64(rl.limit)) + 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
