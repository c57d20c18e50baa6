package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/langchou/tripdash/internal/api/telematics"
	"github.com/langchou/tripdash/internal/cache"
	"github.com/langchou/tripdash/internal/clock"
	"github.com/langchou/tripdash/internal/metrics"
	"github.com/langchou/tripdash/internal/service"
)

// Options 处理器选项
type Options struct {
	Debug          bool
	DevAccessToken string // 仅 Debug 模式下作为缺省 token
	SessionCookie  string
	SessionTTL     time.Duration
	CookieSecure   bool
	Clock          clock.Clock
}

// Handler HTTP 处理器
type Handler struct {
	logger  *zap.Logger
	trips   *service.TripService
	caches  *cache.Registry
	limiter *RateLimiter
	metrics *metrics.Metrics
	opts    Options
}

// NewHandler 创建处理器，limiter 和 m 可以为 nil
func NewHandler(
	logger *zap.Logger,
	trips *service.TripService,
	caches *cache.Registry,
	limiter *RateLimiter,
	m *metrics.Metrics,
	opts Options,
) *Handler {
	if opts.SessionCookie == "" {
		opts.SessionCookie = DefaultSessionCookie
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Handler{
		logger:  logger,
		trips:   trips,
		caches:  caches,
		limiter: limiter,
		metrics: m,
		opts:    opts,
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	session := h.Session()
	authed := []gin.HandlerFunc{session}
	if h.limiter != nil {
		authed = append(authed, h.limiter.Middleware())
	}
	authed = append(authed, h.Auth())

	// API 路由
	api := r.Group("/api", authed...)
	{
		// 行程
		api.GET("/trips/", h.ListTrips)
		api.GET("/trips/:id", h.GetTrip)
		api.POST("/trips/:id/tag/", h.TagTrip)
		api.DELETE("/trips/:id/tag/:tag", h.UntagTrip)

		// 车辆
		api.GET("/vehicles/", h.ListVehicles)

		// 仪表盘，经过会话缓存
		api.GET("/dashboard/trips", h.DashboardTrips)
		api.GET("/dashboard/trips/:id", h.DashboardTrip)
		api.GET("/dashboard/vehicles", h.DashboardVehicles)
		api.POST("/dashboard/refresh", h.Refresh)
	}

	// 导出
	download := r.Group("/download", authed...)
	{
		download.GET("/trips.json", h.DownloadJSON)
		download.GET("/trips.csv", h.DownloadCSV)
	}

	r.POST("/logout", session, h.Logout)
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// sessionCache 当前会话的缓存
func (h *Handler) sessionCache(c *gin.Context) *cache.Cache {
	return h.caches.Get(c.GetString(ContextSessionID), h.opts.Clock.Now())
}

// respondError 把服务层错误映射为 HTTP 响应
func (h *Handler) respondError(c *gin.Context, err error, msg string) {
	status := http.StatusBadGateway
	switch {
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, telematics.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, telematics.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, telematics.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		status = http.StatusServiceUnavailable
	}

	h.logger.Error(msg,
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	)
	c.JSON(status, gin.H{"error": err.Error()})
}
