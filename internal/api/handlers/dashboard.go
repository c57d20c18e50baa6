package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/tripdash/internal/api/telematics"
)

// DashboardTrips 格式化后的行程，缓存新鲜时不访问上游
func (h *Handler) DashboardTrips(c *gin.Context) {
	trips, err := h.trips.DashboardTrips(c.Request.Context(), c.GetString(ContextAccessToken), h.sessionCache(c))
	if err != nil {
		h.respondError(c, err, "Failed to load dashboard trips")
		return
	}

	c.JSON(http.StatusOK, trips)
}

// DashboardTrip 单条格式化行程
func (h *Handler) DashboardTrip(c *gin.Context) {
	trip, err := h.trips.DashboardTrip(c.Request.Context(), c.GetString(ContextAccessToken), h.sessionCache(c), c.Param("id"))
	if errors.Is(err, telematics.ErrNotFound) {
		c.JSON(http.StatusOK, nil)
		return
	}
	if err != nil {
		h.respondError(c, err, "Failed to load dashboard trip")
		return
	}

	c.JSON(http.StatusOK, trip)
}

// DashboardVehicles 车辆列表，经过会话缓存
func (h *Handler) DashboardVehicles(c *gin.Context) {
	vehicles, err := h.trips.DashboardVehicles(c.Request.Context(), c.GetString(ContextAccessToken), h.sessionCache(c))
	if err != nil {
		h.respondError(c, err, "Failed to load dashboard vehicles")
		return
	}

	c.JSON(http.StatusOK, vehicles)
}

// Refresh 丢弃缓存并重新加载
func (h *Handler) Refresh(c *gin.Context) {
	trips, err := h.trips.Refresh(c.Request.Context(), c.GetString(ContextAccessToken), h.sessionCache(c))
	if err != nil {
		h.respondError(c, err, "Failed to refresh trips")
		return
	}

	c.JSON(http.StatusOK, trips)
}

// Logout 清空会话缓存并使 cookie 失效
func (h *Handler) Logout(c *gin.Context) {
	sessionID := c.GetString(ContextSessionID)
	if err := h.caches.Drop(c.Request.Context(), sessionID); err != nil {
		h.logger.Warn("Failed to drop session cache", zap.String("session", sessionID), zap.Error(err))
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.opts.SessionCookie, "", -1, "/", "", h.opts.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
