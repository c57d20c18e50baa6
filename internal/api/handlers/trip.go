package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/langchou/tripdash/internal/api/telematics"
	"github.com/langchou/tripdash/internal/service"
)

// ListTrips 获取合并后的行程列表，支持 trip_ids 过滤
func (h *Handler) ListTrips(c *gin.Context) {
	filter := service.ParseTripIDs(c.Query("trip_ids"))

	trips, err := h.trips.MergedTrips(c.Request.Context(), c.GetString(ContextAccessToken), filter)
	if err != nil {
		h.respondError(c, err, "Failed to list trips")
		return
	}

	c.JSON(http.StatusOK, trips)
}

// GetTrip 获取单条原始行程，不存在时返回 null
func (h *Handler) GetTrip(c *gin.Context) {
	trip, err := h.trips.Trip(c.Request.Context(), c.GetString(ContextAccessToken), c.Param("id"))
	if errors.Is(err, telematics.ErrNotFound) {
		c.JSON(http.StatusOK, nil)
		return
	}
	if err != nil {
		h.respondError(c, err, "Failed to get trip")
		return
	}

	c.JSON(http.StatusOK, trip)
}

// ListVehicles 获取车辆列表
func (h *Handler) ListVehicles(c *gin.Context) {
	vehicles, err := h.trips.Vehicles(c.Request.Context(), c.GetString(ContextAccessToken))
	if err != nil {
		h.respondError(c, err, "Failed to list vehicles")
		return
	}

	c.JSON(http.StatusOK, vehicles)
}

// TagTrip 添加标签，表单字段 tag
func (h *Handler) TagTrip(c *gin.Context) {
	err := h.trips.TagTrip(
		c.Request.Context(),
		c.GetString(ContextAccessToken),
		h.sessionCache(c),
		c.Param("id"),
		c.PostForm("tag"),
	)
	if err != nil {
		h.respondError(c, err, "Failed to tag trip")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UntagTrip 删除标签
func (h *Handler) UntagTrip(c *gin.Context) {
	err := h.trips.UntagTrip(
		c.Request.Context(),
		c.GetString(ContextAccessToken),
		h.sessionCache(c),
		c.Param("id"),
		c.Param("tag"),
	)
	if err != nil {
		h.respondError(c, err, "Failed to untag trip")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
