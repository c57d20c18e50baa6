package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/tripdash/internal/export"
	"github.com/langchou/tripdash/internal/models"
	"github.com/langchou/tripdash/internal/service"
)

// DownloadJSON 以附件形式导出 JSON
func (h *Handler) DownloadJSON(c *gin.Context) {
	trips, ok := h.downloadTrips(c)
	if !ok {
		return
	}

	c.Header("Content-Disposition", "attachment; filename=trips.json")
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Status(http.StatusOK)
	if err := export.WriteJSON(c.Writer, trips); err != nil {
		h.logger.Error("Failed to write JSON export", zap.Error(err))
	}
}

// DownloadCSV 以附件形式导出 CSV
func (h *Handler) DownloadCSV(c *gin.Context) {
	trips, ok := h.downloadTrips(c)
	if !ok {
		return
	}

	c.Header("Content-Disposition", "attachment; filename=trips.csv")
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, trips); err != nil {
		h.logger.Error("Failed to write CSV export", zap.Error(err))
	}
}

// downloadTrips 导出前先完整拉取，失败时还能返回错误状态码
func (h *Handler) downloadTrips(c *gin.Context) ([]models.MergedTrip, bool) {
	filter := service.ParseTripIDs(c.Query("trip_ids"))
	trips, err := h.trips.MergedTrips(c.Request.Context(), c.GetString(ContextAccessToken), filter)
	if err != nil {
		h.respondError(c, err, "Failed to export trips")
		return nil, false
	}
	return trips, true
}
