package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adaptive-escrow/escrow-backend/internal/http/handlers/common"
	"github.com/adaptive-escrow/escrow-backend/internal/service"
)

type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Platform GET /api/analytics/platform
func (h *AnalyticsHandler) Platform(c *gin.Context) {
	analytics, err := h.analytics.Platform(c.Request.Context(), c.Query("period"))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"analytics": analytics,
	})
}

// User GET /api/analytics/user/:wallet
func (h *AnalyticsHandler) User(c *gin.Context) {
	user, analytics, err := h.analytics.ForUser(c.Request.Context(), c.Param("wallet"), c.Query("period"))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"user":      user,
		"analytics": analytics,
	})
}

// TopPerformers GET /api/analytics/top-performers
func (h *AnalyticsHandler) TopPerformers(c *gin.Context) {
	metric := c.Query("metric")
	limit := common.ParseIntQuery(c, "limit", 10)

	performers, err := h.analytics.TopPerformers(c.Request.Context(), metric, limit)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"performers": performers,
	})
}
