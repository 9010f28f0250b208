package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/adaptive-escrow/escrow-backend/internal/http/handlers/common"
	"github.com/adaptive-escrow/escrow-backend/internal/service"
)

type UserHandler struct {
	profiles  *service.ProfileService
	analytics *service.AnalyticsService
}

func NewUserHandler(profiles *service.ProfileService, analytics *service.AnalyticsService) *UserHandler {
	return &UserHandler{profiles: profiles, analytics: analytics}
}

// Get GET /api/users/:wallet
func (h *UserHandler) Get(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), c.Param("wallet"))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"profile": profile,
	})
}

// Update PUT /api/users/:wallet
func (h *UserHandler) Update(c *gin.Context) {
	var req struct {
		Name   *string  `json:"name"`
		Email  *string  `json:"email"`
		Bio    *string  `json:"bio"`
		Skills []string `json:"skills"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailValidation(c, "некорректное тело запроса")
		return
	}

	user, err := h.profiles.Update(c.Request.Context(), c.Param("wallet"), service.UpdateProfileInput{
		Name:   req.Name,
		Email:  req.Email,
		Bio:    req.Bio,
		Skills: req.Skills,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "профиль обновлён",
		"user":    user,
	})
}

// Performance GET /api/users/:wallet/performance
func (h *UserHandler) Performance(c *gin.Context) {
	user, analytics, err := h.analytics.ForUser(c.Request.Context(), c.Param("wallet"), c.Query("period"))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"user":        user,
		"performance": analytics,
	})
}

// RefreshStats POST /api/users/:wallet/update-stats
func (h *UserHandler) RefreshStats(c *gin.Context) {
	metrics, err := h.profiles.RefreshStats(c.Request.Context(), c.Param("wallet"))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "статистика пересчитана",
		"stats":   metrics,
	})
}

// TopFreelancers GET /api/users/top/freelancers
func (h *UserHandler) TopFreelancers(c *gin.Context) {
	sortBy := c.Query("sortBy")
	limit := common.ParseIntQuery(c, "limit", 10)

	freelancers, err := h.profiles.TopFreelancers(c.Request.Context(), sortBy, limit)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"freelancers": freelancers,
	})
}

// SearchFreelancers GET /api/users/search/freelancers
func (h *UserHandler) SearchFreelancers(c *gin.Context) {
	input := service.SearchInput{
		Query:     c.Query("query"),
		MinRating: common.ParseFloatQuery(c, "minRating", 0),
		Limit:     common.ParseIntQuery(c, "limit", 20),
		Offset:    common.ParseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("skills"); raw != "" {
		for _, skill := range strings.Split(raw, ",") {
			if skill = strings.TrimSpace(skill); skill != "" {
				input.Skills = append(input.Skills, skill)
			}
		}
	}

	result, err := h.profiles.Search(c.Request.Context(), input)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}
