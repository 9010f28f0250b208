package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adaptive-escrow/escrow-backend/internal/http/handlers/common"
	"github.com/adaptive-escrow/escrow-backend/internal/service"
)

type AIHandler struct {
	suggestions *service.SuggestionService
}

func NewAIHandler(suggestions *service.SuggestionService) *AIHandler {
	return &AIHandler{suggestions: suggestions}
}

// Suggest GET /api/ai/suggest/user/:wallet
//
// Возвращает рекомендации по условиям сделок для пользователя. Если передан
// query-параметр escrowId, рекомендации строятся с учётом конкретной сделки.
func (h *AIHandler) Suggest(c *gin.Context) {
	wallet := c.Param("wallet")

	var escrowID *uuid.UUID
	if raw := c.Query("escrowId"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			common.FailValidation(c, "некорректный escrowId")
			return
		}
		escrowID = &parsed
	}

	advice, err := h.suggestions.SuggestForWallet(c.Request.Context(), wallet, escrowID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"advice":  advice,
	})
}

// CreateForEscrow POST /api/ai/suggest/:id
//
// Формирует и сохраняет предложение по оптимизации условий конкретной сделки.
func (h *AIHandler) CreateForEscrow(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.FailValidation(c, err.Error())
		return
	}

	var req struct {
		UserWallet string `json:"userWallet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailValidation(c, "userWallet обязателен")
		return
	}

	suggestion, err := h.suggestions.CreateForEscrow(c.Request.Context(), id, req.UserWallet)
	if err != nil {
		common.Fail(c, err)
		return
	}
	if suggestion == nil {
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"suggestion": nil,
			"message":    "для этой сделки нет рекомендаций",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"suggestion": suggestion,
	})
}

// Approve POST /api/ai/suggest/:id/approve
func (h *AIHandler) Approve(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.FailValidation(c, err.Error())
		return
	}

	var req struct {
		UserWallet string `json:"userWallet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailValidation(c, "userWallet обязателен")
		return
	}

	suggestion, escrow, err := h.suggestions.Approve(c.Request.Context(), id, req.UserWallet)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "предложение применено к сделке",
		"suggestion": suggestion,
		"escrow": gin.H{
			"id":          escrow.ID,
			"deadline":    escrow.Deadline,
			"gracePeriod": escrow.GracePeriod,
			"penaltyRate": escrow.PenaltyRate,
			"aiOptimized": escrow.AIOptimized,
		},
	})
}

// Reject POST /api/ai/suggest/:id/reject
func (h *AIHandler) Reject(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.FailValidation(c, err.Error())
		return
	}

	var req struct {
		UserWallet string `json:"userWallet" binding:"required"`
		Reason     string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailValidation(c, "userWallet обязателен")
		return
	}

	suggestion, err := h.suggestions.Reject(c.Request.Context(), id, req.UserWallet, req.Reason)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "предложение отклонено",
		"suggestion": suggestion,
	})
}

// ListByUser GET /api/ai/suggestions/:wallet
func (h *AIHandler) ListByUser(c *gin.Context) {
	wallet := c.Param("wallet")
	status := c.Query("status")

	suggestions, err := h.suggestions.ListForWallet(c.Request.Context(), wallet, status)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"suggestions": suggestions,
	})
}
