package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adaptive-escrow/escrow-backend/internal/http/handlers/common"
	"github.com/adaptive-escrow/escrow-backend/internal/models"
	"github.com/adaptive-escrow/escrow-backend/internal/service"
)

type EscrowHandler struct {
	escrows *service.EscrowService
}

func NewEscrowHandler(escrows *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrows: escrows}
}

// Create POST /api/escrow/create
func (h *EscrowHandler) Create(c *gin.Context) {
	var req struct {
		ClientWallet     string    `json:"clientWallet" binding:"required"`
		FreelancerWallet string    `json:"freelancerWallet" binding:"required"`
		Amount           int64     `json:"amount" binding:"required"`
		Deadline         time.Time `json:"deadline" binding:"required"`
		GracePeriod      *int      `json:"gracePeriod"`
		PenaltyRate      *int      `json:"penaltyRate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailValidation(c, "обязательные поля: clientWallet, freelancerWallet, amount, deadline")
		return
	}

	escrow, err := h.escrows.Create(c.Request.Context(), service.CreateEscrowInput{
		ClientWallet:     req.ClientWallet,
		FreelancerWallet: req.FreelancerWallet,
		Amount:           req.Amount,
		Deadline:         req.Deadline,
		GracePeriod:      req.GracePeriod,
		PenaltyRate:      req.PenaltyRate,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"escrow":  escrowView(escrow, time.Now()),
	})
}

// Deliver POST /api/escrow/:id/deliver
func (h *EscrowHandler) Deliver(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.FailValidation(c, err.Error())
		return
	}

	var req struct {
		FreelancerWallet string `json:"freelancerWallet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailValidation(c, "freelancerWallet обязателен")
		return
	}

	escrow, err := h.escrows.Deliver(c.Request.Context(), id, req.FreelancerWallet)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "работа отмечена сданной",
		"escrow": gin.H{
			"id":          escrow.ID,
			"status":      escrow.Status,
			"deliveredAt": escrow.DeliveredAt,
		},
	})
}

// Release POST /api/escrow/:id/release
func (h *EscrowHandler) Release(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.FailValidation(c, err.Error())
		return
	}

	var req struct {
		ClientWallet string `json:"clientWallet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailValidation(c, "clientWallet обязателен")
		return
	}

	escrow, err := h.escrows.Release(c.Request.Context(), id, req.ClientWallet)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "средства освобождены",
		"escrow": gin.H{
			"id":         escrow.ID,
			"status":     escrow.Status,
			"releasedAt": escrow.ReleasedAt,
		},
	})
}

// Get GET /api/escrow/:id
func (h *EscrowHandler) Get(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.FailValidation(c, err.Error())
		return
	}

	escrow, err := h.escrows.Get(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"escrow":  escrowView(escrow, time.Now()),
	})
}

// ListByUser GET /api/escrow/user/:wallet
func (h *EscrowHandler) ListByUser(c *gin.Context) {
	wallet := c.Param("wallet")
	status := c.Query("status")
	limit := common.ParseIntQuery(c, "limit", 20)
	offset := common.ParseIntQuery(c, "offset", 0)

	escrows, err := h.escrows.ListByWallet(c.Request.Context(), wallet, status, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}

	now := time.Now()
	views := make([]gin.H, 0, len(escrows))
	for _, escrow := range escrows {
		views = append(views, escrowSummaryView(escrow, now))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"escrows": views,
	})
}

// UpdateRules PUT /api/escrow/:id/rules
func (h *EscrowHandler) UpdateRules(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.FailValidation(c, err.Error())
		return
	}

	var req struct {
		UserWallet     string     `json:"userWallet" binding:"required"`
		NewDeadline    *time.Time `json:"newDeadline"`
		NewGracePeriod *int       `json:"newGracePeriod"`
		NewPenaltyRate *int       `json:"newPenaltyRate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailValidation(c, "userWallet обязателен")
		return
	}

	escrow, err := h.escrows.UpdateRules(c.Request.Context(), id, req.UserWallet, service.UpdateRulesInput{
		NewDeadline:    req.NewDeadline,
		NewGracePeriod: req.NewGracePeriod,
		NewPenaltyRate: req.NewPenaltyRate,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "условия сделки обновлены",
		"escrow": gin.H{
			"id":          escrow.ID,
			"deadline":    escrow.Deadline,
			"gracePeriod": escrow.GracePeriod,
			"penaltyRate": escrow.PenaltyRate,
			"aiOptimized": escrow.AIOptimized,
		},
	})
}

// escrowView полное представление сделки с вычисляемыми полями.
func escrowView(escrow *models.Escrow, now time.Time) gin.H {
	view := gin.H{
		"id":                escrow.ID,
		"contractId":        escrow.ContractID,
		"amount":            escrow.Amount,
		"deadline":          escrow.Deadline,
		"gracePeriod":       escrow.GracePeriod,
		"penaltyRate":       escrow.PenaltyRate,
		"status":            escrow.Status,
		"deliveredAt":       escrow.DeliveredAt,
		"releasedAt":        escrow.ReleasedAt,
		"isOverdue":         escrow.IsOverdue(now),
		"daysUntilDeadline": escrow.DaysUntilDeadline(now),
		"penaltyAmount":     escrow.CalculatePenalty(now),
		"aiOptimized":       escrow.AIOptimized,
		"createdAt":         escrow.CreatedAt,
	}
	if escrow.Client != nil {
		view["client"] = partyView(escrow.Client)
	}
	if escrow.Freelancer != nil {
		view["freelancer"] = partyView(escrow.Freelancer)
	}
	return view
}

// escrowSummaryView краткое представление для списков.
func escrowSummaryView(escrow *models.Escrow, now time.Time) gin.H {
	view := gin.H{
		"id":                escrow.ID,
		"contractId":        escrow.ContractID,
		"amount":            escrow.Amount,
		"deadline":          escrow.Deadline,
		"status":            escrow.Status,
		"isOverdue":         escrow.IsOverdue(now),
		"daysUntilDeadline": escrow.DaysUntilDeadline(now),
	}
	if escrow.Client != nil {
		view["client"] = partyView(escrow.Client)
	}
	if escrow.Freelancer != nil {
		view["freelancer"] = partyView(escrow.Freelancer)
	}
	return view
}

func partyView(user *models.User) gin.H {
	return gin.H{
		"wallet": user.WalletAddress,
		"name":   user.Name,
		"rating": user.Rating,
	}
}
