package api

import (
	"errors"
	"net/http"

	"isle_quest_backend/internal/model"
	"isle_quest_backend/internal/service"
	"isle_quest_backend/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

type subscriptionRoutes struct {
	ss *service.SubscriptionService
}

func NewSubscriptionRoutes(handler *gin.RouterGroup, ss *service.SubscriptionService) {
	r := &subscriptionRoutes{ss: ss}
	h := handler.Group("/subscription")
	{
		h.POST("/", r.Subscribe)
		h.GET("/:wallet", r.GetStatus)
		h.POST("/claim", r.ClaimBonus)
	}
}

type SubscribeRequest struct {
	Wallet string `json:"wallet" binding:"required"`
	Tier   string `json:"tier" binding:"required"`
}

func (r *subscriptionRoutes) Subscribe(c *gin.Context) {
	log := logger.Logger()

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	u, instructions, err := r.ss.Subscribe(c.Request.Context(), req.Wallet, model.SubscriptionTier(req.Tier))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no user associated with the provided wallet"})
		case errors.Is(err, service.ErrAlreadyOnTier):
			c.JSON(http.StatusConflict, gin.H{"error": "already subscribed to this tier"})
		default:
			log.Error("failed to subscribe", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		}
		return
	}

	out := gin.H{"user": userToResponse(u)}
	if instructions != nil {
		out["payment"] = gin.H{
			"to":     instructions.To,
			"amount": instructions.Amount.String(),
			"memo":   instructions.Memo,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (r *subscriptionRoutes) GetStatus(c *gin.Context) {
	log := logger.Logger()

	status, err := r.ss.Status(c.Request.Context(), c.Param("wallet"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no user associated with the provided wallet"})
		default:
			log.Error("failed to get subscription status", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get subscription status"})
		}
		return
	}

	out := gin.H{
		"tier":       status.Tier,
		"active":     status.Active,
		"can_claim":  status.CanClaim,
		"last_delta": status.LastDelta,
	}
	if status.PaidAt != nil {
		out["paid_at"] = status.PaidAt.UnixMilli()
	}
	if status.ClaimedAt != nil {
		out["claimed_at"] = status.ClaimedAt.UnixMilli()
	}
	c.JSON(http.StatusOK, out)
}

type ClaimBonusRequest struct {
	Wallet string `json:"wallet" binding:"required"`
}

func (r *subscriptionRoutes) ClaimBonus(c *gin.Context) {
	log := logger.Logger()

	var req ClaimBonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	delta, u, err := r.ss.ClaimBonus(c.Request.Context(), c.ClientIP(), req.Wallet)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no user associated with the provided wallet"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		default:
			log.Error("failed to claim subscription bonus", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to claim subscription bonus"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"delta": delta,
		"user":  userToResponse(u),
	})
}
