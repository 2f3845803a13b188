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

type questRoutes struct {
	qs *service.QuestService
}

func NewQuestRoutes(handler *gin.RouterGroup, qs *service.QuestService) {
	r := &questRoutes{qs: qs}
	h := handler.Group("/quests")
	{
		h.GET("/", r.ListQuests)
		h.POST("/:quest_id/proofs", r.SubmitProof)
		h.POST("/:quest_id/claim", r.ClaimQuest)
	}
}

type questStatusResponse struct {
	QuestID       string  `json:"quest_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	XPReward      float64 `json:"xp_reward"`
	RequiresProof bool    `json:"requires_proof"`
	Claimed       bool    `json:"claimed"`
	ProofStatus   *string `json:"proof_status"`
}

func (r *questRoutes) ListQuests(c *gin.Context) {
	log := logger.Logger()

	statuses, err := r.qs.ListQuests(c.Request.Context(), c.Query("wallet"))
	if err != nil {
		log.Error("failed to list quests", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list quests"})
		return
	}

	out := make([]questStatusResponse, 0, len(statuses))
	for _, st := range statuses {
		resp := questStatusResponse{
			QuestID:       st.Quest.ID,
			Title:         st.Quest.Title,
			Description:   st.Quest.Description,
			XPReward:      st.Quest.XP,
			RequiresProof: st.Quest.RequiresProof,
			Claimed:       st.Claimed,
		}
		if st.Proof != nil {
			s := string(st.Proof.Status)
			resp.ProofStatus = &s
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

type SubmitProofRequest struct {
	Wallet string `json:"wallet" binding:"required"`
	Vendor string `json:"vendor" binding:"required"`
	URL    string `json:"url" binding:"required"`
}

func (r *questRoutes) SubmitProof(c *gin.Context) {
	log := logger.Logger()

	var req SubmitProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	proof, err := r.qs.SubmitProof(c.Request.Context(), c.ClientIP(), req.Wallet,
		c.Param("quest_id"), model.ProofVendor(req.Vendor), req.URL)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrQuestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		default:
			log.Error("failed to submit proof", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit proof"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"proof_id": proof.ID,
		"quest_id": proof.QuestID,
		"vendor":   proof.Vendor,
		"status":   proof.Status,
	})
}

type ClaimQuestRequest struct {
	Wallet string `json:"wallet" binding:"required"`
}

func (r *questRoutes) ClaimQuest(c *gin.Context) {
	log := logger.Logger()

	var req ClaimQuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	delta, u, err := r.qs.Claim(c.Request.Context(), c.ClientIP(), req.Wallet, c.Param("quest_id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrQuestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no user associated with the provided wallet"})
		case errors.Is(err, service.ErrProofRequired):
			c.JSON(http.StatusForbidden, gin.H{"error": "proof_required"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		default:
			log.Error("failed to claim quest", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to claim quest"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"delta": delta,
		"user":  userToResponse(u),
	})
}
