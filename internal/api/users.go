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

type userRoutes struct {
	us *service.UserService
}

func NewUserRoutes(handler *gin.RouterGroup, us *service.UserService) {
	r := &userRoutes{us: us}
	h := handler.Group("/users")
	{
		h.POST("/session", r.BindWallet)
		h.GET("/leaderboard", r.GetLeaderboard)
		h.GET("/:wallet", r.GetUser)
	}
}

type BindWalletRequest struct {
	Wallet string `json:"wallet" binding:"required"`
}

type userResponse struct {
	Wallet    string   `json:"wallet"`
	TotalXP   float64  `json:"total_xp"`
	Level     levelDTO `json:"level"`
	Tier      string   `json:"subscription_tier"`
	Claimed   []string `json:"claimed_quests"`
	Referrals int      `json:"referrals"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
}

type levelDTO struct {
	Tier        int     `json:"tier"`
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	XPIntoLevel float64 `json:"xp_into_level"`
	XPToNext    float64 `json:"xp_to_next"`
	Progress    float64 `json:"progress"`
}

func userToResponse(u *model.User) userResponse {
	claimed := make([]string, 0, len(u.ClaimedQuests))
	for id := range u.ClaimedQuests {
		claimed = append(claimed, id)
	}
	return userResponse{
		Wallet:  u.Wallet,
		TotalXP: u.TotalXP,
		Level: levelDTO{
			Tier:        u.Level.Tier,
			Name:        u.Level.Name,
			Symbol:      u.Level.Symbol,
			XPIntoLevel: u.Level.XPIntoLevel,
			XPToNext:    u.Level.XPToNext,
			Progress:    u.Level.Progress,
		},
		Tier:      string(u.SubscriptionTier),
		Claimed:   claimed,
		Referrals: len(u.Referrals),
		CreatedAt: u.CreatedAt.UnixMilli(),
		UpdatedAt: u.UpdatedAt.UnixMilli(),
	}
}

func (r *userRoutes) BindWallet(c *gin.Context) {
	log := logger.Logger()

	var req BindWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	u, err := r.us.BindWallet(c.Request.Context(), req.Wallet)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error("failed to bind wallet", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to bind wallet"})
		return
	}

	c.JSON(http.StatusOK, userToResponse(u))
}

func (r *userRoutes) GetUser(c *gin.Context) {
	log := logger.Logger()

	u, err := r.us.GetUser(c.Request.Context(), c.Param("wallet"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no user associated with the provided wallet"})
		default:
			log.Error("failed to get user", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		}
		return
	}

	c.JSON(http.StatusOK, userToResponse(u))
}

func (r *userRoutes) GetLeaderboard(c *gin.Context) {
	log := logger.Logger()

	users, err := r.us.Leaderboard(c.Request.Context())
	if err != nil {
		log.Error("failed to get leaderboard", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get leaderboard"})
		return
	}

	out := make([]gin.H, 0, len(users))
	for i, u := range users {
		out = append(out, gin.H{
			"rank":     i + 1,
			"wallet":   u.Wallet,
			"total_xp": u.TotalXP,
			"level":    u.Level.Name,
		})
	}
	c.JSON(http.StatusOK, out)
}
