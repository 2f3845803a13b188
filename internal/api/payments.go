package api

import (
	"errors"
	"net/http"
	"strings"

	"isle_quest_backend/internal/service"
	"isle_quest_backend/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type paymentRoutes struct {
	ss       *service.SubscriptionService
	notifier *service.PaymentNotifier
}

func NewPaymentRoutes(handler *gin.RouterGroup, ss *service.SubscriptionService, notifier *service.PaymentNotifier) {
	r := &paymentRoutes{ss: ss, notifier: notifier}
	h := handler.Group("/payments")
	{
		h.POST("/verify", r.VerifyPayment)
		h.GET("/ws", r.handleWebSocket)
	}
}

type VerifyPaymentRequest struct {
	Wallet string `json:"wallet" binding:"required"`
	TxHash string `json:"tx_hash" binding:"required"`
}

func (r *paymentRoutes) VerifyPayment(c *gin.Context) {
	log := logger.Logger()

	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := r.ss.VerifyPayment(c.Request.Context(), c.ClientIP(), req.Wallet, req.TxHash)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no user associated with the provided wallet"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		default:
			log.Error("payment verification failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable"})
		}
		return
	}

	out := gin.H{"verified": result.Verified}
	if !result.Verified {
		out["observed_to"] = result.To
		out["observed_comment"] = result.Comment
		if result.Amount != nil {
			out["observed_amount"] = result.Amount.String()
		}
	}
	c.JSON(http.StatusOK, out)
}

func (r *paymentRoutes) handleWebSocket(c *gin.Context) {
	log := logger.Logger()

	wallet := strings.TrimSpace(c.Query("wallet"))
	if wallet == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	events, cancel := r.notifier.Subscribe(wallet)
	go r.paymentEventLoop(conn, events, cancel)
}

// paymentEventLoop forwards payment events to one websocket client until the
// client disconnects or the write fails.
func (r *paymentRoutes) paymentEventLoop(conn *websocket.Conn, events <-chan service.PaymentEvent, cancel func()) {
	log := logger.Logger()
	defer func() {
		cancel()
		conn.Close()
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt := <-events:
			out, err := json.Marshal(evt)
			if err != nil {
				log.Error("failed to marshal payment event", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
