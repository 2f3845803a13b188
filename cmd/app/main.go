package main

import (
	"fmt"
	"log"
	"math/big"
	"net/http"
	"time"

	"isle_quest_backend/internal/api"
	"isle_quest_backend/internal/payment"
	"isle_quest_backend/internal/ratelimit"
	"isle_quest_backend/internal/repository"
	"isle_quest_backend/internal/service"
	"isle_quest_backend/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logger.Initialize(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zapLogger := logger.Logger()

	repo := repository.New(cfg.Database)
	defer repo.Close()
	if !repo.Ready() {
		zapLogger.Warn("no database path configured, records will not survive a restart")
	}

	minAmount, ok := new(big.Int).SetString(cfg.Payments.MinAmount, 10)
	if !ok {
		zapLogger.Fatal("invalid payments.minAmount", zap.String("value", cfg.Payments.MinAmount))
	}

	tonClient, err := payment.NewClient(cfg.Payments.Client)
	if err != nil {
		zapLogger.Fatal("Failed to initialize payment client", zap.Error(err))
	}
	verifier := payment.NewVerifier(tonClient)

	var counters ratelimit.CounterStore
	if cfg.RateLimit.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
		})
		counters = ratelimit.NewRedisStore(rdb)
	} else {
		counters = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.New(counters,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second, cfg.RateLimit.Limit)

	// Resolved through viper on every call so watched-config overrides of
	// the payment parameters apply without a restart. The startup values
	// act as fallbacks when a live override fails to parse.
	settings := func() service.Settings {
		min := minAmount
		if raw := viper.GetString("payments.minAmount"); raw != "" {
			if v, ok := new(big.Int).SetString(raw, 10); ok {
				min = v
			}
		}
		addr := viper.GetString("payments.receiveAddress")
		if addr == "" {
			addr = cfg.Payments.ReceiveAddress
		}
		return service.Settings{
			Network:        cfg.Payments.Client.Network,
			ReceiveAddress: addr,
			MinAmount:      min,
			BonusXP:        viper.GetFloat64("payments.bonusXP"),
		}
	}

	notifier := service.NewPaymentNotifier()
	userService := service.NewUserService(repo)
	questService := service.NewQuestService(userService, service.DefaultCatalog(),
		service.NewMemoryProofStore(), limiter, nil)
	subscriptionService := service.NewSubscriptionService(userService, verifier,
		limiter, settings, notifier)

	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{
		http.MethodHead,
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
	}
	config.AllowHeaders = []string{"*"}
	config.AllowCredentials = true
	config.MaxAge = 12 * time.Hour

	router.Use(cors.New(config))

	a := router.Group("/api/v1")
	api.NewUserRoutes(a, userService)
	api.NewQuestRoutes(a, questService)
	api.NewSubscriptionRoutes(a, subscriptionService)
	api.NewPaymentRoutes(a, subscriptionService, notifier)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	zapLogger.Info("Starting server", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		zapLogger.Fatal("Failed to start server", zap.Error(err))
	}
}
