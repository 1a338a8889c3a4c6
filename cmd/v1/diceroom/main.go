package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/verlyn13/dicee-sub002/internal/v1/auth"
	"github.com/verlyn13/dicee-sub002/internal/v1/bus"
	"github.com/verlyn13/dicee-sub002/internal/v1/config"
	"github.com/verlyn13/dicee-sub002/internal/v1/health"
	"github.com/verlyn13/dicee-sub002/internal/v1/instrumentation"
	"github.com/verlyn13/dicee-sub002/internal/v1/lobby"
	"github.com/verlyn13/dicee-sub002/internal/v1/logging"
	"github.com/verlyn13/dicee-sub002/internal/v1/middleware"
	"github.com/verlyn13/dicee-sub002/internal/v1/ratelimit"
	"github.com/verlyn13/dicee-sub002/internal/v1/room"
)

func main() {
	envPaths := []string{".env", "../../../.env", "../../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		panic(err)
	}
	logger := logging.GetLogger()

	var authValidator room.TokenValidator
	if cfg.SkipAuth {
		logger.Warn("authentication disabled for development, do not use in production")
		authValidator = &auth.MockValidator{}
	} else {
		v, err := auth.NewValidator(context.Background(), cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			logger.Fatal("failed to create auth validator", zap.Error(err))
		}
		authValidator = v
	}

	var busService *bus.Service
	if cfg.RedisEnabled {
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("failed to connect to redis bus", zap.Error(err))
		}
	}

	emitter := instrumentation.NewEmitter(logger, "room", cfg.DevelopmentMode)
	var notifier *lobby.Notifier
	if busService != nil {
		notifier = lobby.New(busService, "diceroom-core", 5*time.Second)
	}

	roomCfg := room.Config{
		MaxPlayers:        cfg.MaxPlayers,
		SpectatorsAllowed: true,
		TurnTimeoutMs:     30_000,
		Public:            true,
		ReclaimWindow:     time.Duration(cfg.ReclaimWindowMs) * time.Millisecond,
		PauseTimeout:      time.Duration(cfg.PauseTimeoutMs) * time.Millisecond,
		PauseDebounce:     time.Duration(cfg.PauseDebounceMs) * time.Millisecond,
		InviteTTL:         time.Duration(cfg.InviteTTLMs) * time.Millisecond,
		MaxChatMessages:   cfg.MaxChatMessages,
		MaxMessageLen:     cfg.MaxMessageLen,
	}

	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	hub := room.NewHub(authValidator, busService, emitter, notifier, roomCfg, nil, allowedOrigins)

	redisClient := busService.Client()
	rateLimiter, err := ratelimit.NewRateLimiter(cfg, redisClient, authValidator)
	if err != nil {
		logger.Fatal("failed to construct rate limiter", zap.Error(err))
	}

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = allowedOrigins
	router.Use(cors.New(corsCfg))

	router.Use(rateLimiter.GlobalMiddleware())

	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/room/:code", hub.ServeWs)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := health.NewHandler(busService)
	router.GET("/healthz", healthHandler.Liveness)
	router.GET("/readyz", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("diceroom session server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	logger.Info("server exiting")
}
