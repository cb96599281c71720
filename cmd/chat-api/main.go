package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/chatline/chatline-api/api/swagger"
	"github.com/chatline/chatline-api/internal/audit"
	"github.com/chatline/chatline-api/internal/handler"
	"github.com/chatline/chatline-api/internal/middleware"
	"github.com/chatline/chatline-api/internal/repository"
	"github.com/chatline/chatline-api/internal/service"
	"github.com/chatline/chatline-api/internal/token"
	"github.com/chatline/chatline-api/internal/ws"
	"github.com/chatline/chatline-api/pkg/cache"
	"github.com/chatline/chatline-api/pkg/config"
	"github.com/chatline/chatline-api/pkg/database"
	"github.com/chatline/chatline-api/pkg/logger"
	corsmiddleware "github.com/chatline/chatline-api/pkg/middleware/cors"
	reqidmiddleware "github.com/chatline/chatline-api/pkg/middleware/requestid"
)

// @title Chatline API
// @version 1.0.0
// @description Multi-user chat service: session lifecycle, presence and realtime fan-out
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	sink := audit.NewSink(auditRepo, cfg.Audit, logr)
	sink.Start(ctx)
	defer sink.Stop()

	codec := token.NewCodec(token.Config{
		Secret:        cfg.JWT.Secret,
		Issuer:        cfg.JWT.Issuer,
		AccessExpiry:  cfg.JWT.AccessExpiry,
		RefreshExpiry: cfg.JWT.RefreshExpiry,
	})

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	presence := ws.NewPresenceTracker()
	hub := ws.NewHub(presence, metricsSvc, logr)
	go hub.Run(ctx)

	authSvc := service.NewAuthService(userRepo, tokenRepo, codec, sink, metricsSvc, validate, logr, service.AuthConfig{
		BcryptCost:       cfg.Auth.BcryptCost,
		RefreshScanLimit: cfg.Auth.RefreshScanLimit,
	})
	userSvc := service.NewUserService(userRepo, tokenRepo, sink, validate, logr, cfg.Auth.BcryptCost)
	messageSvc := service.NewMessageService(messageRepo, hub, sink, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc, userSvc)
	userHandler := handler.NewUserHandler(userSvc)
	messageHandler := handler.NewMessageHandler(messageSvc)
	wsHandler := ws.NewHandler(hub, authSvc, userRepo, cfg.WS, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	authLimiter := middleware.RateLimit(redisClient, cfg.RateLimit, logr)
	auth := api.Group("/auth")
	{
		auth.POST("/register", authLimiter, authHandler.Register)
		auth.POST("/login", authLimiter, authHandler.Login)
		auth.POST("/refresh", authLimiter, authHandler.Refresh)
		auth.POST("/logout", authLimiter, authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	messages := api.Group("/messages", middleware.JWT(authSvc))
	{
		messages.GET("", messageHandler.List)
		messages.POST("", messageHandler.Create)
		messages.PUT("/:id", messageHandler.Update)
		messages.DELETE("/:id", messageHandler.Delete)
	}

	users := api.Group("/users", middleware.JWT(authSvc), middleware.RequireAdmin())
	{
		users.GET("", userHandler.List)
		users.POST("", userHandler.Create)
		users.PUT("/:id/role", userHandler.UpdateRole)
		users.DELETE("/:id", userHandler.Delete)
	}

	api.GET("/presence", middleware.JWT(authSvc), wsHandler.Online)
	api.GET("/ws", wsHandler.Serve)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
