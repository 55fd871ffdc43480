package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salesflow/internal/config"
	"salesflow/internal/database"
	"salesflow/internal/handler"
	"salesflow/internal/logger"
	"salesflow/internal/middleware"
	"salesflow/internal/notify"
	"salesflow/internal/repository"
	"salesflow/internal/service"
	"salesflow/internal/storage"
	"salesflow/internal/throttle"
	"salesflow/internal/websocket"
	"salesflow/internal/workflow"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

//go:generate swag init -g cmd/api/main.go -o api/swagger --dir ../../

// @title           Salesflow API
// @version         1.0
// @description     Multi-tenant sales, e-signature and workflow enforcement API.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Logger setup failed: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewConnection(cfg.DB.DSN(), zl, !cfg.IsProduction())
	if err != nil {
		zl.Fatal("database connection failed", zap.Error(err))
	}
	zl.Info("connected to PostgreSQL", zap.String("host", cfg.DB.Host), zap.String("database", cfg.DB.Name))

	// redis is optional: without it the config cache and login throttling are off
	var redisClient redis.UniversalClient
	if cfg.Redis.Addr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rc.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			zl.Warn("redis unavailable, running without cache and login throttling", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = rc.Close()
		} else {
			redisClient = rc
			defer func() { _ = rc.Close() }()
		}
	}

	var documents storage.DocumentStore
	if cfg.Minio.Enabled() {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := storage.NewMinioStore(initCtx, storage.MinioConfig(cfg.Minio))
		cancel()
		if err != nil {
			zl.Warn("document storage unavailable", zap.String("endpoint", cfg.Minio.Endpoint), zap.Error(err))
		} else {
			documents = store
		}
	}

	var mailer notify.Mailer
	if cfg.SMTP.Enabled() {
		mailer = notify.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		mailer = notify.NewLogMailer(zl)
	}

	wsHub := websocket.NewHub(zl, cfg.CORSOrigins)
	go wsHub.Run()
	defer wsHub.Stop()

	auth := middleware.NewAuthenticator(cfg.JWTSecret, 24*time.Hour, cfg.IsProduction())

	// Repositories
	txManager := repository.NewTransactionManager(db)
	companyRepo := repository.NewCompanyRepository(db)
	userRepo := repository.NewUserRepository(db)
	clientRepo := repository.NewClientRepository(db)
	planRepo := repository.NewPlanRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	configRepo := repository.NewCachedWorkflowConfigRepository(
		repository.NewWorkflowConfigRepository(db), redisClient, cfg.WorkflowCacheTTL, zl)

	validator := workflow.NewValidator(
		workflow.NewBreakerStore(configRepo, workflow.DefaultBreakerSettings(), zl),
		workflow.WithFetchErrorPolicy(cfg.WorkflowFetchPolicy),
		workflow.WithLogger(zl),
	)

	// Services
	userService := service.NewUserService(userRepo, companyRepo, txManager, auth,
		throttle.NewLoginLimiter(redisClient, cfg.Login), auditRepo, zl)
	clientService := service.NewClientService(clientRepo, auditRepo, zl)
	planService := service.NewPlanService(planRepo, auditRepo, zl)
	saleService := service.NewSaleService(saleRepo, clientRepo, planRepo, txManager, validator, wsHub, auditRepo, zl)
	workflowService := service.NewWorkflowService(configRepo, validator, auditRepo, zl)
	signatureService := service.NewSignatureService(saleRepo, companyRepo, txManager, mailer, wsHub, cfg.SigningBaseURL, auditRepo, zl)
	documentService := service.NewDocumentService(saleRepo, documents, wsHub, auditRepo, zl)
	auditService := service.NewAuditService(auditRepo)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(zl))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.HeaderRequestID}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "Retry-After", middleware.HeaderRequestID}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/ws", wsHub.ServeWs(auth))

	api := router.Group("/api")
	handler.NewUserHandler(userService, auth).RegisterRoutes(api)
	handler.NewClientHandler(clientService, auth).RegisterRoutes(api)
	handler.NewPlanHandler(planService, auth).RegisterRoutes(api)
	handler.NewSaleHandler(saleService, signatureService, documentService, auth).RegisterRoutes(api)
	handler.NewWorkflowHandler(workflowService, auth).RegisterRoutes(api)
	handler.NewSignatureHandler(signatureService, documentService).RegisterRoutes(api)
	handler.NewAuditHandler(auditService, auth).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}
