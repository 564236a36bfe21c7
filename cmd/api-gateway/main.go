package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-leave-api/api/swagger"
	"github.com/noah-isme/sma-leave-api/internal/handler"
	"github.com/noah-isme/sma-leave-api/internal/middleware"
	"github.com/noah-isme/sma-leave-api/internal/models"
	"github.com/noah-isme/sma-leave-api/internal/repository"
	"github.com/noah-isme/sma-leave-api/internal/service"
	"github.com/noah-isme/sma-leave-api/pkg/cache"
	"github.com/noah-isme/sma-leave-api/pkg/config"
	"github.com/noah-isme/sma-leave-api/pkg/database"
	"github.com/noah-isme/sma-leave-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-leave-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-leave-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-leave-api/pkg/storage"
)

// @title SMA Leave API
// @version 1.0.0
// @description Student leave and on-duty request lifecycle engine
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, balance cache disabled", zap.Error(err))
		redisClient = nil
	}

	certStore, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare certificate storage", zap.Error(err))
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	odRepo := repository.NewODRepository(db)
	exceptionRepo := repository.NewExceptionDayRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	policy := service.RequestPolicy{
		TutorDecisionLimitDays: cfg.Requests.TutorDecisionLimitDays,
		ODAdminDelay:           cfg.Requests.ODAdminDelay,
		CertUploadGraceDays:    cfg.Certificates.UploadGraceDays,
	}

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, studentRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "sma-leave-api",
	})
	requestSvc := service.NewRequestService(leaveRepo, odRepo, studentRepo, policy, validate, logr)
	balanceSvc := service.NewBalanceService(studentRepo, cacheRepo, cfg.Balance.CacheTTL, logr)
	approvalSvc := service.NewApprovalService(leaveRepo, odRepo, balanceSvc, policy, logr)
	cancellationSvc := service.NewCancellationService(leaveRepo, odRepo, balanceSvc, policy, logr)
	certificateSvc := service.NewCertificateService(odRepo, certStore, metricsSvc, service.CertificatePolicy{
		UploadGraceDays:  cfg.Certificates.UploadGraceDays,
		MaxFileSizeBytes: cfg.Certificates.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Certificates.AllowedMIMEs,
	}, logr)
	calendarSvc := service.NewCalendarAdminService(exceptionRepo, semesterRepo, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	decisionHandler := handler.NewDecisionHandler(approvalSvc, cancellationSvc, metricsSvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)
	calendarHandler := handler.NewCalendarHandler(calendarSvc)
	balanceHandler := handler.NewBalanceHandler(balanceSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

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
		if err := db.Ping(); err != nil {
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

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	leave := protected.Group("/requests/leave")
	leave.POST("", middleware.RequireRoles(models.RoleStudent), requestHandler.CreateLeave)
	leave.GET("", requestHandler.ListLeave)
	leave.GET("/:id", requestHandler.GetLeave)
	leave.POST("/:id/decision", middleware.RequireStaff(), decisionHandler.DecideLeave)
	leave.POST("/:id/retry", middleware.RequireRoles(models.RoleStudent), decisionHandler.RetryLeave)
	leave.POST("/:id/cancellation", middleware.RequireRoles(models.RoleStudent), decisionHandler.CancelLeave)
	leave.POST("/:id/cancellation/decision", middleware.RequireStaff(), decisionHandler.DecideLeaveCancellation)

	od := protected.Group("/requests/od")
	od.POST("", middleware.RequireRoles(models.RoleStudent), requestHandler.CreateOD)
	od.GET("", requestHandler.ListOD)
	od.GET("/:id", requestHandler.GetOD)
	od.POST("/:id/decision", middleware.RequireStaff(), decisionHandler.DecideOD)
	od.POST("/:id/retry", middleware.RequireRoles(models.RoleStudent), decisionHandler.RetryOD)
	od.POST("/:id/cancellation", middleware.RequireRoles(models.RoleStudent), decisionHandler.CancelOD)
	od.POST("/:id/cancellation/decision", middleware.RequireStaff(), decisionHandler.DecideODCancellation)
	od.POST("/:id/certificate", middleware.RequireRoles(models.RoleStudent), certificateHandler.Upload)
	od.POST("/:id/certificate/verification", middleware.RequireStaff(), certificateHandler.Verify)

	certificates := protected.Group("/od/certificates", middleware.RequireRoles(models.RoleAdmin))
	certificates.POST("/sweep", certificateHandler.Sweep)
	certificates.POST("/overdue", certificateHandler.MarkOverdue)

	protected.GET("/students/:id/balance", balanceHandler.Get)
	protected.GET("/semesters/date-range", calendarHandler.SemesterDateRange)

	exceptionDays := protected.Group("/exception-days")
	exceptionDays.GET("", calendarHandler.ListExceptionDays)
	exceptionDays.POST("", middleware.RequireRoles(models.RoleAdmin), calendarHandler.CreateExceptionDay)
	exceptionDays.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), calendarHandler.DeleteExceptionDay)

	var scheduler *service.SweepScheduler
	if cfg.Sweep.Enabled {
		scheduler = service.NewSweepScheduler(certificateSvc, cfg.Sweep.Schedule, logr)
		if err := scheduler.Start(); err != nil {
			logr.Fatal("failed to start certificate sweep", zap.Error(err))
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logr.Info("shutting down")
		if scheduler != nil {
			scheduler.Stop()
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
