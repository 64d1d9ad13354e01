package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/shulehub/discipline-api/api/swagger"
	"github.com/shulehub/discipline-api/internal/handler"
	"github.com/shulehub/discipline-api/internal/middleware"
	"github.com/shulehub/discipline-api/internal/models"
	"github.com/shulehub/discipline-api/internal/repository"
	"github.com/shulehub/discipline-api/internal/service"
	"github.com/shulehub/discipline-api/pkg/cache"
	"github.com/shulehub/discipline-api/pkg/config"
	"github.com/shulehub/discipline-api/pkg/database"
	"github.com/shulehub/discipline-api/pkg/export"
	"github.com/shulehub/discipline-api/pkg/jobs"
	"github.com/shulehub/discipline-api/pkg/logger"
	"github.com/shulehub/discipline-api/pkg/mailer"
	corsmiddleware "github.com/shulehub/discipline-api/pkg/middleware/cors"
	reqidmiddleware "github.com/shulehub/discipline-api/pkg/middleware/requestid"
	"github.com/shulehub/discipline-api/pkg/storage"
)

// @title School Discipline API
// @version 1.0.0
// @description Discipline report tracking for admins, teachers and parents.
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
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, dashboard caching disabled", zap.Error(err))
		redisClient = nil
	}

	uploads, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		logr.Fatal("failed to prepare uploads directory", zap.Error(err))
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, profileRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, profileRepo, validate, logr)

	var mailSender mailer.Mailer
	if cfg.Mail.Enabled && cfg.Mail.SendgridKey != "" {
		mailSender = mailer.NewSendgridMailer(cfg.Mail.SendgridKey, cfg.Mail.FromName, cfg.Mail.FromEmail)
	} else {
		mailSender = mailer.NewConsoleMailer(logr)
	}

	// The queue handler closes over the notifier, which in turn enqueues onto
	// the queue; wire the queue first with a late-bound handler.
	var notifier *service.NotificationService
	queue := jobs.NewQueue("notifications", func(ctx context.Context, job jobs.Job) error {
		return notifier.HandleReportFiled(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notifier = service.NewNotificationService(userRepo, queue, mailSender, logr, cfg.Mail.SchoolName, cfg.Mail.PortalURL)

	reportSvc := service.NewReportService(reportRepo, studentRepo, profileRepo, userRepo, notifier, validate, logr)
	dashboardSvc := service.NewDashboardService(reportRepo, studentRepo, profileRepo, userRepo, cacheSvc, logr, service.DashboardServiceConfig{
		CacheTTL: cfg.Dashboard.CacheTTL,
	})
	exportSvc := service.NewExportService(reportSvc, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, uploads)
	reportHandler := handler.NewReportHandler(reportSvc, exportSvc, dashboardSvc, metricsSvc, uploads)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
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
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.PUT("/auth/password", authHandler.ChangePassword)
		protected.GET("/auth/me", authHandler.Me)

		protected.GET("/dashboard", dashboardHandler.Show)

		users := protected.Group("/users")
		users.Use(middleware.RequireRoles(models.RoleAdmin))
		users.Use(middleware.Audit(userRepo, "USER_ADMIN", "users"))
		{
			users.GET("", userHandler.List)
			users.POST("", userHandler.Create)
			users.GET("/:id", userHandler.Get)
			users.PUT("/:id", userHandler.Update)
			users.DELETE("/:id", userHandler.Delete)
			users.PUT("/:id/role", userHandler.AssignRole)
			users.POST("/:id/permissions/manage-reports", userHandler.GrantManageReports)
			users.DELETE("/:id/permissions/manage-reports", userHandler.RevokeManageReports)
		}

		students := protected.Group("/students")
		{
			students.GET("", studentHandler.List)
			students.GET("/:id", studentHandler.Get)

			admin := students.Group("")
			admin.Use(middleware.RequireRoles(models.RoleAdmin))
			{
				admin.POST("", studentHandler.Create)
				admin.PUT("/:id", studentHandler.Update)
				admin.DELETE("/:id", studentHandler.Delete)
				admin.POST("/:id/picture", studentHandler.UploadPicture)
			}
		}

		reports := protected.Group("/reports")
		{
			reports.GET("", reportHandler.List)
			reports.GET("/export", middleware.RequireRoles(models.RoleAdmin), reportHandler.Export)
			reports.GET("/:id", reportHandler.Get)

			teacher := reports.Group("")
			teacher.Use(middleware.RequireRoles(models.RoleTeacher))
			{
				teacher.POST("", reportHandler.Create)
				teacher.POST("/evidence", reportHandler.UploadEvidence)
			}

			review := reports.Group("")
			review.Use(middleware.RequirePermission(models.PermManageReports))
			{
				review.PUT("/:id/approve", reportHandler.Approve)
				review.PUT("/:id/reject", reportHandler.Reject)
				review.PUT("/:id", reportHandler.Update)
				review.DELETE("/:id", reportHandler.Delete)
			}
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown incomplete", zap.Error(err))
	}
}
