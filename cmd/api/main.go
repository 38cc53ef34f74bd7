package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ukcas/accreditation-api/api/swagger"
	"github.com/ukcas/accreditation-api/internal/handler"
	"github.com/ukcas/accreditation-api/internal/middleware"
	"github.com/ukcas/accreditation-api/internal/models"
	"github.com/ukcas/accreditation-api/internal/repository"
	"github.com/ukcas/accreditation-api/internal/service"
	"github.com/ukcas/accreditation-api/pkg/cache"
	"github.com/ukcas/accreditation-api/pkg/config"
	"github.com/ukcas/accreditation-api/pkg/database"
	"github.com/ukcas/accreditation-api/pkg/logger"
	corsmiddleware "github.com/ukcas/accreditation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ukcas/accreditation-api/pkg/middleware/requestid"
	"github.com/ukcas/accreditation-api/pkg/registry"
	"github.com/ukcas/accreditation-api/pkg/storage"
)

// @title UKCAS Accreditation API
// @version 1.0.0
// @description Certificate issuance, approval and public verification for accredited institutes
// @BasePath /api/v1
// @schemes http https
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, verification caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	// Repositories.
	certRepo := repository.NewCertificateRepository(db)
	instituteRepo := repository.NewInstituteRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Outbound registry client. Disabled unless configured.
	registryClient := registry.New(cfg.Registry, logr)

	docStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare document storage", "error", err)
	}
	docSigner := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Verification.CacheTTL, logr, redisClient != nil)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "ukcas-accreditation-api",
	})
	certSvc := service.NewCertificateService(certRepo, studentRepo, courseRepo, validate, logr)
	approvalSvc := service.NewApprovalService(certRepo, instituteRepo, registryClient, cfg.Billing.IssuanceCost, logr)
	verificationSvc := service.NewVerificationService(certRepo, instituteRepo, courseRepo, cacheSvc, logr)
	ledgerSvc := service.NewLedgerService(instituteRepo, userRepo, validate, logr, cfg.Billing.Currency)
	instituteSvc := service.NewInstituteService(instituteRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	exportSvc := service.NewExportService(certRepo, instituteRepo, studentRepo, courseRepo, docStore, docSigner, cfg.Documents.VerifyBaseURL, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	certHandler := handler.NewCertificateHandler(certSvc, metricsSvc)
	approvalHandler := handler.NewApprovalHandler(approvalSvc, verificationSvc, metricsSvc)
	verificationHandler := handler.NewVerificationHandler(verificationSvc, metricsSvc)
	instituteHandler := handler.NewInstituteHandler(instituteSvc, ledgerSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	exportHandler := handler.NewExportHandler(exportSvc)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public surface. A certificate ID is the only credential verifiers hold.
	api.GET("/verify/:certificateId", verificationHandler.Verify)
	api.GET("/documents/:token", exportHandler.Download)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)

	certificates := authed.Group("/certificates")
	{
		certificates.GET("", certHandler.List)
		certificates.GET("/export", exportHandler.Register)
		certificates.GET("/check", middleware.RequireRoles(models.RoleInstitute), certHandler.Check)
		certificates.POST("",
			middleware.RequireRoles(models.RoleInstitute),
			middleware.Audit(userRepo, models.AuditActionIssueCertificate, "certificate"),
			certHandler.Issue)
		certificates.GET("/:id", certHandler.Get)
		certificates.POST("/:id/document", exportHandler.DocumentLink)
	}

	authed.GET("/institutes/:id", instituteHandler.Get)
	authed.GET("/institutes/:id/balance", instituteHandler.Balance)

	students := authed.Group("/students")
	{
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.POST("", middleware.RequireRoles(models.RoleInstitute), studentHandler.Create)
		students.PUT("/:id", middleware.RequireRoles(models.RoleInstitute), studentHandler.Update)
		students.DELETE("/:id", middleware.RequireRoles(models.RoleInstitute), studentHandler.Delete)
	}

	courses := authed.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", middleware.RequireRoles(models.RoleInstitute), courseHandler.Create)
		courses.PUT("/:id", middleware.RequireRoles(models.RoleInstitute), courseHandler.Update)
		courses.DELETE("/:id", middleware.RequireRoles(models.RoleInstitute), courseHandler.Delete)
	}

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	{
		admin.PATCH("/certificates/:id/status",
			middleware.Audit(userRepo, models.AuditActionSetStatus, "certificate"),
			approvalHandler.SetStatus)
		admin.GET("/institutes", instituteHandler.List)
		admin.POST("/institutes", instituteHandler.Create)
		admin.PUT("/institutes/:id", instituteHandler.Update)
		admin.PATCH("/institutes/:id/accreditation", instituteHandler.SetAccreditation)
		admin.POST("/institutes/:id/topup", instituteHandler.TopUp)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
