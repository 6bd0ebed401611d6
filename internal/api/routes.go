package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"craftcv/internal/api/middleware"
	"craftcv/internal/auth"
	"craftcv/internal/config"
	"craftcv/internal/designer"
	"craftcv/internal/storage"
	"craftcv/internal/store"
)

// Dependencies 汇总路由需要的外部资源。
type Dependencies struct {
	Config  *config.Config
	DB      *gorm.DB
	Redis   redis.UniversalClient
	Queue   Enqueuer
	Tokens  *auth.TokenService
	Storage *storage.Client
	Scanner VirusScanner
	Logger  *slog.Logger
}

// RegisterRoutes 在 /api/v1 下注册全部业务路由。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	logger := deps.Logger

	orgStore := store.NewOrganizationStore(deps.DB)
	cvStore := store.NewCVStore(deps.DB)
	templateStore := store.NewTemplateStore(deps.DB)
	sessions := store.NewRedisEditorStore(deps.Redis, cfg.Designer.SessionTTL, cfg.Designer.SaveLockTTL)
	gateway := designer.NewGateway(templateStore, logger)

	authHandler := NewAuthHandler(
		store.NewUserStore(deps.DB),
		deps.Tokens,
		auth.NewRevocationList(deps.Redis),
		auth.NewLoginThrottle(deps.Redis, cfg.Auth.LoginRateLimitPerHour, cfg.Auth.LoginLockThreshold, cfg.Auth.LoginLockTTL),
		logger,
		cfg.API.CookieDomain,
	)
	notificationHandler := NewNotificationHandler(deps.Redis, deps.Tokens, logger, cfg.API.AllowedOrigins)
	orgHandler := NewOrganizationHandler(orgStore, deps.Storage, deps.Scanner, logger, cfg.API.MaxUploadBytes)
	cvHandler := NewCVHandler(cvStore, templateStore, deps.Storage, deps.Scanner, deps.Queue, logger, cfg.API.MaxUploadBytes, cfg.Worker.MaxRetry)
	templateHandler := NewTemplateHandler(gateway, templateStore, logger)
	designerHandler := NewDesignerHandler(sessions, gateway, orgStore, deps.Storage, logger)

	authMiddleware := middleware.AuthMiddleware(deps.Tokens)
	passwordGate := middleware.RequirePasswordChanged()
	orgContext := middleware.OrgContextMiddleware(orgStore)

	router.GET("/ready", ReadinessHandler(3*time.Second,
		ReadinessProbe{Name: "postgres", Check: func(ctx context.Context) error {
			sqlDB, err := deps.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		ReadinessProbe{Name: "redis", Check: func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }},
		ReadinessProbe{Name: "minio", Check: deps.Storage.Ping},
	))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/ws", notificationHandler.Stream)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		scoped := v1.Group("")
		scoped.Use(authMiddleware, passwordGate, orgContext)

		orgGroup := scoped.Group("/organization")
		{
			orgGroup.GET("", orgHandler.GetOrganization)
			orgGroup.PATCH("", orgHandler.UpdateOrganization)
			orgGroup.POST("/logo", orgHandler.UploadLogo)
			orgGroup.POST("/cv-template", orgHandler.UploadCVTemplate)
			orgGroup.DELETE("/cv-template", orgHandler.DeleteCVTemplate)
		}

		cvGroup := scoped.Group("/cvs")
		{
			cvGroup.POST("", cvHandler.UploadCV)
			cvGroup.GET("", cvHandler.ListCVs)
			cvGroup.GET("/:id", cvHandler.GetCV)
			cvGroup.PATCH("/:id/status", cvHandler.UpdateStatus)
			cvGroup.POST("/:id/brand", cvHandler.BrandCV)
			cvGroup.GET("/:id/download-link", cvHandler.GetDownloadLink)
		}

		templateGroup := scoped.Group("/templates")
		{
			templateGroup.GET("", templateHandler.ListTemplates)
			templateGroup.POST("", templateHandler.CreateTemplate)
			templateGroup.GET("/:id", templateHandler.GetTemplate)
			templateGroup.PATCH("/:id/default", templateHandler.SetDefault)
			templateGroup.DELETE("/:id", templateHandler.DeleteTemplate)
		}

		designerGroup := scoped.Group("/designer")
		{
			designerGroup.GET("", designerHandler.GetSession)
			designerGroup.DELETE("", designerHandler.Reset)
			designerGroup.GET("/catalog", designerHandler.GetCatalog)
			designerGroup.POST("/layout", designerHandler.ChooseLayout)
			designerGroup.POST("/sections", designerHandler.AddSection)
			designerGroup.DELETE("/sections/:sectionID", designerHandler.RemoveSection)
			designerGroup.POST("/sections/:sectionID/move", designerHandler.MoveSection)
			designerGroup.POST("/drop", designerHandler.Drop)
			designerGroup.POST("/uploaded-template", designerHandler.UseUploadedTemplate)
			designerGroup.POST("/save", designerHandler.Save)
		}
	}
}
