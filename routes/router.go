package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lch-dev/board2/config"
	"github.com/lch-dev/board2/controllers"
	"github.com/lch-dev/board2/middleware"
	"github.com/lch-dev/board2/session"
	"github.com/lch-dev/board2/utils"
)

// SetupRouter wires middlewares and all REST routes.
func SetupRouter(db *gorm.DB, store session.Store) *gin.Engine {
	cfg := config.Get()

	switch cfg.GinMode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	accessLogger := utils.Logger
	if cfg.GinPath != "" {
		if l, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			accessLogger = l
		} else {
			utils.Sugar.Warnf("falling back to app logger for access log: %v", err)
		}
	}
	r.Use(utils.Ginzap(accessLogger, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(accessLogger, true))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	r.Use(cors.New(corsConfig))

	r.Static("/uploads", cfg.UploadDir)

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(db, store)
	postController := controllers.NewPostController(db)

	auth := r.Group("/auth")
	auth.Use(middleware.RateLimitMiddleware())
	{
		auth.POST("/register", authController.Register)
		auth.POST("/login", authController.Login)
		auth.POST("/logout", middleware.AuthRequired(store, db), authController.Logout)
		auth.GET("/me", middleware.AuthRequired(store, db), authController.Me)
		auth.GET("/oauth/:provider", authController.OAuthRedirect)
		auth.GET("/oauth/:provider/callback", authController.OAuthCallback)
	}

	posts := r.Group("/posts")
	{
		posts.GET("", middleware.AuthOptional(store, db), postController.ListPosts)
		posts.GET("/search", middleware.AuthOptional(store, db), postController.SearchPosts)
		posts.GET("/search/history", middleware.AuthRequired(store, db), postController.SearchHistory)
		posts.GET("/:postId", middleware.AuthOptional(store, db), postController.GetPost)
		posts.POST("", middleware.AuthRequired(store, db), postController.CreatePost)
		posts.PUT("/:postId", middleware.AuthRequired(store, db), postController.UpdatePost)
		posts.DELETE("/:postId", middleware.AuthRequired(store, db), postController.DeletePost)
		posts.POST("/:postId/comments", middleware.AuthRequired(store, db), postController.CreateComment)
		posts.DELETE("/comments/:commentId", middleware.AuthRequired(store, db), postController.DeleteComment)
	}

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, "Not found")
	})

	return r
}
