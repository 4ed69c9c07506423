package main

import (
	"net/http"
	"time"

	"markdown-annotator/internal/annotation"
	"markdown-annotator/internal/config"
	"markdown-annotator/internal/document"
	"markdown-annotator/internal/metrics"
	"markdown-annotator/internal/middleware"
	"markdown-annotator/internal/permission"
	"markdown-annotator/internal/render"
	"markdown-annotator/internal/sharing"
	"markdown-annotator/internal/user"
	"markdown-annotator/internal/worker"
	"markdown-annotator/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// services groups everything built on top of the database.
type services struct {
	users       user.Service
	documents   document.Service
	annotations annotation.Service
	shares      sharing.Service
}

func newServices(gdb *gorm.DB, cache *redis.Cache, pool *worker.WorkerPool, m *metrics.Metrics, cfg config.Config) *services {
	// Initialize repository
	userRepo := user.NewRepository(gdb)
	docRepo := document.NewRepository(gdb)
	shareRepo := sharing.NewRepository(gdb)
	annotationRepo := annotation.NewRepository(gdb)

	// Initialize service
	resolver := permission.NewResolver(shareRepo)
	versions := document.NewVersionStore(docRepo, render.NewMarkdownRenderer(), m)

	return &services{
		users:       user.NewService(userRepo),
		documents:   document.NewService(docRepo, versions, resolver, cache, m, cfg.BaseURL),
		annotations: annotation.NewService(annotationRepo, docRepo, versions, resolver, cache, pool, m),
		shares:      sharing.NewService(shareRepo, docRepo, m),
	}
}

func newRouter(svc *services, m *metrics.Metrics, gatherer prometheus.Gatherer, cfg config.Config) *gin.Engine {
	// Initialize handler
	userHandler := user.NewHandler(svc.users)
	docHandler := document.NewHandler(svc.documents)
	annotationHandler := annotation.NewHandler(svc.annotations)
	shareHandler := sharing.NewHandler(svc.shares)
	authMiddleware := &middleware.Auth{UserService: svc.users}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics(m), middleware.ErrorHandler())

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if cfg.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = []string{cfg.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	required := authMiddleware.AuthMiddleWare()
	optional := authMiddleware.OptionalAuth()

	// User routes
	router.POST("/register", userHandler.Register)
	router.POST("/login", userHandler.Login)
	router.GET("/profile", required, userHandler.GetProfile)

	// Document routes
	router.GET("/documents", optional, docHandler.List)
	router.POST("/documents", required, docHandler.Create)
	router.GET("/documents/:id", optional, docHandler.Show)
	router.PUT("/documents/:id", required, docHandler.Save)
	router.DELETE("/documents/:id", required, docHandler.Delete)
	router.POST("/documents/:id/toggle-public", required, docHandler.TogglePublic)
	router.GET("/documents/:id/share-link", required, docHandler.ShareLink)
	router.GET("/documents/:id/versions", optional, docHandler.ListVersions)
	router.GET("/documents/:id/versions/:number", optional, docHandler.ShowVersion)
	router.DELETE("/documents/:id/versions/:number", required, docHandler.DeleteVersion)

	// Annotation routes
	api := router.Group("/api", optional)
	api.GET("/documents/:id/annotations", annotationHandler.List)
	api.POST("/documents/:id/annotations", annotationHandler.Create)
	api.GET("/annotations/:id", annotationHandler.Show)
	api.DELETE("/annotations/:id", annotationHandler.Delete)
	api.POST("/annotations/:id/comments", annotationHandler.AddComment)

	// Sharing routes
	router.GET("/share/:id", required, shareHandler.List)
	router.POST("/share/:id", required, shareHandler.Grant)
	router.DELETE("/share/:id/:username", required, shareHandler.Revoke)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
