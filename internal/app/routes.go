package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orbitreach/core/internal/middleware"
	"github.com/orbitreach/core/internal/modules/approval"
	"github.com/orbitreach/core/internal/modules/asset"
	"github.com/orbitreach/core/internal/modules/backup"
	"github.com/orbitreach/core/internal/modules/campaign"
	"github.com/orbitreach/core/internal/modules/content"
	"github.com/orbitreach/core/internal/modules/notify"
	"github.com/orbitreach/core/internal/modules/publish"
	"github.com/orbitreach/core/internal/modules/schedule"
	"github.com/orbitreach/core/internal/modules/strategy"
	"github.com/orbitreach/core/internal/modules/tasks"
	"github.com/orbitreach/core/internal/modules/webhook"
	pkgredis "github.com/orbitreach/core/internal/pkg/redis"
	"github.com/orbitreach/core/internal/pkg/response"
	"github.com/orbitreach/core/internal/pkg/taskqueue"
)

func (a *App) registerRoutes(rc *pkgredis.Client) {
	r := a.router
	db := a.db
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":     "orbitreach-core",
		"version":  "1.0.0",
		"homepage": "https://github.com/orbitreach/core",
		"issues":   "https://github.com/orbitreach/core/issues",
	}

	// Rate limiting and idempotence run on every route (requires Redis).
	r.Use(middleware.RateLimit(rc.Raw()))
	r.Use(middleware.Idempotence(rc.Raw()))

	api := r.Group("/api/v2")
	api.Use(middleware.OptionalAuth())

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptimeMs := time.Since(a.startTime()).Milliseconds()
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptimeMs,
			"humanize":  humanizeDuration(time.Duration(uptimeMs) * time.Millisecond),
		})
	})
	api.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Shared services
	store := campaign.NewStore(db)
	taskSvc := taskqueue.NewService(rc)

	webhookSvc := webhook.NewService(db)
	notifier := notify.New(webhookSvc)

	campaignSvc := campaign.NewService(db, store)
	strategySvc := strategy.NewService(store)
	contentSvc := content.NewService(store, a.cfg)
	scheduleSvc := schedule.NewService(store)
	assetSvc := asset.NewService(store, a.blobs)
	approvalSvc := approval.NewService(db, store)
	publishSvc := publish.NewService(db, store)

	campaignSvc.SetNotifier(notifier)
	strategySvc.SetNotifier(notifier)
	contentSvc.SetNotifier(notifier)
	scheduleSvc.SetNotifier(notifier)
	assetSvc.SetNotifier(notifier)
	approvalSvc.SetNotifier(notifier)
	publishSvc.SetNotifier(notifier)

	campaign.NewHandler(campaignSvc).RegisterRoutes(api, authMW)
	strategy.NewHandler(strategySvc).RegisterRoutes(api, authMW)
	content.NewHandler(contentSvc).RegisterRoutes(api, authMW)
	schedule.NewHandler(scheduleSvc).RegisterRoutes(api, authMW)
	asset.NewHandler(assetSvc).RegisterRoutes(api, authMW)
	approval.NewHandler(approvalSvc).RegisterRoutes(api, authMW)
	publish.NewHandler(publishSvc).RegisterRoutes(api, authMW)

	webhook.NewHandler(webhookSvc).RegisterRoutes(api, authMW)

	// Background content generation
	tasks.NewHandler(tasks.NewService(taskSvc, contentSvc)).RegisterRoutes(api, authMW)

	// Backups
	backup.NewHandler(db, a.cfg, a.blobs).RegisterRoutes(api, authMW)
}
