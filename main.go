package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	walletgen "github.com/charvault/server/algorand"
	apirest "github.com/charvault/server/api/rest"
	"github.com/charvault/server/api/sse"
	"github.com/charvault/server/audit"
	"github.com/charvault/server/cache"
	"github.com/charvault/server/config"
	dbadapter "github.com/charvault/server/db"
	"github.com/charvault/server/hook"
	mw "github.com/charvault/server/middleware"
	"github.com/charvault/server/model"
	"github.com/charvault/server/pinning"
	"github.com/charvault/server/scheduler"
	"github.com/charvault/server/secrets"
	"github.com/charvault/server/storage"
	"github.com/charvault/server/templates"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cfg.Cache)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Character type templates ----
	tpl := templates.NewLoader(cfg.Templates.Path)
	if err := tpl.Load(); err != nil {
		logger.Warn("template load warning", zap.Error(err))
	} else {
		logger.Info("character templates loaded")
	}

	// ---- Pinning / Archive / Secrets / Wallets ----
	pinner := pinning.NewClient(cfg.Pinata, logger)
	archive := storage.NewArchive(cfg.Archive.Dir)
	vault, err := secrets.NewVault(db, cfg.Security.VaultKey)
	if err != nil {
		log.Fatalf("vault: %v", err)
	}
	accounts := walletgen.AccountGenerator{}

	chain, err := walletgen.NewClient(cfg.Algorand, logger)
	if err != nil {
		log.Fatalf("algorand: %v", err)
	}
	if chain == nil {
		logger.Warn("algorand.algod_url is not set; asset endpoints are disabled")
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, logger)

	// ---- Lifecycle hooks ----
	hooks := hook.NewCenter()
	for _, event := range []string{
		hook.EventCharacterStored,
		hook.EventCharacterUpdated,
		hook.EventCharacterDeleted,
	} {
		event := event
		hooks.Register(event, 10, "sse_publish", func(ctx context.Context, _ string, data interface{}) (interface{}, error) {
			payload, err := json.Marshal(map[string]interface{}{"event": event, "data": data})
			if err != nil {
				return nil, err
			}
			return nil, sseH.Publish(ctx, string(payload))
		})
		hooks.Register(event, 20, "list_cache_invalidate", func(ctx context.Context, _ string, _ interface{}) (interface{}, error) {
			return nil, c.Del(ctx, apirest.ListCacheKey)
		})
	}

	// ---- Character storage ----
	svc, err := storage.NewService(db, pinner, accounts, vault, archive, hooks, logger)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer svc.Close()

	// ---- Scheduler: orphaned snapshot sweep ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	sweeper := storage.NewSweeper(db, archive, cfg.Archive.SweepMinAge, logger)
	sched.AddTicker("archive_sweep", cfg.Archive.SweepInterval, func() {
		removed, err := sweeper.Sweep()
		if err != nil {
			logger.Error("archive sweep failed", zap.Error(err))
			return
		}
		if removed > 0 {
			logger.Info("archive sweep", zap.Int("removed", removed))
		}
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger, "/health", "/api/events"), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	charH := apirest.NewCharacterHandler(svc, tpl, c, cfg.Cache.ListTTL, auditSvc, logger)
	assetH := apirest.NewAssetHandler(svc, chain, vault, logger)
	adminH := apirest.NewAdminHandler(db, c, cfg.Security, cfg.Server.AdminKey, sweeper, sched, archive, logger)

	api := r.Group("/api")
	{
		charsG := api.Group("/characters")
		charsG.GET("", charH.List)
		charsG.POST("", charH.Create)
		charsG.GET("/:key", charH.Get)
		charsG.PUT("/:key", charH.Update)
		charsG.DELETE("/:key", charH.Delete)

		charsG.GET("/:key/wallet", assetH.Wallet)
		charsG.POST("/:key/asset", assetH.CreateAsset)
		charsG.POST("/:key/asset/transfer", assetH.Transfer)
		charsG.POST("/:key/asset/optin", assetH.OptIn)

		api.GET("/assets/:id", assetH.AssetInfo)
		api.GET("/templates", charH.ListTemplates)
		api.GET("/events", sseH.ServeSSE)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Security.AdminIPs))
		adminG.POST("/login", adminH.Login)
		protected := adminG.Group("")
		protected.Use(mw.Auth(cfg.Security, c))
		protected.POST("/logout", adminH.Logout)
		protected.GET("/metrics", adminH.Metrics)
		protected.POST("/sweep", adminH.Sweep)
		protected.GET("/audit", adminH.ListAudit)
	}

	// ---- Dashboard static files ----
	if cfg.Server.DashboardDir != "" {
		r.StaticFile("/", cfg.Server.DashboardDir+"/index.html")
		r.NoRoute(func(ctx *gin.Context) {
			path := cfg.Server.DashboardDir + ctx.Request.URL.Path
			if st, err := os.Stat(path); err == nil && !st.IsDir() {
				ctx.File(path)
				return
			}
			ctx.JSON(404, gin.H{"error": "not found"})
		})
		logger.Info("Serving dashboard", zap.String("dir", cfg.Server.DashboardDir))
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
