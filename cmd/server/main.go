package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	ginprometheus "github.com/zsais/go-gin-prometheus"

	"comic-server/internal/api"
	"comic-server/internal/config"
	"comic-server/internal/gallery"
	"comic-server/internal/middleware"
	"comic-server/internal/pipeline"
	"comic-server/internal/provider"
	"comic-server/internal/quota"
	"comic-server/internal/safety"
	"comic-server/pkg/logger"
)

func main() {
	// --- Configuration ---
	cfg := config.Load()

	// --- Logger Setup ---
	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)
	zap.L().Info("Configuration loaded",
		zap.String("appEnv", cfg.AppEnv),
		zap.Int("scriptCeiling", cfg.ScriptCeiling()),
		zap.Int("imageCeiling", cfg.ImageCeiling()),
	)

	// --- Provider Adapter (mode fixed for process lifetime) ---
	var prov provider.Client
	if cfg.Provider.APIKey == "" {
		prov = provider.NewSynthetic()
		zap.L().Warn("No provider API key configured, running in degraded/synthetic mode")
	} else {
		prov, err = provider.NewOpenAI(provider.Config{
			APIKey:     cfg.Provider.APIKey,
			BaseURL:    cfg.Provider.BaseURL,
			ImageModel: cfg.Provider.ImageModel,
			Timeout:    cfg.Provider.TimeoutSec,
			MaxRetries: cfg.Provider.MaxRetries,
		})
		if err != nil {
			zap.L().Fatal("Failed to create provider adapter", zap.Error(err))
		}
		zap.L().Info("Provider adapter in live mode", zap.String("model", cfg.Provider.Model))
	}

	// --- Quota Stores ---
	scriptQuota, imageQuota := buildQuotaStores(cfg, log)

	// --- Dependency Injection ---
	eval := safety.NewEvaluator(cfg.Safety.MinSceneWords, cfg.Safety.MaxSceneWords, cfg.Safety.PassThreshold)
	orch := pipeline.New(log.Named("Pipeline"), prov, scriptQuota, imageQuota, eval, pipeline.Options{
		Model:         cfg.Provider.Model,
		FallbackModel: cfg.Provider.FallbackModel,
		MinSceneWords: cfg.Safety.MinSceneWords,
		MaxSceneWords: cfg.Safety.MaxSceneWords,
	})
	galleryStore := gallery.NewMemoryStore()
	handler := api.NewHandler(log.Named("API"), orch, galleryStore, cfg, scriptQuota, imageQuota)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if !cfg.IsProduction() {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(middleware.GinZapLogger(log))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", middleware.IdentityHeader}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "degraded": prov.Degraded()})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	handler.RegisterRoutes(router)
	p.Use(router)

	// --- Quota Sweep Worker ---
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runSweeper(sweepCtx, cfg.SweepInterval(), []quota.Store{scriptQuota, imageQuota}, log)

	// --- Start HTTP Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.ServerPort))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("Server exited")
}

// buildQuotaStores selects redis-backed stores when an address is configured,
// in-memory stores otherwise.
func buildQuotaStores(cfg *config.Config, log *zap.Logger) (quota.Store, quota.Store) {
	if cfg.RateLimit.RedisAddr == "" {
		return quota.NewMemoryStore(cfg.ScriptCeiling(), cfg.Window()),
			quota.NewMemoryStore(cfg.ImageCeiling(), cfg.Window())
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	zap.L().Info("Connected to Redis for quota state", zap.String("addr", cfg.RateLimit.RedisAddr))

	return quota.NewRedisStore(client, log.Named("ScriptQuota"), "script", cfg.ScriptCeiling(), cfg.Window()),
		quota.NewRedisStore(client, log.Named("ImageQuota"), "image", cfg.ImageCeiling(), cfg.Window())
}

// runSweeper removes expired quota entries on a fixed interval, independent
// of request traffic.
func runSweeper(ctx context.Context, interval time.Duration, stores []quota.Store, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, store := range stores {
				removed, err := store.Sweep(ctx)
				if err != nil {
					log.Warn("Quota sweep failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					log.Debug("Quota sweep removed expired entries", zap.Int("removed", removed))
				}
			}
		}
	}
}
