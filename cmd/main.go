package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"clipforge/internal/assist"
	"clipforge/internal/config"
	"clipforge/internal/controller"
	"clipforge/internal/infra"
	"clipforge/internal/models"
	"clipforge/internal/pipeline"
	"clipforge/internal/settings"
	"clipforge/internal/storage"
	"clipforge/internal/tracker"
	"clipforge/internal/web"
	"clipforge/pkg/logger"
)

func main() {
	// Environment overrides may live in a local .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize storage connections
	mysqlStore, err := storage.NewMySQLStore(cfg.Database.MySQL)
	if err != nil {
		logger.Log.Warn("mysql unavailable, job history disabled", zap.Error(err))
		mysqlStore = nil
	} else {
		defer mysqlStore.Close()
		logger.Log.Info("mysql connected")
	}

	// Settings persistence backend
	var kv storage.KV
	switch cfg.Storage.SettingsBackend {
	case "redis":
		redisKV, err := storage.NewRedisKV(cfg.Database.Redis)
		if err != nil {
			logger.Log.Warn("redis unavailable, settings kept in memory only", zap.Error(err))
		} else {
			defer redisKV.Close()
			kv = redisKV
			logger.Log.Info("redis connected")
		}
	default:
		fileKV, err := storage.NewFileKV(filepath.Join(cfg.Storage.DataDir, "settings"))
		if err != nil {
			logger.Log.Warn("settings directory unavailable, settings kept in memory only", zap.Error(err))
		} else {
			kv = fileKV
		}
	}
	settingsService := settings.NewService(kv)

	uploadStore, err := storage.NewUploadStore(filepath.Join(cfg.Storage.DataDir, "uploads"))
	if err != nil {
		logger.Log.Warn("upload directory unavailable, reference uploads disabled", zap.Error(err))
		uploadStore = nil
	}

	// Generation backend client and server monitor
	pipelineClient := pipeline.NewClient(cfg.Pipeline)
	monitor := infra.NewServerMonitor(pipelineClient, cfg.Providers.ComfyUI.RefreshInterval)

	// Job tracking
	registry := tracker.NewRegistry()

	hub := web.NewJobHub()
	go hub.Run()
	registry.OnUpdate(hub.Broadcast)

	if mysqlStore != nil {
		registry.OnUpdate(func(job models.TrackedJob) {
			if !job.Status.IsTerminal() {
				return
			}
			record := models.NewJobRecord(job)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := mysqlStore.SaveJobRecord(ctx, &record); err != nil {
					logger.Log.Warn("failed to persist job record",
						zap.String("job_id", record.ID), zap.Error(err))
				}
			}()
		})
	}

	poller := tracker.NewPoller(registry, pipelineClient, cfg.Tracker.PollInterval, cfg.Tracker.PollRetryMax)
	poller.Start()

	// Prompt enhancement is optional; it needs an API key
	var enhancer *assist.Enhancer
	if cfg.Assist.APIKey != "" {
		e, err := assist.NewEnhancer(cfg.Assist)
		if err != nil {
			logger.Log.Warn("prompt enhancement disabled", zap.Error(err))
		} else {
			enhancer = e
		}
	} else {
		logger.Log.Info("no assist api key configured, prompt enhancement disabled")
	}

	service := controller.NewGenerationService(settingsService, pipelineClient, registry, monitor, poller)

	// Create router
	r := web.NewRouter(web.Options{
		Config:   cfg,
		Hub:      hub,
		Service:  service,
		Settings: settingsService,
		Registry: registry,
		Pipeline: pipelineClient,
		Monitor:  monitor,
		History:  mysqlStore,
		Uploads:  uploadStore,
		Enhancer: enhancer,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in background
	go func() {
		logger.Log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("server shutting down")

	poller.Stop()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Warn("server shutdown error", zap.Error(err))
	}

	logger.Log.Info("server stopped")
}
