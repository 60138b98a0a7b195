package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sridip-de/yt-dlp-gui/api"
	"github.com/sridip-de/yt-dlp-gui/api/handlers"
	"github.com/sridip-de/yt-dlp-gui/internal/app"
	"github.com/sridip-de/yt-dlp-gui/internal/domain"
	"github.com/sridip-de/yt-dlp-gui/internal/infrastructure"
	"github.com/sridip-de/yt-dlp-gui/pkg/logger"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	version    = "dev"
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Category logs (fetch, download, error) are optional
	var multiLog *logger.MultiLogger
	if config.Logging.LogsDir != "" {
		multiLog, err = logger.NewMultiLogger(logger.MultiLoggerConfig{
			Level:   config.Logging.Level,
			LogsDir: config.Logging.LogsDir,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize category logs: %w", err)
		}
		defer multiLog.Close()
	}

	handlers.Version = version
	log.Info("Starting yt-dlp wrapper server",
		zap.String("version", version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("binary", config.Downloader.Binary),
		zap.Bool("cache", config.Cache.Enabled))

	// The manager must see a nil interface when caching is off
	var cache domain.CatalogCache
	if config.Cache.Enabled {
		sqliteCache, err := infrastructure.NewSQLiteCatalogCache(config.Cache.DatabasePath, log)
		if err != nil {
			return fmt.Errorf("failed to initialize catalog cache: %w", err)
		}
		defer sqliteCache.Close()

		if removed, err := sqliteCache.Purge(config.Cache.TTL); err != nil {
			log.Warn("Failed to purge catalog cache", zap.Error(err))
		} else if removed > 0 {
			log.Info("Purged stale catalogs", zap.Int64("removed", removed))
		}
		cache = sqliteCache
	}

	notifier := infrastructure.NewNotificationService(&config.Notification, log)
	supervisor := infrastructure.NewSupervisor(&config.Supervisor, log)
	manager := app.NewManager(config, supervisor, cache, notifier, log)

	hub := handlers.NewEventHub(log)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for ev := range manager.Events() {
			app.MirrorEvent(multiLog, ev)
			hub.Broadcast(ev)
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(manager, hub, api.RouterConfig{
		Binary:  config.Downloader.Binary,
		LogsDir: config.Logging.LogsDir,
	}, log)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
		if multiLog != nil {
			multiLog.LogAppError("HTTP server failed", zap.Error(err))
		}
	}

	log.Info("Shutting down server...")

	// Give running yt-dlp processes time to exit after SIGTERM
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Supervisor.GracePeriod+10*time.Second)
	defer shutdownCancel()

	// Stop operations first so requests waiting on a result can return
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error("Operations did not stop cleanly", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	<-pumpDone
	hub.Close()

	log.Info("Server exited")
	return nil
}
