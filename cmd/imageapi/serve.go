package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thrive-mt/imageapi/internal/middleware"
	"github.com/thrive-mt/imageapi/internal/server"
	"github.com/thrive-mt/imageapi/pkg/cache"
	"github.com/thrive-mt/imageapi/pkg/config"
	"github.com/thrive-mt/imageapi/pkg/image"
	"github.com/thrive-mt/imageapi/pkg/logging"
	"github.com/thrive-mt/imageapi/pkg/metrics"
	pkgServer "github.com/thrive-mt/imageapi/pkg/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the image resolution HTTP API.

The configuration file is watched: fallback rules and API keys are
reloaded on change without a restart. PORT overrides server.port.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	if path != "" {
		logging.Logger.Info("Configuration loaded", zap.String("path", path))
	} else {
		logging.Logger.Info("No configuration file found, using defaults")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get or create API instance ID (stored in the state dir)
	instanceID, err := pkgServer.GetOrCreateInstanceID(cfg.Server.StateDir)
	if err != nil {
		return fmt.Errorf("failed to get or create instance ID: %w", err)
	}
	logging.Logger.Info("API instance ID initialized", zap.String("id", instanceID))

	store := openStore(cfg)
	defer store.Close()
	probeCache := cache.NewMemoryCache()
	defer probeCache.Close()

	collector := metrics.NewCollector("imageapi")
	resolver, err := newResolver(cfg, store, image.WithRecorder(collector))
	if err != nil {
		return err
	}
	checker := newChecker(cfg, probeCache)

	if cfg.Probe.VerifyFallbacksOnStart {
		go func() {
			checks := checker.VerifyFallbacks(ctx, resolver.Fallbacks())
			logging.Logger.Info("Fallback images verified",
				zap.Int("checked", len(checks)),
				zap.Int("missing", countMissing(checks)))
		}()
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = server.NewValidator()

	// Add global middleware
	e.Use(middleware.RequestIDMiddleware())
	e.Use(middleware.LoggerMiddleware())
	e.Use(middleware.RecoverMiddleware())
	e.Use(middleware.CORSMiddleware())

	srv := server.New(e, cfg, server.Deps{
		Resolver:     resolver,
		Checker:      checker,
		Metrics:      collector,
		CacheBackend: cfg.Cache.Backend,
	}, instanceID, &server.VersionInfo{
		Version:   version,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	})
	logging.Logger.Info("Server initialized")

	if path != "" {
		go func() {
			err := config.Watch(ctx, path, func(next *config.Config) {
				table, err := fallbackTable(next)
				if err != nil {
					logging.Logger.Warn("Ignoring reloaded fallbacks", zap.Error(err))
				} else {
					resolver.SetFallbacks(table)
				}
				srv.UpdateAPIKeys(next.APIKeys)
				logging.Logger.Info("Configuration reloaded",
					zap.Int("fallback_rules", len(next.Fallbacks.Rules)),
					zap.Int("api_keys", len(next.APIKeys)))
			})
			if err != nil {
				logging.Logger.Warn("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
