package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/expense-desk/internal/config"
	"github.com/garyjia/expense-desk/internal/container"
	httpserver "github.com/garyjia/expense-desk/internal/interfaces/http"
	"github.com/garyjia/expense-desk/pkg/utils"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to the YAML config file")
	flag.Parse()

	// Load configuration
	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, level, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, loader, logger, level); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, loader *config.Loader, logger *zap.Logger, level zap.AtomicLevel) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting expense desk",
		zap.String("environment", cfg.App.Environment),
		zap.String("backend", cfg.Storage.Backend),
		zap.Int("port", cfg.Server.Port),
		zap.String("config_file", loader.ConfigFileUsed()))

	// Only the log level is applied live; everything else needs a restart.
	loader.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Error("Ignoring invalid config change", zap.Error(err))
			return
		}
		newLevel := utils.ParseLevel(next.Logger.Level)
		if newLevel != level.Level() {
			level.SetLevel(newLevel)
			logger.Info("Log level changed", zap.String("level", newLevel.String()))
		}
	})

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	// Blocks while the record store is unreachable; a signal aborts the wait.
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	services := c.Services()
	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			MaxUploadBytes:  cfg.Server.MaxUploadMB << 20,
			Environment:     cfg.App.Environment,
			Production:      cfg.App.IsProduction(),
			Backend:         cfg.Storage.Backend,
		},
		services.Expense,
		services.Export,
		c.Store(),
		utils.NewKVLogger(logger.Named("http")),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})

	return g.Wait()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
