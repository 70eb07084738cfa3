package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Qredence/handoff-bridge/internal/api"
	"github.com/Qredence/handoff-bridge/internal/config"
	"github.com/Qredence/handoff-bridge/internal/engine/openai"
	"github.com/Qredence/handoff-bridge/internal/logging"
	"github.com/Qredence/handoff-bridge/internal/mcp"
	"github.com/Qredence/handoff-bridge/internal/registry"
	"github.com/Qredence/handoff-bridge/internal/repository"
	"github.com/Qredence/handoff-bridge/internal/services"
	"github.com/Qredence/handoff-bridge/internal/tls"
	"github.com/Qredence/handoff-bridge/internal/tools"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.Info("configuration loaded",
		"store_driver", cfg.Store.Driver,
		"session_ttl", cfg.SessionTTL(),
		"max_workflows", cfg.Session.MaxWorkflows,
	)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer store.Close()
	logger.Info("store connected", "driver", cfg.Store.Driver)

	toolRegistry := tools.DefaultRegistry()
	factory := openai.NewFactory(func(o *openai.Options) {
		o.Model = cfg.OpenAI.Model
		o.BaseURL = cfg.OpenAI.BaseURL
		o.Tools = toolRegistry
	})

	runService := services.NewRunService(store, logger)
	sessions := registry.New(factory, cfg.SessionTTL(),
		registry.WithMaxWorkflows(cfg.Session.MaxWorkflows),
		registry.WithEvictionHook(runService.ReleaseKey),
		registry.WithLogger(logger),
	)
	go sessions.Sweep(ctx, cfg.SweepInterval())

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("handoff-bridge"))

	api.NewServer(sessions, runService, store, logger).Register(e)
	api.RegisterDocs(e)

	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcp.NewServer(toolRegistry).GetMCPServer())
	e.Any("/mcp", echo.WrapHandler(mcpHandlers))
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", cfg.Server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) && len(cfg.TLS.Hostnames) > 0 {
				if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
					logger.Error("failed to generate self-signed cert", "error", err)
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("server close error", "error", err)
			}
		}
		logger.Info("server stopped gracefully")
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return repository.OpenSQLite(cfg.Store.DSN)
	case "postgres":
		return repository.OpenPostgres(ctx, cfg.Store.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
