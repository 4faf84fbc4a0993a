package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/gcbaptista/go-search-gateway/api"
	"github.com/gcbaptista/go-search-gateway/config"
	"github.com/gcbaptista/go-search-gateway/internal/jobs"
)

const (
	shutdownTimeout = 15 * time.Second
	jobWorkers      = 2
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server.

Examples:
  search-gateway serve --config gateway.yaml
  search-gateway serve --config gateway.yaml --port 9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				settings.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, settings, slog.Default())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides the settings file)")
	return cmd
}

func runServe(ctx context.Context, settings *config.Settings, logger *slog.Logger) error {
	a, err := newApp(settings, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	jobManager := jobs.NewManager(jobWorkers, jobs.WithLogger(logger))
	jobManager.Start()
	defer jobManager.Stop()

	gin.SetMode(settings.Server.Mode)
	router := gin.New()
	router.Use(
		gin.Recovery(),
		api.RequestIDMiddleware(),
		api.LoggingMiddleware(logger),
		api.CORSMiddleware(),
		api.RequestSizeLimitMiddleware(settings.Server.MaxBodyBytes),
	)
	api.SetupRoutes(router, api.NewAPI(api.Dependencies{
		Search:       a.search,
		Matcher:      a.matcher,
		Rules:        a.rules,
		Promotions:   a.promotions,
		Catalog:      a.catalog,
		Backends:     a.registry,
		Jobs:         jobManager,
		DebugToken:   settings.Server.DebugToken,
		DefaultLimit: settings.Search.DefaultLimit,
		Logger:       logger,
	}))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", settings.Server.Port, "indices", len(a.catalog.Indices()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
