package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Annany2002/nebula-dataapi/api"
	"github.com/Annany2002/nebula-dataapi/internal/cache"
	"github.com/Annany2002/nebula-dataapi/internal/engine"
	"github.com/Annany2002/nebula-dataapi/internal/events"
	"github.com/Annany2002/nebula-dataapi/internal/media"
	"github.com/Annany2002/nebula-dataapi/internal/webhook"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the data API server",
	Long: `Run the data API server.

--models applies a YAML model file before serving. --watch re-applies it whenever it changes.
Both default to MODELS_FILE and WATCH_MODELS.`,
	RunE: runServe,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().String("models", "", "YAML model file to apply at startup")
		cmd.Flags().Bool("watch", false, "reload the model file when it changes")
	}
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	customLog.Println("Starting Nebula data API server...")
	s, err := openStores(ctx)
	if err != nil {
		customLog.Errorf("Failed to initialize: %v", err)
		return err
	}
	defer s.Close()
	cfg := s.cfg

	modelsFile, _ := cmd.Flags().GetString("models")
	if modelsFile == "" {
		modelsFile = cfg.ModelsFile
	}
	watch, _ := cmd.Flags().GetBool("watch")
	watch = watch || cfg.WatchModels

	if modelsFile != "" {
		if err := s.registry.LoadFile(ctx, modelsFile); err != nil {
			customLog.Errorf("Failed to apply model file %s: %v", modelsFile, err)
			return err
		}
		if watch {
			go func() {
				if err := s.registry.Watch(ctx, modelsFile, nil); err != nil {
					customLog.Warnf("Model watcher stopped: %v", err)
				}
			}()
		}
	}

	dispatcher := webhook.NewDispatcher(webhook.NewGormStore(s.registry.DB()),
		webhook.WithWorkers(cfg.WebhookWorkers),
		webhook.WithQueueSize(cfg.WebhookQueueSize),
		webhook.WithTimeout(cfg.WebhookTimeout),
	)
	broadcaster, err := events.Connect(cfg.NatsURL)
	if err != nil {
		customLog.Warnf("NATS unavailable, change events disabled: %v", err)
		broadcaster = events.Nop()
	}
	responses := cache.New(cfg.CacheSize, cfg.CacheTTL)

	svc := engine.New(s.registry, s.db,
		engine.WithMedia(media.NewGormResolver(s.registry.DB())),
		engine.WithCache(responses),
		engine.WithDispatcher(dispatcher),
		engine.WithBroadcaster(broadcaster),
	)

	router := api.SetupRouter(api.Dependencies{Engine: svc, Registry: s.registry, Cache: responses}, cfg)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		customLog.Printf("Server listening on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			customLog.Errorf("Failed to start server: %v", err)
			return err
		}
	case <-ctx.Done():
	}

	customLog.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		customLog.Warnf("HTTP server shutdown: %v", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		customLog.Warnf("Webhook queue not drained: %v", err)
	}
	broadcaster.Close()
	return nil
}
