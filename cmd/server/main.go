package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tibiamarket/tracker/internal/api"
	"github.com/tibiamarket/tracker/internal/config"
	"github.com/tibiamarket/tracker/internal/database"
	"github.com/tibiamarket/tracker/internal/logging"
	"github.com/tibiamarket/tracker/internal/services"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	logging.Setup()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize database
	if err := database.Initialize(cfg.DBPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize services
	snapshotStore := services.NewSnapshotStore(filepath.Join(cfg.ResultsDir, services.SnapshotFile))
	if err := snapshotStore.Reload(); err != nil {
		log.Warn().Err(err).Msg("No market snapshot yet, serving 503 until the first scan completes")
	}
	quoteStore := services.NewQuoteStore(database.GetDB())

	// Create a cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start snapshot watcher in background with panic recovery
	go func() {
		for {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Msg("PANIC in snapshot watcher - restarting in 30 seconds")
					}
				}()
				if err := services.WatchSnapshot(ctx, snapshotStore); err != nil {
					log.Error().Err(err).Msg("Snapshot watcher stopped, relying on per-request mtime checks")
				}
			}()

			select {
			case <-ctx.Done():
				return // Graceful shutdown
			case <-time.After(30 * time.Second):
				log.Info().Msg("Snapshot watcher restarting...")
			}
		}
	}()

	// Setup router
	router := api.SetupRouter(snapshotStore, quoteStore, api.Options{AllowedOrigins: cfg.CORSAllowedOrigins})

	// Create HTTP server for graceful shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// Cancel the context to stop the watcher
	cancel()

	// Give outstanding requests a deadline to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
