// Package main implements the point-of-sale terminal daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof"

	"golang.org/x/sync/errgroup"

	"github.com/tillsync/tillsync/internal/app"
	"github.com/tillsync/tillsync/internal/config"
	"github.com/tillsync/tillsync/internal/localstore"
	"github.com/tillsync/tillsync/internal/remote"
	"github.com/tillsync/tillsync/pkg/bootstrap"
	"github.com/tillsync/tillsync/pkg/config/configloader"
)

const serviceName = "tillsync"

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run initializes the application, opens the local store, and starts the
// HTTP server, the connectivity monitor and the periodic refresh loops.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	local, err := localstore.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer local.Close()
	logger.Info("Local store opened", slog.String("path", cfg.Store.Path))

	remoteStore := remote.NewClient(cfg.Remote.URL, cfg.Remote.APIKey, cfg.Remote.Timeout, logger)

	deps := app.SetupDependencies(local, remoteStore, cfg, logger)

	if err := deps.Session.Load(); err != nil {
		return fmt.Errorf("failed to load session state: %w", err)
	}
	if err := deps.Queue.Load(); err != nil {
		return fmt.Errorf("failed to load sync queue: %w", err)
	}

	// The initial check drains any queue carried over from the previous run
	// and pulls fresh collections when the remote store is reachable.
	deps.Monitor.Check(ctx)

	httpServer := app.SetupHttpServer(deps, cfg)
	pprofServer := &http.Server{
		Addr: cfg.PProf.Addr,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Periodic connectivity check; a transition to online drains the queue.
	g.Go(func() error {
		err := deps.Monitor.Run(gCtx, cfg.Sync.CheckInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Periodic session refresh renews the access token and keeps the cache
	// warm during long online periods.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Sync.SessionRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if !deps.Monitor.IsOnline() {
					continue
				}
				if cfg.Remote.RefreshToken != "" {
					if err := remoteStore.RefreshToken(gCtx, cfg.Remote.RefreshToken); err != nil {
						logger.Warn("Session token refresh failed", "error", err)
					}
				}
				if err := deps.Fetcher.RefreshAll(gCtx); err != nil {
					logger.Warn("Periodic refresh failed", "error", err)
				}
			}
		}
	})

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		// gracefully shutdown pprof server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}
