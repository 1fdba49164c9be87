// Package app contains the application setup for the terminal.
package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tillsync/tillsync/internal/config"
	"github.com/tillsync/tillsync/internal/localstore"
	"github.com/tillsync/tillsync/internal/monitor"
	"github.com/tillsync/tillsync/internal/notify"
	"github.com/tillsync/tillsync/internal/processor"
	"github.com/tillsync/tillsync/internal/queue"
	"github.com/tillsync/tillsync/internal/reconcile"
	"github.com/tillsync/tillsync/internal/remote"
	"github.com/tillsync/tillsync/internal/service"
	"github.com/tillsync/tillsync/internal/session"
	"github.com/tillsync/tillsync/internal/transport/rest"
	"github.com/tillsync/tillsync/pkg/server"
	"github.com/tillsync/tillsync/pkg/web"
)

// Dependencies holds the wired components of the terminal.
type Dependencies struct {
	Session    *session.Store
	Queue      *queue.Queue
	Monitor    *monitor.Monitor
	Processor  *processor.Processor
	Fetcher    *reconcile.Fetcher
	Hub        *notify.Hub
	PosService service.PosService
	Logger     *slog.Logger
}

// SetupDependencies wires the sync engine: session state over the local
// store, the durable queue, the connectivity monitor and the processor,
// connected so that going online kicks a queue drain.
func SetupDependencies(local localstore.Store, remoteStore remote.Store, cfg *config.Config, logger *slog.Logger) *Dependencies {
	hub := notify.NewHub(notify.NewLogNotifier(logger))

	sess := session.New(local, logger, hub)
	q := queue.New(local, cfg.Sync.QueueMaxAge, logger)
	fetcher := reconcile.NewFetcher(remoteStore, sess, hub, logger)
	proc := processor.New(q, sess, remoteStore, fetcher, hub, cfg.Sync.OpDelay, logger)
	mon := monitor.New(remoteStore, hub, cfg.Sync.RetryAttempts, cfg.Sync.RetryDelay, logger)
	mon.OnOnline(func(ctx context.Context, reconnected bool) {
		if q.Len() > 0 {
			if err := proc.Process(ctx); err != nil {
				logger.Warn("Sync pass interrupted", "error", err)
			}
			return
		}
		if reconnected {
			if err := fetcher.RefreshAll(ctx); err != nil {
				logger.Warn("Refresh after reconnect interrupted", "error", err)
			}
		}
	})

	posService := service.NewService(sess, q, proc, mon, fetcher, hub, logger)

	return &Dependencies{
		Session:    sess,
		Queue:      q,
		Monitor:    mon,
		Processor:  proc,
		Fetcher:    fetcher,
		Hub:        hub,
		PosService: posService,
		Logger:     logger,
	}
}

// SetupHttpHandler initializes the HTTP routes for the terminal.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	mux.Use(web.UserContext)
	wireRoutes(mux, deps)
	return mux
}

// wireRoutes sets up the HTTP routes for the terminal.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.PosService, deps.Logger)
	handler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures an HTTP server for the terminal.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}
