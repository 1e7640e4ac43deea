// Package main runs the activity ingest server: webhook receivers for push
// providers, the pull-sync loop for Wahoo, and the async processing pool.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trackstack/server/pkg/bootstrap"
	"github.com/trackstack/server/pkg/config"
	"github.com/trackstack/server/pkg/infrastructure/middleware"
	"github.com/trackstack/server/pkg/infrastructure/sentry"
	"github.com/trackstack/server/pkg/processor"
	"github.com/trackstack/server/pkg/types"
	"github.com/trackstack/server/pkg/webhook"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	svc, err := bootstrap.NewService(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize service: %v", err)
	}
	logger := slog.Default().With("service", "ingest-server")

	if err := sentry.Init(sentry.Config{
		DSN:              cfg.Sentry.DSN,
		Environment:      cfg.Server.Environment,
		ServerName:       "ingest-server",
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
	}, logger); err != nil {
		logger.Error("Sentry init failed, continuing without error tracking", "error", err)
	}

	proc := processor.New(svc.DB, svc.Store, svc.Pub, cfg, logger)
	queue := processor.NewQueue(cfg.Processor.QueueSize, cfg.Processor.Workers, logger, proc.Process)
	queue.Start(ctx)

	receiver := webhook.NewReceiver(svc.DB, svc.Store, svc.Limiter, cfg, logger, queue.Enqueue)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	receiver.Mount(r)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/admin/reprocess", reprocessHandler(proc, logger))
	r.Delete("/admin/integrations/{provider}/{userID}", disconnectHandler(svc, logger))

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	syncCtx, stopSync := context.WithCancel(ctx)
	go wahooSyncLoop(syncCtx, svc, proc, cfg.Processor.SyncInterval, logger)

	go func() {
		logger.Info("Server listening", "addr", srv.Addr, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	stopSync()
	queue.Stop()
	sentry.Flush(2 * time.Second)
	logger.Info("Server stopped")
}

// reprocessHandler re-runs events whose last attempt recorded an error.
// ?limit= bounds one sweep, defaulting to 50.
func reprocessHandler(proc *processor.Processor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		n, err := proc.ReprocessFailed(r.Context(), limit)
		if err != nil {
			logger.Error("reprocess sweep failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "reprocess failed"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"reprocessed": n})
	}
}

// disconnectHandler purges a provider connection. Tokens go with the
// document; already-imported activities stay.
func disconnectHandler(svc *bootstrap.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := types.Provider(chi.URLParam(r, "provider"))
		userID := chi.URLParam(r, "userID")

		if err := svc.DB.DeleteIntegration(r.Context(), provider, userID); err != nil {
			logger.Error("integration delete failed", "provider", provider, "user_id", userID, "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "delete failed"})
			return
		}
		logger.Info("integration disconnected", "provider", provider, "user_id", userID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// wahooSyncLoop polls workouts for every sync-enabled Wahoo integration.
// Wahoo has no push webhook for workout summaries, so this loop is the only
// inbound path for that provider.
func wahooSyncLoop(ctx context.Context, svc *bootstrap.Service, proc *processor.Processor, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		integs, err := svc.DB.ListSyncEnabledIntegrations(ctx, types.ProviderWahoo)
		if err != nil {
			logger.Error("listing wahoo integrations", "error", err)
			continue
		}
		for _, integ := range integs {
			if err := proc.SyncWahoo(ctx, integ); err != nil {
				logger.Error("wahoo sync failed", "user_id", integ.UserID, "error", err)
			}
		}
	}
}
