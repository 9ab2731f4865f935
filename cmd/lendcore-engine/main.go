package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lendcore/lendcore/core/infra/buildinfo"
	"github.com/lendcore/lendcore/core/infra/bus"
	"github.com/lendcore/lendcore/core/infra/config"
	"github.com/lendcore/lendcore/core/infra/logging"
	"github.com/lendcore/lendcore/core/infra/metrics"
	"github.com/lendcore/lendcore/core/orchestrator"
	"github.com/lendcore/lendcore/core/workflow"
)

const service = "lendcore-engine"

func main() {
	buildinfo.Log(service)
	cfg := config.Load()

	steps, err := config.LoadSteps(cfg.StepConfigPath)
	if err != nil {
		logging.Warn(service, "step config unavailable, using defaults", "path", cfg.StepConfigPath, "error", err)
	}

	opts := orchestrator.Options{
		Steps:      steps,
		MaxRetries: cfg.MaxRetries,
		Metrics:    metrics.NewProm("lendcore"),
	}

	if !cfg.DisableStore {
		store, err := workflow.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logging.Error(service, "redis unavailable", "url", cfg.RedisURL, "error", err)
			os.Exit(1)
		}
		defer store.Close()
		opts.Store = store
	}

	if !cfg.DisableBus {
		nb, err := bus.NewNatsBus(cfg.NatsURL)
		if err != nil {
			logging.Error(service, "nats unavailable", "url", cfg.NatsURL, "error", err)
			os.Exit(1)
		}
		defer nb.Close()
		opts.Bus = nb
	}

	orch, err := orchestrator.New(opts)
	if err != nil {
		logging.Error(service, "orchestrator init failed", "error", err)
		os.Exit(1)
	}

	srv := orchestrator.NewServer(orch, cfg.Retention)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepLoop(ctx, orch, cfg.Retention)

	go func() {
		logging.Info(service, "http server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(service, "http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info(service, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.Warn(service, "http shutdown incomplete", "error", err)
	}
}

// sweepLoop periodically drops executions past the retention window.
func sweepLoop(ctx context.Context, orch *orchestrator.Orchestrator, retention time.Duration) {
	interval := retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := orch.Cleanup(ctx, retention)
			if err != nil {
				logging.Warn(service, "retention sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				logging.Info(service, "retention sweep", "removed", removed)
			}
		}
	}
}
