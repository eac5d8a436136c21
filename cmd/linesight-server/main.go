package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linesight/linesight/internal/alerts"
	"github.com/linesight/linesight/internal/api"
	"github.com/linesight/linesight/internal/auth"
	"github.com/linesight/linesight/internal/config"
	"github.com/linesight/linesight/internal/store"
	"github.com/linesight/linesight/internal/ws"
)

// broadcastInterval is how often the hub pushes the line overview to clients
// and re-evaluates alert rules.
const broadcastInterval = 5 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("linesight-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"snapshot_ttl", cfg.Server.Snapshot.TTL,
		"stage_chain", cfg.Analysis.StageChain,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Visit store with background TTL eviction.
	st := store.New(cfg.Server.Snapshot.TTL)
	go st.Run(ctx)

	// Alerts engine — evaluated on every hub tick.
	alertEngine := alerts.New(cfg.Server.Alerts)

	pipeline, err := api.NewPipeline(cfg.Analysis)
	if err != nil {
		slog.Error("failed to build analysis pipeline", "err", err)
		os.Exit(1)
	}

	handler := api.New(st, pipeline, alertEngine)

	// WebSocket hub — broadcasts the line overview to UI clients.
	hub := ws.New(st, pipeline, alertEngine, broadcastInterval)
	go hub.Run(ctx)

	// Hot reload of the analysis section: thresholds, chain, and clustering
	// knobs apply without a restart. Server settings need one.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			p, err := api.NewPipeline(next.Analysis)
			if err != nil {
				slog.Error("config reload: analysis section rejected", "err", err)
				return
			}
			handler.UpdatePipeline(p)
			hub.UpdatePipeline(p)
			slog.Info("analysis configuration reloaded",
				"stage_chain", next.Analysis.StageChain,
				"threshold_minutes", next.Analysis.ThresholdMinutes,
			)
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Combined HTTP server: REST API + WebSocket hub + Prometheus metrics.
	apiKey := auth.APIKeyMiddleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", apiKey(handler))
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("linesight-server shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}
