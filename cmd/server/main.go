package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/blockgraph/internal/api"
	"github.com/gyaneshwarpardhi/blockgraph/internal/config"
	"github.com/gyaneshwarpardhi/blockgraph/internal/engine"
	"github.com/gyaneshwarpardhi/blockgraph/internal/telemetry"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/scaffold.yaml", "Path to product YAML file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the product file")
	traceExporter := flag.String("trace", "none", "Trace exporter (none, stdout)")
	flag.Parse()

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load product file", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	level := cfg.Engine.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLevel(level)}))
	slog.SetDefault(logger)

	// ── Tracing ──────────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(context.Background(), telemetry.Config{
		ServiceName: "blockgraph",
		Exporter:    *traceExporter,
	})
	if err != nil {
		slog.Error("failed to set up tracing", "err", err)
		os.Exit(1)
	}

	// ── Session ──────────────────────────────────────────────────────────────
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := engine.FromConfig(context.Background(), cfg, logger)
	if err != nil {
		slog.Error("failed to start session", "err", err)
		os.Exit(1)
	}
	slog.Info("session started", "product", cfg.Product, "blocks", len(cfg.Blocks))

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.ProductConfig) {
		if err := sess.Reconfigure(ctx, newCfg); err != nil {
			slog.Warn("hot-reload skipped", "err", err)
			return
		}
		slog.Info("schema hot-reloaded", "blocks", len(newCfg.Blocks))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("product file watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.New(sess, loader),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down…")
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutCancel()
		_ = srv.Shutdown(shutCtx)
		sess.Shutdown()
		return shutdownTracing(shutCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("goodbye")
}
