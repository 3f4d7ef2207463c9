package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quotewatch/quotewatch/internal/api"
	"github.com/quotewatch/quotewatch/internal/config"
	"github.com/quotewatch/quotewatch/internal/fetcher"
	"github.com/quotewatch/quotewatch/internal/maintenance"
	"github.com/quotewatch/quotewatch/internal/metrics"
	"github.com/quotewatch/quotewatch/internal/refresher"
	"github.com/quotewatch/quotewatch/internal/store"
)

// shutdownTimeout bounds HTTP server drain on exit.
const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (empty: defaults plus QUOTEWATCH_* env)")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("quotewatch starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Log.SlogLevel())

	slog.Info("config loaded",
		"driver", cfg.Source.Driver,
		"url", cfg.Source.URL,
		"symbols", cfg.Catalog.Symbols(),
		"http_port", cfg.Server.HTTPPort,
		"business_interval", cfg.Schedule.BusinessDayInterval,
		"weekend_interval", cfg.Schedule.WeekendInterval,
		"backoff", cfg.Schedule.Backoff(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	f, err := fetcher.New(cfg.Source)
	if err != nil {
		slog.Error("failed to build fetcher", "err", err)
		os.Exit(1)
	}

	st := store.New(cfg.Catalog.Symbols())
	reg := metrics.New(st.Snapshot)
	if s, ok := f.(interface{ Sessions() int64 }); ok {
		reg.SetSessions(s.Sessions)
	}

	ref, err := refresher.New(f, st, cfg)
	if err != nil {
		slog.Error("failed to build refresher", "err", err)
		os.Exit(1)
	}
	ref.SetRecorder(reg)
	go ref.Run(ctx)

	// Hot reload: catalog, layout, schedule policy and log level.
	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				if err := ref.Apply(updated); err != nil {
					slog.Error("config rejected, keeping previous plan", "err", err)
					return
				}
				level.Set(updated.Log.SlogLevel())
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	loc, err := cfg.Schedule.Location()
	if err != nil {
		slog.Error("invalid timezone", "err", err)
		os.Exit(1)
	}
	maint, err := maintenance.New(cfg.Source.RecycleAt, loc, ref)
	if err != nil {
		slog.Error("failed to schedule maintenance", "err", err)
		os.Exit(1)
	}
	go maint.Run(ctx)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           api.New(st, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("quotewatch shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck

	select {
	case <-ref.Done():
	case <-time.After(cfg.Schedule.ShutdownGrace + time.Second):
		slog.Warn("refresher did not stop within grace period")
	}
}
