package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chiwei-platform/phost/internal/adapter/repository"
	"github.com/chiwei-platform/phost/internal/config"
	"github.com/chiwei-platform/phost/internal/gateway"
	"github.com/chiwei-platform/phost/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(cfg.NewLogger())

	db, err := repository.OpenDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open db", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, unix.SIGUSR1)
	defer signal.Stop(reload)

	table := gateway.NewTable(repository.NewProxyRouteRepo(db))
	if err := table.Reload(ctx); err != nil {
		slog.Error("initial route load failed", "error", err)
		os.Exit(1)
	}

	gw := gateway.New(table, cfg.BaseDomain, time.Duration(cfg.ProxyTimeoutSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", gw)

	handler := middleware.Wrap(mux, middleware.Recovery, middleware.RequestID, middleware.Logging)

	srv := &http.Server{
		Addr:              ":" + cfg.ProxyPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("phost-proxy listening", "port", cfg.ProxyPort, "pid", os.Getpid())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return table.Watch(gctx, reload)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("phost-proxy exited", "error", err)
		os.Exit(1)
	}
}
