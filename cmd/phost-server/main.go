package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chiwei-platform/phost/internal/adapter/artifact"
	"github.com/chiwei-platform/phost/internal/adapter/auth"
	httpadapter "github.com/chiwei-platform/phost/internal/adapter/http"
	"github.com/chiwei-platform/phost/internal/adapter/proxy"
	"github.com/chiwei-platform/phost/internal/adapter/repository"
	"github.com/chiwei-platform/phost/internal/config"
	"github.com/chiwei-platform/phost/internal/service"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(cfg.NewLogger())

	// 数据库
	db, err := repository.OpenDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open db", "error", err)
		os.Exit(1)
	}
	catalog := repository.NewStore(db)

	// 站点目录
	store, err := artifact.NewStore(cfg.HostRoot)
	if err != nil {
		slog.Error("failed to open host root", "path", cfg.HostRoot, "error", err)
		os.Exit(1)
	}

	// 代理进程（可选，未配置时通知降级为告警）
	var sidecar *proxy.Sidecar
	switch {
	case cfg.ProxyPID > 0:
		sidecar, err = proxy.Attach(cfg.ProxyPID)
	case cfg.ProxyBinary != "":
		sidecar, err = proxy.Spawn(cfg.ProxyBinary, nil, cfg.ProxyLogFile)
	}
	if err != nil {
		slog.Warn("proxy unavailable, running without reload notifications", "error", err)
		sidecar = nil
	}
	notifier := proxy.NewNotifier(sidecar)

	authn := auth.New(auth.Config{
		APIToken:      cfg.APIToken,
		Username:      cfg.AdminUsername,
		Password:      cfg.AdminPassword,
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    cfg.SessionTTL,
	})
	if authn.Open() {
		slog.Warn("no API_TOKEN or SESSION_SECRET configured, API is unauthenticated")
	}

	// 服务层
	deploymentSvc := service.NewDeploymentService(catalog, store, notifier)
	proxyRouteSvc := service.NewProxyRouteService(catalog, notifier)
	resolver := service.NewNotFoundResolver(catalog, store, cfg.NotFoundPrefix)

	// HTTP 路由
	handler := httpadapter.NewRouter(
		httpadapter.NewDeploymentHandler(deploymentSvc, cfg.Protocol, cfg.BaseDomain),
		httpadapter.NewProxyRouteHandler(proxyRouteSvc),
		httpadapter.NewAuthHandler(authn),
		httpadapter.NewNotFoundHandler(resolver),
		authn,
		catalog,
		cfg.MaxUploadBytes,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      10 * time.Minute,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "host_root", store.Root())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if sidecar != nil && cfg.ProxyPID == 0 {
		if err := sidecar.Stop(shutdownCtx); err != nil {
			slog.Error("proxy shutdown error", "error", err)
		}
	}
}
