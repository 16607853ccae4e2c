// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hex-territory/internal/api"
	"hex-territory/internal/config"
	"hex-territory/internal/events"
	"hex-territory/internal/logger"
	"hex-territory/internal/metrics"
	"hex-territory/internal/middleware"
	"hex-territory/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Error("config_error", "err", err)
		os.Exit(1)
	}
	l := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	l.Debug("log_init_ok")
	l.Debug("config_api_base", "base", cfg.APIBase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := utils.Bootstrap(ctx, cfg)
	if err != nil {
		l.Error("bootstrap_error", "err", err)
		os.Exit(1)
	}
	defer rt.Close()
	l.Info("engine_ready", "capture_res", cfg.Grid.CaptureRes, "region_res", cfg.Grid.RegionRes, "backend", cfg.Backend)

	// 背景：事件消费与 HTTP 入口共用同一引擎，重复事件由去重记录识别
	consumerDone := make(chan struct{})
	if cfg.Events.Enabled {
		c := events.NewConsumer(rt.Redis, cfg.Events, rt.Engine)
		go func() {
			defer close(consumerDone)
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				l.Error("events_consumer_error", "err", err)
			}
		}()
	} else {
		close(consumerDone)
		l.Info("events_disabled")
	}

	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(rt.Engine, cfg.Grid.CaptureRes)
	var apiHandler http.Handler = apiMux
	if cfg.RateLimit.Enabled {
		apiHandler = middleware.RateLimit(middleware.NewTokenBucket(cfg.RateLimit.QPS, cfg.RateLimit.Burst), apiMux)
		l.Info("rate_limit_on", "qps", cfg.RateLimit.QPS, "burst", cfg.RateLimit.Burst)
	}
	if cfg.Access.Enabled {
		allow, err := middleware.NewAllowlist(cfg.Access.CIDRs, cfg.Access.AllowLocal)
		if err != nil {
			l.Error("allowlist_error", "err", err)
			os.Exit(1)
		}
		apiHandler = allow.Wrap(apiHandler)
		l.Info("allowlist_on", "entries", len(cfg.Access.CIDRs), "local", cfg.Access.AllowLocal)
	}
	mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, apiHandler))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           logger.AccessMiddleware(l)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if cfg.TLS.Enable {
			if err := utils.EnsureSelfSignedCert(cfg.TLS.CertPath, cfg.TLS.KeyPath, "localhost"); err != nil {
				serveErr <- err
				return
			}
			l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLS.CertPath)
			serveErr <- s.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
			return
		}
		l.Info("listening", "addr", cfg.Addr)
		serveErr <- s.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server_error", "err", err)
		}
		stop()
	case <-ctx.Done():
		l.Info("shutdown_begin")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		l.Warn("shutdown_error", "err", err)
	}
	<-consumerDone
	l.Info("shutdown_done")
}
