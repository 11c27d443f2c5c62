package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/makeit-app/auth-service/internal/cache"
	"github.com/makeit-app/auth-service/internal/config"
	"github.com/makeit-app/auth-service/internal/service"
	"github.com/makeit-app/auth-service/internal/storage"
	"github.com/makeit-app/auth-service/internal/storage/postgres"
	transporthttp "github.com/makeit-app/auth-service/internal/transport/http"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Подключение к БД c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
	dbCancel()
	if err != nil {
		log.Error("postgres_connect_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	log.Info("postgres_connected")

	// Сервис.
	srvc := service.New(str, cfg.Auth, cfg.Invite)

	// Опциональный Redis-кэш отозванных refresh-токенов.
	var rcache cache.RefreshCache
	if cfg.Redis.RedisURL != "" {
		rcache, err = cache.NewRedisCache(cfg.Redis.RedisURL, "")
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			rootCancel()
			str.Close()
			os.Exit(1)
		}
		srvc.SetRefreshCache(rcache)
		log.Info("redis_connected")
	}
	log.Info("service_initialized")

	var ready int32 // 0 — not ready; 1 — ready
	opsAddr := cfg.Ops.Addr()

	// Служебный сервер: liveness/readiness/metrics.
	opsMux := http.NewServeMux()
	opsMux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	opsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	opsMux.Handle("/metrics", promhttp.Handler())

	opsSrv := &http.Server{
		Addr:              opsAddr,
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("ops_listen_start", "addr", opsAddr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops_serve_failed", slog.String("err", err.Error()))
		}
	}()

	// API-сервер.
	apiAddr := cfg.HTTP.Addr()
	router := transporthttp.NewRouter(srvc, transporthttp.Options{
		Logger:  log,
		Timeout: cfg.Timeouts.Service,
	})

	apiSrv := &http.Server{
		Addr:              apiAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Фоновая очистка просроченных refresh-токенов и инвайтов.
	startJanitor(rootCtx, str, log, 30*time.Minute)

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", slog.String("addr", apiAddr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = apiSrv.Close()
	} else {
		log.Info("http_stopped")
	}

	_ = opsSrv.Shutdown(context.Background())

	// Явная очистка перед выходом.
	shutdownCancel()
	rootCancel()
	if rcache != nil {
		_ = rcache.Close()
	}
	str.Close()

	log.Info("service_stopped")
	os.Exit(0)
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// startJanitor запускает фоновую задачу, которая периодически удаляет
// просроченные refresh-токены и непотреблённые просроченные инвайты.
func startJanitor(ctx context.Context, st storage.Storage, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				now := time.Now().UTC()
				if err := st.DeleteExpiredTokens(ctx, now); err != nil {
					log.Error("token_janitor_failed", slog.String("err", err.Error()))
				}
				if err := st.DeleteExpiredInvites(ctx, now); err != nil {
					log.Error("invite_janitor_failed", slog.String("err", err.Error()))
				}
			}
		}
	}()
}
