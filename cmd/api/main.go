package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tweet-pruner/internal/adapters/httpapi"
	"tweet-pruner/internal/adapters/repo"
	"tweet-pruner/internal/infra/config"
	httpinfra "tweet-pruner/internal/infra/http"
	applog "tweet-pruner/internal/infra/log"
	"tweet-pruner/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// API читает боевое пространство журнала
	namespace := repo.Namespace(cfg.Store.Namespace, false, cfg.AppEnv)
	store, closeStore, err := repo.Open(ctx, repo.OpenOptions{
		Backend:    cfg.Store.Backend,
		Dir:        cfg.Store.Dir,
		SQLitePath: cfg.Store.SQLitePath,
		PGDSN:      cfg.PGDSN,
		Namespace:  namespace,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось открыть журнал")
	}
	defer closeStore()

	srv := httpinfra.NewServer(applog.Component(logger, "http"))
	srv.Router.Group(func(r chi.Router) {
		r.Use(httpinfra.TokenAuthMiddleware(cfg.APIToken))
		httpapi.NewHandler(store, logger).Register(r)
	})

	if err := srv.Run(ctx, ":"+strconv.Itoa(cfg.Port)); err != nil {
		logger.Error().Err(err).Msg("api: сервер остановлен с ошибкой")
	}
}
