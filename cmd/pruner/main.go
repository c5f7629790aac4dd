package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tweet-pruner/internal/adapters/classifier"
	"tweet-pruner/internal/adapters/events"
	"tweet-pruner/internal/adapters/notify"
	"tweet-pruner/internal/adapters/repo"
	"tweet-pruner/internal/adapters/xapi"
	"tweet-pruner/internal/domain"
	"tweet-pruner/internal/infra/cache"
	"tweet-pruner/internal/infra/clock"
	"tweet-pruner/internal/infra/config"
	applog "tweet-pruner/internal/infra/log"
	"tweet-pruner/internal/infra/metrics"
	"tweet-pruner/internal/infra/openai"
	"tweet-pruner/internal/infra/ratelimit"
	"tweet-pruner/internal/usecase/policy"
	"tweet-pruner/internal/usecase/pruner"
)

type cliOptions struct {
	Execute      bool `long:"execute" description:"Delete posts for real (default is a dry run)"`
	Limit        int  `long:"limit" description:"Max posts to decide in this run (overrides RUN_PER_RUN_CAP)"`
	ResetCursor  bool `long:"reset-cursor" description:"Start from the newest page of the timeline"`
	RebuildState bool `long:"rebuild-state" description:"Rebuild run state counters from the journal before running"`
}

func main() {
	var cli cliOptions
	if _, err := flags.NewParser(&cli, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	os.Exit(run(cfg, cli, logger))
}

func run(cfg config.AppConfig, cli cliOptions, logger zerolog.Logger) int {
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)
	}

	mode := pruner.ModeDryRun
	if cli.Execute {
		mode = pruner.ModeExecute
	}
	namespace := repo.Namespace(cfg.Store.Namespace, mode == pruner.ModeDryRun, cfg.AppEnv)
	logger = logger.With().Str("namespace", namespace).Logger()

	if cfg.X.AccessToken == "" {
		logger.Error().Msg("pruner: не указан токен X API (X_USER_ACCESS_TOKEN)")
		return 1
	}
	if cfg.OpenAI.APIKey == "" {
		logger.Error().Msg("pruner: не указан ключ OpenAI (OPENAI_API_KEY)")
		return 1
	}

	thresholds := policy.Thresholds{High: cfg.Policy.ConfidenceHigh, Low: cfg.Policy.ConfidenceLow}
	decider, err := policy.New(thresholds)
	if err != nil {
		logger.Error().Err(err).Msg("pruner: неверные пороги политики")
		return 1
	}
	rules, err := policy.LoadRuleSet(cfg.Policy.RulesFile)
	if err != nil {
		logger.Error().Err(err).Msg("pruner: не удалось загрузить ключевые слова")
		return 1
	}

	store, closeStore, err := repo.Open(ctx, repo.OpenOptions{
		Backend:    cfg.Store.Backend,
		Dir:        cfg.Store.Dir,
		SQLitePath: cfg.Store.SQLitePath,
		PGDSN:      cfg.PGDSN,
		Namespace:  namespace,
	})
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.Store.Backend).Msg("pruner: не удалось открыть журнал")
		return 1
	}
	defer closeStore()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error().Err(err).Msg("pruner: нет подключения к Redis")
			return 1
		}
		defer redisClient.Close()

		lock := cache.NewRunLock(redisClient, namespace, cfg.Run.LockTTL)
		if err := lock.Acquire(ctx); err != nil {
			if errors.Is(err, cache.ErrLocked) {
				logger.Warn().Msg("pruner: другой запуск уже работает, выходим")
				return 0
			}
			logger.Error().Err(err).Msg("pruner: не удалось захватить блокировку")
			return 1
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("pruner: не удалось снять блокировку")
			}
		}()
	}

	clk := clock.Real{}
	openWindow := func(seed []time.Time) domain.RateWindow {
		return ratelimit.NewWindow(cfg.Run.WindowCap, cfg.Run.Window, clk, seed)
	}
	if cfg.Run.WindowBackend == config.WindowRedis {
		openWindow = func([]time.Time) domain.RateWindow {
			return cache.NewRedisWindow(redisClient, namespace, cfg.Run.WindowCap, cfg.Run.Window, clk)
		}
	}

	xClient := xapi.NewClient(ctx, cfg.X.AccessToken, cfg.X.BaseURL, cfg.X.Timeout)
	userID := cfg.X.UserID
	if userID == "" {
		me, err := xClient.Me(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("pruner: не удалось определить пользователя X")
			return 1
		}
		userID = me.ID
		logger.Info().Str("user", me.Username).Msg("pruner: пользователь X определён по токену")
	}

	var publisher domain.DecisionPublisher
	if cfg.Events.RabbitURL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.Events.RabbitURL, cfg.Events.Exchange)
		if err != nil {
			logger.Warn().Err(err).Msg("pruner: события решений отключены")
		} else {
			defer rabbit.Close()
			publisher = rabbit
		}
	} else if cfg.Events.RedisKey != "" && redisClient != nil {
		publisher = events.NewRedisPublisher(redisClient, cfg.Events.RedisKey, cfg.Events.Backlog)
	}

	opts := pruner.Options{
		Mode:               mode,
		PerRunCap:          cfg.Run.PerRunCap,
		InterActionDelay:   cfg.Run.InterActionDelay,
		ImageLimit:         cfg.Run.ImageLimit,
		MinItemAge:         cfg.Run.MinItemAge,
		ClassifierAttempts: cfg.Run.ClassifierAttempts,
		ClassifierBackoff:  cfg.Run.ClassifierBackoff,
		DeleteAttempts:     cfg.Run.DeleteAttempts,
		DeleteBackoff:      cfg.Run.DeleteBackoff,
		RateLimitWaits:     cfg.Run.RateLimitWaits,
		WindowSpan:         cfg.Run.Window,
		RebuildState:       cli.RebuildState,
		ResetCursor:        cli.ResetCursor,
	}
	if cli.Limit > 0 {
		opts.PerRunCap = cli.Limit
	}

	executor, err := pruner.NewExecutor(pruner.Deps{
		Ledger:     store,
		Classifier: classifier.NewOpenAI(openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout), cfg.OpenAI.Model, cfg.OpenAI.Timeout),
		Deleter:    xClient,
		Rules:      policy.NewEvaluator(rules),
		Policy:     decider,
		OpenSource: func(token string) domain.ItemSource {
			return xClient.Timeline(userID, token, cfg.X.PageSize)
		},
		OpenWindow: openWindow,
		Publisher:  publisher,
		Clock:      clk,
		Logger:     logger,
	}, opts)
	if err != nil {
		logger.Error().Err(err).Msg("pruner: не удалось собрать исполнителя")
		return 1
	}

	report, runErr := executor.Run(ctx)
	text := pruner.FormatReport(report)
	logger.Info().Msg("pruner: отчёт\n" + text)

	if cfg.Telegram.Token != "" && cfg.Telegram.ReportChatID != 0 {
		notifier, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ReportChatID)
		if err != nil {
			logger.Warn().Err(err).Msg("pruner: уведомления в Telegram отключены")
		} else {
			notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			if err := notifier.Notify(notifyCtx, text); err != nil {
				logger.Warn().Err(err).Msg("pruner: не удалось отправить отчёт")
			}
			cancel()
		}
	}

	if runErr != nil && report.Termination == domain.TerminationAborted {
		return 1
	}
	return 0
}
