package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pruner_decisions_total",
		Help: "Решения политики по вердиктам и причинам",
	}, []string{"verdict", "reason_code"})

	ExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pruner_executions_total",
		Help: "Результаты исполнения решений",
	}, []string{"outcome"})

	DeleteAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pruner_delete_attempts_total",
		Help: "Попытки разрушающего вызова по результату",
	}, []string{"result"})

	ClassifierDegradedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pruner_classifier_degraded_total",
		Help: "Посты, оценённые консервативным мнением из-за недоступности классификатора",
	})

	WindowWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pruner_window_wait_seconds",
		Help:    "Ожидание свободного места в окне лимита",
		Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600, 900},
	})

	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pruner_runs_total",
		Help: "Завершённые запуски по причине завершения",
	}, []string{"termination"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		DecisionsTotal,
		ExecutionsTotal,
		DeleteAttemptsTotal,
		ClassifierDegradedTotal,
		WindowWaitSeconds,
		RunsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObserveDecision учитывает решение политики и результат его исполнения.
func ObserveDecision(verdict, reasonCode, outcome string) {
	DecisionsTotal.WithLabelValues(verdict, reasonCode).Inc()
	ExecutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDeleteAttempt учитывает одну попытку удаления.
func ObserveDeleteAttempt(result string) {
	DeleteAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveWindowWait записывает время ожидания окна.
func ObserveWindowWait(d time.Duration) {
	WindowWaitSeconds.Observe(d.Seconds())
}

// IncDegraded учитывает деградированное мнение классификатора.
func IncDegraded() {
	ClassifierDegradedTotal.Inc()
}

// IncRun учитывает завершение запуска.
func IncRun(termination string) {
	RunsTotal.WithLabelValues(termination).Inc()
}
