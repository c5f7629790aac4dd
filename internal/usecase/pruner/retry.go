package pruner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tweet-pruner/internal/domain"
	"tweet-pruner/internal/infra/metrics"
)

// newSchedule возвращает детерминированную экспоненциальную шкалу задержек:
// initial, 2*initial, 4*initial ... без ограничения по общему времени.
// Число попыток ограничивает вызывающий код.
func newSchedule(initial time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// classify запрашивает мнение классификатора с повторами.
// После исчерпания попыток возвращается консервативное мнение; ошибка
// возвращается только при отмене контекста.
func (r *run) classify(ctx context.Context, item domain.Item) (domain.Opinion, error) {
	schedule := newSchedule(r.opts.ClassifierBackoff)
	var lastErr error
	for attempt := 1; attempt <= r.opts.ClassifierAttempts; attempt++ {
		opinion, err := r.Classifier.Classify(ctx, item.Text, item.Media, r.opts.ImageLimit)
		if err == nil {
			return opinion, nil
		}
		if ctx.Err() != nil {
			return domain.Opinion{}, ctx.Err()
		}
		lastErr = err
		r.logger.Warn().Err(err).Str("item", item.ID).Int("attempt", attempt).Msg("pruner: classifier attempt failed")
		if attempt == r.opts.ClassifierAttempts {
			break
		}
		if err := r.Clock.Sleep(ctx, schedule.NextBackOff()); err != nil {
			return domain.Opinion{}, err
		}
	}
	metrics.IncDegraded()
	r.report.Degraded++
	cause := "no attempts"
	if lastErr != nil {
		cause = lastErr.Error()
	}
	r.logger.Warn().Str("item", item.ID).Str("cause", cause).Msg("pruner: classifier degraded, using conservative opinion")
	return domain.DegradedOpinion(cause), nil
}

// deleteWithRetry выполняет разрушающий вызов. Каждая попытка занимает слот окна.
// Ошибка означает, что запуск нужно прервать, не записывая решение.
func (r *run) deleteWithRetry(ctx context.Context, itemID string) (domain.ExecutionOutcome, error) {
	schedule := newSchedule(r.opts.DeleteBackoff)
	failures := 0
	waits := 0
	for {
		if err := r.window.Acquire(ctx); err != nil {
			return "", err
		}
		err := r.Deleter.Delete(ctx, itemID)
		switch {
		case err == nil:
			metrics.ObserveDeleteAttempt("deleted")
			return domain.OutcomeDeleted, nil
		case errors.Is(err, domain.ErrNotFound):
			metrics.ObserveDeleteAttempt("not_found")
			r.logger.Info().Str("item", itemID).Msg("pruner: item already absent, treating as deleted")
			return domain.OutcomeDeleted, nil
		case ctx.Err() != nil:
			return "", ctx.Err()
		case errors.Is(err, domain.ErrUnauthorized):
			metrics.ObserveDeleteAttempt("unauthorized")
			return "", fmt.Errorf("delete %s: %w", itemID, err)
		case errors.Is(err, domain.ErrRateLimited):
			metrics.ObserveDeleteAttempt("rate_limited")
			waits++
			if waits > r.opts.RateLimitWaits {
				return "", fmt.Errorf("delete %s: %w: %w", itemID, domain.ErrRateLimitExceeded, err)
			}
			wait := r.rateLimitWait(err)
			r.logger.Warn().Str("item", itemID).Dur("wait", wait).Int("wait_no", waits).Msg("pruner: rate limited, waiting")
			if err := r.Clock.Sleep(ctx, wait); err != nil {
				return "", err
			}
		default:
			metrics.ObserveDeleteAttempt("failed")
			failures++
			r.logger.Warn().Err(err).Str("item", itemID).Int("attempt", failures).Msg("pruner: delete attempt failed")
			if failures >= r.opts.DeleteAttempts {
				return domain.OutcomeDeleteFailed, nil
			}
			if err := r.Clock.Sleep(ctx, schedule.NextBackOff()); err != nil {
				return "", err
			}
		}
	}
}

// rateLimitWait — время до сброса лимита, не дольше длины окна.
func (r *run) rateLimitWait(err error) time.Duration {
	limit := r.opts.WindowSpan
	var rl *domain.RateLimitError
	if errors.As(err, &rl) && !rl.ResetAt.IsZero() {
		wait := rl.ResetAt.Sub(r.Clock.Now())
		if wait <= 0 {
			wait = r.opts.DeleteBackoff
		}
		if limit > 0 && wait > limit {
			wait = limit
		}
		return wait
	}
	return limit
}
