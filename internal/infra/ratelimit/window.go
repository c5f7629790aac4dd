package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"tweet-pruner/internal/domain"
	"tweet-pruner/internal/infra/clock"
	"tweet-pruner/internal/infra/metrics"
)

// Window — скользящее окно: не более limit вызовов за span.
// Вызов в момент t занимает окно на интервале [t, t+span).
type Window struct {
	mu     sync.Mutex
	limit  int
	span   time.Duration
	clock  clock.Clock
	stamps []time.Time
}

var _ domain.RateWindow = (*Window)(nil)

// NewWindow создаёт окно. seed — отметки прошлых вызовов (например, из RunState).
func NewWindow(limit int, span time.Duration, clk clock.Clock, seed []time.Time) *Window {
	if limit <= 0 {
		limit = 1
	}
	if clk == nil {
		clk = clock.Real{}
	}
	stamps := append([]time.Time(nil), seed...)
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	w := &Window{limit: limit, span: span, clock: clk, stamps: stamps}
	w.evict(clk.Now())
	return w
}

// Acquire ждёт свободного места в окне и фиксирует вызов.
func (w *Window) Acquire(ctx context.Context) error {
	var waited time.Duration
	for {
		w.mu.Lock()
		now := w.clock.Now()
		w.evict(now)
		if len(w.stamps) < w.limit {
			w.stamps = append(w.stamps, now)
			w.mu.Unlock()
			if waited > 0 {
				metrics.ObserveWindowWait(waited)
			}
			return nil
		}
		wait := w.stamps[0].Add(w.span).Sub(now)
		w.mu.Unlock()
		if wait > w.span {
			wait = w.span
		}
		if err := w.clock.Sleep(ctx, wait); err != nil {
			return err
		}
		waited += wait
	}
}

// Snapshot возвращает отметки вызовов, ещё занимающих окно.
func (w *Window) Snapshot() []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.clock.Now())
	return append([]time.Time(nil), w.stamps...)
}

func (w *Window) evict(now time.Time) {
	idx := 0
	for idx < len(w.stamps) && !w.stamps[idx].Add(w.span).After(now) {
		idx++
	}
	if idx > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[idx:]...)
	}
}
