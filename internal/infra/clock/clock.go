package clock

import (
	"context"
	"sync"
	"time"
)

// Clock отделяет ожидания от реального времени.
type Clock interface {
	Now() time.Time
	// Sleep ждёт d или отмены контекста.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real использует системное время.
type Real struct{}

// Now возвращает текущее время в UTC.
func (Real) Now() time.Time { return time.Now().UTC() }

// Sleep блокирует на d.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Manual — часы для тестов: Sleep мгновенно сдвигает время.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

// NewManual создаёт часы, стоящие на start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now возвращает текущее время часов.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Sleep сдвигает время на d.
func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now = m.now.Add(d)
	}
	m.slept = append(m.slept, d)
	return nil
}

// Advance сдвигает время без учёта в Slept.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Slept возвращает все запрошенные ожидания.
func (m *Manual) Slept() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.slept...)
}
