package domain

import (
	"context"
	"time"
)

// ItemSource отдаёт посты ленты строго по порядку.
// Когда посты закончились, Next возвращает io.EOF.
type ItemSource interface {
	Next(ctx context.Context) (Item, error)
}

// Classifier оценивает текст и вложения поста.
type Classifier interface {
	Classify(ctx context.Context, text string, media []MediaDescriptor, imageLimit int) (Opinion, error)
}

// Deleter выполняет разрушающий вызов во внешней системе.
type Deleter interface {
	Delete(ctx context.Context, itemID string) error
}

// Journal — журнал решений только на дозапись, не более одного решения на пост.
type Journal interface {
	Has(ctx context.Context, itemID string) (bool, error)
	// Append возвращает ErrDuplicateDecision, если решение для поста уже есть.
	Append(ctx context.Context, d Decision) error
	// Stats пересчитывает агрегаты по всему журналу.
	Stats(ctx context.Context) (JournalStats, error)
}

// StateStore хранит RunState.
type StateStore interface {
	// LoadState возвращает нулевое состояние, если оно ещё не сохранялось.
	LoadState(ctx context.Context) (RunState, error)
	SaveState(ctx context.Context, state RunState) error
}

// Ledger объединяет журнал и курсор.
type Ledger interface {
	Journal
	StateStore
	// Commit записывает решение и только после успеха — новое состояние.
	Commit(ctx context.Context, d Decision, state RunState) error
}

// DecisionFilter задаёт выборку решений для аудита.
type DecisionFilter struct {
	Verdict Verdict
	Outcome ExecutionOutcome
	Limit   int
	Offset  int
}

// DecisionReader читает журнал для аудита.
type DecisionReader interface {
	GetDecision(ctx context.Context, itemID string) (Decision, error)
	ListDecisions(ctx context.Context, filter DecisionFilter) ([]Decision, error)
}

// RateWindow ограничивает число разрушающих вызовов в скользящем окне.
type RateWindow interface {
	// Acquire блокирует, пока в окне не освободится место, и учитывает вызов.
	Acquire(ctx context.Context) error
	// Snapshot возвращает отметки вызовов, ещё попадающих в окно.
	Snapshot() []time.Time
}

// DecisionPublisher публикует события о решениях.
type DecisionPublisher interface {
	Publish(ctx context.Context, event DecisionEvent) error
}

// Notifier доставляет текстовый отчёт о запуске.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
