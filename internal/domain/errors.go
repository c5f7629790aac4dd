package domain

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки классификатора.
var (
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrClassifierTimeout     = errors.New("classifier timeout")
	ErrClassifierRateLimited = errors.New("classifier rate limited")
	ErrClassifierMalformed   = errors.New("classifier malformed response")
)

// Ошибки удаления.
var (
	// ErrNotFound — пост уже отсутствует, считается успехом.
	ErrNotFound = errors.New("item not found")
	// ErrRateLimited — внешний API попросил подождать.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnauthorized — нет прав на удаление, запуск прерывается.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransient — временная ошибка, допускает повтор.
	ErrTransient = errors.New("transient error")
	// ErrRateLimitExceeded — лимит ожиданий исчерпан для одного поста.
	ErrRateLimitExceeded = errors.New("rate limit waits exhausted")
)

// Ошибки журнала.
var (
	ErrDuplicateDecision = errors.New("decision already journaled")
	ErrJournalWrite      = errors.New("journal write failed")
	ErrDecisionNotFound  = errors.New("decision not found")
)

// RateLimitError несёт время сброса лимита, если API его сообщил.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s until %s", ErrRateLimited, e.ResetAt.UTC().Format(time.RFC3339))
}

// Unwrap позволяет сравнивать через errors.Is(err, ErrRateLimited).
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// IsClassifierFailure сообщает, относится ли ошибка к недоступности классификатора.
func IsClassifierFailure(err error) bool {
	return errors.Is(err, ErrClassifierUnavailable) ||
		errors.Is(err, ErrClassifierTimeout) ||
		errors.Is(err, ErrClassifierRateLimited) ||
		errors.Is(err, ErrClassifierMalformed)
}
