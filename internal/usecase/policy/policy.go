package policy

import (
	"errors"
	"fmt"

	"tweet-pruner/internal/domain"
)

// Пороговые значения уверенности по умолчанию.
const (
	DefaultHighConfidence = 0.7
	DefaultLowConfidence  = 0.5
)

// ErrInvalidThresholds возвращается при нарушении 0 <= low <= high <= 1.
var ErrInvalidThresholds = errors.New("invalid confidence thresholds")

// Thresholds задаёт границы полосы средней уверенности [Low, High).
type Thresholds struct {
	High float64
	Low  float64
}

// DefaultThresholds возвращает 0.7 / 0.5.
func DefaultThresholds() Thresholds {
	return Thresholds{High: DefaultHighConfidence, Low: DefaultLowConfidence}
}

// Validate проверяет 0 <= Low <= High <= 1.
func (t Thresholds) Validate() error {
	if !(t.Low >= 0 && t.Low <= t.High && t.High <= 1) {
		return fmt.Errorf("%w: low=%v high=%v", ErrInvalidThresholds, t.Low, t.High)
	}
	return nil
}

// Policy объединяет мнение классификатора, сигнал правил и тип вложений.
type Policy struct {
	thresholds Thresholds
}

// New создаёт политику с проверенными порогами.
func New(t Thresholds) (*Policy, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Policy{thresholds: t}, nil
}

// Thresholds возвращает пороги политики.
func (p *Policy) Thresholds() Thresholds { return p.thresholds }

// Decide — тотальная функция: первое сработавшее правило определяет вердикт.
func (p *Policy) Decide(opinion domain.Opinion, rule domain.RuleSignal, kinds map[domain.MediaKind]struct{}) (domain.Verdict, domain.ReasonCode) {
	if _, ok := kinds[domain.MediaVideo]; ok {
		return domain.VerdictDelete, domain.ReasonVideoAlwaysDelete
	}
	if opinion.Confidence >= p.thresholds.High && opinion.Label == domain.VerdictDelete {
		return domain.VerdictDelete, domain.ReasonHighConfidenceAI
	}
	// NaN тоже попадает сюда.
	if !(opinion.Confidence >= p.thresholds.Low) {
		return domain.VerdictKeep, domain.ReasonLowConfidence
	}
	if rule.StrictMatch {
		return domain.VerdictDelete, domain.ReasonStrictKeywordMatch
	}
	return domain.VerdictKeep, domain.ReasonNoMatch
}
