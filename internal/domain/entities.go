package domain

import "time"

// MediaKind описывает тип вложения поста.
type MediaKind string

const (
	// MediaImage — статичное изображение.
	MediaImage MediaKind = "image"
	// MediaVideo — видео или анимированный gif.
	MediaVideo MediaKind = "video"
)

// MediaDescriptor ссылается на уже полученное вложение.
type MediaDescriptor struct {
	Kind   MediaKind `json:"kind"`
	Handle string    `json:"handle"`
}

// Item представляет пост ленты, который оценивается.
// Item не изменяется после получения: каждая оценка порождает новое Decision.
type Item struct {
	ID        string
	Text      string
	CreatedAt time.Time
	Media     []MediaDescriptor
	IsRetweet bool
	IsReply   bool
	// Cursor — непрозрачная позиция источника (токен страницы), с которой
	// можно продолжить выборку, не пропустив этот пост.
	Cursor string
}

// MediaKinds возвращает множество типов вложений.
func (i Item) MediaKinds() map[MediaKind]struct{} {
	kinds := make(map[MediaKind]struct{}, len(i.Media))
	for _, m := range i.Media {
		kinds[m.Kind] = struct{}{}
	}
	return kinds
}

// HasKind сообщает, есть ли у поста вложение указанного типа.
func (i Item) HasKind(kind MediaKind) bool {
	for _, m := range i.Media {
		if m.Kind == kind {
			return true
		}
	}
	return false
}

// Verdict — итоговое решение политики.
type Verdict string

const (
	VerdictDelete Verdict = "DELETE"
	VerdictKeep   Verdict = "KEEP"
)

// ReasonCode объясняет, какое правило политики сработало.
type ReasonCode string

const (
	ReasonVideoAlwaysDelete  ReasonCode = "VIDEO_ALWAYS_DELETE"
	ReasonHighConfidenceAI   ReasonCode = "HIGH_CONFIDENCE_AI"
	ReasonLowConfidence      ReasonCode = "LOW_CONFIDENCE_CONSERVATIVE"
	ReasonStrictKeywordMatch ReasonCode = "STRICT_KEYWORD_MATCH"
	ReasonNoMatch            ReasonCode = "NO_MATCH"
)

// ExecutionOutcome фиксирует результат удаления.
type ExecutionOutcome string

const (
	OutcomeNotAttempted  ExecutionOutcome = "NOT_ATTEMPTED"
	OutcomeDeleted       ExecutionOutcome = "DELETED"
	OutcomeDeleteFailed  ExecutionOutcome = "DELETE_FAILED"
	OutcomeSkippedDryRun ExecutionOutcome = "SKIPPED_DRY_RUN"
)

// Opinion — структурированный ответ классификатора.
type Opinion struct {
	Label          Verdict  `json:"decision"`
	Confidence     float64  `json:"confidence"`
	Rationale      string   `json:"reason"`
	MatchedSignals []string `json:"detected_keywords"`
	Degraded       bool     `json:"degraded,omitempty"`
}

// DegradedOpinion возвращает консервативное мнение, когда классификатор недоступен.
func DegradedOpinion(cause string) Opinion {
	return Opinion{
		Label:          VerdictKeep,
		Confidence:     0,
		Rationale:      "classifier unavailable: " + cause,
		MatchedSignals: []string{},
		Degraded:       true,
	}
}

// RuleSignal — детерминированный сигнал по ключевым словам.
type RuleSignal struct {
	StrictMatch bool     `json:"strict_match"`
	Matched     []string `json:"matched,omitempty"`
}

// Decision — неизменяемый результат оценки одного поста.
type Decision struct {
	ItemID     string           `json:"tweet_id"`
	Text       string           `json:"text"`
	CreatedAt  time.Time        `json:"created_at"`
	Verdict    Verdict          `json:"decision"`
	Reason     string           `json:"reason"`
	ReasonCode ReasonCode       `json:"reason_code"`
	Opinion    Opinion          `json:"ai_analysis"`
	Rule       RuleSignal       `json:"rule_signal"`
	HasImages  bool             `json:"has_images"`
	HasVideo   bool             `json:"has_video"`
	IsReply    bool             `json:"is_reply"`
	IsRetweet  bool             `json:"is_retweet"`
	Outcome    ExecutionOutcome `json:"execution_outcome"`
	Deleted    bool             `json:"deleted"`
	DecidedAt  time.Time        `json:"analyzed_at"`
	ExecutedAt *time.Time       `json:"executed_at,omitempty"`
	RunID      string           `json:"run_id,omitempty"`
}

const decisionTextLimit = 200

// NewDecision строит запись журнала для поста.
func NewDecision(item Item, verdict Verdict, code ReasonCode, opinion Opinion, rule RuleSignal, decidedAt time.Time) Decision {
	text := []rune(item.Text)
	if len(text) > decisionTextLimit {
		text = text[:decisionTextLimit]
	}
	return Decision{
		ItemID:     item.ID,
		Text:       string(text),
		CreatedAt:  item.CreatedAt,
		Verdict:    verdict,
		Reason:     describeReason(code, opinion),
		ReasonCode: code,
		Opinion:    opinion,
		Rule:       rule,
		HasImages:  item.HasKind(MediaImage),
		HasVideo:   item.HasKind(MediaVideo),
		IsReply:    item.IsReply,
		IsRetweet:  item.IsRetweet,
		Outcome:    OutcomeNotAttempted,
		DecidedAt:  decidedAt,
	}
}

// WithOutcome возвращает копию решения с результатом исполнения.
func (d Decision) WithOutcome(outcome ExecutionOutcome, at *time.Time) Decision {
	d.Outcome = outcome
	d.Deleted = outcome == OutcomeDeleted
	d.ExecutedAt = at
	return d
}

func describeReason(code ReasonCode, opinion Opinion) string {
	switch code {
	case ReasonVideoAlwaysDelete:
		return "Contains video (auto-delete)"
	case ReasonStrictKeywordMatch:
		return "Keyword match in medium-confidence band"
	}
	if opinion.Rationale == "" {
		return string(code)
	}
	return "AI: " + opinion.Rationale
}
