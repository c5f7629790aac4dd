package policy

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"tweet-pruner/internal/domain"
)

type phrase struct {
	keyword string
	tokens  []string
}

// Evaluator вычисляет детерминированный сигнал по ключевым словам.
// Вложения не дают самостоятельного сигнала: медиа оценивает только классификатор.
type Evaluator struct {
	phrases []phrase
}

// NewEvaluator готовит наборы ключевых слов к сопоставлению по целым словам.
func NewEvaluator(rs RuleSet) *Evaluator {
	e := &Evaluator{}
	seen := make(map[string]struct{})
	for _, set := range [][]string{rs.Locations, rs.WorkActivities} {
		for _, kw := range set {
			tokens := tokenize(kw)
			if len(tokens) == 0 {
				continue
			}
			key := strings.Join(tokens, " ")
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			e.phrases = append(e.phrases, phrase{keyword: key, tokens: tokens})
		}
	}
	return e
}

// Evaluate не имеет побочных эффектов и всегда завершается.
func (e *Evaluator) Evaluate(text string, _ []domain.MediaDescriptor) domain.RuleSignal {
	words := tokenize(text)
	if len(words) == 0 {
		return domain.RuleSignal{}
	}
	var matched []string
	for _, p := range e.phrases {
		if containsSequence(words, p.tokens) {
			matched = append(matched, p.keyword)
		}
	}
	return domain.RuleSignal{StrictMatch: len(matched) > 0, Matched: matched}
}

func tokenize(s string) []string {
	folded := cases.Fold().String(s)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsSequence(words, seq []string) bool {
	if len(seq) > len(words) {
		return false
	}
	for i := 0; i+len(seq) <= len(words); i++ {
		match := true
		for j := range seq {
			if words[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
