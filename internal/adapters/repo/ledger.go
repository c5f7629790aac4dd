package repo

import (
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"tweet-pruner/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Namespace возвращает пространство журнала для режима запуска.
// Пробный прогон пишет в отдельное пространство, чтобы не мешать боевому.
func Namespace(base string, dryRun bool, appEnv string) string {
	ns := strings.TrimSpace(base)
	if ns == "" {
		ns = "default"
	}
	if appEnv == "dev" {
		ns += "-dev"
	}
	if dryRun {
		ns += "-dryrun"
	}
	return ns
}

func normalizeFilter(f domain.DecisionFilter) domain.DecisionFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// listQuery строит выборку payload решений в порядке записи.
func listQuery(builder sq.StatementBuilderType, namespace, orderBy string, f domain.DecisionFilter) sq.SelectBuilder {
	f = normalizeFilter(f)
	q := builder.Select("payload").From("decisions").Where(sq.Eq{"namespace": namespace})
	if f.Verdict != "" {
		q = q.Where(sq.Eq{"verdict": string(f.Verdict)})
	}
	if f.Outcome != "" {
		q = q.Where(sq.Eq{"execution_outcome": string(f.Outcome)})
	}
	return q.OrderBy(orderBy).Limit(uint64(f.Limit)).Offset(uint64(f.Offset))
}

func statsQuery(builder sq.StatementBuilderType, namespace string) sq.SelectBuilder {
	return builder.Select("verdict", "execution_outcome", "COUNT(*)").
		From("decisions").
		Where(sq.Eq{"namespace": namespace}).
		GroupBy("verdict", "execution_outcome")
}

func lastQuery(builder sq.StatementBuilderType, namespace, orderBy string) sq.SelectBuilder {
	return builder.Select("payload").
		From("decisions").
		Where(sq.Eq{"namespace": namespace}).
		OrderBy(orderBy + " DESC").
		Limit(1)
}

func matchesFilter(d domain.Decision, f domain.DecisionFilter) bool {
	if f.Verdict != "" && d.Verdict != f.Verdict {
		return false
	}
	if f.Outcome != "" && d.Outcome != f.Outcome {
		return false
	}
	return true
}

func decodeDecision(payload []byte) (domain.Decision, error) {
	var d domain.Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		return domain.Decision{}, fmt.Errorf("decode decision: %w", err)
	}
	return d, nil
}

func decodeState(payload []byte) (domain.RunState, error) {
	var s domain.RunState
	if err := json.Unmarshal(payload, &s); err != nil {
		return domain.RunState{}, fmt.Errorf("decode run state: %w", err)
	}
	return s, nil
}

func journalWriteError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrJournalWrite, op, err)
}
