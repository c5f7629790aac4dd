package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"tweet-pruner/internal/domain"
)

type auditLedger interface {
	domain.Ledger
	domain.DecisionReader
}

func sampleDecision(id string, verdict domain.Verdict, outcome domain.ExecutionOutcome, at time.Time) domain.Decision {
	item := domain.Item{ID: id, Text: "post " + id, CreatedAt: at.Add(-96 * time.Hour)}
	d := domain.NewDecision(item, verdict, domain.ReasonNoMatch, domain.Opinion{Label: verdict, Confidence: 0.8}, domain.RuleSignal{}, at)
	if outcome != domain.OutcomeNotAttempted {
		d = d.WithOutcome(outcome, &at)
	}
	d.RunID = "run-1"
	return d
}

func exerciseLedger(t *testing.T, ledger auditLedger) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	state, err := ledger.LoadState(ctx)
	if err != nil {
		t.Fatalf("не удалось прочитать пустое состояние: %v", err)
	}
	if state.TotalAnalyzed != 0 || state.PaginationToken != "" {
		t.Fatalf("ожидали нулевое состояние, получили %+v", state)
	}

	decisions := []domain.Decision{
		sampleDecision("10", domain.VerdictDelete, domain.OutcomeDeleted, base),
		sampleDecision("9", domain.VerdictKeep, domain.OutcomeNotAttempted, base.Add(time.Second)),
		sampleDecision("8", domain.VerdictDelete, domain.OutcomeDeleteFailed, base.Add(2*time.Second)),
	}
	for i, d := range decisions {
		state = state.Advance(d, "page-"+d.ItemID)
		if err := ledger.Commit(ctx, d, state); err != nil {
			t.Fatalf("запись %d: %v", i, err)
		}
	}

	if err := ledger.Append(ctx, decisions[0]); !errors.Is(err, domain.ErrDuplicateDecision) {
		t.Fatalf("ожидали ErrDuplicateDecision, получили %v", err)
	}
	has, err := ledger.Has(ctx, "9")
	if err != nil || !has {
		t.Fatalf("решение 9 должно быть в журнале: %v", err)
	}
	has, err = ledger.Has(ctx, "7")
	if err != nil || has {
		t.Fatalf("решения 7 не должно быть в журнале: %v", err)
	}

	loaded, err := ledger.LoadState(ctx)
	if err != nil {
		t.Fatalf("не удалось прочитать состояние: %v", err)
	}
	if loaded.TotalAnalyzed != 3 || loaded.TotalDeleted != 1 || loaded.TotalKept != 1 {
		t.Fatalf("неверные счётчики: %+v", loaded)
	}
	if loaded.LastProcessedItemID != "8" || loaded.PaginationToken != "page-8" {
		t.Fatalf("неверный курсор: %+v", loaded)
	}

	stats, err := ledger.Stats(ctx)
	if err != nil {
		t.Fatalf("не удалось посчитать агрегаты: %v", err)
	}
	if stats.Total != 3 || stats.ByVerdict[domain.VerdictDelete] != 2 || stats.ByOutcome[domain.OutcomeDeleted] != 1 {
		t.Fatalf("неверные агрегаты: %+v", stats)
	}
	if stats.LastItemID != "8" {
		t.Fatalf("последним должно быть решение 8, получили %q", stats.LastItemID)
	}
	if !loaded.InSync(stats) {
		t.Fatalf("состояние должно совпадать с журналом")
	}

	got, err := ledger.GetDecision(ctx, "10")
	if err != nil {
		t.Fatalf("не удалось прочитать решение: %v", err)
	}
	if got.Outcome != domain.OutcomeDeleted || !got.Deleted || got.RunID != "run-1" {
		t.Fatalf("неверное решение: %+v", got)
	}
	if _, err := ledger.GetDecision(ctx, "missing"); !errors.Is(err, domain.ErrDecisionNotFound) {
		t.Fatalf("ожидали ErrDecisionNotFound, получили %v", err)
	}

	deletes, err := ledger.ListDecisions(ctx, domain.DecisionFilter{Verdict: domain.VerdictDelete})
	if err != nil {
		t.Fatalf("не удалось получить список: %v", err)
	}
	if len(deletes) != 2 || deletes[0].ItemID != "10" || deletes[1].ItemID != "8" {
		t.Fatalf("неверная выборка DELETE: %+v", deletes)
	}
	page, err := ledger.ListDecisions(ctx, domain.DecisionFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("не удалось получить страницу: %v", err)
	}
	if len(page) != 1 || page[0].ItemID != "9" {
		t.Fatalf("неверная страница: %+v", page)
	}
	failed, err := ledger.ListDecisions(ctx, domain.DecisionFilter{Outcome: domain.OutcomeDeleteFailed})
	if err != nil || len(failed) != 1 || failed[0].ItemID != "8" {
		t.Fatalf("неверная выборка по исходу: %+v, %v", failed, err)
	}
}

func TestNamespace(t *testing.T) {
	cases := []struct {
		base   string
		dryRun bool
		env    string
		want   string
	}{
		{"main", false, "prod", "main"},
		{"main", true, "prod", "main-dryrun"},
		{"main", false, "dev", "main-dev"},
		{"", true, "dev", "default-dev-dryrun"},
	}
	for _, tc := range cases {
		if got := Namespace(tc.base, tc.dryRun, tc.env); got != tc.want {
			t.Fatalf("Namespace(%q, %v, %q) = %q, ожидали %q", tc.base, tc.dryRun, tc.env, got, tc.want)
		}
	}
}
