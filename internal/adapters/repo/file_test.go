package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tweet-pruner/internal/domain"
)

func TestFileLedger(t *testing.T) {
	store, err := OpenFile(t.TempDir(), "main")
	if err != nil {
		t.Fatalf("не удалось открыть журнал: %v", err)
	}
	defer store.Close()
	exerciseLedger(t, store)
}

func TestFileLedgerReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	store, err := OpenFile(dir, "main")
	if err != nil {
		t.Fatalf("не удалось открыть журнал: %v", err)
	}
	d := sampleDecision("1", domain.VerdictKeep, domain.OutcomeNotAttempted, at)
	if err := store.Commit(ctx, d, domain.RunState{}.Advance(d, "")); err != nil {
		t.Fatalf("не удалось записать решение: %v", err)
	}
	store.Close()

	reopened, err := OpenFile(dir, "main")
	if err != nil {
		t.Fatalf("не удалось переоткрыть журнал: %v", err)
	}
	defer reopened.Close()
	has, _ := reopened.Has(ctx, "1")
	if !has {
		t.Fatalf("после переоткрытия решение должно сохраниться")
	}
	state, err := reopened.LoadState(ctx)
	if err != nil || state.TotalKept != 1 {
		t.Fatalf("неверное состояние после переоткрытия: %+v, %v", state, err)
	}
}

func TestFileLedgerDropsTornLine(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	store, err := OpenFile(dir, "main")
	if err != nil {
		t.Fatalf("не удалось открыть журнал: %v", err)
	}
	if err := store.Append(ctx, sampleDecision("1", domain.VerdictKeep, domain.OutcomeNotAttempted, at)); err != nil {
		t.Fatalf("не удалось записать решение: %v", err)
	}
	store.Close()

	path := filepath.Join(dir, "main", journalFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("не удалось открыть файл: %v", err)
	}
	if _, err := f.WriteString(`{"tweet_id":"2","text":"obo`); err != nil {
		t.Fatalf("не удалось дописать мусор: %v", err)
	}
	f.Close()

	reopened, err := OpenFile(dir, "main")
	if err != nil {
		t.Fatalf("оборванная строка не должна ломать открытие: %v", err)
	}
	defer reopened.Close()
	stats, _ := reopened.Stats(ctx)
	if stats.Total != 1 {
		t.Fatalf("ожидали одно решение, получили %d", stats.Total)
	}
	if err := reopened.Append(ctx, sampleDecision("2", domain.VerdictKeep, domain.OutcomeNotAttempted, at)); err != nil {
		t.Fatalf("после восстановления запись должна работать: %v", err)
	}
	reopened.Close()

	again, err := OpenFile(dir, "main")
	if err != nil {
		t.Fatalf("журнал должен оставаться корректным: %v", err)
	}
	defer again.Close()
	stats, _ = again.Stats(ctx)
	if stats.Total != 2 || stats.LastItemID != "2" {
		t.Fatalf("неверные агрегаты после восстановления: %+v", stats)
	}
}

func TestFileLedgerNamespacesAreIsolated(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	live, err := OpenFile(dir, "main")
	if err != nil {
		t.Fatalf("не удалось открыть журнал: %v", err)
	}
	defer live.Close()
	dry, err := OpenFile(dir, "main-dryrun")
	if err != nil {
		t.Fatalf("не удалось открыть журнал пробного прогона: %v", err)
	}
	defer dry.Close()

	if err := dry.Append(ctx, sampleDecision("1", domain.VerdictDelete, domain.OutcomeSkippedDryRun, at)); err != nil {
		t.Fatalf("не удалось записать решение: %v", err)
	}
	if has, _ := live.Has(ctx, "1"); has {
		t.Fatalf("пробный прогон не должен попадать в боевой журнал")
	}
}

func TestFileLedgerReaderSeesNewDecisions(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	writer, err := OpenFile(dir, "main")
	if err != nil {
		t.Fatalf("не удалось открыть журнал: %v", err)
	}
	defer writer.Close()
	reader, err := OpenFile(dir, "main")
	if err != nil {
		t.Fatalf("не удалось открыть журнал для чтения: %v", err)
	}
	defer reader.Close()

	if err := writer.Append(ctx, sampleDecision("1", domain.VerdictKeep, domain.OutcomeNotAttempted, at)); err != nil {
		t.Fatalf("не удалось записать решение: %v", err)
	}
	got, err := reader.GetDecision(ctx, "1")
	if err != nil || got.ItemID != "1" {
		t.Fatalf("читатель должен увидеть новое решение: %+v, %v", got, err)
	}
	list, err := reader.ListDecisions(ctx, domain.DecisionFilter{})
	if err != nil || len(list) != 1 {
		t.Fatalf("неверный список у читателя: %d, %v", len(list), err)
	}
}

func TestFileLedgerInterleavedWritersKeepAllLines(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := OpenFile(dir, "main")
	if err != nil {
		t.Fatalf("не удалось открыть журнал: %v", err)
	}
	defer first.Close()
	second, err := OpenFile(dir, "main")
	if err != nil {
		t.Fatalf("не удалось открыть журнал вторым процессом: %v", err)
	}
	defer second.Close()

	if err := first.Append(ctx, sampleDecision("1", domain.VerdictKeep, domain.OutcomeNotAttempted, at)); err != nil {
		t.Fatalf("не удалось записать решение 1: %v", err)
	}
	if err := second.Append(ctx, sampleDecision("2", domain.VerdictKeep, domain.OutcomeNotAttempted, at)); err != nil {
		t.Fatalf("не удалось записать решение 2: %v", err)
	}
	if err := first.Append(ctx, sampleDecision("3", domain.VerdictKeep, domain.OutcomeNotAttempted, at)); err != nil {
		t.Fatalf("не удалось записать решение 3: %v", err)
	}
	if err := second.Append(ctx, sampleDecision("1", domain.VerdictKeep, domain.OutcomeNotAttempted, at)); !errors.Is(err, domain.ErrDuplicateDecision) {
		t.Fatalf("повтор решения из другого процесса должен отклоняться, получили %v", err)
	}

	reopened, err := OpenFile(dir, "main")
	if err != nil {
		t.Fatalf("не удалось переоткрыть журнал: %v", err)
	}
	defer reopened.Close()
	stats, err := reopened.Stats(ctx)
	if err != nil || stats.Total != 3 {
		t.Fatalf("ни одна строка не должна потеряться: %+v, %v", stats, err)
	}
}
