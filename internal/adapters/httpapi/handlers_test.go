package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tweet-pruner/internal/domain"
)

type stubStore struct {
	decisions []domain.Decision
	state     domain.RunState
	filter    domain.DecisionFilter
}

func (s *stubStore) GetDecision(_ context.Context, itemID string) (domain.Decision, error) {
	for _, d := range s.decisions {
		if d.ItemID == itemID {
			return d, nil
		}
	}
	return domain.Decision{}, domain.ErrDecisionNotFound
}

func (s *stubStore) ListDecisions(_ context.Context, f domain.DecisionFilter) ([]domain.Decision, error) {
	s.filter = f
	var out []domain.Decision
	for _, d := range s.decisions {
		if f.Verdict != "" && d.Verdict != f.Verdict {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *stubStore) LoadState(context.Context) (domain.RunState, error) { return s.state, nil }

func (s *stubStore) Stats(context.Context) (domain.JournalStats, error) {
	stats := domain.NewJournalStats()
	for _, d := range s.decisions {
		stats.Add(d)
	}
	return stats, nil
}

func newRouter(store Store) http.Handler {
	r := chi.NewRouter()
	NewHandler(store, zerolog.Nop()).Register(r)
	return r
}

func fixture() *stubStore {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	keep := domain.NewDecision(domain.Item{ID: "1", Text: "sunset"}, domain.VerdictKeep, domain.ReasonNoMatch, domain.Opinion{}, domain.RuleSignal{}, at)
	del := domain.NewDecision(domain.Item{ID: "2", Media: []domain.MediaDescriptor{{Kind: domain.MediaVideo}}}, domain.VerdictDelete, domain.ReasonVideoAlwaysDelete, domain.Opinion{}, domain.RuleSignal{}, at).
		WithOutcome(domain.OutcomeDeleted, &at)
	return &stubStore{
		decisions: []domain.Decision{keep, del},
		state:     domain.RunState{TotalAnalyzed: 2, TotalDeleted: 1, TotalKept: 1, LastProcessedItemID: "2"},
	}
}

func TestGetDecision(t *testing.T) {
	router := newRouter(fixture())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/decisions/2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	var d domain.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("не удалось разобрать ответ: %v", err)
	}
	if d.ItemID != "2" || !d.Deleted || d.ReasonCode != domain.ReasonVideoAlwaysDelete {
		t.Fatalf("неверное решение: %+v", d)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/decisions/404", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", rec.Code)
	}
}

func TestListDecisionsFilters(t *testing.T) {
	store := fixture()
	router := newRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/decisions?verdict=DELETE&limit=5&offset=0", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	var body struct {
		Decisions []domain.Decision `json:"decisions"`
		Count     int               `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("не удалось разобрать ответ: %v", err)
	}
	if body.Count != 1 || body.Decisions[0].ItemID != "2" {
		t.Fatalf("неверная выборка: %+v", body)
	}
	if store.filter.Limit != 5 || store.filter.Verdict != domain.VerdictDelete {
		t.Fatalf("фильтр не передан в хранилище: %+v", store.filter)
	}

	for _, bad := range []string{"?verdict=MAYBE", "?outcome=GONE", "?limit=-1", "?offset=abc"} {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/decisions"+bad, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("запрос %s: ожидали 400, получили %d", bad, rec.Code)
		}
	}
}

func TestStats(t *testing.T) {
	router := newRouter(fixture())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	var body statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("не удалось разобрать ответ: %v", err)
	}
	if body.Journal.Total != 2 || !body.InSync {
		t.Fatalf("неверная статистика: %+v", body)
	}
}
