package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tweet-pruner/internal/domain"
)

// Store — всё, что нужно API аудита от хранилища журнала.
type Store interface {
	domain.DecisionReader
	LoadState(ctx context.Context) (domain.RunState, error)
	Stats(ctx context.Context) (domain.JournalStats, error)
}

// Handler отдаёт журнал решений и состояние только на чтение.
type Handler struct {
	store Store
	log   zerolog.Logger
}

// NewHandler создаёт обработчики API аудита.
func NewHandler(store Store, logger zerolog.Logger) *Handler {
	return &Handler{store: store, log: logger.With().Str("component", "httpapi").Logger()}
}

// Register подключает маршруты /api/v1.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", h.state)
		r.Get("/stats", h.stats)
		r.Get("/decisions", h.listDecisions)
		r.Get("/decisions/{itemID}", h.getDecision)
	})
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	state, err := h.store.LoadState(r.Context())
	if err != nil {
		h.internalError(w, "load state", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type statsResponse struct {
	Journal domain.JournalStats `json:"journal"`
	State   domain.RunState     `json:"state"`
	InSync  bool                `json:"in_sync"`
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.internalError(w, "journal stats", err)
		return
	}
	state, err := h.store.LoadState(r.Context())
	if err != nil {
		h.internalError(w, "load state", err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Journal: stats, State: state, InSync: state.InSync(stats)})
}

func (h *Handler) listDecisions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	decisions, err := h.store.ListDecisions(r.Context(), filter)
	if err != nil {
		h.internalError(w, "list decisions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions, "count": len(decisions)})
}

func (h *Handler) getDecision(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	d, err := h.store.GetDecision(r.Context(), itemID)
	if errors.Is(err, domain.ErrDecisionNotFound) {
		writeError(w, http.StatusNotFound, "decision not found")
		return
	}
	if err != nil {
		h.internalError(w, "get decision", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func parseFilter(r *http.Request) (domain.DecisionFilter, error) {
	q := r.URL.Query()
	var f domain.DecisionFilter
	switch v := domain.Verdict(q.Get("verdict")); v {
	case "", domain.VerdictDelete, domain.VerdictKeep:
		f.Verdict = v
	default:
		return f, fmt.Errorf("unknown verdict %q", v)
	}
	switch o := domain.ExecutionOutcome(q.Get("outcome")); o {
	case "", domain.OutcomeNotAttempted, domain.OutcomeDeleted, domain.OutcomeDeleteFailed, domain.OutcomeSkippedDryRun:
		f.Outcome = o
	default:
		return f, fmt.Errorf("unknown outcome %q", o)
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return f, fmt.Errorf("limit: %w", err)
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		return f, fmt.Errorf("offset: %w", err)
	}
	return f, nil
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer, got %q", raw)
	}
	return n, nil
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Error().Err(err).Str("op", op).Msg("httpapi: request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
