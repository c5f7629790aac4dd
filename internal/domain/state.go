package domain

import "time"

// Termination описывает причину завершения запуска.
type Termination string

const (
	TerminationExhausted  Termination = "exhausted"
	TerminationCapReached Termination = "cap_reached"
	TerminationAborted    Termination = "aborted"
	TerminationCanceled   Termination = "canceled"
)

// RunState — персистентное состояние между запусками.
// Журнал остаётся источником истины, RunState служит курсором и кэшем счётчиков.
type RunState struct {
	TotalDeleted        int64       `json:"total_deleted"`
	TotalKept           int64       `json:"total_kept"`
	TotalAnalyzed       int64       `json:"total_analyzed"`
	LastRunAt           *time.Time  `json:"last_run"`
	LastProcessedItemID string      `json:"last_analyzed_tweet_id"`
	PaginationToken     string      `json:"pagination_token"`
	LastRunID           string      `json:"last_run_id,omitempty"`
	LastTermination     Termination `json:"last_termination,omitempty"`
	WindowActions       []time.Time `json:"window_actions,omitempty"`
}

// Advance возвращает состояние после успешной записи решения в журнал.
func (s RunState) Advance(d Decision, cursor string) RunState {
	s.TotalAnalyzed++
	if d.Outcome == OutcomeDeleted {
		s.TotalDeleted++
	}
	if d.Verdict == VerdictKeep {
		s.TotalKept++
	}
	s.LastProcessedItemID = d.ItemID
	s.PaginationToken = cursor
	return s
}

// JournalStats — агрегаты, пересчитанные по всему журналу.
type JournalStats struct {
	Total         int64                      `json:"total"`
	ByVerdict     map[Verdict]int64          `json:"by_verdict"`
	ByOutcome     map[ExecutionOutcome]int64 `json:"by_outcome"`
	LastItemID    string                     `json:"last_item_id,omitempty"`
	LastDecidedAt *time.Time                 `json:"last_decided_at,omitempty"`
}

// NewJournalStats создаёт пустые агрегаты.
func NewJournalStats() JournalStats {
	return JournalStats{
		ByVerdict: make(map[Verdict]int64),
		ByOutcome: make(map[ExecutionOutcome]int64),
	}
}

// Add учитывает одно решение.
func (s *JournalStats) Add(d Decision) {
	if s.ByVerdict == nil || s.ByOutcome == nil {
		*s = NewJournalStats()
	}
	s.Total++
	s.ByVerdict[d.Verdict]++
	s.ByOutcome[d.Outcome]++
	s.LastItemID = d.ItemID
	at := d.DecidedAt
	s.LastDecidedAt = &at
}

// RebuildState восстанавливает счётчики и курсор только по журналу.
// Токен страницы и окно действий берутся из prev, если он есть.
func RebuildState(stats JournalStats, prev RunState) RunState {
	return RunState{
		TotalDeleted:        stats.ByOutcome[OutcomeDeleted],
		TotalKept:           stats.ByVerdict[VerdictKeep],
		TotalAnalyzed:       stats.Total,
		LastRunAt:           prev.LastRunAt,
		LastProcessedItemID: stats.LastItemID,
		PaginationToken:     prev.PaginationToken,
		LastRunID:           prev.LastRunID,
		LastTermination:     prev.LastTermination,
		WindowActions:       prev.WindowActions,
	}
}

// InSync сообщает, совпадает ли состояние с журналом.
func (s RunState) InSync(stats JournalStats) bool {
	return s.TotalAnalyzed == stats.Total &&
		s.TotalDeleted == stats.ByOutcome[OutcomeDeleted] &&
		s.TotalKept == stats.ByVerdict[VerdictKeep]
}
