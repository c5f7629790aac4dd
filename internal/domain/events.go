package domain

import "time"

// DecisionEventType описывает тип события журнала.
type DecisionEventType string

const (
	// DecisionEventJournaled — решение записано в журнал.
	DecisionEventJournaled DecisionEventType = "decision_journaled"
)

// DecisionEvent публикуется после каждой записи в журнал.
type DecisionEvent struct {
	ID         string            `json:"event_id"`
	Type       DecisionEventType `json:"type"`
	RunID      string            `json:"run_id"`
	Mode       string            `json:"mode"`
	Decision   Decision          `json:"decision"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// RunReport — итог одного запуска.
type RunReport struct {
	RunID          string      `json:"run_id"`
	Mode           string      `json:"mode"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
	Processed      int         `json:"processed"`
	Kept           int         `json:"kept"`
	Deleted        int         `json:"deleted"`
	Failed         int         `json:"failed"`
	Skipped        int         `json:"skipped"`
	AlreadyDecided int         `json:"already_decided"`
	TooRecent      int         `json:"too_recent"`
	Degraded       int         `json:"degraded"`
	Termination    Termination `json:"termination"`
	Error          string      `json:"error,omitempty"`
	State          RunState    `json:"state"`
}
