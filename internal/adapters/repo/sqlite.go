package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tweet-pruner/internal/domain"
	"tweet-pruner/internal/infra/metrics"
)

// SQLite хранит журнал в локальном файле базы SQLite.
type SQLite struct {
	db        *sql.DB
	namespace string
	builder   sq.StatementBuilderType
}

var (
	_ domain.Ledger         = (*SQLite)(nil)
	_ domain.DecisionReader = (*SQLite)(nil)
)

// NewSQLite создаёт журнал поверх открытой и смигрированной базы.
func NewSQLite(db *sql.DB, namespace string) *SQLite {
	return &SQLite{
		db:        db,
		namespace: namespace,
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Has реализует domain.Journal.
func (s *SQLite) Has(ctx context.Context, itemID string) (bool, error) {
	var n int
	start := time.Now()
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM decisions WHERE namespace = ? AND item_id = ?`, s.namespace, itemID).Scan(&n)
	metrics.ObserveNetworkRequest("sqlite", "decisions_exists", "decisions", start, err)
	return n > 0, err
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append реализует domain.Journal.
func (s *SQLite) Append(ctx context.Context, d domain.Decision) error {
	return s.insertDecision(ctx, s.db, d)
}

func (s *SQLite) insertDecision(ctx context.Context, db sqlExecer, d domain.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return journalWriteError("encode decision", err)
	}
	start := time.Now()
	_, err = db.ExecContext(ctx, `
INSERT INTO decisions (namespace, item_id, verdict, reason_code, execution_outcome, run_id, decided_at, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, s.namespace, d.ItemID, string(d.Verdict), string(d.ReasonCode), string(d.Outcome), d.RunID, d.DecidedAt.UTC().Format(time.RFC3339Nano), string(payload))
	metrics.ObserveNetworkRequest("sqlite", "decisions_insert", "decisions", start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateDecision
		}
		return journalWriteError("insert decision", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

func (s *SQLite) upsertState(ctx context.Context, db sqlExecer, state domain.RunState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return journalWriteError("encode state", err)
	}
	start := time.Now()
	_, err = db.ExecContext(ctx, `
INSERT INTO run_state (namespace, payload, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (namespace) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
`, s.namespace, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	metrics.ObserveNetworkRequest("sqlite", "run_state_upsert", "run_state", start, err)
	if err != nil {
		return journalWriteError("save state", err)
	}
	return nil
}

// Commit записывает решение и состояние в одной транзакции.
func (s *SQLite) Commit(ctx context.Context, d domain.Decision, state domain.RunState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return journalWriteError("begin tx", err)
	}
	defer tx.Rollback()

	if err := s.insertDecision(ctx, tx, d); err != nil {
		return err
	}
	if err := s.upsertState(ctx, tx, state); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return journalWriteError("commit tx", err)
	}
	return nil
}

// LoadState реализует domain.StateStore.
func (s *SQLite) LoadState(ctx context.Context) (domain.RunState, error) {
	var payload string
	start := time.Now()
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM run_state WHERE namespace = ?`, s.namespace).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.ObserveNetworkRequest("sqlite", "run_state_select", "run_state", start, nil)
		return domain.RunState{}, nil
	}
	metrics.ObserveNetworkRequest("sqlite", "run_state_select", "run_state", start, err)
	if err != nil {
		return domain.RunState{}, err
	}
	return decodeState([]byte(payload))
}

// SaveState реализует domain.StateStore.
func (s *SQLite) SaveState(ctx context.Context, state domain.RunState) error {
	return s.upsertState(ctx, s.db, state)
}

// Stats реализует domain.Journal.
func (s *SQLite) Stats(ctx context.Context) (domain.JournalStats, error) {
	stats := domain.NewJournalStats()
	rows, err := statsQuery(s.builder, s.namespace).RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			verdict, outcome string
			count            int64
		)
		if err := rows.Scan(&verdict, &outcome, &count); err != nil {
			return stats, err
		}
		stats.Total += count
		stats.ByVerdict[domain.Verdict(verdict)] += count
		stats.ByOutcome[domain.ExecutionOutcome(outcome)] += count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}
	if stats.Total == 0 {
		return stats, nil
	}

	var payload string
	if err := lastQuery(s.builder, s.namespace, "rowid").RunWith(s.db).QueryRowContext(ctx).Scan(&payload); err != nil {
		return stats, err
	}
	last, err := decodeDecision([]byte(payload))
	if err != nil {
		return stats, err
	}
	stats.LastItemID = last.ItemID
	at := last.DecidedAt
	stats.LastDecidedAt = &at
	return stats, nil
}

// GetDecision реализует domain.DecisionReader.
func (s *SQLite) GetDecision(ctx context.Context, itemID string) (domain.Decision, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM decisions WHERE namespace = ? AND item_id = ?`, s.namespace, itemID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Decision{}, domain.ErrDecisionNotFound
	}
	if err != nil {
		return domain.Decision{}, err
	}
	return decodeDecision([]byte(payload))
}

// ListDecisions реализует domain.DecisionReader.
func (s *SQLite) ListDecisions(ctx context.Context, filter domain.DecisionFilter) ([]domain.Decision, error) {
	rows, err := listQuery(s.builder, s.namespace, "rowid", filter).RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Decision, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		d, err := decodeDecision([]byte(payload))
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
