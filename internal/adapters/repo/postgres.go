package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tweet-pruner/internal/domain"
	"tweet-pruner/internal/infra/metrics"
)

// Postgres хранит журнал и состояние в Postgres.
type Postgres struct {
	pool      *pgxpool.Pool
	namespace string
	builder   sq.StatementBuilderType
}

var (
	_ domain.Ledger         = (*Postgres)(nil)
	_ domain.DecisionReader = (*Postgres)(nil)
)

// NewPostgres создаёт журнал в указанном пространстве.
func NewPostgres(pool *pgxpool.Pool, namespace string) *Postgres {
	return &Postgres{
		pool:      pool,
		namespace: namespace,
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Has реализует domain.Journal.
func (p *Postgres) Has(ctx context.Context, itemID string) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM decisions WHERE namespace = $1 AND item_id = $2)`, p.namespace, itemID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "decisions_exists", "decisions", start, err)
	return exists, err
}

// Append реализует domain.Journal.
func (p *Postgres) Append(ctx context.Context, d domain.Decision) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	return p.insertDecision(ctx, p.pool, d)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (p *Postgres) insertDecision(ctx context.Context, db execer, d domain.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return journalWriteError("encode decision", err)
	}
	start := time.Now()
	_, err = db.Exec(ctx, `
INSERT INTO decisions (namespace, item_id, verdict, reason_code, execution_outcome, run_id, decided_at, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, p.namespace, d.ItemID, string(d.Verdict), string(d.ReasonCode), string(d.Outcome), d.RunID, d.DecidedAt, payload)
	metrics.ObserveNetworkRequest("postgres", "decisions_insert", "decisions", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateDecision
		}
		return journalWriteError("insert decision", err)
	}
	return nil
}

func (p *Postgres) upsertState(ctx context.Context, db execer, state domain.RunState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return journalWriteError("encode state", err)
	}
	start := time.Now()
	_, err = db.Exec(ctx, `
INSERT INTO run_state (namespace, payload, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (namespace) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
`, p.namespace, payload)
	metrics.ObserveNetworkRequest("postgres", "run_state_upsert", "run_state", start, err)
	if err != nil {
		return journalWriteError("save state", err)
	}
	return nil
}

// Commit записывает решение и состояние в одной транзакции.
func (p *Postgres) Commit(ctx context.Context, d domain.Decision, state domain.RunState) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "decisions", start, err)
	if err != nil {
		return journalWriteError("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := p.insertDecision(ctx, tx, d); err != nil {
		return err
	}
	if err := p.upsertState(ctx, tx, state); err != nil {
		return err
	}
	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit_tx", "decisions", start, err)
	if err != nil {
		return journalWriteError("commit tx", err)
	}
	return nil
}

// LoadState реализует domain.StateStore.
func (p *Postgres) LoadState(ctx context.Context) (domain.RunState, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var payload []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT payload FROM run_state WHERE namespace = $1`, p.namespace).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "run_state_select", "run_state", start, nil)
		return domain.RunState{}, nil
	}
	metrics.ObserveNetworkRequest("postgres", "run_state_select", "run_state", start, err)
	if err != nil {
		return domain.RunState{}, err
	}
	return decodeState(payload)
}

// SaveState реализует domain.StateStore.
func (p *Postgres) SaveState(ctx context.Context, state domain.RunState) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	return p.upsertState(ctx, p.pool, state)
}

// Stats реализует domain.Journal.
func (p *Postgres) Stats(ctx context.Context) (domain.JournalStats, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	stats := domain.NewJournalStats()
	query, args, err := statsQuery(p.builder, p.namespace).ToSql()
	if err != nil {
		return stats, err
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "decisions_stats", "decisions", start, err)
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

	query, args, err = lastQuery(p.builder, p.namespace, "seq").ToSql()
	if err != nil {
		return stats, err
	}
	var payload []byte
	start = time.Now()
	err = p.pool.QueryRow(ctx, query, args...).Scan(&payload)
	metrics.ObserveNetworkRequest("postgres", "decisions_last", "decisions", start, err)
	if err != nil {
		return stats, err
	}
	last, err := decodeDecision(payload)
	if err != nil {
		return stats, err
	}
	stats.LastItemID = last.ItemID
	at := last.DecidedAt
	stats.LastDecidedAt = &at
	return stats, nil
}

// GetDecision реализует domain.DecisionReader.
func (p *Postgres) GetDecision(ctx context.Context, itemID string) (domain.Decision, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var payload []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT payload FROM decisions WHERE namespace = $1 AND item_id = $2`, p.namespace, itemID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "decisions_get", "decisions", start, nil)
		return domain.Decision{}, domain.ErrDecisionNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "decisions_get", "decisions", start, err)
	if err != nil {
		return domain.Decision{}, err
	}
	return decodeDecision(payload)
}

// ListDecisions реализует domain.DecisionReader.
func (p *Postgres) ListDecisions(ctx context.Context, filter domain.DecisionFilter) ([]domain.Decision, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := listQuery(p.builder, p.namespace, "seq", filter).ToSql()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "decisions_list", "decisions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Decision, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		d, err := decodeDecision(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
