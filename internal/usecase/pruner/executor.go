package pruner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tweet-pruner/internal/domain"
	"tweet-pruner/internal/infra/clock"
	"tweet-pruner/internal/infra/metrics"
)

// Mode — режим запуска.
type Mode string

const (
	ModeDryRun  Mode = "dry_run"
	ModeExecute Mode = "execute"
)

// RuleEvaluator вычисляет сигнал по ключевым словам.
type RuleEvaluator interface {
	Evaluate(text string, media []domain.MediaDescriptor) domain.RuleSignal
}

// Decider применяет политику решений.
type Decider interface {
	Decide(opinion domain.Opinion, rule domain.RuleSignal, kinds map[domain.MediaKind]struct{}) (domain.Verdict, domain.ReasonCode)
}

// SourceFactory открывает ленту с сохранённого токена страницы.
type SourceFactory func(startToken string) domain.ItemSource

// WindowFactory создаёт окно ограничения, засеянное отметками прошлых запусков.
type WindowFactory func(seed []time.Time) domain.RateWindow

// Options — параметры одного запуска.
type Options struct {
	Mode               Mode
	PerRunCap          int
	InterActionDelay   time.Duration
	ImageLimit         int
	MinItemAge         time.Duration
	ClassifierAttempts int
	ClassifierBackoff  time.Duration
	DeleteAttempts     int
	DeleteBackoff      time.Duration
	RateLimitWaits     int
	WindowSpan         time.Duration
	RebuildState       bool
	ResetCursor        bool
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeDryRun
	}
	if o.PerRunCap <= 0 {
		o.PerRunCap = 10
	}
	if o.ImageLimit <= 0 {
		o.ImageLimit = 4
	}
	if o.ClassifierAttempts <= 0 {
		o.ClassifierAttempts = 3
	}
	if o.DeleteAttempts <= 0 {
		o.DeleteAttempts = 3
	}
	if o.RateLimitWaits < 0 {
		o.RateLimitWaits = 0
	}
	if o.WindowSpan <= 0 {
		o.WindowSpan = 15 * time.Minute
	}
	return o
}

// Deps — коллабораторы исполнителя.
type Deps struct {
	Ledger     domain.Ledger
	Classifier domain.Classifier
	Deleter    domain.Deleter
	Rules      RuleEvaluator
	Policy     Decider
	OpenSource SourceFactory
	OpenWindow WindowFactory
	// Publisher необязателен.
	Publisher domain.DecisionPublisher
	Clock     clock.Clock
	Logger    zerolog.Logger
	NewRunID  func() string
}

// Executor последовательно обрабатывает ленту с ограничением скорости удалений.
type Executor struct {
	deps Deps
	opts Options
}

// NewExecutor проверяет зависимости и создаёт исполнителя.
func NewExecutor(deps Deps, opts Options) (*Executor, error) {
	switch {
	case deps.Ledger == nil:
		return nil, errors.New("pruner: ledger is required")
	case deps.Classifier == nil:
		return nil, errors.New("pruner: classifier is required")
	case deps.Rules == nil || deps.Policy == nil:
		return nil, errors.New("pruner: rules and policy are required")
	case deps.OpenSource == nil:
		return nil, errors.New("pruner: item source is required")
	}
	opts = opts.withDefaults()
	if opts.Mode == ModeExecute && (deps.Deleter == nil || deps.OpenWindow == nil) {
		return nil, errors.New("pruner: execute mode requires deleter and rate window")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	return &Executor{deps: deps, opts: opts}, nil
}

// run — состояние одного запуска, принадлежит только ему.
type run struct {
	Deps
	opts   Options
	id     string
	state  domain.RunState
	window domain.RateWindow
	source domain.ItemSource
	report domain.RunReport
	logger zerolog.Logger
}

// Run выполняет один запуск и возвращает отчёт. Ошибка возвращается, если
// запуск прерван; отчёт заполнен в любом случае.
func (e *Executor) Run(ctx context.Context) (domain.RunReport, error) {
	r := &run{Deps: e.deps, opts: e.opts, id: e.deps.NewRunID()}
	r.logger = e.deps.Logger.With().Str("component", "pruner").Str("run_id", r.id).Logger()
	r.report = domain.RunReport{RunID: r.id, Mode: string(r.opts.Mode), StartedAt: r.Clock.Now()}

	if err := r.prepare(ctx); err != nil {
		r.report.Termination = domain.TerminationAborted
		r.report.Error = err.Error()
		r.report.FinishedAt = r.Clock.Now()
		metrics.IncRun(string(r.report.Termination))
		r.logger.Error().Err(err).Msg("pruner: prepare failed")
		return r.report, err
	}

	r.logger.Info().
		Str("mode", string(r.opts.Mode)).
		Int("cap", r.opts.PerRunCap).
		Str("pagination_token", r.state.PaginationToken).
		Int64("total_analyzed", r.state.TotalAnalyzed).
		Msg("pruner: run started")

	termination, runErr := r.loop(ctx)
	return r.finish(ctx, termination, runErr)
}

func (r *run) prepare(ctx context.Context) error {
	state, err := r.Ledger.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	stats, err := r.Ledger.Stats(ctx)
	if err != nil {
		return fmt.Errorf("journal stats: %w", err)
	}
	if r.opts.RebuildState || !state.InSync(stats) {
		r.logger.Warn().
			Int64("state_total", state.TotalAnalyzed).
			Int64("journal_total", stats.Total).
			Bool("forced", r.opts.RebuildState).
			Msg("pruner: rebuilding run state from journal")
		state = domain.RebuildState(stats, state)
	}
	if r.opts.ResetCursor {
		state.PaginationToken = ""
	}
	r.state = state
	if r.OpenWindow != nil {
		r.window = r.OpenWindow(state.WindowActions)
	}
	r.source = r.OpenSource(state.PaginationToken)
	return nil
}

func (r *run) loop(ctx context.Context) (domain.Termination, error) {
	for {
		if r.report.Processed >= r.opts.PerRunCap {
			return domain.TerminationCapReached, nil
		}
		if err := ctx.Err(); err != nil {
			return domain.TerminationCanceled, err
		}
		item, err := r.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			r.state.PaginationToken = ""
			return domain.TerminationExhausted, nil
		}
		if err != nil {
			return r.failure(ctx, fmt.Errorf("fetch items: %w", err))
		}

		decided, err := r.Ledger.Has(ctx, item.ID)
		if err != nil {
			return r.failure(ctx, fmt.Errorf("journal lookup %s: %w", item.ID, err))
		}
		if decided {
			r.report.AlreadyDecided++
			r.logger.Debug().Str("item", item.ID).Msg("pruner: already decided, skipping")
			continue
		}
		if r.opts.MinItemAge > 0 && r.Clock.Now().Sub(item.CreatedAt) < r.opts.MinItemAge {
			r.report.TooRecent++
			r.logger.Debug().Str("item", item.ID).Time("created_at", item.CreatedAt).Msg("pruner: item too recent, skipping")
			continue
		}
		if err := r.process(ctx, item); err != nil {
			return r.failure(ctx, err)
		}
	}
}

func (r *run) failure(ctx context.Context, err error) (domain.Termination, error) {
	if ctx.Err() != nil {
		return domain.TerminationCanceled, err
	}
	return domain.TerminationAborted, err
}

func (r *run) process(ctx context.Context, item domain.Item) error {
	opinion, err := r.classify(ctx, item)
	if err != nil {
		return err
	}
	rule := r.Rules.Evaluate(item.Text, item.Media)
	verdict, code := r.Policy.Decide(opinion, rule, item.MediaKinds())
	d := domain.NewDecision(item, verdict, code, opinion, rule, r.Clock.Now())
	d.RunID = r.id

	attempted := false
	if verdict == domain.VerdictDelete {
		if r.opts.Mode == ModeExecute {
			attempted = true
			outcome, err := r.deleteWithRetry(ctx, item.ID)
			if err != nil {
				return err
			}
			at := r.Clock.Now()
			d = d.WithOutcome(outcome, &at)
		} else {
			d = d.WithOutcome(domain.OutcomeSkippedDryRun, nil)
		}
	}

	next := r.state.Advance(d, item.Cursor)
	if r.window != nil {
		// отметки окна сохраняются вместе с решением
		next.WindowActions = r.window.Snapshot()
	}
	if err := r.Ledger.Commit(context.WithoutCancel(ctx), d, next); err != nil {
		if !errors.Is(err, domain.ErrJournalWrite) {
			err = fmt.Errorf("%w: %w", domain.ErrJournalWrite, err)
		}
		return fmt.Errorf("commit %s: %w", item.ID, err)
	}
	r.state = next
	r.count(d)
	metrics.ObserveDecision(string(d.Verdict), string(d.ReasonCode), string(d.Outcome))
	r.logger.Info().
		Str("item", d.ItemID).
		Str("verdict", string(d.Verdict)).
		Str("reason_code", string(d.ReasonCode)).
		Str("outcome", string(d.Outcome)).
		Float64("confidence", d.Opinion.Confidence).
		Msg("pruner: decision journaled")
	r.publish(ctx, d)

	if attempted && r.opts.InterActionDelay > 0 {
		// отмена во время паузы обнаружится на следующей итерации
		_ = r.Clock.Sleep(ctx, r.opts.InterActionDelay)
	}
	return nil
}

func (r *run) count(d domain.Decision) {
	r.report.Processed++
	switch d.Outcome {
	case domain.OutcomeDeleted:
		r.report.Deleted++
	case domain.OutcomeDeleteFailed:
		r.report.Failed++
	case domain.OutcomeSkippedDryRun:
		r.report.Skipped++
	}
	if d.Verdict == domain.VerdictKeep {
		r.report.Kept++
	}
}

func (r *run) publish(ctx context.Context, d domain.Decision) {
	if r.Publisher == nil {
		return
	}
	event := domain.DecisionEvent{
		ID:         uuid.NewString(),
		Type:       domain.DecisionEventJournaled,
		RunID:      r.id,
		Mode:       string(r.opts.Mode),
		Decision:   d,
		OccurredAt: r.Clock.Now(),
	}
	if err := r.Publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Warn().Err(err).Str("item", d.ItemID).Msg("pruner: publish decision event failed")
	}
}

func (r *run) finish(ctx context.Context, termination domain.Termination, runErr error) (domain.RunReport, error) {
	finished := r.Clock.Now()
	r.state.LastRunAt = &finished
	r.state.LastRunID = r.id
	r.state.LastTermination = termination
	if r.window != nil {
		r.state.WindowActions = r.window.Snapshot()
	}
	if err := r.Ledger.SaveState(context.WithoutCancel(ctx), r.state); err != nil {
		r.logger.Error().Err(err).Msg("pruner: save run state failed")
		if runErr == nil {
			termination = domain.TerminationAborted
			runErr = fmt.Errorf("save run state: %w", err)
		}
	}

	r.report.FinishedAt = finished
	r.report.Termination = termination
	r.report.State = r.state
	if runErr != nil {
		r.report.Error = runErr.Error()
	}
	metrics.IncRun(string(termination))

	event := r.logger.Info()
	if termination == domain.TerminationAborted {
		event = r.logger.Error().Err(runErr)
	}
	event.
		Str("termination", string(termination)).
		Int("processed", r.report.Processed).
		Int("kept", r.report.Kept).
		Int("deleted", r.report.Deleted).
		Int("failed", r.report.Failed).
		Int("skipped", r.report.Skipped).
		Int("already_decided", r.report.AlreadyDecided).
		Int("too_recent", r.report.TooRecent).
		Msg("pruner: run finished")
	return r.report, runErr
}
