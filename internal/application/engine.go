// Package application orchestrates the ranking engine: it wires the scoring
// and tally pipelines to the persistence ports and exposes the command and
// query API used by calling services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-podium/infrastructure/logging"
	"github.com/ahrav/go-podium/infrastructure/middleware"
	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

// Dependencies are the ports and ambient services the engine runs on.
// Optional fields get defaults: a discard logger, no-op metrics, an
// OpenTelemetry observer, time.Now and random UUIDs.
type Dependencies struct {
	Scores   ports.ScoreSource
	Roster   ports.RosterSource
	Realtime ports.RealtimeChannel
	Results  ports.ResultSink
	History  ports.CompareHistorySink
	Markers  ports.SessionMarkerStore

	Metrics  ports.MetricsCollector
	Observer ports.OperationObserver
	Logger   *slog.Logger
	Clock    func() time.Time
	IDs      func() string

	// Registry creates pipeline units. Defaults to NewDefaultUnitRegistry.
	Registry ports.UnitRegistry
	// Registerer receives Prometheus metrics when metrics are enabled and
	// Metrics is nil. Defaults to the global registry.
	Registerer prometheus.Registerer
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	if d.Observer == nil {
		d.Observer = middleware.NewOTelObserver(d.Metrics)
	}
	d.Logger = logging.OrNop(d.Logger)
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.IDs == nil {
		d.IDs = uuid.NewString
	}
	if d.Registry == nil {
		d.Registry = NewDefaultUnitRegistry()
	}
	return d
}

func (d Dependencies) requireCompare() error {
	switch {
	case d.Realtime == nil:
		return fmt.Errorf("realtime channel is required")
	case d.History == nil:
		return fmt.Errorf("compare history sink is required")
	case d.Markers == nil:
		return fmt.Errorf("session marker store is required")
	case d.Roster == nil:
		return fmt.Errorf("roster source is required")
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) RecordLatency(string, time.Duration, map[string]string) {}

func (noopMetrics) RecordCounter(string, float64, map[string]string) {}

func (noopMetrics) RecordGauge(string, float64, map[string]string) {}

func (noopMetrics) RecordHistogram(string, float64, map[string]string) {}

// RankingSummary is the ranked view of one grade.
type RankingSummary struct {
	Grade    domain.GradeKey
	Criteria domain.SortCriteria
	Groups   []domain.PlayerScoreGroup
	// HasDuplicates reports ties among ranked competitors; a normal
	// publish is refused while it is true.
	HasDuplicates bool
	// ResultSaved reports whether a result is already published.
	ResultSaved bool
}

// Engine is the facade over ranking, compare sessions and publishing.
type Engine struct {
	cfg       Config
	scores    ports.ScoreSource
	realtime  ports.RealtimeChannel
	ranking   *Pipeline
	compare   *CompareManager
	publisher *ResultPublisher
	metrics   ports.MetricsCollector
	observer  ports.OperationObserver
	logger    *slog.Logger
	validate  *validator.Validate
	sf        singleflight.Group
}

// NewEngine validates cfg, compiles its pipelines and wires the managers.
// When cfg.Realtime.WritesPerSecond is positive every realtime write is
// paced by a token bucket.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Metrics == nil && cfg.Metrics.Enabled {
		deps.Metrics = middleware.NewPrometheusMetrics(deps.Registerer)
	}
	deps = deps.withDefaults()
	if deps.Scores == nil {
		return nil, fmt.Errorf("score source is required")
	}

	loader, err := NewConfigLoader(deps.Registry)
	if err != nil {
		return nil, err
	}
	if err := loader.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	ranking, err := loader.BuildPipeline("ranking", cfg.Ranking)
	if err != nil {
		return nil, fmt.Errorf("build ranking pipeline: %w", err)
	}
	tally, err := loader.BuildPipeline("tally", cfg.Tally)
	if err != nil {
		return nil, fmt.Errorf("build tally pipeline: %w", err)
	}

	if w := cfg.Realtime.WritesPerSecond; w > 0 && deps.Realtime != nil {
		burst := max(cfg.Realtime.Burst, 1)
		deps.Realtime = middleware.NewRateLimitedRealtime(deps.Realtime, rate.Limit(w), burst)
	}

	compare, err := NewCompareManager(cfg.Compare, deps, tally)
	if err != nil {
		return nil, err
	}
	publisher, err := NewResultPublisher(deps)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		scores:    deps.Scores,
		realtime:  deps.Realtime,
		ranking:   ranking,
		compare:   compare,
		publisher: publisher,
		metrics:   deps.Metrics,
		observer:  deps.Observer,
		logger:    deps.Logger.With(slog.String("component", "engine")),
		validate:  validator.New(),
	}, nil
}

// Compare returns the compare session manager.
func (e *Engine) Compare() *CompareManager { return e.compare }

// Publisher returns the result publisher.
func (e *Engine) Publisher() *ResultPublisher { return e.publisher }

// Summary aggregates and ranks the raw scores of a grade. Scores and the
// saved flag are fetched concurrently, and concurrent requests for the same
// grade and criteria share one computation that is not cancelled when one
// of them gives up. An empty criteria means
// domain.SortByTotalScore.
func (e *Engine) Summary(ctx context.Context, key domain.GradeKey, criteria domain.SortCriteria) (summary RankingSummary, err error) {
	ctx, finish := e.observer.Observe(ctx, "ranking.summary", key.ContestID, key.GradeID)
	defer func() { finish(err) }()

	if err := e.validate.Struct(key); err != nil {
		verr := domain.NewValidationError("grade key")
		verr.AddError(err.Error())
		return RankingSummary{}, verr
	}
	if criteria == "" {
		criteria = domain.SortByTotalScore
	}

	// The shared computation outlives any single caller; each caller only
	// stops waiting when its own context ends.
	work := context.WithoutCancel(ctx)
	ch := e.sf.DoChan(key.String()+"|"+string(criteria), func() (any, error) {
		return e.summarize(work, key, criteria)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return RankingSummary{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return RankingSummary{}, res.Err
	}
	summary = res.Val.(RankingSummary)
	summary.Groups = domain.CloneGroups(summary.Groups)
	return summary, nil
}

func (e *Engine) summarize(ctx context.Context, key domain.GradeKey, criteria domain.SortCriteria) (RankingSummary, error) {
	var (
		raw   []domain.RawScore
		saved []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if raw, err = e.scores.ScoreEntries(gctx, key); err != nil {
			return fmt.Errorf("load score entries: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if saved, err = e.realtime.ResultSaved(gctx, key.ContestID); err != nil {
			return fmt.Errorf("load result saved set: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return RankingSummary{}, err
	}

	state := domain.NewState()
	state = domain.With(state, domain.KeyGrade, key)
	state = domain.With(state, domain.KeyRawScores, raw)
	state = domain.With(state, domain.KeySortCriteria, criteria)
	state, err := e.ranking.Execute(ctx, state)
	if err != nil {
		return RankingSummary{}, fmt.Errorf("rank grade %s: %w", key, err)
	}
	groups, ok := domain.Get(state, domain.KeyScoreGroups)
	if !ok {
		return RankingSummary{}, fmt.Errorf("ranking pipeline produced no %s", domain.KeyScoreGroups.Name())
	}
	dup, _ := domain.Get(state, domain.KeyHasDuplicateRanks)

	e.metrics.RecordHistogram(middleware.MetricGroupsRanked, float64(len(groups)),
		map[string]string{"contest_id": key.ContestID, "grade_id": key.GradeID})
	e.logger.DebugContext(ctx, "grade ranked",
		logging.Grade(key.ContestID, key.GradeID),
		slog.Int("raw_scores", len(raw)),
		slog.Int("groups", len(groups)),
		slog.Bool("has_duplicates", dup),
	)
	return RankingSummary{
		Grade:         key,
		Criteria:      criteria,
		Groups:        groups,
		HasDuplicates: dup,
		ResultSaved:   slices.Contains(saved, key.GradeID),
	}, nil
}

// ConfirmRanking ranks the grade by total score and publishes the result.
func (e *Engine) ConfirmRanking(ctx context.Context, key domain.GradeKey, opts PublishOptions) (domain.ResultSnapshot, error) {
	summary, err := e.Summary(ctx, key, domain.SortByTotalScore)
	if err != nil {
		return domain.ResultSnapshot{}, err
	}
	return e.publisher.Publish(ctx, key.ContestID, key.GradeID, summary.Groups, opts)
}
