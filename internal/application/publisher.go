package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ahrav/go-podium/infrastructure/logging"
	"github.com/ahrav/go-podium/infrastructure/middleware"
	"github.com/ahrav/go-podium/infrastructure/units"
	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

// Step names reported in domain.StepError by publish sequences.
const (
	StepReplaceResult    = "replace_result"
	StepMarkResultSaved  = "mark_result_saved"
	StepDeleteResult     = "delete_result"
	StepClearResultSaved = "clear_result_saved"
)

// PublishOptions controls Publish.
type PublishOptions struct {
	// Force publishes even when ranked competitors share a rank.
	Force bool
}

// ResultPublisher writes the confirmed ranking of a grade to the results
// sink and flags the grade in the realtime resultSaved set.
type ResultPublisher struct {
	results  ports.ResultSink
	realtime ports.RealtimeChannel
	metrics  ports.MetricsCollector
	observer ports.OperationObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewResultPublisher creates a publisher.
func NewResultPublisher(deps Dependencies) (*ResultPublisher, error) {
	deps = deps.withDefaults()
	if deps.Results == nil {
		return nil, fmt.Errorf("result sink is required")
	}
	if deps.Realtime == nil {
		return nil, fmt.Errorf("realtime channel is required")
	}
	return &ResultPublisher{
		results:  deps.Results,
		realtime: deps.Realtime,
		metrics:  deps.Metrics,
		observer: deps.Observer,
		logger:   deps.Logger.With(slog.String("component", "publisher")),
		now:      deps.Clock,
	}, nil
}

// ContentHash returns a hex SHA-256 over the JSON encoding of groups. Two
// publishes of the same ranking hash equal.
func ContentHash(groups []domain.PlayerScoreGroup) (string, error) {
	if groups == nil {
		groups = []domain.PlayerScoreGroup{}
	}
	data, err := json.Marshal(groups)
	if err != nil {
		return "", fmt.Errorf("encode groups: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Publish replaces the stored result of the grade with groups and adds the
// grade to the resultSaved set.
//
// Ties among ranked competitors are rejected with domain.ErrDuplicateRanks
// unless opts.Force is set. Once a grade is saved, publishing the same
// groups again is a no-op returning the stored snapshot, while different
// groups are rejected with domain.ErrResultAlreadySaved until ClearSaved
// is called.
func (p *ResultPublisher) Publish(
	ctx context.Context,
	contestID, gradeID string,
	groups []domain.PlayerScoreGroup,
	opts PublishOptions,
) (snapshot domain.ResultSnapshot, err error) {
	ctx, finish := p.observer.Observe(ctx, "result.publish", contestID, gradeID)
	defer func() { finish(err) }()

	verr := domain.NewValidationError("result")
	if contestID == "" {
		verr.AddMissing("contestId")
	}
	if gradeID == "" {
		verr.AddMissing("gradeId")
	}
	if verr.HasErrors() {
		return domain.ResultSnapshot{}, verr
	}

	labels := map[string]string{"contest_id": contestID, "grade_id": gradeID}
	if !opts.Force && units.HasDuplicateRanks(groups) {
		labels["outcome"] = "duplicate_ranks"
		p.metrics.RecordCounter(middleware.MetricResultsPublished, 1, labels)
		return domain.ResultSnapshot{}, domain.ErrDuplicateRanks
	}

	hash, err := ContentHash(groups)
	if err != nil {
		return domain.ResultSnapshot{}, err
	}

	saved, err := p.realtime.ResultSaved(ctx, contestID)
	if err != nil {
		return domain.ResultSnapshot{}, fmt.Errorf("load result saved set: %w", err)
	}
	if slices.Contains(saved, gradeID) {
		existing, err := p.results.LoadResult(ctx, contestID, gradeID)
		switch {
		case err == nil && existing.Hash == hash:
			labels["outcome"] = "unchanged"
			p.metrics.RecordCounter(middleware.MetricResultsPublished, 1, labels)
			return existing, nil
		case err == nil:
			labels["outcome"] = "already_saved"
			p.metrics.RecordCounter(middleware.MetricResultsPublished, 1, labels)
			return domain.ResultSnapshot{}, domain.ErrResultAlreadySaved
		case errors.Is(err, ports.ErrNotFound):
			p.logger.WarnContext(ctx, "grade flagged saved without a stored result; republishing",
				logging.Grade(contestID, gradeID))
		default:
			return domain.ResultSnapshot{}, fmt.Errorf("load stored result: %w", err)
		}
	}

	snapshot = domain.ResultSnapshot{
		ContestID: contestID,
		GradeID:   gradeID,
		Groups:    domain.CloneGroups(groups),
		Hash:      hash,
		SavedAt:   p.now().UTC().Round(0),
	}
	if snapshot.Groups == nil {
		snapshot.Groups = []domain.PlayerScoreGroup{}
	}
	if err := p.results.ReplaceResult(ctx, snapshot); err != nil {
		return domain.ResultSnapshot{}, domain.NewStepError("publish", StepReplaceResult, nil, err)
	}
	if err := p.realtime.MarkResultSaved(ctx, contestID, gradeID); err != nil {
		return snapshot, domain.NewStepError("publish", StepMarkResultSaved, []string{StepReplaceResult}, err)
	}

	labels["outcome"] = "published"
	if opts.Force {
		labels["outcome"] = "forced"
	}
	p.metrics.RecordCounter(middleware.MetricResultsPublished, 1, labels)
	p.logger.InfoContext(ctx, "result published",
		logging.Grade(contestID, gradeID),
		slog.Int("groups", len(groups)),
		slog.String("hash", hash),
		slog.Bool("forced", opts.Force),
	)
	return snapshot, nil
}

// Load returns the stored result of the grade. A grade that was never
// published yields an error wrapping ports.ErrNotFound.
func (p *ResultPublisher) Load(ctx context.Context, contestID, gradeID string) (domain.ResultSnapshot, error) {
	return p.results.LoadResult(ctx, contestID, gradeID)
}

// ClearSaved is the administrative path that unlocks a saved grade: it
// deletes the stored result and removes the grade from the resultSaved set.
func (p *ResultPublisher) ClearSaved(ctx context.Context, contestID, gradeID string) (err error) {
	ctx, finish := p.observer.Observe(ctx, "result.clear", contestID, gradeID)
	defer func() { finish(err) }()

	if err := p.results.DeleteResult(ctx, contestID, gradeID); err != nil {
		return domain.NewStepError("clear_saved", StepDeleteResult, nil, err)
	}
	if err := p.realtime.ClearResultSaved(ctx, contestID, gradeID); err != nil {
		return domain.NewStepError("clear_saved", StepClearResultSaved, []string{StepDeleteResult}, err)
	}
	p.logger.InfoContext(ctx, "saved result cleared", logging.Grade(contestID, gradeID))
	return nil
}
