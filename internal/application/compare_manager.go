package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/ahrav/go-podium/infrastructure/logging"
	"github.com/ahrav/go-podium/infrastructure/middleware"
	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

// Step names reported in domain.StepError by multi-step compare sequences.
const (
	StepPutMarker      = "put_marker"
	StepSaveCompare    = "save_compare"
	StepAppendHistory  = "append_history"
	StepUpdateRealtime = "update_realtime"
	StepDeleteMarker   = "delete_marker"
	StepClearCompare   = "clear_compare"
	StepReplaceHistory = "replace_history"
	StepRestoreCompare = "restore_compare"
)

// StartConfig describes a new compare round.
type StartConfig struct {
	ContestID    string
	GradeID      string
	PlayerLength int
	ScoreMode    domain.ScoreMode
	// VoteRange is required from the second round on.
	VoteRange domain.VoteRange
	// Players is the roster offered to the judges. With VoteRangeVotedOnly
	// it is narrowed to the previous round's voted result.
	Players []domain.Competitor
	// OpenedBy identifies the controlling client, for the open marker.
	OpenedBy string
}

// ConfirmOptions controls Confirm.
type ConfirmOptions struct {
	// Force confirms even when some seats have not voted.
	Force bool
}

// CompareManager drives the compare (runoff) session of each grade through
// idle, started, in_progress and then confirmed or cancelled. Session state
// lives in the realtime channel; confirmed rounds are appended to the
// compare history. Opening a session writes a durable marker holding the
// prior realtime state so an abandoned session can be rolled back by any
// client.
//
// A single moderator per grade is assumed. Concurrent moderators on the
// same grade race.
type CompareManager struct {
	cfg      CompareConfig
	realtime ports.RealtimeChannel
	history  ports.CompareHistorySink
	markers  ports.SessionMarkerStore
	roster   ports.RosterSource
	tally    ports.Unit
	metrics  ports.MetricsCollector
	observer ports.OperationObserver
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewCompareManager creates a manager. tally must read domain.KeyBallots and
// domain.KeyTopN and produce domain.KeyCandidates and domain.KeyVotedResult.
func NewCompareManager(cfg CompareConfig, deps Dependencies, tally ports.Unit) (*CompareManager, error) {
	if tally == nil {
		return nil, fmt.Errorf("tally unit cannot be nil")
	}
	deps = deps.withDefaults()
	if err := deps.requireCompare(); err != nil {
		return nil, err
	}
	return &CompareManager{
		cfg:      cfg,
		realtime: deps.Realtime,
		history:  deps.History,
		markers:  deps.Markers,
		roster:   deps.Roster,
		tally:    tally,
		metrics:  deps.Metrics,
		observer: deps.Observer,
		logger:   deps.Logger.With(slog.String("component", "compare")),
		now:      func() time.Time { return deps.Clock().UTC().Round(0) },
		newID:    deps.IDs,
	}, nil
}

func (m *CompareManager) labels(contestID, gradeID string) map[string]string {
	return map[string]string{"contest_id": contestID, "grade_id": gradeID}
}

// Session returns the compare state of the grade. A grade without one is
// reported as an idle session with no players.
func (m *CompareManager) Session(ctx context.Context, contestID, gradeID string) (*domain.CompareSession, error) {
	session, err := m.realtime.LoadCompare(ctx, contestID, gradeID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return &domain.CompareSession{ContestID: contestID, GradeID: gradeID, Status: domain.CompareIdle}, nil
	}
	return session, nil
}

// History returns the confirmed rounds of the grade in compare index order.
func (m *CompareManager) History(ctx context.Context, contestID, gradeID string) ([]domain.CompareRecord, error) {
	return m.history.LoadHistory(ctx, contestID, gradeID)
}

// Start creates a new round with compare index one past the last confirmed
// round. Missing inputs are reported together in a *domain.ValidationError
// and nothing is written. Every seat assigned to the grade starts pending.
func (m *CompareManager) Start(ctx context.Context, cfg StartConfig) (session *domain.CompareSession, err error) {
	ctx, finish := m.observer.Observe(ctx, "compare.start", cfg.ContestID, cfg.GradeID)
	defer func() { finish(err) }()

	var records []domain.CompareRecord
	if cfg.ContestID != "" && cfg.GradeID != "" {
		if records, err = m.history.LoadHistory(ctx, cfg.ContestID, cfg.GradeID); err != nil {
			return nil, fmt.Errorf("load compare history: %w", err)
		}
	}
	compareIndex := 1
	if n := len(records); n > 0 {
		compareIndex = records[n-1].CompareIndex + 1
	}

	if verr := validateStart(cfg, compareIndex); verr.HasErrors() {
		return nil, verr
	}

	current, err := m.realtime.LoadCompare(ctx, cfg.ContestID, cfg.GradeID)
	if err != nil {
		return nil, fmt.Errorf("load compare state: %w", err)
	}
	if current.Active() {
		return nil, fmt.Errorf("%w: session %s at compare index %d",
			domain.ErrSessionActive, current.SessionID, current.CompareIndex)
	}

	players := slices.Clone(cfg.Players)
	if compareIndex > 1 && cfg.VoteRange == domain.VoteRangeVotedOnly {
		players = restrictToVoted(players, records[len(records)-1].VotedResult)
		if len(players) == 0 {
			verr := domain.NewValidationError("compare session")
			verr.AddError("no supplied player is in the previous round's voted result")
			return nil, verr
		}
	}

	seats, err := m.roster.Seats(ctx, cfg.ContestID, cfg.GradeID)
	if err != nil {
		return nil, fmt.Errorf("load judge seats: %w", err)
	}
	if len(seats) == 0 {
		verr := domain.NewValidationError("compare session")
		verr.AddError("no judge seats assigned to grade")
		return nil, verr
	}

	status := domain.CompareStarted
	if m.cfg.AutoOpen {
		status = domain.CompareInProgress
	}
	ballotStatus := make(map[int]domain.BallotStatus, len(seats))
	for _, seat := range seats {
		ballotStatus[seat] = domain.BallotPending
	}
	now := m.now()
	session = &domain.CompareSession{
		SessionID:         m.newID(),
		ContestID:         cfg.ContestID,
		GradeID:           cfg.GradeID,
		CompareIndex:      compareIndex,
		Status:            status,
		PlayerLength:      cfg.PlayerLength,
		ScoreMode:         cfg.ScoreMode,
		VoteRange:         cfg.VoteRange,
		Players:           players,
		JudgeBallotStatus: ballotStatus,
		Ballots:           map[int]domain.Ballot{},
		StartedAt:         now,
	}

	marker := domain.OpenMarker{
		SessionID: session.SessionID,
		ContestID: cfg.ContestID,
		GradeID:   cfg.GradeID,
		OpenedBy:  cfg.OpenedBy,
		OpenedAt:  now,
		Snapshot:  current.Clone(),
	}
	if err := m.markers.PutMarker(ctx, marker); err != nil {
		return nil, domain.NewStepError("start", StepPutMarker, nil, err)
	}
	if err := m.realtime.SaveCompare(ctx, session); err != nil {
		return nil, domain.NewStepError("start", StepSaveCompare, []string{StepPutMarker}, err)
	}

	labels := m.labels(cfg.ContestID, cfg.GradeID)
	m.metrics.RecordGauge(middleware.MetricActiveSessions, 1, labels)
	m.metrics.RecordGauge(middleware.MetricPendingSeats, float64(len(seats)), labels)
	m.logger.InfoContext(ctx, "compare session started",
		logging.Grade(cfg.ContestID, cfg.GradeID),
		slog.String("session_id", session.SessionID),
		slog.Int("compare_index", compareIndex),
		slog.Int("players", len(players)),
		slog.Int("seats", len(seats)),
		slog.String("status", string(status)),
	)
	return session, nil
}

// validateStart enumerates every missing or malformed StartConfig field.
func validateStart(cfg StartConfig, compareIndex int) *domain.ValidationError {
	verr := domain.NewValidationError("compare session")
	if cfg.ContestID == "" {
		verr.AddMissing("contestId")
	}
	if cfg.GradeID == "" {
		verr.AddMissing("gradeId")
	}
	if cfg.PlayerLength <= 0 {
		verr.AddMissing("playerLength")
	}
	switch cfg.ScoreMode {
	case "":
		verr.AddMissing("scoreMode")
	case domain.ScoreModeAll, domain.ScoreModeTopOnly, domain.ScoreModeTopWithSub:
	default:
		verr.AddError(fmt.Sprintf("unsupported scoreMode %q", cfg.ScoreMode))
	}
	switch cfg.VoteRange {
	case "":
		if compareIndex > 1 {
			verr.AddMissing("voteRange")
		}
	case domain.VoteRangeAll, domain.VoteRangeVotedOnly:
	default:
		verr.AddError(fmt.Sprintf("unsupported voteRange %q", cfg.VoteRange))
	}
	if len(cfg.Players) == 0 {
		verr.AddMissing("players")
	}
	seen := make(map[int]struct{}, len(cfg.Players))
	for _, p := range cfg.Players {
		if p.PlayerNumber <= 0 {
			verr.AddError(fmt.Sprintf("player number %d is not positive", p.PlayerNumber))
			continue
		}
		if _, dup := seen[p.PlayerNumber]; dup {
			verr.AddError(fmt.Sprintf("player %d listed more than once", p.PlayerNumber))
		}
		seen[p.PlayerNumber] = struct{}{}
	}
	return verr
}

func restrictToVoted(players []domain.Competitor, voted []domain.Candidate) []domain.Competitor {
	return slices.DeleteFunc(players, func(p domain.Competitor) bool {
		return !slices.ContainsFunc(voted, func(c domain.Candidate) bool {
			return c.PlayerNumber == p.PlayerNumber
		})
	})
}

// Open moves a started session to in_progress so judges can vote. Opening
// an in_progress session is a no-op.
func (m *CompareManager) Open(ctx context.Context, contestID, gradeID string) (session *domain.CompareSession, err error) {
	ctx, finish := m.observer.Observe(ctx, "compare.open", contestID, gradeID)
	defer func() { finish(err) }()

	session, err = m.activeSession(ctx, contestID, gradeID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.CompareInProgress {
		return session, nil
	}
	session.Status = domain.CompareInProgress
	if err := m.realtime.SaveCompare(ctx, session); err != nil {
		return nil, fmt.Errorf("save compare state: %w", err)
	}
	m.logger.InfoContext(ctx, "compare session opened",
		logging.Grade(contestID, gradeID), slog.String("session_id", session.SessionID))
	return session, nil
}

func (m *CompareManager) activeSession(ctx context.Context, contestID, gradeID string) (*domain.CompareSession, error) {
	session, err := m.realtime.LoadCompare(ctx, contestID, gradeID)
	if err != nil {
		return nil, fmt.Errorf("load compare state: %w", err)
	}
	if !session.Active() {
		return nil, domain.ErrNoActiveSession
	}
	return session, nil
}

// SubmitBallot records the ballot of one seat. A later ballot for the same
// seat replaces the earlier one. Only the seat's own slot is written, so
// seats never contend with each other.
func (m *CompareManager) SubmitBallot(ctx context.Context, contestID, gradeID string, ballot domain.Ballot) (err error) {
	ctx, finish := m.observer.Observe(ctx, "compare.submit_ballot", contestID, gradeID)
	defer func() { finish(err) }()

	session, err := m.activeSession(ctx, contestID, gradeID)
	if err != nil {
		return err
	}
	if session.Status != domain.CompareInProgress {
		return domain.ErrSessionNotOpen
	}
	if _, ok := session.JudgeBallotStatus[ballot.SeatIndex]; !ok {
		return fmt.Errorf("%w: seat %d", domain.ErrUnknownSeat, ballot.SeatIndex)
	}
	normalized, err := m.normalizeBallot(session, ballot)
	if err != nil {
		return err
	}

	if err := m.realtime.PutBallot(ctx, contestID, gradeID, normalized); err != nil {
		return fmt.Errorf("write ballot: %w", err)
	}

	labels := m.labels(contestID, gradeID)
	m.metrics.RecordCounter(middleware.MetricBallotsSubmitted, 1, labels)
	pending := 0
	for seat, status := range session.JudgeBallotStatus {
		if status != domain.BallotSubmitted && seat != ballot.SeatIndex {
			pending++
		}
	}
	m.metrics.RecordGauge(middleware.MetricPendingSeats, float64(pending), labels)
	m.logger.DebugContext(ctx, "ballot submitted",
		logging.Grade(contestID, gradeID),
		slog.Int("seat_index", ballot.SeatIndex),
		slog.Int("votes", len(normalized.VotedPlayers)),
	)
	return nil
}

// normalizeBallot checks the ballot against the round and fills each voted
// player's uid from the round's roster so tallies key consistently.
func (m *CompareManager) normalizeBallot(session *domain.CompareSession, ballot domain.Ballot) (domain.Ballot, error) {
	if len(ballot.VotedPlayers) == 0 {
		return ballot, fmt.Errorf("%w: no players voted", domain.ErrInvalidBallot)
	}
	limit := m.cfg.MaxVotesPerBallot
	if limit == 0 {
		limit = session.PlayerLength
	}
	if len(ballot.VotedPlayers) > limit {
		return ballot, fmt.Errorf("%w: %d votes exceed the limit of %d",
			domain.ErrInvalidBallot, len(ballot.VotedPlayers), limit)
	}

	out := domain.Ballot{SeatIndex: ballot.SeatIndex, VotedPlayers: make([]domain.VotedPlayer, 0, len(ballot.VotedPlayers))}
	seen := make(map[int]struct{}, len(ballot.VotedPlayers))
	for _, v := range ballot.VotedPlayers {
		if _, dup := seen[v.PlayerNumber]; dup {
			return ballot, fmt.Errorf("%w: player %d voted more than once", domain.ErrInvalidBallot, v.PlayerNumber)
		}
		seen[v.PlayerNumber] = struct{}{}

		i := slices.IndexFunc(session.Players, func(c domain.Competitor) bool {
			return c.PlayerNumber == v.PlayerNumber
		})
		if i < 0 {
			return ballot, fmt.Errorf("%w: player %d", domain.ErrUnknownPlayer, v.PlayerNumber)
		}
		uid := session.Players[i].PlayerUID
		if v.PlayerUID != "" && v.PlayerUID != uid {
			return ballot, fmt.Errorf("%w: player %d uid %q", domain.ErrUnknownPlayer, v.PlayerNumber, v.PlayerUID)
		}
		out.VotedPlayers = append(out.VotedPlayers, domain.VotedPlayer{PlayerNumber: v.PlayerNumber, PlayerUID: uid})
	}
	return out, nil
}

// Confirm tallies the submitted ballots, appends the round to the compare
// history and marks the session confirmed. Without opts.Force every seat
// must have voted. The voted result is the tie-inclusive top PlayerLength.
//
// The history append, realtime update and marker removal are separate
// writes. A failure part way returns a *domain.StepError naming the steps
// already applied; nothing is retried or rolled back.
func (m *CompareManager) Confirm(ctx context.Context, contestID, gradeID string, opts ConfirmOptions) (record domain.CompareRecord, err error) {
	ctx, finish := m.observer.Observe(ctx, "compare.confirm", contestID, gradeID)
	defer func() { finish(err) }()

	session, err := m.activeSession(ctx, contestID, gradeID)
	if err != nil {
		return domain.CompareRecord{}, err
	}
	if pending := session.PendingSeats(); len(pending) > 0 && !opts.Force {
		return domain.CompareRecord{}, fmt.Errorf("%w: seats %s", domain.ErrBallotsPending, formatSeats(pending))
	}

	state := domain.NewState()
	state = domain.With(state, domain.KeyBallots, session.SubmittedBallots())
	state = domain.With(state, domain.KeyTopN, session.PlayerLength)
	state, err = m.tally.Execute(ctx, state)
	if err != nil {
		return domain.CompareRecord{}, fmt.Errorf("tally ballots: %w", err)
	}
	candidates, _ := domain.Get(state, domain.KeyCandidates)
	voted, ok := domain.Get(state, domain.KeyVotedResult)
	if !ok {
		return domain.CompareRecord{}, fmt.Errorf("tally produced no %s", domain.KeyVotedResult.Name())
	}

	record = domain.CompareRecord{
		CompareIndex:        session.CompareIndex,
		ComparePlayerLength: session.PlayerLength,
		CompareScoreMode:    session.ScoreMode,
		Players:             candidates,
		VotedResult:         voted,
		ConfirmedAt:         m.now(),
		Forced:              opts.Force && !session.AllSubmitted(),
	}

	var done []string
	if err := m.history.AppendRecord(ctx, contestID, gradeID, record); err != nil {
		return domain.CompareRecord{}, domain.NewStepError("confirm", StepAppendHistory, done, err)
	}
	done = append(done, StepAppendHistory)

	session.Status = domain.CompareConfirmed
	session.Ballots = nil
	if err := m.realtime.SaveCompare(ctx, session); err != nil {
		return record, domain.NewStepError("confirm", StepUpdateRealtime, done, err)
	}
	done = append(done, StepUpdateRealtime)

	if err := m.markers.DeleteMarker(ctx, contestID, gradeID); err != nil {
		return record, domain.NewStepError("confirm", StepDeleteMarker, done, err)
	}

	labels := m.labels(contestID, gradeID)
	labels["status"] = string(domain.CompareConfirmed)
	m.metrics.RecordCounter(middleware.MetricCompareRounds, 1, labels)
	m.metrics.RecordGauge(middleware.MetricActiveSessions, 0, labels)
	m.metrics.RecordHistogram(middleware.MetricVotedResultSize, float64(len(voted)), labels)
	m.logger.InfoContext(ctx, "compare round confirmed",
		logging.Grade(contestID, gradeID),
		slog.Int("compare_index", record.CompareIndex),
		slog.Int("candidates", len(candidates)),
		slog.Int("voted_result", len(voted)),
		slog.Bool("forced", record.Forced),
	)
	return record, nil
}

func formatSeats(seats []int) string {
	out := make([]byte, 0, len(seats)*3)
	for i, s := range seats {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendInt(out, int64(s), 10)
	}
	return string(out)
}

// Cancel discards the most recent round. An active session is dropped with
// its ballots and the grade returns to idle. With no active session the
// most recent confirmed round is removed from the history; earlier rounds
// are untouched. Cancel never appends a record.
func (m *CompareManager) Cancel(ctx context.Context, contestID, gradeID string) (err error) {
	ctx, finish := m.observer.Observe(ctx, "compare.cancel", contestID, gradeID)
	defer func() { finish(err) }()

	session, err := m.realtime.LoadCompare(ctx, contestID, gradeID)
	if err != nil {
		return fmt.Errorf("load compare state: %w", err)
	}

	labels := m.labels(contestID, gradeID)
	if session.Active() {
		if err := m.realtime.ClearCompare(ctx, contestID, gradeID); err != nil {
			return domain.NewStepError("cancel", StepClearCompare, nil, err)
		}
		if err := m.markers.DeleteMarker(ctx, contestID, gradeID); err != nil {
			return domain.NewStepError("cancel", StepDeleteMarker, []string{StepClearCompare}, err)
		}
		labels["status"] = string(domain.CompareCancelled)
		m.metrics.RecordCounter(middleware.MetricCompareRounds, 1, labels)
		m.metrics.RecordGauge(middleware.MetricActiveSessions, 0, labels)
		m.logger.InfoContext(ctx, "compare session cancelled",
			logging.Grade(contestID, gradeID),
			slog.String("session_id", session.SessionID),
			slog.Int("compare_index", session.CompareIndex),
		)
		return nil
	}

	records, err := m.history.LoadHistory(ctx, contestID, gradeID)
	if err != nil {
		return fmt.Errorf("load compare history: %w", err)
	}
	if len(records) == 0 {
		return domain.ErrNoCompareRecord
	}
	last := records[len(records)-1]
	if err := m.history.ReplaceHistory(ctx, contestID, gradeID, records[:len(records)-1]); err != nil {
		return domain.NewStepError("cancel", StepReplaceHistory, nil, err)
	}
	if session != nil && session.CompareIndex == last.CompareIndex {
		if err := m.realtime.ClearCompare(ctx, contestID, gradeID); err != nil {
			return domain.NewStepError("cancel", StepClearCompare, []string{StepReplaceHistory}, err)
		}
	}

	labels["status"] = string(domain.CompareCancelled)
	m.metrics.RecordCounter(middleware.MetricCompareRounds, 1, labels)
	m.logger.InfoContext(ctx, "confirmed compare round removed",
		logging.Grade(contestID, gradeID),
		slog.Int("compare_index", last.CompareIndex),
	)
	return nil
}

// Abandon rolls back the session the caller opened, restoring the realtime
// compare state captured when it was started. It is silent: no record is
// written and no round is counted. Abandoning a session that was already
// confirmed or cancelled is a no-op.
func (m *CompareManager) Abandon(ctx context.Context, contestID, gradeID, sessionID string) (err error) {
	ctx, finish := m.observer.Observe(ctx, "compare.abandon", contestID, gradeID)
	defer func() { finish(err) }()

	marker, err := m.markers.LoadMarker(ctx, contestID, gradeID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load open marker: %w", err)
	}
	if marker.SessionID != sessionID {
		return fmt.Errorf("%w: open session is %s", domain.ErrSessionMismatch, marker.SessionID)
	}
	return m.restore(ctx, marker)
}

// RecoverAbandoned restores the grade from its open marker when the marker
// is older than staleAfter, whoever opened the session. It reports whether
// a session was rolled back. A zero staleAfter restores any open marker.
func (m *CompareManager) RecoverAbandoned(ctx context.Context, contestID, gradeID string, staleAfter time.Duration) (restored bool, err error) {
	ctx, finish := m.observer.Observe(ctx, "compare.recover", contestID, gradeID)
	defer func() { finish(err) }()

	marker, err := m.markers.LoadMarker(ctx, contestID, gradeID)
	if errors.Is(err, ports.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load open marker: %w", err)
	}
	if age := m.now().Sub(marker.OpenedAt); age < staleAfter {
		return false, nil
	}
	if err := m.restore(ctx, marker); err != nil {
		return false, err
	}
	return true, nil
}

func (m *CompareManager) restore(ctx context.Context, marker domain.OpenMarker) error {
	var err error
	if marker.Snapshot == nil {
		err = m.realtime.ClearCompare(ctx, marker.ContestID, marker.GradeID)
	} else {
		err = m.realtime.SaveCompare(ctx, marker.Snapshot)
	}
	if err != nil {
		return domain.NewStepError("abandon", StepRestoreCompare, nil, err)
	}
	if err := m.markers.DeleteMarker(ctx, marker.ContestID, marker.GradeID); err != nil {
		return domain.NewStepError("abandon", StepDeleteMarker, []string{StepRestoreCompare}, err)
	}

	m.metrics.RecordGauge(middleware.MetricActiveSessions, 0, m.labels(marker.ContestID, marker.GradeID))
	m.logger.WarnContext(ctx, "abandoned compare session rolled back",
		logging.Grade(marker.ContestID, marker.GradeID),
		slog.String("session_id", marker.SessionID),
		slog.String("opened_by", marker.OpenedBy),
		slog.Time("opened_at", marker.OpenedAt),
	)
	return nil
}
