package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-podium/infrastructure/middleware"
	"github.com/ahrav/go-podium/infrastructure/units"
	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
	"github.com/ahrav/go-podium/internal/testutils"
)

const (
	testContest = "c1"
	testGrade   = "g1"
)

var errBoom = errors.New("boom")

type compareFixture struct {
	store   *testutils.MemoryStore
	metrics *testutils.RecordingMetrics
	manager *CompareManager
	now     time.Time
}

func newCompareFixture(t *testing.T, cfg CompareConfig) *compareFixture {
	t.Helper()

	store := testutils.NewMemoryStore()
	store.SetSeats(testContest, testGrade, 0, 1, 2)
	f := &compareFixture{
		store:   store,
		metrics: testutils.NewRecordingMetrics(),
		now:     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	tally, err := units.NewVoteTallyUnit("tally", units.VoteTallyConfig{})
	require.NoError(t, err)

	ids := 0
	f.manager, err = NewCompareManager(cfg, Dependencies{
		Roster:   store,
		Realtime: store,
		History:  store,
		Markers:  store,
		Metrics:  f.metrics,
		Clock:    func() time.Time { return f.now },
		IDs: func() string {
			ids++
			return fmt.Sprintf("session-%d", ids)
		},
	}, tally)
	require.NoError(t, err)
	return f
}

func competitors(numbers ...int) []domain.Competitor {
	out := make([]domain.Competitor, 0, len(numbers))
	for i, n := range numbers {
		out = append(out, domain.Competitor{
			PlayerNumber: n,
			PlayerIndex:  i,
			PlayerName:   fmt.Sprintf("Player %d", n),
			PlayerUID:    fmt.Sprintf("uid-%d", n),
		})
	}
	return out
}

func ballot(seat int, numbers ...int) domain.Ballot {
	b := domain.Ballot{SeatIndex: seat}
	for _, n := range numbers {
		b.VotedPlayers = append(b.VotedPlayers, domain.VotedPlayer{PlayerNumber: n})
	}
	return b
}

func startConfig(playerLength int, players ...int) StartConfig {
	return StartConfig{
		ContestID:    testContest,
		GradeID:      testGrade,
		PlayerLength: playerLength,
		ScoreMode:    domain.ScoreModeAll,
		VoteRange:    domain.VoteRangeAll,
		Players:      competitors(players...),
		OpenedBy:     "moderator-1",
	}
}

// openRound starts and opens a round, failing the test on error.
func (f *compareFixture) openRound(t *testing.T, cfg StartConfig) *domain.CompareSession {
	t.Helper()
	ctx := context.Background()
	_, err := f.manager.Start(ctx, cfg)
	require.NoError(t, err)
	session, err := f.manager.Open(ctx, cfg.ContestID, cfg.GradeID)
	require.NoError(t, err)
	return session
}

// confirmRound runs a full round where every seat votes as given.
func (f *compareFixture) confirmRound(t *testing.T, cfg StartConfig, ballots ...domain.Ballot) domain.CompareRecord {
	t.Helper()
	ctx := context.Background()
	f.openRound(t, cfg)
	for _, b := range ballots {
		require.NoError(t, f.manager.SubmitBallot(ctx, testContest, testGrade, b))
	}
	record, err := f.manager.Confirm(ctx, testContest, testGrade, ConfirmOptions{})
	require.NoError(t, err)
	return record
}

func TestCompareManager_StartValidation(t *testing.T) {
	tests := []struct {
		name       string
		cfg        StartConfig
		seedRound  bool
		wantFields []string
		wantError  string
	}{
		{
			name:       "everything missing",
			cfg:        StartConfig{},
			wantFields: []string{"contestId", "gradeId", "playerLength", "scoreMode", "players"},
		},
		{
			name: "missing score mode only",
			cfg: StartConfig{
				ContestID: testContest, GradeID: testGrade, PlayerLength: 2,
				Players: competitors(1, 2),
			},
			wantFields: []string{"scoreMode"},
		},
		{
			name: "vote range required after first round",
			cfg: StartConfig{
				ContestID: testContest, GradeID: testGrade, PlayerLength: 2,
				ScoreMode: domain.ScoreModeTopOnly, Players: competitors(1, 2),
			},
			seedRound:  true,
			wantFields: []string{"voteRange"},
		},
		{
			name: "unsupported score mode",
			cfg: StartConfig{
				ContestID: testContest, GradeID: testGrade, PlayerLength: 2,
				ScoreMode: "best_of", Players: competitors(1, 2),
			},
			wantError: `unsupported scoreMode "best_of"`,
		},
		{
			name: "duplicate player",
			cfg: StartConfig{
				ContestID: testContest, GradeID: testGrade, PlayerLength: 2,
				ScoreMode: domain.ScoreModeAll, Players: competitors(1, 1),
			},
			wantError: "player 1 listed more than once",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCompareFixture(t, CompareConfig{})
			ctx := context.Background()
			if tt.seedRound {
				require.NoError(t, f.store.AppendRecord(ctx, testContest, testGrade, domain.CompareRecord{CompareIndex: 1}))
			}

			session, err := f.manager.Start(ctx, tt.cfg)
			require.Error(t, err)
			assert.Nil(t, session)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %T", err)
			if tt.wantFields != nil {
				assert.Equal(t, tt.wantFields, verr.Fields)
			}
			if tt.wantError != "" {
				assert.Contains(t, verr.Errors, tt.wantError)
			}

			assert.Zero(t, f.store.Calls("SaveCompare"), "no session may be written")
			assert.Zero(t, f.store.Calls("PutMarker"), "no marker may be written")
		})
	}
}

func TestCompareManager_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("starts first round with pending seats", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})

		session, err := f.manager.Start(ctx, startConfig(2, 1, 2, 3))
		require.NoError(t, err)

		assert.Equal(t, "session-1", session.SessionID)
		assert.Equal(t, 1, session.CompareIndex)
		assert.Equal(t, domain.CompareStarted, session.Status)
		assert.Equal(t, map[int]domain.BallotStatus{
			0: domain.BallotPending, 1: domain.BallotPending, 2: domain.BallotPending,
		}, session.JudgeBallotStatus)
		assert.Equal(t, f.now, session.StartedAt)

		stored, err := f.manager.Session(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Equal(t, session.SessionID, stored.SessionID)

		marker, err := f.store.LoadMarker(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Equal(t, "session-1", marker.SessionID)
		assert.Equal(t, "moderator-1", marker.OpenedBy)
		assert.Nil(t, marker.Snapshot, "nothing existed before the first round")

		gauges := f.metrics.Calls("gauge", middleware.MetricActiveSessions)
		require.Len(t, gauges, 1)
		assert.Equal(t, 1.0, gauges[0].Value)
	})

	t.Run("auto open goes straight to in progress", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{AutoOpen: true})

		session, err := f.manager.Start(ctx, startConfig(2, 1, 2, 3))
		require.NoError(t, err)
		assert.Equal(t, domain.CompareInProgress, session.Status)
	})

	t.Run("rejects a second active session", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		_, err := f.manager.Start(ctx, startConfig(2, 1, 2, 3))
		require.NoError(t, err)

		_, err = f.manager.Start(ctx, startConfig(2, 1, 2, 3))
		assert.ErrorIs(t, err, domain.ErrSessionActive)
	})

	t.Run("rejects a grade without seats", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		f.store.SetSeats(testContest, testGrade)

		_, err := f.manager.Start(ctx, startConfig(2, 1, 2, 3))
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Errors, "no judge seats assigned to grade")
	})

	t.Run("marker failure writes nothing else", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		f.store.FailOn("PutMarker", errBoom)

		_, err := f.manager.Start(ctx, startConfig(2, 1, 2, 3))
		var stepErr *domain.StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, StepPutMarker, stepErr.Step)
		assert.Empty(t, stepErr.Completed)
		assert.Zero(t, f.store.Calls("SaveCompare"))
	})
}

func TestCompareManager_Open(t *testing.T) {
	ctx := context.Background()
	f := newCompareFixture(t, CompareConfig{})

	_, err := f.manager.Open(ctx, testContest, testGrade)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	_, err = f.manager.Start(ctx, startConfig(2, 1, 2))
	require.NoError(t, err)

	session, err := f.manager.Open(ctx, testContest, testGrade)
	require.NoError(t, err)
	assert.Equal(t, domain.CompareInProgress, session.Status)

	again, err := f.manager.Open(ctx, testContest, testGrade)
	require.NoError(t, err)
	assert.Equal(t, domain.CompareInProgress, again.Status)
}

func TestCompareManager_SubmitBallot(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects ballots before the session opens", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		_, err := f.manager.Start(ctx, startConfig(2, 1, 2, 3))
		require.NoError(t, err)

		err = f.manager.SubmitBallot(ctx, testContest, testGrade, ballot(0, 1))
		assert.ErrorIs(t, err, domain.ErrSessionNotOpen)
	})

	t.Run("rejects ballots without a session", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		err := f.manager.SubmitBallot(ctx, testContest, testGrade, ballot(0, 1))
		assert.ErrorIs(t, err, domain.ErrNoActiveSession)
	})

	invalid := []struct {
		name   string
		ballot domain.Ballot
		want   error
	}{
		{name: "unknown seat", ballot: ballot(7, 1), want: domain.ErrUnknownSeat},
		{name: "player outside the round", ballot: ballot(0, 9), want: domain.ErrUnknownPlayer},
		{name: "empty ballot", ballot: ballot(0), want: domain.ErrInvalidBallot},
		{name: "duplicate vote", ballot: ballot(0, 1, 1), want: domain.ErrInvalidBallot},
		{name: "too many votes", ballot: ballot(0, 1, 2, 3), want: domain.ErrInvalidBallot},
		{
			name: "uid does not match the round",
			ballot: domain.Ballot{SeatIndex: 0, VotedPlayers: []domain.VotedPlayer{
				{PlayerNumber: 1, PlayerUID: "someone-else"},
			}},
			want: domain.ErrUnknownPlayer,
		},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			f := newCompareFixture(t, CompareConfig{})
			f.openRound(t, startConfig(2, 1, 2, 3))

			err := f.manager.SubmitBallot(ctx, testContest, testGrade, tt.ballot)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.store.Calls("PutBallot"))
		})
	}

	t.Run("fills uids and replaces an earlier ballot", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		f.openRound(t, startConfig(2, 1, 2, 3))

		require.NoError(t, f.manager.SubmitBallot(ctx, testContest, testGrade, ballot(1, 1, 2)))
		require.NoError(t, f.manager.SubmitBallot(ctx, testContest, testGrade, ballot(1, 3)))

		session, err := f.manager.Session(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Equal(t, domain.BallotSubmitted, session.JudgeBallotStatus[1])
		assert.Equal(t, []int{0, 2}, session.PendingSeats())
		assert.Equal(t, []domain.VotedPlayer{{PlayerNumber: 3, PlayerUID: "uid-3"}}, session.Ballots[1].VotedPlayers)

		assert.Len(t, f.metrics.Calls("counter", middleware.MetricBallotsSubmitted), 2)
	})

	t.Run("configured vote limit overrides player length", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{MaxVotesPerBallot: 1})
		f.openRound(t, startConfig(2, 1, 2, 3))

		err := f.manager.SubmitBallot(ctx, testContest, testGrade, ballot(0, 1, 2))
		assert.ErrorIs(t, err, domain.ErrInvalidBallot)
		require.NoError(t, f.manager.SubmitBallot(ctx, testContest, testGrade, ballot(0, 2)))
	})
}

func TestCompareManager_Confirm(t *testing.T) {
	ctx := context.Background()

	t.Run("requires every seat unless forced", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		f.openRound(t, startConfig(1, 1, 2, 3))
		require.NoError(t, f.manager.SubmitBallot(ctx, testContest, testGrade, ballot(0, 2)))

		_, err := f.manager.Confirm(ctx, testContest, testGrade, ConfirmOptions{})
		require.ErrorIs(t, err, domain.ErrBallotsPending)
		assert.Contains(t, err.Error(), "seats 1,2")

		record, err := f.manager.Confirm(ctx, testContest, testGrade, ConfirmOptions{Force: true})
		require.NoError(t, err)
		assert.True(t, record.Forced)
		assert.Equal(t, []domain.Candidate{{PlayerNumber: 2, PlayerUID: "uid-2", VotedCount: 1}}, record.VotedResult)
	})

	t.Run("tallies, records and closes the round", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		record := f.confirmRound(t, startConfig(2, 1, 2, 3),
			ballot(0, 1, 2), ballot(1, 1, 3), ballot(2, 2, 1))

		assert.Equal(t, 1, record.CompareIndex)
		assert.Equal(t, 2, record.ComparePlayerLength)
		assert.Equal(t, domain.ScoreModeAll, record.CompareScoreMode)
		assert.False(t, record.Forced)
		assert.Equal(t, f.now, record.ConfirmedAt)
		assert.Equal(t, []domain.Candidate{
			{PlayerNumber: 1, PlayerUID: "uid-1", VotedCount: 3},
			{PlayerNumber: 2, PlayerUID: "uid-2", VotedCount: 2},
			{PlayerNumber: 3, PlayerUID: "uid-3", VotedCount: 1},
		}, record.Players)
		assert.Equal(t, record.Players[:2], record.VotedResult)

		history, err := f.manager.History(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Equal(t, []domain.CompareRecord{record}, history)

		session, err := f.manager.Session(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Equal(t, domain.CompareConfirmed, session.Status)
		assert.False(t, session.Active())

		_, err = f.store.LoadMarker(ctx, testContest, testGrade)
		assert.ErrorIs(t, err, ports.ErrNotFound)

		rounds := f.metrics.Calls("counter", middleware.MetricCompareRounds)
		require.Len(t, rounds, 1)
		assert.Equal(t, "confirmed", rounds[0].Labels["status"])

		sizes := f.metrics.Calls("histogram", middleware.MetricVotedResultSize)
		require.Len(t, sizes, 1)
		assert.Equal(t, 2.0, sizes[0].Value)
	})

	t.Run("ties at the boundary extend the voted result", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		record := f.confirmRound(t, startConfig(1, 1, 2, 3),
			ballot(0, 1), ballot(1, 2), ballot(2, 3))

		assert.Len(t, record.VotedResult, 3)
	})

	t.Run("confirm without a session", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		_, err := f.manager.Confirm(ctx, testContest, testGrade, ConfirmOptions{Force: true})
		assert.ErrorIs(t, err, domain.ErrNoActiveSession)
	})

	t.Run("partial failure reports completed steps", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		f.openRound(t, startConfig(1, 1, 2))
		f.store.FailOn("SaveCompare", errBoom)

		_, err := f.manager.Confirm(ctx, testContest, testGrade, ConfirmOptions{Force: true})
		var stepErr *domain.StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, "confirm", stepErr.Operation)
		assert.Equal(t, StepUpdateRealtime, stepErr.Step)
		assert.Equal(t, []string{StepAppendHistory}, stepErr.Completed)
		assert.ErrorIs(t, err, errBoom)

		history, err := f.manager.History(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Len(t, history, 1, "the applied step is not rolled back")
	})
}

func TestCompareManager_FollowUpRound(t *testing.T) {
	ctx := context.Background()
	f := newCompareFixture(t, CompareConfig{})
	f.confirmRound(t, startConfig(2, 1, 2, 3, 4),
		ballot(0, 1, 2), ballot(1, 1, 2), ballot(2, 3, 4))

	cfg := startConfig(1, 1, 2, 3, 4)
	cfg.VoteRange = domain.VoteRangeVotedOnly
	session, err := f.manager.Start(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, session.CompareIndex)
	assert.Equal(t, domain.VoteRangeVotedOnly, session.VoteRange)
	numbers := make([]int, 0, len(session.Players))
	for _, p := range session.Players {
		numbers = append(numbers, p.PlayerNumber)
	}
	assert.Equal(t, []int{1, 2}, numbers)

	marker, err := f.store.LoadMarker(ctx, testContest, testGrade)
	require.NoError(t, err)
	require.NotNil(t, marker.Snapshot)
	assert.Equal(t, domain.CompareConfirmed, marker.Snapshot.Status)
	assert.Equal(t, 1, marker.Snapshot.CompareIndex)
}

func TestCompareManager_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("drops the active session without a record", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		f.openRound(t, startConfig(2, 1, 2, 3))
		require.NoError(t, f.manager.SubmitBallot(ctx, testContest, testGrade, ballot(0, 1)))

		require.NoError(t, f.manager.Cancel(ctx, testContest, testGrade))

		session, err := f.manager.Session(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Equal(t, domain.CompareIdle, session.Status)

		history, err := f.manager.History(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Empty(t, history)

		_, err = f.store.LoadMarker(ctx, testContest, testGrade)
		assert.ErrorIs(t, err, ports.ErrNotFound)

		rounds := f.metrics.Calls("counter", middleware.MetricCompareRounds)
		require.Len(t, rounds, 1)
		assert.Equal(t, "cancelled", rounds[0].Labels["status"])
	})

	t.Run("removes only the most recent confirmed round", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		first := f.confirmRound(t, startConfig(2, 1, 2, 3),
			ballot(0, 1, 2), ballot(1, 1, 2), ballot(2, 1, 3))

		cfg := startConfig(1, 1, 2)
		f.confirmRound(t, cfg, ballot(0, 1), ballot(1, 1), ballot(2, 2))

		require.NoError(t, f.manager.Cancel(ctx, testContest, testGrade))

		history, err := f.manager.History(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Equal(t, []domain.CompareRecord{first}, history)

		session, err := f.manager.Session(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Equal(t, domain.CompareIdle, session.Status)
	})

	t.Run("cancelled active round frees its index", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		opened := f.openRound(t, startConfig(2, 1, 2, 3))
		require.Equal(t, 1, opened.CompareIndex)
		require.NoError(t, f.manager.Cancel(ctx, testContest, testGrade))

		restarted, err := f.manager.Start(ctx, startConfig(2, 1, 2, 3))
		require.NoError(t, err)
		assert.Equal(t, 1, restarted.CompareIndex)
		assert.NotEqual(t, opened.SessionID, restarted.SessionID)

		history, err := f.manager.History(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("cancelled follow-up round reuses the next index", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		f.confirmRound(t, startConfig(1, 1, 2), ballot(0, 1), ballot(1, 1), ballot(2, 2))

		opened := f.openRound(t, startConfig(1, 1, 2))
		require.Equal(t, 2, opened.CompareIndex)
		require.NoError(t, f.manager.Cancel(ctx, testContest, testGrade))

		restarted, err := f.manager.Start(ctx, startConfig(1, 1, 2))
		require.NoError(t, err)
		assert.Equal(t, 2, restarted.CompareIndex)

		history, err := f.manager.History(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("nothing to cancel", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		err := f.manager.Cancel(ctx, testContest, testGrade)
		assert.ErrorIs(t, err, domain.ErrNoCompareRecord)
	})
}

func TestCompareManager_Abandon(t *testing.T) {
	ctx := context.Background()

	t.Run("restores the state captured at open", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		f.confirmRound(t, startConfig(1, 1, 2), ballot(0, 1), ballot(1, 1), ballot(2, 2))
		before, err := f.manager.Session(ctx, testContest, testGrade)
		require.NoError(t, err)

		cfg := startConfig(1, 1, 2)
		opened := f.openRound(t, cfg)
		require.NoError(t, f.manager.SubmitBallot(ctx, testContest, testGrade, ballot(0, 2)))

		require.NoError(t, f.manager.Abandon(ctx, testContest, testGrade, opened.SessionID))

		after, err := f.manager.Session(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Equal(t, before, after)

		history, err := f.manager.History(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Len(t, history, 1, "abandon never writes a record")

		_, err = f.store.LoadMarker(ctx, testContest, testGrade)
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("first round abandon returns to idle", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		opened := f.openRound(t, startConfig(1, 1, 2))

		require.NoError(t, f.manager.Abandon(ctx, testContest, testGrade, opened.SessionID))

		session, err := f.manager.Session(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Equal(t, domain.CompareIdle, session.Status)
	})

	t.Run("other session id is refused", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		f.openRound(t, startConfig(1, 1, 2))

		err := f.manager.Abandon(ctx, testContest, testGrade, "someone-else")
		assert.ErrorIs(t, err, domain.ErrSessionMismatch)

		session, err := f.manager.Session(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.True(t, session.Active())
	})

	t.Run("after confirm it is a no-op", func(t *testing.T) {
		f := newCompareFixture(t, CompareConfig{})
		f.confirmRound(t, startConfig(1, 1, 2), ballot(0, 1), ballot(1, 1), ballot(2, 2))

		require.NoError(t, f.manager.Abandon(ctx, testContest, testGrade, "session-1"))

		session, err := f.manager.Session(ctx, testContest, testGrade)
		require.NoError(t, err)
		assert.Equal(t, domain.CompareConfirmed, session.Status)
	})
}

func TestCompareManager_RecoverAbandoned(t *testing.T) {
	ctx := context.Background()
	f := newCompareFixture(t, CompareConfig{})

	restored, err := f.manager.RecoverAbandoned(ctx, testContest, testGrade, 0)
	require.NoError(t, err)
	assert.False(t, restored, "no marker, nothing to recover")

	f.openRound(t, startConfig(1, 1, 2))

	restored, err = f.manager.RecoverAbandoned(ctx, testContest, testGrade, 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, restored, "marker is still fresh")

	f.now = f.now.Add(11 * time.Minute)
	restored, err = f.manager.RecoverAbandoned(ctx, testContest, testGrade, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, restored)

	session, err := f.manager.Session(ctx, testContest, testGrade)
	require.NoError(t, err)
	assert.Equal(t, domain.CompareIdle, session.Status)
}
