package domain

import (
	"maps"
	"slices"
	"time"
)

// CompareStatus is the lifecycle state of a compare (runoff) session.
type CompareStatus string

// Compare session states. Confirmed and Cancelled are terminal for the
// session's compare index.
const (
	CompareIdle       CompareStatus = "idle"
	CompareStarted    CompareStatus = "started"
	CompareInProgress CompareStatus = "in_progress"
	CompareConfirmed  CompareStatus = "confirmed"
	CompareCancelled  CompareStatus = "cancelled"
)

// ScoreMode controls which scores are shown to judges during a round.
type ScoreMode string

// Supported score modes.
const (
	ScoreModeAll        ScoreMode = "all"
	ScoreModeTopOnly    ScoreMode = "top_only"
	ScoreModeTopWithSub ScoreMode = "top_with_sub"
)

// VoteRange controls which competitors are eligible in a follow-up round.
type VoteRange string

// Supported vote ranges.
const (
	// VoteRangeAll keeps every competitor of the supplied roster eligible.
	VoteRangeAll VoteRange = "all"

	// VoteRangeVotedOnly restricts eligibility to the previous round's
	// voted result.
	VoteRangeVotedOnly VoteRange = "voted_only"
)

// BallotStatus tracks whether a seat has voted in the current round.
type BallotStatus string

// Ballot states per seat.
const (
	BallotPending   BallotStatus = "pending"
	BallotSubmitted BallotStatus = "submitted"
)

// VotedPlayer identifies one competitor chosen on a ballot.
type VotedPlayer struct {
	PlayerNumber int    `json:"player_number"`
	PlayerUID    string `json:"player_uid"`
}

// Ballot is one judge's runoff vote. Seats write ballots independently;
// a later ballot for the same seat replaces the earlier one.
type Ballot struct {
	SeatIndex    int           `json:"seat_index"`
	VotedPlayers []VotedPlayer `json:"voted_players"`
}

// Candidate is a tallied competitor with its vote count.
type Candidate struct {
	PlayerNumber int    `json:"player_number"`
	PlayerUID    string `json:"player_uid"`
	VotedCount   int    `json:"voted_count"`
}

// CompareRecord is the persisted history entry of one confirmed round.
// Records are immutable once appended.
type CompareRecord struct {
	CompareIndex        int         `json:"compare_index"`
	ComparePlayerLength int         `json:"compare_player_length"`
	CompareScoreMode    ScoreMode   `json:"compare_score_mode"`
	Players             []Candidate `json:"players"`
	VotedResult         []Candidate `json:"voted_result"`
	ConfirmedAt         time.Time   `json:"confirmed_at"`
	Forced              bool        `json:"forced,omitempty"`
}

// CompareSession is the mutable state of the round currently driven by the
// moderator of a (contest, grade). It is passed explicitly to every
// operation; nothing refers to it implicitly.
type CompareSession struct {
	SessionID         string               `json:"session_id"`
	ContestID         string               `json:"contest_id"`
	GradeID           string               `json:"grade_id"`
	CompareIndex      int                  `json:"compare_index"`
	Status            CompareStatus        `json:"status"`
	PlayerLength      int                  `json:"player_length"`
	ScoreMode         ScoreMode            `json:"score_mode"`
	VoteRange         VoteRange            `json:"vote_range"`
	Players           []Competitor         `json:"players"`
	JudgeBallotStatus map[int]BallotStatus `json:"judge_ballot_status"`
	Ballots           map[int]Ballot       `json:"ballots,omitempty"`
	StartedAt         time.Time            `json:"started_at"`
}

// Active reports whether the session is open for voting or about to be.
func (s *CompareSession) Active() bool {
	if s == nil {
		return false
	}
	return s.Status == CompareStarted || s.Status == CompareInProgress
}

// PendingSeats returns the seats that have not submitted, in ascending order.
func (s *CompareSession) PendingSeats() []int {
	var pending []int
	for seat, status := range s.JudgeBallotStatus {
		if status != BallotSubmitted {
			pending = append(pending, seat)
		}
	}
	slices.Sort(pending)
	return pending
}

// AllSubmitted reports whether every assigned seat has voted.
func (s *CompareSession) AllSubmitted() bool { return len(s.PendingSeats()) == 0 }

// SubmittedBallots returns the ballots of submitted seats ordered by seat.
func (s *CompareSession) SubmittedBallots() []Ballot {
	seats := slices.Sorted(maps.Keys(s.Ballots))
	out := make([]Ballot, 0, len(seats))
	for _, seat := range seats {
		if s.JudgeBallotStatus[seat] == BallotSubmitted {
			out = append(out, s.Ballots[seat])
		}
	}
	return out
}

// HasPlayer reports whether the competitor belongs to this round.
func (s *CompareSession) HasPlayer(playerNumber int) bool {
	return slices.ContainsFunc(s.Players, func(c Competitor) bool {
		return c.PlayerNumber == playerNumber
	})
}

// Clone returns a deep copy suitable for rollback snapshots.
func (s *CompareSession) Clone() *CompareSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Players = slices.Clone(s.Players)
	out.JudgeBallotStatus = maps.Clone(s.JudgeBallotStatus)
	if s.Ballots != nil {
		out.Ballots = make(map[int]Ballot, len(s.Ballots))
		for seat, b := range s.Ballots {
			b.VotedPlayers = slices.Clone(b.VotedPlayers)
			out.Ballots[seat] = b
		}
	}
	return &out
}

// OpenMarker is the durable record written when a controlling client opens
// a session. Any client can use it to detect an abandoned session and
// restore Snapshot, the realtime compare state captured before the open.
// A nil Snapshot means no compare state existed before the open.
type OpenMarker struct {
	SessionID string          `json:"session_id"`
	ContestID string          `json:"contest_id"`
	GradeID   string          `json:"grade_id"`
	OpenedBy  string          `json:"opened_by"`
	OpenedAt  time.Time       `json:"opened_at"`
	Snapshot  *CompareSession `json:"snapshot,omitempty"`
}
