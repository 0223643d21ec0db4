package domain

import "time"

// ExcludedScore is the reserved score value meaning "not numerically ranked".
// Any raw score or total at or above it marks a competitor as excluded
// (no-show, disqualified). Excluded groups carry ExcludedScore as their rank.
const ExcludedScore = 1000

// IsExcluded reports whether a score or total is the exclusion sentinel.
func IsExcluded(score int) bool { return score >= ExcludedScore }

// GradeKey identifies one scored grade of a contest.
// CategoryID is only required when reading from the Score Source; results,
// compare history and realtime state are keyed by contest and grade.
type GradeKey struct {
	ContestID  string `json:"contest_id" validate:"required"`
	CategoryID string `json:"category_id"`
	GradeID    string `json:"grade_id" validate:"required"`
}

// String returns a compact "contest/category/grade" representation used in
// logs and singleflight keys.
func (k GradeKey) String() string {
	return k.ContestID + "/" + k.CategoryID + "/" + k.GradeID
}

// Competitor carries the identity fields of a scored player.
// PlayerNumber is the identity key; the remaining fields are display data.
type Competitor struct {
	PlayerNumber int    `json:"player_number" validate:"min=1"`
	PlayerIndex  int    `json:"player_index" validate:"min=0"`
	PlayerName   string `json:"player_name"`
	PlayerGym    string `json:"player_gym"`
	PlayerUID    string `json:"player_uid"`
}

// RawScore is one record supplied by the Score Source: a single judge's
// score for a single competitor.
type RawScore struct {
	Competitor
	SeatIndex   int `json:"seat_index" validate:"min=0"`
	PlayerScore int `json:"player_score" validate:"min=0"`
}

// ScoreEntry is one judge's score inside an aggregated group.
// IsMin and IsMax are derived display flags and are never read as input.
type ScoreEntry struct {
	SeatIndex   int  `json:"seat_index"`
	PlayerScore int  `json:"player_score"`
	IsMin       bool `json:"is_min"`
	IsMax       bool `json:"is_max"`
}

// PlayerScoreGroup is the per-competitor aggregation of raw scores.
// TotalScore, PlayerRank and IsAlert are recomputed on every aggregation pass.
type PlayerScoreGroup struct {
	Competitor
	Scores     []ScoreEntry `json:"scores"`
	TotalScore int          `json:"total_score"`
	PlayerRank int          `json:"player_rank"`
	IsAlert    bool         `json:"is_alert"`
}

// Excluded reports whether the group is outside numeric ranking.
func (g PlayerScoreGroup) Excluded() bool { return IsExcluded(g.TotalScore) }

// SortCriteria selects the order in which ranked groups are returned.
type SortCriteria string

// Supported sort criteria.
const (
	// SortByTotalScore orders by ascending total score; lower totals win.
	SortByTotalScore SortCriteria = "total_score"

	// SortByPlayerIndex keeps the original entry order of the grade.
	SortByPlayerIndex SortCriteria = "player_index"
)

// ResultSnapshot is the durable, confirmed ranking of one grade.
type ResultSnapshot struct {
	ContestID string             `json:"contest_id"`
	GradeID   string             `json:"grade_id"`
	Groups    []PlayerScoreGroup `json:"groups"`
	// Hash is a content hash over Groups used to detect identical re-publishes.
	Hash    string    `json:"hash"`
	SavedAt time.Time `json:"saved_at"`
}

// CloneGroups returns a deep copy of groups, including their score slices.
func CloneGroups(groups []PlayerScoreGroup) []PlayerScoreGroup {
	if groups == nil {
		return nil
	}
	out := make([]PlayerScoreGroup, len(groups))
	for i, g := range groups {
		out[i] = g
		if g.Scores != nil {
			out[i].Scores = append([]ScoreEntry(nil), g.Scores...)
		}
	}
	return out
}
