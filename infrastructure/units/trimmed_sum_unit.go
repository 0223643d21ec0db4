package units

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

var _ ports.Unit = (*TrimmedSumUnit)(nil)

// TrimmedSumUnit groups raw judge scores by competitor and computes each
// competitor's trimmed total: the sum of all scores minus exactly one
// minimum and one maximum entry. Groups with two or fewer entries total 0
// because there are not enough judges to trim.
//
// The unit is stateless and thread-safe.
type TrimmedSumUnit struct {
	name   string
	config TrimmedSumConfig
}

// TrimmedSumConfig defines the configuration parameters for the
// TrimmedSumUnit.
type TrimmedSumConfig struct {
	// NormalizeText trims competitor names and gyms and converts them to
	// Unicode NFC so the same name entered through different input methods
	// compares equal.
	NormalizeText bool `yaml:"normalize_text" json:"normalize_text"`
}

// NewTrimmedSumUnit creates a new TrimmedSumUnit with the specified
// configuration.
func NewTrimmedSumUnit(name string, config TrimmedSumConfig) (*TrimmedSumUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &TrimmedSumUnit{name: name, config: config}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *TrimmedSumUnit) Name() string { return u.name }

// Execute reads domain.KeyRawScores, aggregates them, and writes the
// resulting groups to domain.KeyScoreGroups.
func (u *TrimmedSumUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	raw, ok := domain.Get(state, domain.KeyRawScores)
	if !ok {
		return state, fmt.Errorf("%w: %s", ErrMissingInput, domain.KeyRawScores.Name())
	}
	groups := Aggregate(SanitizeRawScores(raw, u.config.NormalizeText))
	return domain.With(state, domain.KeyScoreGroups, groups), nil
}

// Validate checks if the unit is properly configured. Every
// TrimmedSumConfig value is valid, so only the name is checked.
func (u *TrimmedSumUnit) Validate() error {
	if u.name == "" {
		return ErrEmptyUnitName
	}
	return nil
}

// UnmarshalParameters deserializes YAML parameters into the unit's config.
func (u *TrimmedSumUnit) UnmarshalParameters(params yaml.Node) error {
	var config TrimmedSumConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	u.config = config
	return nil
}

// CreateTrimmedSumUnit is a factory function that creates a TrimmedSumUnit
// from a configuration map.
func CreateTrimmedSumUnit(id string, config map[string]any) (*TrimmedSumUnit, error) {
	var cfg TrimmedSumConfig
	if val, ok := config["normalize_text"].(bool); ok {
		cfg.NormalizeText = val
	}
	return NewTrimmedSumUnit(id, cfg)
}

// SanitizeRawScores is the Score Source boundary check. Records without a
// positive player number cannot be grouped and are dropped; negative
// scores contribute 0. The input slice is not modified.
func SanitizeRawScores(raw []domain.RawScore, normalizeText bool) []domain.RawScore {
	out := make([]domain.RawScore, 0, len(raw))
	for _, r := range raw {
		if r.PlayerNumber <= 0 {
			continue
		}
		if r.PlayerScore < 0 {
			r.PlayerScore = 0
		}
		if normalizeText {
			r.PlayerName = normalizeName(r.PlayerName)
			r.PlayerGym = normalizeName(r.PlayerGym)
		}
		out = append(out, r)
	}
	return out
}

func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Aggregate groups raw entries by player number and computes each group's
// trimmed total. Groups keep the identity fields of the first record seen
// for the player and appear in first-seen order. Entries inside a group are
// ordered by seat index. The dropped minimum and maximum entries are
// flagged for display.
//
// A group whose every entry is a sentinel score totals at least
// domain.ExcludedScore, so it stays excluded even when it has too few
// entries to trim. Groups mixing sentinel and regular entries keep the
// trimmed total.
func Aggregate(raw []domain.RawScore) []domain.PlayerScoreGroup {
	index := make(map[int]int)
	var groups []domain.PlayerScoreGroup
	for _, r := range raw {
		i, ok := index[r.PlayerNumber]
		if !ok {
			i = len(groups)
			index[r.PlayerNumber] = i
			groups = append(groups, domain.PlayerScoreGroup{Competitor: r.Competitor})
		}
		groups[i].Scores = append(groups[i].Scores, domain.ScoreEntry{
			SeatIndex:   r.SeatIndex,
			PlayerScore: r.PlayerScore,
		})
	}

	for i := range groups {
		scores := groups[i].Scores
		slices.SortStableFunc(scores, func(a, b domain.ScoreEntry) int {
			return cmp.Compare(a.SeatIndex, b.SeatIndex)
		})
		groups[i].TotalScore = TrimmedTotal(scores)
		if allExcluded(scores) {
			groups[i].TotalScore = max(groups[i].TotalScore, domain.ExcludedScore)
		}
		flagExtremes(scores)
	}
	return groups
}

func allExcluded(scores []domain.ScoreEntry) bool {
	if len(scores) == 0 {
		return false
	}
	for _, s := range scores {
		if !domain.IsExcluded(s.PlayerScore) {
			return false
		}
	}
	return true
}

// TrimmedTotal returns the sum of the scores after removing one occurrence
// of the minimum and one of the maximum. Two or fewer entries total 0.
func TrimmedTotal(scores []domain.ScoreEntry) int {
	if len(scores) <= 2 {
		return 0
	}
	lowest, highest := scores[0].PlayerScore, scores[0].PlayerScore
	sum := 0
	for _, s := range scores {
		sum += s.PlayerScore
		lowest = min(lowest, s.PlayerScore)
		highest = max(highest, s.PlayerScore)
	}
	return sum - lowest - highest
}

// flagExtremes marks exactly one minimum and one maximum entry, matching the
// entries TrimmedTotal drops. The first entry holding the minimum value is
// the minimum; the first other entry holding the maximum value is the
// maximum. When every score is equal this flags the first two entries.
// Nothing is flagged when nothing is dropped.
func flagExtremes(scores []domain.ScoreEntry) {
	for i := range scores {
		scores[i].IsMin, scores[i].IsMax = false, false
	}
	if len(scores) <= 2 {
		return
	}

	minIdx, maxIdx := 0, -1
	for i, s := range scores {
		if s.PlayerScore < scores[minIdx].PlayerScore {
			minIdx = i
		}
	}
	for i, s := range scores {
		if i == minIdx {
			continue
		}
		if maxIdx < 0 || s.PlayerScore > scores[maxIdx].PlayerScore {
			maxIdx = i
		}
	}
	scores[minIdx].IsMin = true
	scores[maxIdx].IsMax = true
}
