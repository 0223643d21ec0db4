package units

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

var _ ports.Unit = (*RankUnit)(nil)

// RankUnit assigns competition ranks (1,1,3) to aggregated groups, flags
// every member of a tie group with IsAlert, and gives excluded groups the
// sentinel rank domain.ExcludedScore.
//
// Ranks are always computed over ascending total score, lower totals being
// better. SortCriteria only decides the order of the returned slice.
//
// The unit is stateless and thread-safe.
type RankUnit struct {
	name   string
	config RankConfig
}

// RankConfig defines the configuration parameters for the RankUnit.
type RankConfig struct {
	// SortCriteria is the default output order. A domain.KeySortCriteria
	// value in the state takes precedence.
	SortCriteria domain.SortCriteria `yaml:"sort_criteria" json:"sort_criteria" validate:"required,oneof=total_score player_index"`
}

// NewRankUnit creates a new RankUnit with the specified configuration.
func NewRankUnit(name string, config RankConfig) (*RankUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &RankUnit{name: name, config: config}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *RankUnit) Name() string { return u.name }

// Execute ranks the groups in domain.KeyScoreGroups, writing them back in
// the requested order together with domain.KeyHasDuplicateRanks.
func (u *RankUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	groups, ok := domain.Get(state, domain.KeyScoreGroups)
	if !ok {
		return state, fmt.Errorf("%w: %s", ErrMissingInput, domain.KeyScoreGroups.Name())
	}
	criteria := u.config.SortCriteria
	if c, ok := domain.Get(state, domain.KeySortCriteria); ok && c != "" {
		criteria = c
	}
	if criteria != domain.SortByTotalScore && criteria != domain.SortByPlayerIndex {
		return state, fmt.Errorf("unsupported sort criteria %q", criteria)
	}

	ranked := AssignRanks(groups, criteria)
	return state.WithMultiple(map[string]any{
		domain.KeyScoreGroups.Name():       ranked,
		domain.KeyHasDuplicateRanks.Name(): HasDuplicateRanks(ranked),
	}), nil
}

// Validate checks if the unit is properly configured.
func (u *RankUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters deserializes YAML parameters into the unit's config.
func (u *RankUnit) UnmarshalParameters(params yaml.Node) error {
	var config RankConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	u.config = config
	return nil
}

// DefaultRankConfig returns a RankConfig ordering by total score.
func DefaultRankConfig() RankConfig {
	return RankConfig{SortCriteria: domain.SortByTotalScore}
}

// CreateRankUnit is a factory function that creates a RankUnit from a
// configuration map.
func CreateRankUnit(id string, config map[string]any) (*RankUnit, error) {
	cfg := DefaultRankConfig()
	if val, ok := config["sort_criteria"].(string); ok {
		cfg.SortCriteria = domain.SortCriteria(val)
	}
	return NewRankUnit(id, cfg)
}

// AssignRanks returns a ranked copy of groups. The input is not modified.
//
// A single pass over the groups in ascending total order tracks the
// previous total and the size of the running tie. A new total closes the
// pending tie group and advances the rank by the number of groups sharing
// the previous rank. Excluded groups get domain.ExcludedScore as their rank
// and take no part in tie bookkeeping.
func AssignRanks(groups []domain.PlayerScoreGroup, criteria domain.SortCriteria) []domain.PlayerScoreGroup {
	out := domain.CloneGroups(groups)
	order := make([]int, len(out))
	for i := range order {
		order[i] = i
		out[i].IsAlert = false
		out[i].PlayerRank = 0
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if c := cmp.Compare(out[a].TotalScore, out[b].TotalScore); c != 0 {
			return c
		}
		return cmp.Compare(out[a].PlayerIndex, out[b].PlayerIndex)
	})

	var (
		rank, sameRankCount int
		prevScore           int
		started             bool
		tie                 []int
	)
	closeTie := func() {
		if len(tie) > 1 {
			for _, j := range tie {
				out[j].IsAlert = true
			}
		}
		tie = tie[:0]
	}

	for _, j := range order {
		g := &out[j]
		if g.Excluded() {
			g.PlayerRank = domain.ExcludedScore
			continue
		}
		if !started || g.TotalScore != prevScore {
			closeTie()
			rank += sameRankCount + 1
			sameRankCount = 0
			started = true
		} else {
			sameRankCount++
		}
		tie = append(tie, j)
		g.PlayerRank = rank
		prevScore = g.TotalScore
	}
	closeTie()

	ranked := make([]domain.PlayerScoreGroup, 0, len(out))
	if criteria == domain.SortByPlayerIndex {
		ranked = append(ranked, out...)
		slices.SortStableFunc(ranked, func(a, b domain.PlayerScoreGroup) int {
			return cmp.Compare(a.PlayerIndex, b.PlayerIndex)
		})
		return ranked
	}
	for _, j := range order {
		ranked = append(ranked, out[j])
	}
	return ranked
}

// HasDuplicateRanks reports whether two or more non-excluded groups share
// a rank. Excluded groups never count as duplicates.
func HasDuplicateRanks(groups []domain.PlayerScoreGroup) bool {
	seen := make(map[int]struct{}, len(groups))
	for _, g := range groups {
		if g.Excluded() || g.PlayerRank >= domain.ExcludedScore {
			continue
		}
		if _, ok := seen[g.PlayerRank]; ok {
			return true
		}
		seen[g.PlayerRank] = struct{}{}
	}
	return false
}
