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

var _ ports.Unit = (*VoteTallyUnit)(nil)

// VoteTallyUnit counts runoff ballots and selects the tie-inclusive top N.
//
// State Requirements:
//   - domain.KeyBallots: []domain.Ballot - submitted ballots
//   - domain.KeyTopN: int - optional, overrides the configured TopN
//
// State Updates:
//   - domain.KeyCandidates: every voted competitor with its count
//   - domain.KeyVotedResult: the tie-inclusive top-N selection
//
// The unit is stateless and thread-safe.
type VoteTallyUnit struct {
	name   string
	config VoteTallyConfig
}

// VoteTallyConfig defines the configuration parameters for the
// VoteTallyUnit.
type VoteTallyConfig struct {
	// TopN is the default selection size.
	TopN int `yaml:"top_n" json:"top_n" validate:"min=0"`
}

// NewVoteTallyUnit creates a new VoteTallyUnit with the specified
// configuration.
func NewVoteTallyUnit(name string, config VoteTallyConfig) (*VoteTallyUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &VoteTallyUnit{name: name, config: config}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *VoteTallyUnit) Name() string { return u.name }

// Execute tallies domain.KeyBallots and writes candidates and the voted
// result.
func (u *VoteTallyUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	ballots, ok := domain.Get(state, domain.KeyBallots)
	if !ok {
		return state, fmt.Errorf("%w: %s", ErrMissingInput, domain.KeyBallots.Name())
	}
	n := u.config.TopN
	if v, ok := domain.Get(state, domain.KeyTopN); ok {
		n = v
	}
	if n < 0 {
		return state, fmt.Errorf("%w: %d", ErrInvalidTopN, n)
	}

	candidates := Tally(ballots)
	return state.WithMultiple(map[string]any{
		domain.KeyCandidates.Name():  candidates,
		domain.KeyVotedResult.Name(): SelectTopN(candidates, n),
	}), nil
}

// Validate checks if the unit is properly configured.
func (u *VoteTallyUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters deserializes YAML parameters into the unit's config.
func (u *VoteTallyUnit) UnmarshalParameters(params yaml.Node) error {
	var config VoteTallyConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	u.config = config
	return nil
}

// CreateVoteTallyUnit is a factory function that creates a VoteTallyUnit
// from a configuration map.
func CreateVoteTallyUnit(id string, config map[string]any) (*VoteTallyUnit, error) {
	var cfg VoteTallyConfig
	switch v := config["top_n"].(type) {
	case int:
		cfg.TopN = v
	case float64:
		cfg.TopN = int(v)
	}
	return NewVoteTallyUnit(id, cfg)
}

type candidateKey struct {
	number int
	uid    string
}

// Tally flattens every ballot's voted players and counts occurrences per
// (player number, player uid). The result is ordered by descending count,
// then ascending player number and uid, so it does not depend on ballot
// order.
func Tally(ballots []domain.Ballot) []domain.Candidate {
	counts := make(map[candidateKey]int)
	for _, b := range ballots {
		for _, v := range b.VotedPlayers {
			counts[candidateKey{number: v.PlayerNumber, uid: v.PlayerUID}]++
		}
	}

	out := make([]domain.Candidate, 0, len(counts))
	for k, c := range counts {
		out = append(out, domain.Candidate{PlayerNumber: k.number, PlayerUID: k.uid, VotedCount: c})
	}
	slices.SortFunc(out, compareCandidates)
	return out
}

func compareCandidates(a, b domain.Candidate) int {
	if c := cmp.Compare(b.VotedCount, a.VotedCount); c != 0 {
		return c
	}
	if c := cmp.Compare(a.PlayerNumber, b.PlayerNumber); c != 0 {
		return c
	}
	return cmp.Compare(a.PlayerUID, b.PlayerUID)
}

// SelectTopN sorts candidates by descending vote count and keeps the first
// n. When the candidate after the cut has the same count as the n-th, the
// selection extends to every candidate tied at that boundary count, so the
// result may hold more than n candidates. There is no secondary tie-break:
// unresolved ties go to a further round. The input is not modified.
func SelectTopN(candidates []domain.Candidate, n int) []domain.Candidate {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b domain.Candidate) int {
		return cmp.Compare(b.VotedCount, a.VotedCount)
	})
	if n <= 0 {
		return []domain.Candidate{}
	}
	if n >= len(sorted) {
		return sorted
	}

	boundary := sorted[n-1].VotedCount
	end := n
	for end < len(sorted) && sorted[end].VotedCount == boundary {
		end++
	}
	return sorted[:end]
}
