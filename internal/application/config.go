package application

import (
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of the ranking engine and serves as
// the primary configuration entry point. It is usually loaded from YAML with
// LoadConfig and validated before use.
type Config struct {
	// Store configures the SQLite database backing every persistence port.
	Store StoreConfig `yaml:"store" validate:"required"`
	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`
	// Compare tunes the compare session manager.
	Compare CompareConfig `yaml:"compare"`
	// Realtime throttles writes to the shared realtime status channel.
	Realtime RealtimeConfig `yaml:"realtime"`
	// Metrics toggles Prometheus metric collection.
	Metrics MetricsConfig `yaml:"metrics"`
	// Ranking is the unit pipeline turning raw scores into ranked groups.
	Ranking PipelineConfig `yaml:"ranking" validate:"required"`
	// Tally is the unit pipeline turning ballots into a voted result.
	Tally PipelineConfig `yaml:"tally" validate:"required"`
}

// StoreConfig locates the database file.
type StoreConfig struct {
	// Path is the SQLite database file. It is created when missing.
	Path string `yaml:"path" validate:"required"`
}

// LoggingConfig controls level and output format of the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// CompareConfig tunes compare session behaviour.
type CompareConfig struct {
	// AutoOpen collapses Start and Open into a single step, moving a new
	// session straight to in_progress.
	AutoOpen bool `yaml:"auto_open"`
	// MaxVotesPerBallot caps the number of competitors one ballot may name.
	// Zero means the round's player length.
	MaxVotesPerBallot int `yaml:"max_votes_per_ballot" validate:"min=0,max=1000"`
}

// RealtimeConfig throttles realtime channel writes. A zero WritesPerSecond
// disables throttling.
type RealtimeConfig struct {
	WritesPerSecond float64 `yaml:"writes_per_second" validate:"min=0"`
	Burst           int     `yaml:"burst" validate:"min=0"`
}

// MetricsConfig toggles metric collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PipelineConfig is an ordered list of units executed sequentially.
type PipelineConfig struct {
	Units []UnitConfig `yaml:"units" validate:"required,min=1,dive"`
}

// UnitConfig defines a single unit of a pipeline.
type UnitConfig struct {
	// ID is the unit's name within its pipeline.
	ID string `yaml:"id" validate:"required,unitid"`
	// Type selects the registered unit implementation.
	Type string `yaml:"type" validate:"required"`
	// Parameters contains type-specific configuration, validated according
	// to the unit type.
	Parameters yaml.Node `yaml:"parameters"`
}

// DefaultConfig returns a configuration with the built-in ranking and tally
// pipelines, text logging at info level and no realtime throttling.
func DefaultConfig() Config {
	return Config{
		Store:   StoreConfig{Path: "podium.db"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Ranking: PipelineConfig{Units: []UnitConfig{
			{ID: "aggregate", Type: UnitTypeTrimmedSum, Parameters: mappingNode("normalize_text", "true")},
			{ID: "rank", Type: UnitTypeRank, Parameters: mappingNode("sort_criteria", "total_score")},
		}},
		Tally: PipelineConfig{Units: []UnitConfig{
			{ID: "tally", Type: UnitTypeVoteTally},
		}},
	}
}

// mappingNode builds a YAML mapping node from alternating key and value
// strings, letting the decoder resolve scalar types.
func mappingNode(kv ...string) yaml.Node {
	node := yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(kv); i += 2 {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: kv[i]},
			&yaml.Node{Kind: yaml.ScalarNode, Value: kv[i+1]},
		)
	}
	return node
}
