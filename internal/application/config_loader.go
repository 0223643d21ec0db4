package application

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-podium/internal/ports"
)

// ConfigLoader parses and validates YAML configuration and compiles
// pipeline definitions into executable Pipelines. Compiled pipelines are
// cached by a SHA256 hash of their normalized definition.
type ConfigLoader struct {
	// validator performs struct tag and custom validation.
	validator *validator.Validate
	// unitRegistry creates units by type.
	unitRegistry ports.UnitRegistry
	// cache stores compiled pipelines by definition hash.
	// Cached pipelines MUST NOT be mutated with Add.
	cache   map[string]*Pipeline
	cacheMu sync.RWMutex
	// sf prevents duplicate compilation when several goroutines build the
	// same pipeline at once.
	sf singleflight.Group
}

// NewConfigLoader creates a loader backed by unitRegistry.
func NewConfigLoader(unitRegistry ports.UnitRegistry) (*ConfigLoader, error) {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &ConfigLoader{
		validator:    v,
		unitRegistry: unitRegistry,
		cache:        make(map[string]*Pipeline),
	}, nil
}

// LoadConfig reads and validates the configuration file at path using the
// built-in unit types.
func LoadConfig(path string) (Config, error) {
	loader, err := NewConfigLoader(NewDefaultUnitRegistry())
	if err != nil {
		return Config{}, err
	}
	cfg, err := loader.LoadFromFile(path)
	if err != nil {
		return Config{}, err
	}
	return *cfg, nil
}

// LoadFromFile reads and validates a configuration file.
func (cl *ConfigLoader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ports.NewConfigError(path, ports.ErrConfigNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return cl.Parse(data)
}

// LoadFromReader reads and validates configuration from r.
func (cl *ConfigLoader) LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return cl.Parse(data)
}

// Parse decodes YAML over DefaultConfig and validates the result. Unknown
// fields are rejected so typos are not silently ignored. An empty document
// yields the defaults.
func (cl *ConfigLoader) Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	if err := cl.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate runs struct tag validation followed by semantic checks of both
// pipelines.
func (cl *ConfigLoader) Validate(cfg *Config) error {
	if err := cl.validator.Struct(cfg); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	if err := cl.validatePipeline("ranking", cfg.Ranking); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	if err := cl.validatePipeline("tally", cfg.Tally); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	return nil
}

// validatePipeline checks that unit IDs are unique within the pipeline,
// every type is registered and built-in parameters are well formed.
func (cl *ConfigLoader) validatePipeline(id string, pc PipelineConfig) error {
	supported := cl.unitRegistry.GetSupportedTypes()
	seen := make(map[string]struct{}, len(pc.Units))
	for _, unit := range pc.Units {
		if _, exists := seen[unit.ID]; exists {
			return fmt.Errorf("pipeline %s: duplicate unit ID %q", id, unit.ID)
		}
		seen[unit.ID] = struct{}{}

		if !slices.Contains(supported, unit.Type) {
			return fmt.Errorf("pipeline %s: unit %s has unsupported type %q", id, unit.ID, unit.Type)
		}
		if err := ValidateUnitParameters(unit.Type, unit.Parameters); err != nil {
			return fmt.Errorf("pipeline %s: unit %s parameter validation failed: %w", id, unit.ID, err)
		}
	}
	return nil
}

// BuildPipeline compiles pc into an executable Pipeline named id.
// The returned Pipeline may be shared with other callers and MUST NOT be
// extended with Add.
func (cl *ConfigLoader) BuildPipeline(id string, pc PipelineConfig) (*Pipeline, error) {
	if err := cl.validatePipeline(id, pc); err != nil {
		return nil, err
	}
	hash, err := pipelineHash(id, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := cl.sf.Do(hash, func() (any, error) {
		if p, ok := cl.getCachedPipeline(hash); ok {
			return p, nil
		}
		p, err := cl.buildPipeline(id, pc)
		if err != nil {
			return nil, fmt.Errorf("failed to build pipeline: %w", err)
		}
		cl.cachePipeline(hash, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Pipeline), nil
}

func (cl *ConfigLoader) buildPipeline(id string, pc PipelineConfig) (*Pipeline, error) {
	pipeline := NewPipeline(id)
	for _, uc := range pc.Units {
		params, err := decodeParameters(uc.Parameters)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", uc.ID, err)
		}
		unit, err := cl.unitRegistry.CreateUnit(uc.Type, uc.ID, params)
		if err != nil {
			return nil, err
		}
		if err := pipeline.Add(unit); err != nil {
			return nil, err
		}
	}
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	return pipeline, nil
}

// pipelineHash hashes the normalized pipeline definition so semantically
// identical YAML produces the same key regardless of formatting.
func pipelineHash(id string, pc PipelineConfig) (string, error) {
	type normalized struct {
		ID     string         `json:"id"`
		Type   string         `json:"type"`
		Params map[string]any `json:"params"`
	}
	units := make([]normalized, 0, len(pc.Units))
	for _, uc := range pc.Units {
		params, err := decodeParameters(uc.Parameters)
		if err != nil {
			return "", err
		}
		units = append(units, normalized{ID: uc.ID, Type: uc.Type, Params: params})
	}
	data, err := json.Marshal(struct {
		ID    string       `json:"id"`
		Units []normalized `json:"units"`
	}{id, units})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (cl *ConfigLoader) getCachedPipeline(hash string) (*Pipeline, bool) {
	cl.cacheMu.RLock()
	defer cl.cacheMu.RUnlock()

	p, ok := cl.cache[hash]
	return p, ok
}

func (cl *ConfigLoader) cachePipeline(hash string, p *Pipeline) {
	cl.cacheMu.Lock()
	defer cl.cacheMu.Unlock()

	cl.cache[hash] = p
}

// ClearCache drops every compiled pipeline.
func (cl *ConfigLoader) ClearCache() {
	cl.cacheMu.Lock()
	defer cl.cacheMu.Unlock()

	cl.cache = make(map[string]*Pipeline)
}
