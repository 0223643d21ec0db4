package application

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/go-podium/infrastructure/units"
	"github.com/ahrav/go-podium/internal/ports"
)

// Built-in unit type names accepted in pipeline configuration.
const (
	UnitTypeTrimmedSum = "trimmed_sum"
	UnitTypeRank       = "rank"
	UnitTypeVoteTally  = "vote_tally"
)

// Verify interface compliance at compile time.
var _ ports.UnitRegistry = (*DefaultUnitRegistry)(nil)

// DefaultUnitRegistry implements ports.UnitRegistry with the scoring,
// ranking and tally units pre-registered. Additional factories can be
// registered at runtime.
type DefaultUnitRegistry struct {
	// factories maps unit type strings to their factory functions.
	factories map[string]ports.UnitFactory
	// mu protects concurrent access to the factories map.
	mu sync.RWMutex
}

// NewDefaultUnitRegistry creates a registry with the built-in unit types.
func NewDefaultUnitRegistry() *DefaultUnitRegistry {
	registry := &DefaultUnitRegistry{
		factories: make(map[string]ports.UnitFactory),
	}
	registry.registerBuiltinFactories()
	return registry
}

func (r *DefaultUnitRegistry) registerBuiltinFactories() {
	r.factories[UnitTypeTrimmedSum] = func(id string, config map[string]any) (ports.Unit, error) {
		unit, err := units.CreateTrimmedSumUnit(id, config)
		if err != nil {
			return nil, err
		}
		return unit, nil
	}

	r.factories[UnitTypeRank] = func(id string, config map[string]any) (ports.Unit, error) {
		unit, err := units.CreateRankUnit(id, config)
		if err != nil {
			return nil, err
		}
		return unit, nil
	}

	r.factories[UnitTypeVoteTally] = func(id string, config map[string]any) (ports.Unit, error) {
		unit, err := units.CreateVoteTallyUnit(id, config)
		if err != nil {
			return nil, err
		}
		return unit, nil
	}
}

// CreateUnit creates a new unit instance of unitType. A nil config is
// treated as empty.
func (r *DefaultUnitRegistry) CreateUnit(
	unitType string,
	id string,
	config map[string]any,
) (ports.Unit, error) {
	r.mu.RLock()
	factory, exists := r.factories[unitType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported unit type: %s", unitType)
	}

	if id == "" {
		return nil, fmt.Errorf("unit ID cannot be empty")
	}

	if config == nil {
		config = make(map[string]any)
	}

	unit, err := factory(id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit %s of type %s: %w", id, unitType, err)
	}

	return unit, nil
}

// RegisterUnitFactory registers a factory for unitType, replacing any
// existing one.
func (r *DefaultUnitRegistry) RegisterUnitFactory(
	unitType string,
	factory ports.UnitFactory,
) error {
	if unitType == "" {
		return fmt.Errorf("unit type cannot be empty")
	}

	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[unitType] = factory
	return nil
}

// GetSupportedTypes returns the registered unit types in sorted order.
func (r *DefaultUnitRegistry) GetSupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for unitType := range r.factories {
		types = append(types, unitType)
	}
	slices.Sort(types)
	return types
}
