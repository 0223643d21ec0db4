// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-podium/internal/domain"
)

// Unit represents one step of a ranking or tally pipeline.
// Each Unit performs a specific transformation on the pipeline State.
// Units should be stateless and thread-safe for concurrent execution.
type Unit interface {
	// Name returns a unique identifier for this unit.
	// The name is used for logging, debugging, and configuration.
	Name() string

	// Execute performs the unit's transformation on the provided State.
	// It returns a new State containing the results of the transformation.
	// The original State should not be modified.
	// Any errors during execution should be returned rather than panicking.
	//
	// Example:
	//
	//	newState, err := unit.Execute(ctx, state)
	//	if err != nil {
	//	    return state, fmt.Errorf("unit %s failed: %w", unit.Name(), err)
	//	}
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate checks if the unit is properly configured and ready for
	// execution. Return nil if validation passes, or an error describing
	// what is invalid.
	Validate() error
}

// UnitFactory creates a configured Unit from an identifier and a loosely
// typed configuration map.
type UnitFactory func(id string, config map[string]any) (Unit, error)

// UnitRegistry creates units by type name.
type UnitRegistry interface {
	// CreateUnit creates a new unit of unitType with the given id and
	// configuration.
	CreateUnit(unitType string, id string, config map[string]any) (Unit, error)

	// RegisterUnitFactory makes unitType available to CreateUnit.
	RegisterUnitFactory(unitType string, factory UnitFactory) error

	// GetSupportedTypes returns every registered unit type.
	GetSupportedTypes() []string
}
