package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

var _ ports.Unit = (*Pipeline)(nil)

// Pipeline is a sequential execution container that runs units in strict
// order, where each unit's output State becomes the input of the next.
// The ranking pipeline (aggregate then rank) and the tally pipeline are both
// Pipelines built from configuration.
type Pipeline struct {
	// id is the identifier used in error messages and logs.
	id string
	// units contains the ordered list of units to execute.
	units []ports.Unit
	// names tracks unit names for O(1) duplicate detection.
	names map[string]struct{}
	// mu provides thread-safe access to units during concurrent reads and
	// writes.
	mu sync.RWMutex
}

// NewPipeline creates an empty pipeline with the given identifier.
func NewPipeline(id string) *Pipeline {
	return &Pipeline{
		id:    id,
		units: make([]ports.Unit, 0),
		names: make(map[string]struct{}),
	}
}

// Execute runs every unit in order, passing the State along.
// The context is checked between units; on cancellation the State produced
// so far is returned with ctx.Err().
func (p *Pipeline) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	p.mu.RLock()
	units := make([]ports.Unit, len(p.units))
	copy(units, p.units)
	p.mu.RUnlock()

	current := state
	for _, unit := range units {
		select {
		case <-ctx.Done():
			return current, ctx.Err()
		default:
		}
		next, err := unit.Execute(ctx, current)
		if err != nil {
			return current, fmt.Errorf("pipeline %s: execution failed at %s: %w", p.id, unit.Name(), err)
		}
		current = next
	}
	return current, nil
}

// ID returns the identifier of the pipeline.
func (p *Pipeline) ID() string { return p.id }

// Name returns the identifier of the pipeline, letting a Pipeline stand in
// wherever a single ports.Unit is expected.
func (p *Pipeline) Name() string { return p.id }

// Add appends a unit to the end of the pipeline. It returns an error if the
// unit is nil or a unit with the same name is already present.
func (p *Pipeline) Add(unit ports.Unit) error {
	if unit == nil {
		return fmt.Errorf("cannot add nil unit to pipeline")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	name := unit.Name()
	if _, exists := p.names[name]; exists {
		return fmt.Errorf("unit with name %s already exists in pipeline", name)
	}
	p.units = append(p.units, unit)
	p.names[name] = struct{}{}
	return nil
}

// Units returns a copy of the ordered unit list.
func (p *Pipeline) Units() []ports.Unit {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ports.Unit, len(p.units))
	copy(out, p.units)
	return out
}

// Validate runs Validate on every unit and reports the first failure.
func (p *Pipeline) Validate() error {
	for _, unit := range p.Units() {
		if err := unit.Validate(); err != nil {
			return fmt.Errorf("pipeline %s: unit %s invalid: %w", p.id, unit.Name(), err)
		}
	}
	return nil
}
