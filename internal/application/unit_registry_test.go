package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-podium/infrastructure/units"
	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

// testMockUnit implements ports.Unit for testing custom factory registration.
type testMockUnit struct {
	name   string
	config map[string]any
}

func (m *testMockUnit) Name() string { return m.name }

func (m *testMockUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	return state, nil
}

func (m *testMockUnit) Validate() error { return nil }

func TestNewDefaultUnitRegistry(t *testing.T) {
	registry := NewDefaultUnitRegistry()

	assert.Equal(t,
		[]string{UnitTypeRank, UnitTypeTrimmedSum, UnitTypeVoteTally},
		registry.GetSupportedTypes(),
	)
}

func TestCreateUnit_Success(t *testing.T) {
	registry := NewDefaultUnitRegistry()

	tests := []struct {
		name     string
		unitType string
		config   map[string]any
		verify   func(t *testing.T, unit ports.Unit)
	}{
		{
			name:     "trimmed sum",
			unitType: UnitTypeTrimmedSum,
			config:   map[string]any{"normalize_text": true},
			verify: func(t *testing.T, unit ports.Unit) {
				assert.IsType(t, &units.TrimmedSumUnit{}, unit)
			},
		},
		{
			name:     "rank by player index",
			unitType: UnitTypeRank,
			config:   map[string]any{"sort_criteria": "player_index"},
			verify: func(t *testing.T, unit ports.Unit) {
				assert.IsType(t, &units.RankUnit{}, unit)
			},
		},
		{
			name:     "vote tally with nil config",
			unitType: UnitTypeVoteTally,
			config:   nil,
			verify: func(t *testing.T, unit ports.Unit) {
				assert.IsType(t, &units.VoteTallyUnit{}, unit)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := registry.CreateUnit(tt.unitType, "unit-"+tt.unitType, tt.config)
			require.NoError(t, err)
			require.NotNil(t, unit)
			assert.Equal(t, "unit-"+tt.unitType, unit.Name())
			assert.NoError(t, unit.Validate())
			tt.verify(t, unit)
		})
	}
}

func TestCreateUnit_Errors(t *testing.T) {
	registry := NewDefaultUnitRegistry()

	tests := []struct {
		name     string
		unitType string
		id       string
		config   map[string]any
		wantErr  string
	}{
		{
			name:     "unsupported type",
			unitType: "llm_judge",
			id:       "judge",
			wantErr:  "unsupported unit type: llm_judge",
		},
		{
			name:     "empty id",
			unitType: UnitTypeRank,
			id:       "",
			wantErr:  "unit ID cannot be empty",
		},
		{
			name:     "invalid sort criteria",
			unitType: UnitTypeRank,
			id:       "rank",
			config:   map[string]any{"sort_criteria": "alphabetical"},
			wantErr:  "failed to create unit rank of type rank",
		},
		{
			name:     "negative top n",
			unitType: UnitTypeVoteTally,
			id:       "tally",
			config:   map[string]any{"top_n": -1},
			wantErr:  "failed to create unit tally of type vote_tally",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := registry.CreateUnit(tt.unitType, tt.id, tt.config)
			require.Error(t, err)
			assert.Nil(t, unit)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegisterUnitFactory(t *testing.T) {
	t.Run("custom type", func(t *testing.T) {
		registry := NewDefaultUnitRegistry()
		err := registry.RegisterUnitFactory("passthrough", func(id string, config map[string]any) (ports.Unit, error) {
			return &testMockUnit{name: id, config: config}, nil
		})
		require.NoError(t, err)

		assert.Contains(t, registry.GetSupportedTypes(), "passthrough")
		unit, err := registry.CreateUnit("passthrough", "p1", map[string]any{"k": "v"})
		require.NoError(t, err)
		mock, ok := unit.(*testMockUnit)
		require.True(t, ok)
		assert.Equal(t, "p1", mock.Name())
		assert.Equal(t, "v", mock.config["k"])
	})

	t.Run("replaces a built-in type", func(t *testing.T) {
		registry := NewDefaultUnitRegistry()
		require.NoError(t, registry.RegisterUnitFactory(UnitTypeRank, func(id string, _ map[string]any) (ports.Unit, error) {
			return &testMockUnit{name: id}, nil
		}))

		unit, err := registry.CreateUnit(UnitTypeRank, "rank", nil)
		require.NoError(t, err)
		assert.IsType(t, &testMockUnit{}, unit)
		assert.Len(t, registry.GetSupportedTypes(), 3)
	})

	t.Run("factory error is wrapped", func(t *testing.T) {
		registry := NewDefaultUnitRegistry()
		factoryErr := errors.New("factory failed")
		require.NoError(t, registry.RegisterUnitFactory("broken", func(string, map[string]any) (ports.Unit, error) {
			return nil, factoryErr
		}))

		_, err := registry.CreateUnit("broken", "b1", nil)
		assert.ErrorIs(t, err, factoryErr)
	})

	t.Run("invalid registrations", func(t *testing.T) {
		registry := NewDefaultUnitRegistry()
		factory := func(id string, _ map[string]any) (ports.Unit, error) {
			return &testMockUnit{name: id}, nil
		}

		assert.ErrorContains(t, registry.RegisterUnitFactory("", factory), "unit type cannot be empty")
		assert.ErrorContains(t, registry.RegisterUnitFactory("x", nil), "factory function cannot be nil")
	})
}

func TestThreadSafety_RegisterAndCreate(t *testing.T) {
	registry := NewDefaultUnitRegistry()
	const workers = 20

	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := range workers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unitType := fmt.Sprintf("custom_%d", i)
			errs <- registry.RegisterUnitFactory(unitType, func(id string, _ map[string]any) (ports.Unit, error) {
				return &testMockUnit{name: id}, nil
			})
		}()
		go func() {
			defer wg.Done()
			_, err := registry.CreateUnit(UnitTypeVoteTally, fmt.Sprintf("tally_%d", i), nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, registry.GetSupportedTypes(), 3+workers)
}
