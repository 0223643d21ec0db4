package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-podium/internal/domain"
)

var keyTrace = domain.NewKey[[]string]("trace")

// traceUnit appends its name to keyTrace, optionally failing instead.
type traceUnit struct {
	name        string
	err         error
	validateErr error
	onExecute   func()
}

func (u *traceUnit) Name() string { return u.name }

func (u *traceUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	if u.onExecute != nil {
		u.onExecute()
	}
	if u.err != nil {
		return state, u.err
	}
	trace, _ := domain.Get(state, keyTrace)
	return domain.With(state, keyTrace, append(trace, u.name)), nil
}

func (u *traceUnit) Validate() error { return u.validateErr }

func TestPipeline_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("runs units in insertion order", func(t *testing.T) {
		p := NewPipeline("test")
		for _, name := range []string{"first", "second", "third"} {
			require.NoError(t, p.Add(&traceUnit{name: name}))
		}

		state, err := p.Execute(ctx, domain.NewState())
		require.NoError(t, err)
		trace, ok := domain.Get(state, keyTrace)
		require.True(t, ok)
		assert.Equal(t, []string{"first", "second", "third"}, trace)
	})

	t.Run("empty pipeline returns its input", func(t *testing.T) {
		in := domain.With(domain.NewState(), keyTrace, []string{"seed"})
		out, err := NewPipeline("empty").Execute(ctx, in)
		require.NoError(t, err)
		trace, _ := domain.Get(out, keyTrace)
		assert.Equal(t, []string{"seed"}, trace)
	})

	t.Run("stops at the failing unit", func(t *testing.T) {
		boom := errors.New("boom")
		p := NewPipeline("ranking")
		require.NoError(t, p.Add(&traceUnit{name: "aggregate"}))
		require.NoError(t, p.Add(&traceUnit{name: "rank", err: boom}))
		require.NoError(t, p.Add(&traceUnit{name: "never"}))

		state, err := p.Execute(ctx, domain.NewState())
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "pipeline ranking: execution failed at rank")
		trace, _ := domain.Get(state, keyTrace)
		assert.Equal(t, []string{"aggregate"}, trace)
	})

	t.Run("honors cancellation between units", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		p := NewPipeline("cancel")
		require.NoError(t, p.Add(&traceUnit{name: "first", onExecute: cancel}))
		require.NoError(t, p.Add(&traceUnit{name: "second"}))

		state, err := p.Execute(ctx, domain.NewState())
		require.ErrorIs(t, err, context.Canceled)
		trace, _ := domain.Get(state, keyTrace)
		assert.Equal(t, []string{"first"}, trace)
	})
}

func TestPipeline_Add(t *testing.T) {
	p := NewPipeline("test")

	require.NoError(t, p.Add(&traceUnit{name: "a"}))
	assert.ErrorContains(t, p.Add(&traceUnit{name: "a"}), "already exists")
	assert.ErrorContains(t, p.Add(nil), "nil unit")

	units := p.Units()
	require.Len(t, units, 1)
	units[0] = &traceUnit{name: "replaced"}
	assert.Equal(t, "a", p.Units()[0].Name(), "Units returns a copy")
}

func TestPipeline_Validate(t *testing.T) {
	p := NewPipeline("tally")
	require.NoError(t, p.Add(&traceUnit{name: "ok"}))
	require.NoError(t, p.Validate())

	invalid := errors.New("bad config")
	require.NoError(t, p.Add(&traceUnit{name: "broken", validateErr: invalid}))
	err := p.Validate()
	require.ErrorIs(t, err, invalid)
	assert.Contains(t, err.Error(), "unit broken invalid")
}

func TestPipeline_NestsAsUnit(t *testing.T) {
	inner := NewPipeline("inner")
	require.NoError(t, inner.Add(&traceUnit{name: "x"}))
	require.NoError(t, inner.Add(&traceUnit{name: "y"}))

	outer := NewPipeline("outer")
	require.NoError(t, outer.Add(inner))
	require.NoError(t, outer.Add(&traceUnit{name: "z"}))

	state, err := outer.Execute(context.Background(), domain.NewState())
	require.NoError(t, err)
	trace, _ := domain.Get(state, keyTrace)
	assert.Equal(t, []string{"x", "y", "z"}, trace)
}
