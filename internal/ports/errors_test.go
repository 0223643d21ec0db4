package ports

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestStoreError tests message formatting and unwrapping of StoreError.
func TestStoreError(t *testing.T) {
	err := NewStoreError("c1/g1", "AppendRecord", ErrConflict)

	assert.Equal(t, "store error: operation=AppendRecord, key=c1/g1, err=conflict", err.Error())
	assert.Equal(t, "c1/g1", err.Key)
	assert.Equal(t, "AppendRecord", err.Operation)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("store.path", ErrConfigNotFound)

	assert.Equal(t, "config error: key=store.path, err=configuration not found", err.Error())
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

// TestCommonInfrastructureErrors checks that each sentinel has the expected
// message.
func TestCommonInfrastructureErrors(t *testing.T) {
	tests := []struct {
		err     error
		message string
	}{
		{ErrNotFound, "not found"},
		{ErrConflict, "conflict"},
		{ErrConfigNotFound, "configuration not found"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
		})
	}
}

// TestErrorUnwrapping tests that all custom error types in the package
// support unwrapping.
func TestErrorUnwrapping(t *testing.T) {
	baseErr := errors.New("underlying error")

	errorList := []interface {
		error
		Unwrap() error
	}{
		NewStoreError("key", "op", baseErr),
		NewConfigError("key", baseErr),
	}

	for _, err := range errorList {
		assert.Equal(t, baseErr, err.Unwrap(), "%T should unwrap to base error", err)
		assert.True(t, errors.Is(err, baseErr), "%T should match base error with Is", err)
	}
}
