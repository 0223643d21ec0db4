// Package units provides the scoring, ranking and tally algorithms of the
// engine, each also packaged as a ports.Unit for pipeline execution.
package units

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Common errors returned by units.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrMissingInput is returned when a required state key is absent.
	ErrMissingInput = errors.New("required input missing from state")

	// ErrInvalidTopN is returned when a negative selection size is requested.
	ErrInvalidTopN = errors.New("top n must not be negative")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()
