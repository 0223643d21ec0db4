package application

import (
	"fmt"
	"maps"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-podium/internal/domain"
)

// decodeParameters converts a YAML parameter node into a map. An absent
// node yields an empty map.
func decodeParameters(params yaml.Node) (map[string]any, error) {
	paramMap := make(map[string]any)
	if params.Kind == 0 {
		return paramMap, nil
	}
	if err := params.Decode(&paramMap); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	if paramMap == nil {
		paramMap = make(map[string]any)
	}
	return paramMap, nil
}

// ValidateUnitParameters validates the parameters of a built-in unit type,
// rejecting unknown keys and values of the wrong type. Types without
// built-in rules are accepted as-is; they are checked by their factory.
func ValidateUnitParameters(unitType string, params yaml.Node) error {
	paramMap, err := decodeParameters(params)
	if err != nil {
		return err
	}

	switch unitType {
	case UnitTypeTrimmedSum:
		return validateTrimmedSumParams(paramMap)
	case UnitTypeRank:
		return validateRankParams(paramMap)
	case UnitTypeVoteTally:
		return validateVoteTallyParams(paramMap)
	default:
		return nil
	}
}

func rejectUnknown(unitType string, params map[string]any, allowed ...string) error {
	for _, key := range slices.Sorted(maps.Keys(params)) {
		if !slices.Contains(allowed, key) {
			return fmt.Errorf("%s does not accept parameter %q", unitType, key)
		}
	}
	return nil
}

func validateTrimmedSumParams(params map[string]any) error {
	if err := rejectUnknown(UnitTypeTrimmedSum, params, "normalize_text"); err != nil {
		return err
	}
	if v, ok := params["normalize_text"]; ok {
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("normalize_text must be a boolean")
		}
	}
	return nil
}

func validateRankParams(params map[string]any) error {
	if err := rejectUnknown(UnitTypeRank, params, "sort_criteria"); err != nil {
		return err
	}
	v, ok := params["sort_criteria"]
	if !ok {
		return nil
	}
	criteria, ok := v.(string)
	if !ok {
		return fmt.Errorf("sort_criteria must be a string")
	}
	valid := []string{string(domain.SortByTotalScore), string(domain.SortByPlayerIndex)}
	if !slices.Contains(valid, criteria) {
		return fmt.Errorf("invalid sort_criteria: %s", criteria)
	}
	return nil
}

func validateVoteTallyParams(params map[string]any) error {
	if err := rejectUnknown(UnitTypeVoteTally, params, "top_n"); err != nil {
		return err
	}
	v, ok := params["top_n"]
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case int:
		if n < 0 {
			return fmt.Errorf("top_n must not be negative")
		}
	default:
		return fmt.Errorf("top_n must be an integer")
	}
	return nil
}

// RegisterConfigValidators registers the custom struct tag validators used
// by Config.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("unitid", validateUnitID); err != nil {
		return fmt.Errorf("failed to register unitid validator: %w", err)
	}
	return nil
}

// validateUnitID accepts identifiers of ASCII letters, digits, underscores
// and hyphens, starting with a letter, at most 100 characters long.
func validateUnitID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" || len(id) > 100 {
		return false
	}
	for i, ch := range id {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case i > 0 && (ch >= '0' && ch <= '9' || ch == '_' || ch == '-'):
		default:
			return false
		}
	}
	return true
}
