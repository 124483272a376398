package reptree

import (
	"fmt"
	"time"
)

// ReservedTimestampKeys names the property keys this engine treats as
// timestamps by convention: their string values must be valid ISO-8601
// (spec.md §4.2, §6 "Timestamps stored as ISO-8601 strings"). Spec.md
// leaves the concrete set of reserved names to the implementer (§9 open
// question); callers that need a different set construct an Engine
// with WithReservedTimestampKeys.
var ReservedTimestampKeys = map[string]bool{
	"createdAt": true,
	"updatedAt": true,
	"deletedAt": true,
	"timestamp": true,
}

// ValidateValue rejects anything outside the JSON-like value domain
// spec.md §4.2 defines: null, bool, number, string, array of such, or
// plain object of such — no cycles, no functions, no custom types, no
// typed buffers, regexes, maps/sets-as-values, big integers, symbols,
// or non-string dates. reserved additionally enforces the ISO-8601 rule
// for keys in ReservedTimestampKeys (or a caller-supplied override).
func ValidateValue(key string, v any, reserved map[string]bool) error {
	if err := validateValueDomain(v, 0); err != nil {
		return NewValidationError("value["+key+"]", v, err)
	}
	if reserved[key] {
		s, ok := v.(string)
		if !ok {
			return NewValidationError("value["+key+"]", v, fmt.Errorf("reserved timestamp key requires a string value"))
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return NewValidationError("value["+key+"]", v, fmt.Errorf("reserved timestamp key requires an ISO-8601 string: %w", err))
		}
	}
	return nil
}

// maxValueDepth bounds recursive array/object validation so a
// maliciously or accidentally self-referential structure (impossible to
// build by cycle in plain JSON, but easy to build by hand in Go) cannot
// blow the stack.
const maxValueDepth = 64

func validateValueDomain(v any, depth int) error {
	if depth > maxValueDepth {
		return fmt.Errorf("value nesting exceeds %d levels", maxValueDepth)
	}
	switch t := v.(type) {
	case nil, bool, string:
		return nil
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case []any:
		for _, elem := range t {
			if err := validateValueDomain(elem, depth+1); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for _, elem := range t {
			if err := validateValueDomain(elem, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported value type %T: functions, structs, channels, regexes, maps/sets, big integers and symbols are not part of the value domain", v)
	}
}
