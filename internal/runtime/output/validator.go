package output

import (
	"fmt"
	"math"
)

// Validate checks a value exported from the script engine and converts it
// into an Output. The first offending element rejects the whole result.
func Validate(result interface{}) (*Output, error) {
	obj, ok := result.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Reason: NonObjectReturn, Detail: describe(result)}
	}

	raw, present := obj["lines"]
	if !present || raw == nil {
		return nil, &ValidationError{Reason: MissingLines, Detail: "lines is absent"}
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, &ValidationError{Reason: MissingLines, Detail: "lines is " + describe(raw) + ", not an array"}
	}

	lines := make([]Line, 0, len(items))
	for i, item := range items {
		line, err := parseLine(i, item)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return &Output{Lines: lines}, nil
}

func parseLine(index int, item interface{}) (Line, error) {
	fields, ok := item.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Reason: UnknownLineType, Index: index, Problem: "element is " + describe(item)}
	}

	declared, _ := fields["type"].(string)
	fail := func(problem string) error {
		return &ValidationError{Reason: UnknownLineType, Detail: declared, Index: index, Problem: problem}
	}

	kind := LineType(declared)
	if kind != TypeText && kind != TypeProgress && kind != TypeBadge {
		if _, present := fields["type"]; !present {
			return nil, fail("missing type")
		}
		if declared == "" {
			return nil, fail("type is " + describe(fields["type"]))
		}
		return nil, fail(fmt.Sprintf("unknown type %q", declared))
	}

	label, err := requiredString(fields, "label")
	if err != nil {
		return nil, fail(err.Error())
	}
	color, colorErr := optionalString(fields, "color")

	switch kind {
	case TypeText:
		value, err := requiredString(fields, "value")
		if err != nil {
			return nil, fail(err.Error())
		}
		if colorErr != nil {
			return nil, fail(colorErr.Error())
		}
		return Text{Label: label, Value: value, Color: color}, nil

	case TypeProgress:
		value, err := requiredNumber(fields, "value")
		if err != nil {
			return nil, fail(err.Error())
		}
		max, err := requiredNumber(fields, "max")
		if err != nil {
			return nil, fail(err.Error())
		}
		unit, err := optionalString(fields, "unit")
		if err != nil {
			return nil, fail(err.Error())
		}
		if unit != "" && Unit(unit) != UnitPercent && Unit(unit) != UnitDollars {
			return nil, fail(fmt.Sprintf("unit %q is not percent or dollars", unit))
		}
		if colorErr != nil {
			return nil, fail(colorErr.Error())
		}
		return Progress{Label: label, Value: value, Max: max, Unit: Unit(unit), Color: color}, nil

	default:
		text, err := requiredString(fields, "text")
		if err != nil {
			return nil, fail(err.Error())
		}
		if colorErr != nil {
			return nil, fail(colorErr.Error())
		}
		return Badge{Label: label, Text: text, Color: color}, nil
	}
}

func requiredString(fields map[string]interface{}, key string) (string, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %s", key, describe(v))
	}
	return s, nil
}

// optionalString treats null and undefined like an absent key.
func optionalString(fields map[string]interface{}, key string) (string, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %s", key, describe(v))
	}
	return s, nil
}

func requiredNumber(fields map[string]interface{}, key string) (float64, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s must be a number, got %s", key, describe(v))
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%s must be finite", key)
	}
	return n, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	}
	return 0, false
}

// describe names the JS-ish kind of an exported value for diagnostics.
func describe(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case float64, float32, int64, int, int32, uint64, uint32:
		return "a number"
	case []interface{}:
		return "an array"
	case map[string]interface{}:
		return "an object"
	default:
		return fmt.Sprintf("a %T", v)
	}
}
