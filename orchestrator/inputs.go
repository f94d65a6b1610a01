package orchestrator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kestrelfi/patternrunner/core"
	"github.com/kestrelfi/patternrunner/pattern"
)

// coerceInputs enforces that every required input must
// be present; values are type-coerced per the input spec; anything that
// fails is reported as InvalidInput.
func coerceInputs(p *pattern.Pattern, raw map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(p.Inputs))

	for _, spec := range p.Inputs {
		v, present := raw[spec.Name]
		if !present {
			if spec.Required {
				return nil, core.NewEngineError(core.KindInvalidInput, "orchestrator.coerceInputs",
					fmt.Sprintf("required input %q missing", spec.Name), core.ErrInvalidInput).WithPattern(p.ID)
			}
			if spec.Default != nil {
				out[spec.Name] = spec.Default
			}
			continue
		}

		coerced, err := coerceValue(spec, v)
		if err != nil {
			return nil, core.NewEngineError(core.KindInvalidInput, "orchestrator.coerceInputs",
				fmt.Sprintf("input %q: %s", spec.Name, err.Error()), core.ErrInvalidInput).WithPattern(p.ID)
		}
		out[spec.Name] = coerced
	}

	return out, nil
}

func coerceValue(spec pattern.InputSpec, v interface{}) (interface{}, error) {
	switch spec.Type {
	case pattern.InputString, pattern.InputUUID:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case pattern.InputInteger:
		switch n := v.(type) {
		case float64:
			return int(n), nil
		case int:
			return n, nil
		case string:
			i, err := strconv.Atoi(n)
			if err != nil {
				return nil, fmt.Errorf("not an integer: %q", n)
			}
			return i, nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", v)
		}
	case pattern.InputDecimal:
		switch n := v.(type) {
		case float64:
			return n, nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("not a decimal: %q", n)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("expected decimal, got %T", v)
		}
	case pattern.InputBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil
	case pattern.InputDate:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected date string, got %T", v)
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return nil, fmt.Errorf("not a valid date (YYYY-MM-DD): %q", s)
		}
		return s, nil
	case pattern.InputEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string for enum, got %T", v)
		}
		for _, allowed := range spec.Enum {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fmt.Errorf("value %q not in enum %v", s, spec.Enum)
	default:
		return v, nil
	}
}
