package tools

import (
	"fmt"
)

// ValidateArguments checks an argument payload against a tool's declared
// input schema (JSON Schema object form: type/properties/required) and
// returns the payload with declared defaults applied.
//
// Supported property types are string, number, integer, and boolean.
// Unknown arguments are rejected so the model learns the exact parameter
// set instead of silently losing input.
func ValidateArguments(schema map[string]interface{}, input map[string]interface{}) (map[string]interface{}, error) {
	if schema == nil {
		return input, nil
	}

	props, _ := schema["properties"].(map[string]interface{})

	out := make(map[string]interface{}, len(input))
	for key, value := range input {
		spec, ok := props[key].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unknown argument %q", key)
		}
		if err := checkType(key, spec, value); err != nil {
			return nil, err
		}
		out[key] = value
	}

	// Apply declared defaults for absent optional arguments.
	for key, p := range props {
		spec, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if _, present := out[key]; present {
			continue
		}
		if def, hasDefault := spec["default"]; hasDefault {
			out[key] = def
		}
	}

	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			name, _ := r.(string)
			if v, present := out[name]; !present || v == "" {
				return nil, fmt.Errorf("missing required argument %q", name)
			}
		}
	}

	return out, nil
}

func checkType(key string, spec map[string]interface{}, value interface{}) error {
	declared, _ := spec["type"].(string)
	if declared == "" || value == nil {
		return nil
	}

	switch declared {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("argument %q: expected string, got %T", key, value)
		}
	case "number", "integer":
		switch value.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("argument %q: expected %s, got %T", key, declared, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("argument %q: expected boolean, got %T", key, value)
		}
	}
	return nil
}
