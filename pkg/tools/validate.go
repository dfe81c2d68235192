package tools

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateAndCoerce checks args against the tool's JSON Schema and returns the
// arguments to execute with.
//
// When the first validation fails, obvious model mistakes are coerced and the
// arguments validated again, recursing into arrays and nested objects:
//   - "3" becomes 3 where a number or integer is expected
//   - 3 becomes "3" where a string is expected
//   - "true"/"false" become booleans
//   - a JSON-encoded string becomes an object or array
//   - a string that is not a number takes the property's default, if any
//
// An uncompilable schema fails open.
func ValidateAndCoerce(t Tool, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	def := t.Definition()
	if len(def.Parameters) == 0 {
		return args, nil
	}

	schema, err := compileSchema(def.Parameters)
	if err != nil {
		return args, nil
	}
	if err := validateValue(schema, args); err == nil {
		return args, nil
	}

	var node schemaNode
	_ = json.Unmarshal(def.Parameters, &node)
	coerced, _ := node.coerce(args).(map[string]any)
	if coerced == nil {
		coerced = args
	}
	if err := validateValue(schema, coerced); err != nil {
		return nil, formatValidationError(def.Name, args, err)
	}
	return coerced, nil
}

func compileSchema(schemaBytes []byte) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal schema")
	}
	c := jsonschema.NewCompiler()
	const url = "mem://tool/schema"
	if err := c.AddResource(url, doc); err != nil {
		return nil, errors.Wrap(err, "add schema resource")
	}
	return c.Compile(url)
}

func validateValue(schema *jsonschema.Schema, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return err
	}
	return schema.Validate(inst)
}

// schemaNode is the subset of JSON Schema the coercer understands.
type schemaNode struct {
	Type       string                `json:"type"`
	Properties map[string]schemaNode `json:"properties"`
	Items      *schemaNode           `json:"items"`
	Default    any                   `json:"default"`
}

func (n schemaNode) coerce(v any) any {
	switch n.Type {
	case "object":
		m, ok := v.(map[string]any)
		if !ok {
			if s, isStr := v.(string); isStr && json.Unmarshal([]byte(s), &m) == nil {
				ok = true
			}
		}
		if !ok {
			return v
		}
		out := make(map[string]any, len(m))
		for k, val := range m {
			if p, known := n.Properties[k]; known {
				out[k] = p.coerce(val)
			} else {
				out[k] = val
			}
		}
		return out
	case "array":
		arr, ok := v.([]any)
		if !ok {
			if s, isStr := v.(string); isStr && json.Unmarshal([]byte(s), &arr) == nil {
				ok = true
			}
		}
		if !ok {
			return v
		}
		if n.Items == nil {
			return arr
		}
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = n.Items.coerce(e)
		}
		return out
	case "number", "integer":
		if s, ok := v.(string); ok {
			var f float64
			if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &f); err == nil {
				if n.Type == "integer" {
					return int64(f)
				}
				return f
			}
			if n.Default != nil {
				return n.Default
			}
		}
	case "string":
		switch x := v.(type) {
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		case int64:
			return strconv.FormatInt(x, 10)
		case bool:
			return strconv.FormatBool(x)
		}
	case "boolean":
		if s, ok := v.(string); ok {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true":
				return true
			case "false":
				return false
			}
		}
	}
	return v
}

func formatValidationError(toolName string, args map[string]any, err error) error {
	argsJSON, _ := json.MarshalIndent(args, "", "  ")
	return errors.Errorf("tool %q argument validation failed:\n%v\n\nReceived:\n%s",
		toolName, err, argsJSON)
}
