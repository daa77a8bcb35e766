package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

// Field is one compiled property of a model.
type Field struct {
	Name string
	Node
	Required bool
}

// Label is the display name of the field.
func (f Field) Label() string {
	if f.Title != "" {
		return f.Title
	}
	return f.Name
}

// Model is a named record type compiled from a schema. It is immutable and
// safe for concurrent use.
type Model struct {
	Name   string
	Fields []Field

	index     map[string]int
	validator *validator.Schema
}

func newModel(name string, fields []Field) (*Model, error) {
	m := &Model{
		Name:   name,
		Fields: fields,
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		m.index[f.Name] = i
	}
	v, err := compileValidator(m)
	if err != nil {
		return nil, &SchemaError{Model: name, Reason: "compile validator", Err: err}
	}
	m.validator = v
	return m, nil
}

// Field looks a field up by name.
func (m *Model) Field(name string) (Field, bool) {
	i, ok := m.index[name]
	if !ok {
		return Field{}, false
	}
	return m.Fields[i], true
}

// Names returns the field names in declaration order.
func (m *Model) Names() []string {
	out := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		out[i] = f.Name
	}
	return out
}

// Defaults returns the default value of every field that declares one.
func (m *Model) Defaults() map[string]any {
	out := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		if f.HasDefault {
			out[f.Name] = f.Default
		}
	}
	return out
}

// Without returns a copy of the model under a new name with the given
// fields removed.
func (m *Model) Without(name string, drop ...string) (*Model, error) {
	fields := make([]Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		if !slices.Contains(drop, f.Name) {
			fields = append(fields, f)
		}
	}
	return newModel(name, fields)
}

// Validate checks input against the model and returns a new record with
// defaults filled in and values converted to the field types. Unknown
// fields and missing required fields are violations.
func (m *Model) Validate(input map[string]any) (map[string]any, error) {
	var violations []Violation
	for k := range input {
		if _, ok := m.index[k]; !ok {
			violations = append(violations, Violation{Field: k, Message: "unknown field"})
		}
	}

	out := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		v, ok := input[f.Name]
		if !ok || v == nil {
			switch {
			case f.HasDefault:
				out[f.Name] = f.Default
			case f.Required:
				violations = append(violations, Violation{Field: f.Name, Message: "field required"})
			}
			continue
		}
		cv, err := coerce(f, v)
		if err != nil {
			violations = append(violations, Violation{Field: f.Name, Message: err.Error()})
			continue
		}
		out[f.Name] = cv
	}
	if len(violations) > 0 {
		slices.SortStableFunc(violations, func(a, b Violation) int { return m.position(a.Field) - m.position(b.Field) })
		return nil, &ValidationError{Model: m.Name, Violations: violations}
	}

	doc, err := toJSONValue(out)
	if err != nil {
		return nil, &ValidationError{Model: m.Name, Violations: []Violation{{Message: err.Error()}}}
	}
	if err := m.validator.Validate(doc); err != nil {
		return nil, toValidationError(m.Name, err)
	}
	return out, nil
}

func (m *Model) position(field string) int {
	if i, ok := m.index[field]; ok {
		return i
	}
	return len(m.Fields)
}

// coerce converts v to the host type of f. Strings are parsed for numeric
// and boolean fields so that form input can be validated directly.
func coerce(f Field, v any) (any, error) {
	if f.Kind == KindEnum {
		switch x := v.(type) {
		case string:
			return x, nil
		case fmt.Stringer:
			return x.String(), nil
		default:
			return fmt.Sprint(x), nil
		}
	}

	switch f.Type {
	case Int:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case float64:
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("expected integer, got %v", x)
			}
			// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
			if x < math.MinInt64 || x >= math.MaxInt64 {
				return nil, fmt.Errorf("integer %v out of range", x)
			}
			return int64(x), nil
		case json.Number:
			n, err := x.Int64()
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %s", x)
			}
			return n, nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", x)
			}
			return n, nil
		}
		return nil, fmt.Errorf("expected integer, got %T", v)
	case Float:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case json.Number:
			n, err := x.Float64()
			if err != nil {
				return nil, fmt.Errorf("expected number, got %s", x)
			}
			return n, nil
		case string:
			n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, fmt.Errorf("expected number, got %q", x)
			}
			return n, nil
		}
		return nil, fmt.Errorf("expected number, got %T", v)
	case Bool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", x)
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", v)
	default:
		switch x := v.(type) {
		case string:
			return x, nil
		case fmt.Stringer:
			return x.String(), nil
		}
		return nil, fmt.Errorf("expected string, got %T", v)
	}
}

// compileValidator generates a closed JSON Schema for the model and
// compiles it for constraint checks.
func compileValidator(m *Model) (*validator.Schema, error) {
	props := make(map[string]any, len(m.Fields))
	required := []string{}
	for _, f := range m.Fields {
		p := map[string]any{"type": string(f.Type)}
		if f.Kind == KindEnum {
			p["enum"] = f.Enum
		}
		c := f.Constraints
		setFloat(p, "minimum", c.Minimum)
		setFloat(p, "maximum", c.Maximum)
		setFloat(p, "exclusiveMinimum", c.ExclusiveMinimum)
		setFloat(p, "exclusiveMaximum", c.ExclusiveMaximum)
		if c.MinLength != nil {
			p["minLength"] = *c.MinLength
		}
		if c.MaxLength != nil {
			p["maxLength"] = *c.MaxLength
		}
		if c.Pattern != "" {
			p["pattern"] = c.Pattern
		}
		props[f.Name] = p
		if f.Required {
			required = append(required, f.Name)
		}
	}
	raw, err := json.Marshal(map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	})
	if err != nil {
		return nil, err
	}
	doc, err := validator.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}

	url := "plebchat://models/" + m.Name + ".json"
	c := validator.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

func setFloat(p map[string]any, key string, v *float64) {
	if v != nil {
		p[key] = *v
	}
}

// toJSONValue round-trips a value through JSON so numbers become
// json.Number as the validator expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return validator.UnmarshalJSON(strings.NewReader(string(b)))
}

func toValidationError(model string, err error) *ValidationError {
	var verr *validator.ValidationError
	if !errors.As(err, &verr) {
		return &ValidationError{Model: model, Violations: []Violation{{Message: err.Error()}}}
	}
	violations := collectViolations(verr)
	if len(violations) == 0 {
		violations = []Violation{{Message: verr.Error()}}
	}
	return &ValidationError{Model: model, Violations: violations}
}

func collectViolations(verr *validator.ValidationError) []Violation {
	var out []Violation
	for _, unit := range verr.BasicOutput().Errors {
		if unit.Error == nil {
			continue
		}
		field, _, _ := strings.Cut(strings.TrimPrefix(unit.InstanceLocation, "/"), "/")
		out = append(out, Violation{Field: field, Message: unit.Error.String()})
	}
	// drop the root-level summaries when field-level causes exist
	fielded := slices.DeleteFunc(slices.Clone(out), func(v Violation) bool { return v.Field == "" })
	if len(fielded) > 0 {
		return fielded
	}
	return out
}
