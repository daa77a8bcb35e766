package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/gjson"
)

// Compile builds a model from a raw JSON Schema object document. Field
// order follows the order of the document's properties.
func Compile(name string, raw []byte) (*Model, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &SchemaError{Model: name, Reason: "malformed JSON"}
	}
	var doc jsonschema.Schema
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &SchemaError{Model: name, Reason: "decode schema", Err: err}
	}
	return CompileDocument(name, &doc, PropertyOrder(raw))
}

// PropertyOrder lists the keys of a raw schema's properties in document
// order.
func PropertyOrder(raw []byte) []string {
	var order []string
	gjson.GetBytes(raw, "properties").ForEach(func(key, _ gjson.Result) bool {
		order = append(order, key.String())
		return true
	})
	return order
}

// CompileDocument builds a model from a parsed document. Properties missing
// from order (or all of them when order is empty and the document carries
// no PropertyOrder) are appended in name order.
func CompileDocument(name string, doc *jsonschema.Schema, order []string) (*Model, error) {
	if doc == nil {
		return nil, &SchemaError{Model: name, Reason: "nil schema"}
	}
	if doc.Type != "" && doc.Type != "object" {
		return nil, &SchemaError{Model: name, Reason: fmt.Sprintf("top-level type %q is not an object", doc.Type)}
	}
	if len(order) == 0 {
		order = doc.PropertyOrder
	}

	fields := make([]Field, 0, len(doc.Properties))
	for _, prop := range propertyNames(doc, order) {
		f, err := compileField(name, prop, doc)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return newModel(name, fields)
}

func propertyNames(doc *jsonschema.Schema, order []string) []string {
	names := make([]string, 0, len(doc.Properties))
	seen := make(map[string]bool, len(doc.Properties))
	for _, p := range order {
		if _, ok := doc.Properties[p]; ok && !seen[p] {
			names = append(names, p)
			seen[p] = true
		}
	}
	var rest []string
	for p := range doc.Properties {
		if !seen[p] {
			rest = append(rest, p)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

func compileField(model, prop string, doc *jsonschema.Schema) (Field, error) {
	ps := doc.Properties[prop]
	if ps == nil {
		return Field{}, &SchemaError{Model: model, Field: prop, Reason: "nil property schema"}
	}
	n, err := parseNode(ps)
	if err != nil {
		return Field{}, &SchemaError{Model: model, Field: prop, Reason: "decode default", Err: err}
	}

	if n.Kind == KindReference {
		name, ok := definitionName(n.Ref)
		if !ok {
			return Field{}, &SchemaError{Model: model, Field: prop, Reason: fmt.Sprintf("unsupported reference %q", n.Ref)}
		}
		def := definition(doc, name)
		if def == nil {
			return Field{}, &SchemaError{Model: model, Field: prop, Reason: fmt.Sprintf("unresolved reference %q", name)}
		}
		dn, err := parseNode(def)
		if err != nil {
			return Field{}, &SchemaError{Model: model, Field: prop, Reason: "decode default", Err: err}
		}
		if dn.Kind == KindReference {
			return Field{}, &SchemaError{Model: model, Field: prop, Reason: fmt.Sprintf("reference %q resolves to another reference", name)}
		}
		n = overlay(dn, n)
	}

	f := Field{Name: prop, Node: n}
	if n.Kind == KindEnum {
		values, err := enumValues(n.enum)
		if err != nil {
			return Field{}, &SchemaError{Model: model, Field: prop, Reason: err.Error()}
		}
		f.Enum = values
		f.Type = Text
	}
	f.enum = nil

	if f.HasDefault && f.Default == nil {
		// null default: optional without a value
		f.HasDefault = false
		return f, nil
	}
	if !f.HasDefault {
		f.Required = true
		return f, nil
	}
	v, err := coerce(f, f.Default)
	if err != nil {
		return Field{}, &SchemaError{Model: model, Field: prop, Reason: "invalid default", Err: err}
	}
	if f.Kind == KindEnum && !slices.Contains(f.Enum, v.(string)) {
		return Field{}, &SchemaError{Model: model, Field: prop, Reason: fmt.Sprintf("default %q is not one of %v", v, f.Enum)}
	}
	f.Default = v
	return f, nil
}

// definitionName extracts the definition a local reference points to. Only
// "#/$defs/<name>" and "#/definitions/<name>" are supported.
func definitionName(ref string) (string, bool) {
	for _, prefix := range []string{"#/$defs/", "#/definitions/"} {
		if name, ok := strings.CutPrefix(ref, prefix); ok {
			return name, name != "" && !strings.Contains(name, "/")
		}
	}
	return "", false
}

func definition(doc *jsonschema.Schema, name string) *jsonschema.Schema {
	if d, ok := doc.Defs[name]; ok {
		return d
	}
	return doc.Definitions[name]
}

func enumValues(raw []any) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("enum has no values")
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s := fmt.Sprint(v)
		if slices.Contains(out, s) {
			return nil, fmt.Errorf("enum value %q repeated", s)
		}
		out = append(out, s)
	}
	return out, nil
}
