// Package schema compiles JSON Schema object documents into validating
// record models used to build forms and check submitted values.
package schema

import (
	"encoding/json"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
)

// Kind tags the variant held by a Node.
type Kind int

const (
	KindPrimitive Kind = iota
	KindEnum
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindEnum:
		return "enum"
	case KindReference:
		return "reference"
	default:
		return "unknown"
	}
}

// Primitive is the host type of a field.
type Primitive string

const (
	Text  Primitive = "string"
	Int   Primitive = "integer"
	Float Primitive = "number"
	Bool  Primitive = "boolean"
)

var primitives = map[string]Primitive{
	"string":  Text,
	"integer": Int,
	"number":  Float,
	"boolean": Bool,
}

// Constraints are the validation and display annotations carried through
// compilation.
type Constraints struct {
	Minimum          *float64 `json:"minimum,omitempty"`
	Maximum          *float64 `json:"maximum,omitempty"`
	ExclusiveMinimum *float64 `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum *float64 `json:"exclusiveMaximum,omitempty"`
	MinLength        *int     `json:"minLength,omitempty"`
	MaxLength        *int     `json:"maxLength,omitempty"`
	Pattern          string   `json:"pattern,omitempty"`
	Format           string   `json:"format,omitempty"`
}

// merge overlays the non-zero values of o onto c.
func (c Constraints) merge(o Constraints) Constraints {
	if o.Minimum != nil {
		c.Minimum = o.Minimum
	}
	if o.Maximum != nil {
		c.Maximum = o.Maximum
	}
	if o.ExclusiveMinimum != nil {
		c.ExclusiveMinimum = o.ExclusiveMinimum
	}
	if o.ExclusiveMaximum != nil {
		c.ExclusiveMaximum = o.ExclusiveMaximum
	}
	if o.MinLength != nil {
		c.MinLength = o.MinLength
	}
	if o.MaxLength != nil {
		c.MaxLength = o.MaxLength
	}
	if o.Pattern != "" {
		c.Pattern = o.Pattern
	}
	if o.Format != "" {
		c.Format = o.Format
	}
	return c
}

// Node describes one field of a schema.
type Node struct {
	Kind        Kind
	Type        Primitive
	Enum        []string
	Default     any
	HasDefault  bool
	Title       string
	Description string
	Constraints Constraints

	// Ref is the $ref target of a reference node, as written.
	Ref string

	// typed is set when the source declared a type explicitly.
	typed bool
	enum  []any
}

// parseNode reads a property schema. Enum values are kept raw until the
// node is finalized.
func parseNode(s *jsonschema.Schema) (Node, error) {
	n := Node{
		Kind:        KindPrimitive,
		Type:        Text,
		Title:       s.Title,
		Description: s.Description,
		Constraints: Constraints{
			Minimum:          s.Minimum,
			Maximum:          s.Maximum,
			ExclusiveMinimum: s.ExclusiveMinimum,
			ExclusiveMaximum: s.ExclusiveMaximum,
			MinLength:        s.MinLength,
			MaxLength:        s.MaxLength,
			Pattern:          s.Pattern,
			Format:           s.Format,
		},
	}

	if t, ok := declaredType(s); ok {
		n.Type = t
		n.typed = true
	}

	if len(s.Default) > 0 {
		var v any
		if err := json.Unmarshal(s.Default, &v); err != nil {
			return Node{}, err
		}
		n.Default = v
		n.HasDefault = true
	}

	if s.Enum != nil {
		n.Kind = KindEnum
		n.enum = s.Enum
	}

	ref := s.Ref
	if ref == "" && len(s.AllOf) == 1 && s.AllOf[0].Ref != "" {
		ref = s.AllOf[0].Ref
	}
	if ref != "" {
		n.Kind = KindReference
		n.Ref = ref
	}
	return n, nil
}

// declaredType maps the schema's type keyword. A type list uses its first
// non-null member; unrecognized names fall back to text.
func declaredType(s *jsonschema.Schema) (Primitive, bool) {
	name := s.Type
	if name == "" {
		i := slices.IndexFunc(s.Types, func(t string) bool { return t != "null" })
		if i < 0 {
			return "", false
		}
		name = s.Types[i]
	}
	if name == "" {
		return "", false
	}
	if p, ok := primitives[name]; ok {
		return p, true
	}
	return Text, true
}

// overlay merges a local override onto a resolved definition. Local values
// win, including a conflicting type.
func overlay(def, local Node) Node {
	out := def
	out.Ref = ""
	if local.typed {
		out.Type = local.Type
		out.typed = true
	}
	if local.HasDefault {
		out.Default = local.Default
		out.HasDefault = true
	}
	if local.Title != "" {
		out.Title = local.Title
	}
	if local.Description != "" {
		out.Description = local.Description
	}
	if local.enum != nil {
		out.enum = local.enum
	}
	out.Constraints = def.Constraints.merge(local.Constraints)
	if out.enum != nil {
		out.Kind = KindEnum
	} else {
		out.Kind = KindPrimitive
	}
	return out
}
