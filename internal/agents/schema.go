package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Prop annotates one property of an emitted schema with what Go struct
// tags cannot express.
type Prop struct {
	Default any
	// Enum closes the value set. The values are published as a named
	// definition under $defs and the property refers to it.
	Enum     []string
	EnumName string

	Minimum *float64
	Maximum *float64
	Format  string
}

func bound(v float64) *float64 { return &v }

// emitSchema infers the JSON Schema of T and decorates it with titles,
// defaults, enums and bounds. Properties with a default are optional.
func emitSchema[T any](title string, props map[string]Prop) (*jsonschema.Schema, error) {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("infer %s schema: %w", title, err)
	}
	s.Title = title
	s.AdditionalProperties = nil
	s.Required = nil

	for _, name := range s.PropertyOrder {
		ps := s.Properties[name]
		ps.Title = titleCase(name)
		p, ok := props[name]
		if !ok {
			s.Required = append(s.Required, name)
			continue
		}
		if p.Default != nil {
			raw, err := json.Marshal(p.Default)
			if err != nil {
				return nil, fmt.Errorf("%s.%s default: %w", title, name, err)
			}
			ps.Default = raw
		} else {
			s.Required = append(s.Required, name)
		}
		ps.Minimum = p.Minimum
		ps.Maximum = p.Maximum
		ps.Format = p.Format

		if len(p.Enum) > 0 {
			if p.EnumName == "" {
				return nil, fmt.Errorf("%s.%s: enum needs a name", title, name)
			}
			if s.Defs == nil {
				s.Defs = make(map[string]*jsonschema.Schema)
			}
			values := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				values[i] = v
			}
			s.Defs[p.EnumName] = &jsonschema.Schema{Title: p.EnumName, Type: "string", Enum: values}
			s.Properties[name] = &jsonschema.Schema{
				Ref:         "#/$defs/" + p.EnumName,
				Title:       ps.Title,
				Default:     ps.Default,
				Description: ps.Description,
				Format:      ps.Format,
			}
		}
	}
	return s, nil
}

// mustEmitSchema is emitSchema for the package-level agent definitions.
func mustEmitSchema[T any](title string, props map[string]Prop) *jsonschema.Schema {
	s, err := emitSchema[T](title, props)
	if err != nil {
		panic(err)
	}
	return s
}

// titleCase turns a field name like lucky_number into "Lucky Number".
func titleCase(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
