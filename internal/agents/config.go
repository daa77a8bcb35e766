package agents

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"plebchat/internal/graph"
	"plebchat/internal/schema"
)

// LookupEnv reads one environment variable. os.LookupEnv by default.
type LookupEnv func(key string) (string, bool)

// ResolveConfig computes the effective configuration of a run. For each
// field an explicit request value wins, then the environment variable named
// by the upper-cased field name, then the field default. The result is
// validated against the model.
func ResolveConfig(m *schema.Model, request map[string]any, lookup LookupEnv) (map[string]any, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	values := make(map[string]any, len(m.Fields))
	for k, v := range request {
		if _, known := m.Field(k); !known {
			// left for Validate to report
			values[k] = v
		}
	}
	for _, f := range m.Fields {
		if v, ok := request[f.Name]; ok && !absent(v) {
			values[f.Name] = v
			continue
		}
		if v, ok := lookup(strings.ToUpper(f.Name)); ok && v != "" {
			values[f.Name] = v
		}
	}
	return m.Validate(values)
}

// absent reports request values that count as not given.
func absent(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// defaultsOf decodes the defaults published by a schema into a T.
func defaultsOf[T any](m *schema.Model) T {
	var out T
	if err := decodeInto(m.Defaults(), &out); err != nil {
		panic(fmt.Sprintf("decode %s defaults: %v", m.Name, err))
	}
	return out
}

// configFrom overlays the run's configurable values onto defaults.
func configFrom[T any](cfg graph.Config, defaults T) (T, error) {
	out := defaults
	if len(cfg.Configurable) == 0 {
		return out, nil
	}
	if err := decodeInto(cfg.Configurable, &out); err != nil {
		return defaults, fmt.Errorf("decode configuration: %w", err)
	}
	return out, nil
}

func decodeInto(values map[string]any, dst any) error {
	b, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
