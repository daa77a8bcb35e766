package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ollamaConfigSchema = `{
  "$defs": {
    "KeepAlive": {"enum": ["0", "5m", "-1"], "title": "KeepAlive", "type": "string"},
    "LLMModelsAvailable": {"enum": ["phi4", "llama3.1"], "title": "LLMModelsAvailable", "type": "string"},
    "Loops": {"type": "integer", "minimum": 1, "default": 3},
    "Plain": {"type": "string", "maxLength": 8}
  },
  "title": "Configuration",
  "type": "object",
  "properties": {
    "model": {"$ref": "#/$defs/LLMModelsAvailable", "default": "phi4"},
    "temperature": {"type": "integer", "default": 50, "minimum": 0, "maximum": 100, "description": "Temperature for the model"},
    "keep_alive": {"$ref": "#/$defs/KeepAlive", "default": "5m", "description": "How long to keep the model in memory"},
    "loops": {"$ref": "#/$defs/Loops"},
    "label": {"$ref": "#/$defs/Plain"},
    "disable_commands": {"type": "boolean", "default": false}
  }
}`

func TestCompilePreservesPropertyOrder(t *testing.T) {
	m, err := Compile("ollama_config", []byte(ollamaConfigSchema))
	require.NoError(t, err)

	assert.Equal(t, "ollama_config", m.Name)
	assert.Equal(t, []string{"model", "temperature", "keep_alive", "loops", "label", "disable_commands"}, m.Names())
}

func TestCompileEnumDefaultBinds(t *testing.T) {
	m, err := Compile("ollama_config", []byte(ollamaConfigSchema))
	require.NoError(t, err)

	f, ok := m.Field("keep_alive")
	require.True(t, ok)
	assert.Equal(t, KindEnum, f.Kind)
	assert.Equal(t, []string{"0", "5m", "-1"}, f.Enum)
	assert.False(t, f.Required)
	assert.Equal(t, "How long to keep the model in memory", f.Description)

	out, err := m.Validate(map[string]any{"label": "x"})
	require.NoError(t, err)
	assert.Equal(t, "5m", out["keep_alive"])
	assert.Equal(t, "phi4", out["model"])
	assert.Equal(t, int64(50), out["temperature"])
	assert.Equal(t, false, out["disable_commands"])
}

func TestCompileReferenceOnlyField(t *testing.T) {
	m, err := Compile("ollama_config", []byte(ollamaConfigSchema))
	require.NoError(t, err)

	loops, _ := m.Field("loops")
	assert.True(t, loops.HasDefault)
	assert.Equal(t, int64(3), loops.Default)
	assert.Equal(t, Int, loops.Type)
	require.NotNil(t, loops.Constraints.Minimum)
	assert.Equal(t, 1.0, *loops.Constraints.Minimum)

	label, _ := m.Field("label")
	assert.True(t, label.Required)
	assert.False(t, label.HasDefault)
	assert.Equal(t, Text, label.Type)
}

func TestCompileIsIdempotent(t *testing.T) {
	a, err := Compile("ollama_config", []byte(ollamaConfigSchema))
	require.NoError(t, err)
	b, err := Compile("ollama_config", []byte(ollamaConfigSchema))
	require.NoError(t, err)

	assert.Equal(t, a.Fields, b.Fields)
	assert.Equal(t, a.Defaults(), b.Defaults())
}

func TestCompileOverrideWinsOnTypeConflict(t *testing.T) {
	raw := `{
	  "$defs": {"Ratio": {"type": "integer", "minimum": 0}},
	  "properties": {"ratio": {"$ref": "#/$defs/Ratio", "type": "number", "default": 0.5}}
	}`
	m, err := Compile("ratio", []byte(raw))
	require.NoError(t, err)

	f, _ := m.Field("ratio")
	assert.Equal(t, Float, f.Type)
	assert.Equal(t, 0.5, f.Default)
	require.NotNil(t, f.Constraints.Minimum)
}

func TestCompileAllOfReference(t *testing.T) {
	raw := `{
	  "definitions": {"Direction": {"enum": ["forward", "reverse"], "type": "string"}},
	  "properties": {"repeat_direction": {"allOf": [{"$ref": "#/definitions/Direction"}], "default": "reverse"}}
	}`
	m, err := Compile("echobot_config", []byte(raw))
	require.NoError(t, err)

	f, _ := m.Field("repeat_direction")
	assert.Equal(t, KindEnum, f.Kind)
	assert.Equal(t, "reverse", f.Default)
}

func TestCompileTypeFallback(t *testing.T) {
	raw := `{"properties": {
	  "messages": {"type": ["null", "array"], "default": null},
	  "blob": {"type": "object", "default": "x"},
	  "untyped": {"default": "y"}
	}}`
	m, err := Compile("fallback", []byte(raw))
	require.NoError(t, err)

	for _, name := range []string{"messages", "blob", "untyped"} {
		f, ok := m.Field(name)
		require.True(t, ok, name)
		assert.Equal(t, Text, f.Type, name)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{
			name:   "unresolved reference",
			raw:    `{"properties": {"model": {"$ref": "#/$defs/Missing"}}}`,
			reason: `unresolved reference "Missing"`,
		},
		{
			name:   "reference into a definition",
			raw:    `{"$defs": {"A": {"properties": {"b": {"type": "string"}}}}, "properties": {"x": {"$ref": "#/$defs/A/properties/b"}}}`,
			reason: `unsupported reference "#/$defs/A/properties/b"`,
		},
		{
			name:   "remote reference",
			raw:    `{"$defs": {"X": {"type": "string"}}, "properties": {"x": {"$ref": "other.json#/$defs/X"}}}`,
			reason: `unsupported reference "other.json#/$defs/X"`,
		},
		{
			name:   "reference to a property",
			raw:    `{"properties": {"x": {"type": "string"}, "y": {"allOf": [{"$ref": "#/properties/x"}]}}}`,
			reason: `unsupported reference "#/properties/x"`,
		},
		{
			name:   "empty enum",
			raw:    `{"properties": {"style": {"enum": [], "type": "string"}}}`,
			reason: "enum has no values",
		},
		{
			name:   "enum default not a member",
			raw:    `{"properties": {"style": {"enum": ["surfer", "skater"], "default": "stoner"}}}`,
			reason: `default "stoner" is not one of [surfer skater]`,
		},
		{
			name:   "repeated enum value",
			raw:    `{"properties": {"style": {"enum": ["a", "a"]}}}`,
			reason: `enum value "a" repeated`,
		},
		{
			name:   "reference chain",
			raw:    `{"$defs": {"A": {"$ref": "#/$defs/B"}, "B": {"type": "string"}}, "properties": {"x": {"$ref": "#/$defs/A"}}}`,
			reason: `reference "A" resolves to another reference`,
		},
		{
			name:   "malformed json",
			raw:    `{"properties": `,
			reason: "malformed JSON",
		},
		{
			name:   "not an object",
			raw:    `{"type": "string"}`,
			reason: `top-level type "string" is not an object`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("broken", []byte(tt.raw))
			require.Error(t, err)

			var serr *SchemaError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tt.reason, serr.Reason)
		})
	}
}

func TestCompileInvalidDefaultType(t *testing.T) {
	_, err := Compile("bad", []byte(`{"properties": {"n": {"type": "integer", "default": "many"}}}`))

	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "n", serr.Field)
	assert.Equal(t, "invalid default", serr.Reason)
}

func TestCompileEmptyProperties(t *testing.T) {
	m, err := Compile("empty_config", []byte(`{"type": "object"}`))
	require.NoError(t, err)
	assert.Empty(t, m.Fields)

	out, err := m.Validate(map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, out)
}
