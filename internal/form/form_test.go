package form

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plebchat/internal/graph"
	"plebchat/internal/schema"
	"plebchat/internal/stream"
)

const echobotConfig = `{
  "$defs": {
    "RepeatDirection": {"enum": ["forward", "reverse"], "title": "RepeatDirection", "type": "string"}
  },
  "properties": {
    "temperature": {"default": 50, "maximum": 100, "minimum": 0, "title": "Temperature", "type": "integer"},
    "repeat_direction": {"$ref": "#/$defs/RepeatDirection", "default": "forward"},
    "disable_commands": {"default": false, "title": "Disable Commands", "type": "boolean"}
  },
  "title": "Config",
  "type": "object"
}`

func compileConfig(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.Compile("echobot_config", []byte(echobotConfig))
	require.NoError(t, err)
	return m
}

func TestFillKeepsDefaultsOnBlank(t *testing.T) {
	var out strings.Builder
	p := NewPrompter(strings.NewReader("\n\n\n"), &out)

	got, err := p.Fill(compileConfig(t), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got["temperature"])
	assert.Equal(t, "forward", got["repeat_direction"])
	assert.Equal(t, false, got["disable_commands"])

	assert.Contains(t, out.String(), "Temperature")
	assert.Contains(t, out.String(), "forward|reverse")
}

func TestFillRepromptsInvalidAnswers(t *testing.T) {
	var out strings.Builder
	p := NewPrompter(strings.NewReader("150\nwarm\n20\nsideways\nreverse\nyes\ntrue\n"), &out)

	got, err := p.Fill(compileConfig(t), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got["temperature"])
	assert.Equal(t, "reverse", got["repeat_direction"])
	assert.Equal(t, true, got["disable_commands"])

	assert.Equal(t, 7, strings.Count(out.String(), "> "))
	assert.GreaterOrEqual(t, strings.Count(out.String(), "✗"), 4)
}

func TestFillUsesInitialValues(t *testing.T) {
	var out strings.Builder
	p := NewPrompter(strings.NewReader("\n\n\n"), &out)

	got, err := p.Fill(compileConfig(t), map[string]any{"repeat_direction": "reverse"})
	require.NoError(t, err)
	assert.Equal(t, "reverse", got["repeat_direction"])
	assert.Contains(t, out.String(), "default reverse")
}

func TestFillEOF(t *testing.T) {
	p := NewPrompter(strings.NewReader("30\n"), io.Discard)
	_, err := p.Fill(compileConfig(t), nil)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func events(evs ...stream.Event) func() (stream.Event, error) {
	return eventsThen(io.EOF, evs...)
}

func eventsThen(end error, evs ...stream.Event) func() (stream.Event, error) {
	i := 0
	return func() (stream.Event, error) {
		if i == len(evs) {
			return stream.Event{}, end
		}
		i++
		return evs[i-1], nil
	}
}

func token(s string) stream.Event {
	return stream.Event{Event: graph.OnChatModelStream, Name: "ChatOllama", Data: map[string]any{"chunk": map[string]any{"content": s}}}
}

func finalEvent(reply string) stream.Event {
	return stream.Event{Event: graph.OnChainEnd, Name: graph.DefaultName, Data: map[string]any{
		"output": map[string]any{"messages": []any{map[string]any{"role": "assistant", "content": reply}}},
	}}
}

func TestTranscriptStreamsTokensAndBanners(t *testing.T) {
	var out strings.Builder
	tr := NewTranscript(&out, false)

	reply, err := tr.Play(events(
		stream.Event{Event: graph.OnChainStart, Name: graph.DefaultName},
		stream.Event{Event: graph.OnChainStart, Name: "ollama"},
		token("Hello "), token("there"),
		stream.Event{Event: graph.OnChainEnd, Name: "ollama", Data: map[string]any{"output": "x"}},
		stream.Event{Event: graph.OnChainStart, Name: graph.WriteName},
		finalEvent("Hello there"),
	))
	require.NoError(t, err)
	assert.Equal(t, "Hello there", reply)
	assert.True(t, tr.Finished())

	text := out.String()
	assert.Contains(t, text, "on_chain_start ollama")
	assert.Contains(t, text, "Hello there")
	assert.NotContains(t, text, graph.WriteName)
	assert.NotContains(t, text, graph.DefaultName)
	assert.NotContains(t, text, `"output"`)
}

func TestTranscriptVerboseDetails(t *testing.T) {
	var out strings.Builder
	tr := NewTranscript(&out, true)

	_, err := tr.Play(events(
		stream.Event{Event: graph.OnChainEnd, Name: "echobot", Data: map[string]any{"output": "pong"}},
		finalEvent("pong"),
	))
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"output": "pong"`)
	assert.Contains(t, out.String(), "pong")
}

func TestTranscriptInterrupted(t *testing.T) {
	var out strings.Builder
	tr := NewTranscript(&out, false)

	broken := fmt.Errorf("%w: connection reset", stream.ErrStreamInterrupted)
	reply, err := tr.Play(eventsThen(broken, token("partial ")))
	require.ErrorIs(t, err, stream.ErrStreamInterrupted)
	assert.Equal(t, "partial ", reply)
	assert.Contains(t, out.String(), "Stream ended unexpectedly.")
	assert.False(t, tr.Finished())
}

func TestTranscriptSkipsMalformedEvents(t *testing.T) {
	var out strings.Builder
	tr := NewTranscript(&out, false)

	calls := 0
	next := func() (stream.Event, error) {
		calls++
		switch calls {
		case 1:
			return stream.Event{}, &stream.DecodeError{Payload: "{", Err: errors.New("unexpected end")}
		case 2:
			return finalEvent("ok"), nil
		default:
			return stream.Event{}, io.EOF
		}
	}
	reply, err := tr.Play(next)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Contains(t, out.String(), "Failed to parse event data")
}

func TestTranscriptRunFailure(t *testing.T) {
	var out strings.Builder
	tr := NewTranscript(&out, false)

	_, err := tr.Play(events(
		stream.Event{Event: graph.OnChainError, Name: "ollama", Data: map[string]any{"error": "upstream down"}},
		stream.Event{Event: graph.OnChainError, Name: graph.DefaultName, Data: map[string]any{"error": "graph: node \"ollama\": upstream down"}},
	))
	require.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, 1, strings.Count(out.String(), "✗"))
}
