package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plebchat/internal/agents"
	"plebchat/internal/client"
	"plebchat/internal/schema"
)

func listed(t *testing.T, served ...*agents.ServedGraph) []client.Agent {
	t.Helper()
	out := make([]client.Agent, 0, len(served))
	for _, a := range served {
		in, err := json.Marshal(a.InputSchema)
		require.NoError(t, err)
		cfg, err := json.Marshal(a.ConfigSchema)
		require.NoError(t, err)
		out = append(out, client.Agent{Data: a.Data(), Schema: client.Schemas{Input: in, Config: cfg}})
	}
	return out
}

func newState(t *testing.T) *State {
	t.Helper()
	echobot, err := agents.NewEchobot()
	require.NoError(t, err)
	ollama, err := agents.NewOllama(agents.DefaultModels)
	require.NoError(t, err)
	s, err := New(listed(t, echobot, ollama), nil)
	require.NoError(t, err)
	return s
}

func TestNewSelectsFirstAgent(t *testing.T) {
	s := newState(t)
	assert.Equal(t, "echobot", s.Agent().Data.ID)

	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestConfigDefaultsAreLazyPerAgent(t *testing.T) {
	s := newState(t)

	cfg, err := s.Config()
	require.NoError(t, err)
	assert.Equal(t, "forward", cfg["repeat_direction"])

	cfg["repeat_direction"] = "reverse"
	again, err := s.Config()
	require.NoError(t, err)
	assert.Equal(t, "forward", again["repeat_direction"], "returned config is a copy")

	require.NoError(t, s.Select("ollama"))
	ollamaCfg, err := s.Config()
	require.NoError(t, err)
	assert.Equal(t, "You are a helpful assistant.", ollamaCfg["system_prompt"])
	assert.NotContains(t, ollamaCfg, "repeat_direction")
}

func TestSetConfigValidates(t *testing.T) {
	s := newState(t)

	err := s.SetConfig(map[string]any{"repeat_direction": "sideways"})
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, s.SetConfig(map[string]any{"repeat_direction": "reverse"}))
	cfg, err := s.Config()
	require.NoError(t, err)
	assert.Equal(t, "reverse", cfg["repeat_direction"])
	assert.Equal(t, false, cfg["disable_commands"])
}

func TestSelectUnknown(t *testing.T) {
	s := newState(t)
	assert.ErrorIs(t, s.Select("nope"), ErrUnknownAgent)
	assert.Equal(t, "echobot", s.Agent().Data.ID)
}

func TestHistoryChangesOnlyOnComplete(t *testing.T) {
	s := newState(t)
	input := map[string]any{"query": "hi", "lucky_number": int64(2)}

	req, err := s.Request(input)
	require.NoError(t, err)
	assert.Equal(t, "echobot", req.AgentID)
	assert.Equal(t, []any{map[string]any{"role": RoleHuman, "content": "hi"}}, req.InputData[agents.MessagesKey])
	assert.Equal(t, int64(2), req.InputData["lucky_number"])
	assert.NotContains(t, input, agents.MessagesKey)
	assert.Empty(t, s.History())

	s.Complete(input, "hi")
	assert.Equal(t, []Turn{{RoleHuman, "hi"}, {RoleAssistant, "hi"}}, s.History())

	next, err := s.Request(map[string]any{"query": "again"})
	require.NoError(t, err)
	assert.Len(t, next.InputData[agents.MessagesKey], 3)

	s.Reset()
	assert.Empty(t, s.History())
}
