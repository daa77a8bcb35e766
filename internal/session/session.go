// Package session keeps a chat client's state between turns: the selected
// agent, a configuration per agent and the conversation history.
package session

import (
	"errors"
	"fmt"
	"maps"

	"plebchat/internal/agents"
	"plebchat/internal/client"
	"plebchat/internal/schema"
)

// ErrUnknownAgent is returned when selecting an agent that is not listed.
var ErrUnknownAgent = errors.New("session: unknown agent")

// Turn roles as sent to the relay.
const (
	RoleHuman     = "human"
	RoleAssistant = "assistant"
)

// Turn is one message of the conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State is the client session. It is not safe for concurrent use.
type State struct {
	agents   []client.Agent
	byID     map[string]int
	selected string
	configs  map[string]map[string]any
	history  []Turn
	cache    *schema.Cache
}

// New starts a session over the listed agents with the first one
// selected.
func New(list []client.Agent, cache *schema.Cache) (*State, error) {
	if len(list) == 0 {
		return nil, errors.New("session: no agents available")
	}
	if cache == nil {
		var err error
		if cache, err = schema.NewCache(schema.DefaultCacheSize); err != nil {
			return nil, err
		}
	}
	s := &State{
		agents:   list,
		byID:     make(map[string]int, len(list)),
		selected: list[0].Data.ID,
		configs:  make(map[string]map[string]any),
		cache:    cache,
	}
	for i, a := range list {
		s.byID[a.Data.ID] = i
	}
	return s, nil
}

// Agents returns the available agents in relay order.
func (s *State) Agents() []client.Agent { return s.agents }

// Select changes the current agent. History is kept.
func (s *State) Select(id string) error {
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAgent, id)
	}
	s.selected = id
	return nil
}

// Agent returns the selected agent.
func (s *State) Agent() client.Agent { return s.agents[s.byID[s.selected]] }

// InputModel is the selected agent's input form model.
func (s *State) InputModel() (*schema.Model, error) { return s.Agent().InputModel(s.cache) }

// ConfigModel is the selected agent's configuration model.
func (s *State) ConfigModel() (*schema.Model, error) { return s.Agent().ConfigModel(s.cache) }

// Config returns the selected agent's configuration, initialized from the
// schema defaults on first use.
func (s *State) Config() (map[string]any, error) {
	if cfg, ok := s.configs[s.selected]; ok {
		return maps.Clone(cfg), nil
	}
	m, err := s.ConfigModel()
	if err != nil {
		return nil, err
	}
	cfg := m.Defaults()
	s.configs[s.selected] = cfg
	return maps.Clone(cfg), nil
}

// SetConfig validates values and stores them as the selected agent's
// configuration.
func (s *State) SetConfig(values map[string]any) error {
	m, err := s.ConfigModel()
	if err != nil {
		return err
	}
	cfg, err := m.Validate(values)
	if err != nil {
		return err
	}
	s.configs[s.selected] = cfg
	return nil
}

// History returns a copy of the conversation.
func (s *State) History() []Turn {
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Request builds the stream request for one submitted input form. The
// messages sent are the history followed by the new query; history itself
// changes only in Complete.
func (s *State) Request(input map[string]any) (client.StreamRequest, error) {
	cfg, err := s.Config()
	if err != nil {
		return client.StreamRequest{}, err
	}
	data := maps.Clone(input)
	if data == nil {
		data = map[string]any{}
	}
	msgs := make([]any, 0, len(s.history)+1)
	for _, t := range s.history {
		msgs = append(msgs, map[string]any{"role": t.Role, "content": t.Content})
	}
	if q := queryOf(data); q != "" {
		msgs = append(msgs, map[string]any{"role": RoleHuman, "content": q})
	}
	data[agents.MessagesKey] = msgs
	return client.StreamRequest{AgentID: s.selected, InputData: data, Config: cfg}, nil
}

// Complete records a finished exchange.
func (s *State) Complete(input map[string]any, reply string) {
	if q := queryOf(input); q != "" {
		s.history = append(s.history, Turn{Role: RoleHuman, Content: q})
	}
	s.history = append(s.history, Turn{Role: RoleAssistant, Content: reply})
}

// Reset clears the conversation.
func (s *State) Reset() { s.history = nil }

func queryOf(input map[string]any) string {
	q, _ := input[agents.QueryKey].(string)
	return q
}
