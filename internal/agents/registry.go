package agents

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/jsonschema-go/jsonschema"
	"trpc.group/trpc-go/trpc-agent-go/model"

	"plebchat/internal/graph"
	appmodel "plebchat/internal/model"
	"plebchat/internal/schema"
	"plebchat/internal/search"
)

// ServedGraph describes one agent the server exposes. It is immutable
// after construction.
type ServedGraph struct {
	ID          string
	Name        string
	Placeholder string
	Info        string
	Version     string

	InputSchema  *jsonschema.Schema
	ConfigSchema *jsonschema.Schema
	Graph        *graph.Graph

	// RecursionLimit overrides the graph step budget when set.
	RecursionLimit int

	input  *schema.Model
	config *schema.Model
}

// Data is the descriptor block published for the agent.
type Data struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
	Info        string `json:"info"`
	Version     string `json:"version"`
}

// Data returns the published descriptor.
func (g *ServedGraph) Data() Data {
	return Data{ID: g.ID, Name: g.Name, Placeholder: g.Placeholder, Info: g.Info, Version: g.Version}
}

// InputModel validates run input, messages excluded.
func (g *ServedGraph) InputModel() *schema.Model { return g.input }

// ConfigModel validates run configuration.
func (g *ServedGraph) ConfigModel() *schema.Model { return g.config }

func newServedGraph(g *ServedGraph) (*ServedGraph, error) {
	in, err := schema.CompileDocument(g.ID+"_input", g.InputSchema, nil)
	if err != nil {
		return nil, err
	}
	if g.input, err = in.Without(g.ID+"_input_nomessages", MessagesKey); err != nil {
		return nil, err
	}
	if g.config, err = schema.CompileDocument(g.ID+"_config", g.ConfigSchema, nil); err != nil {
		return nil, err
	}
	return g, nil
}

// ModelFactory builds the chat model for one run.
type ModelFactory func(cfg appmodel.Config) (appmodel.ChatModel, model.GenerationConfig, error)

// DefaultModels builds streaming models with NewModelFromConfig.
func DefaultModels(cfg appmodel.Config) (appmodel.ChatModel, model.GenerationConfig, error) {
	return appmodel.NewModelFromConfig(cfg, true)
}

// Deps are the outside services the agents call.
type Deps struct {
	Models   ModelFactory
	Searcher search.Searcher
}

// Registry holds the served agents in publication order.
type Registry struct {
	agents []*ServedGraph
	byID   map[string]*ServedGraph
}

// NewRegistry builds a registry. Agent ids must be unique.
func NewRegistry(agents ...*ServedGraph) (*Registry, error) {
	reg := &Registry{byID: make(map[string]*ServedGraph, len(agents))}
	for _, a := range agents {
		if a == nil || a.ID == "" {
			return nil, fmt.Errorf("agent without id")
		}
		if _, dup := reg.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id: %s", a.ID)
		}
		reg.byID[a.ID] = a
		reg.agents = append(reg.agents, a)
	}
	return reg, nil
}

// LoadRegistry builds the default agent set.
func LoadRegistry(deps Deps) (*Registry, error) {
	if deps.Models == nil {
		deps.Models = DefaultModels
	}
	if deps.Searcher == nil {
		deps.Searcher = search.FromEnv()
	}

	ollama, err := NewOllama(deps.Models)
	if err != nil {
		return nil, fmt.Errorf("build ollama: %w", err)
	}
	echobot, err := NewEchobot()
	if err != nil {
		return nil, fmt.Errorf("build echobot: %w", err)
	}
	research, err := NewResearch(deps.Models, deps.Searcher)
	if err != nil {
		return nil, fmt.Errorf("build research: %w", err)
	}
	return NewRegistry(ollama, echobot, research)
}

// Get looks an agent up by id.
func (r *Registry) Get(id string) (*ServedGraph, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// List returns the agents in publication order.
func (r *Registry) List() []*ServedGraph {
	out := make([]*ServedGraph, len(r.agents))
	copy(out, r.agents)
	return out
}

// ListAgentIDs returns all known agent IDs in publication order.
func (r *Registry) ListAgentIDs() []string {
	out := make([]string, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.ID)
	}
	return out
}

// PrepareInput validates run input and returns the initial graph state.
// messages bypasses the model: a bare string becomes one human message and
// a missing value an empty history.
func (g *ServedGraph) PrepareInput(input map[string]any) (graph.State, error) {
	rest := maps.Clone(input)
	if rest == nil {
		rest = map[string]any{}
	}
	messages := NormalizeMessages(rest[MessagesKey])
	delete(rest, MessagesKey)

	values, err := g.input.Validate(rest)
	if err != nil {
		return nil, err
	}
	state := graph.State(values)
	if _, ok := g.InputSchema.Properties[MessagesKey]; ok {
		state[MessagesKey] = messages
	}
	return state, nil
}

// PrepareConfig resolves the effective configuration of a run.
func (g *ServedGraph) PrepareConfig(request map[string]any, lookup LookupEnv) (map[string]any, error) {
	return ResolveConfig(g.config, request, lookup)
}

// Run is a convenience wrapper that prepares input and configuration and
// runs the graph. lookup supplies environment fallbacks for configuration;
// nil means the process environment.
func (g *ServedGraph) Run(ctx context.Context, input, config map[string]any, lookup LookupEnv, emit func(graph.Event)) (graph.State, error) {
	state, err := g.PrepareInput(input)
	if err != nil {
		return nil, err
	}
	cfg, err := g.PrepareConfig(config, lookup)
	if err != nil {
		return nil, err
	}
	return g.Graph.Run(ctx, state, graph.Config{Configurable: cfg, RecursionLimit: g.RecursionLimit}, emit)
}
