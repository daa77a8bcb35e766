package graph

import "github.com/google/uuid"

// Event kinds. Every kind ends in one of the _start, _stream, _end or
// _error suffixes.
const (
	OnChainStart = "on_chain_start"
	OnChainEnd   = "on_chain_end"
	OnChainError = "on_chain_error"

	OnChatModelStart  = "on_chat_model_start"
	OnChatModelStream = "on_chat_model_stream"
	OnChatModelEnd    = "on_chat_model_end"
)

// Metadata keys attached to every event emitted inside a step.
const (
	MetaNode = "langgraph_node"
	MetaStep = "langgraph_step"
)

// Event is one unit of a run's lifecycle and token stream.
type Event struct {
	Event    string         `json:"event"`
	Name     string         `json:"name"`
	RunID    string         `json:"run_id"`
	Tags     []string       `json:"tags"`
	Metadata map[string]any `json:"metadata"`
	Data     map[string]any `json:"data"`
}

// Config carries per-run settings into steps and routers.
type Config struct {
	// Configurable holds the request-supplied configuration values.
	Configurable map[string]any
	Tags         []string

	// RecursionLimit bounds the number of steps a run may execute.
	RecursionLimit int

	emit func(Event)
	node string
	step int
}

// Emit sends an event on behalf of the current step. Run metadata is
// filled in when missing.
func (c Config) Emit(ev Event) {
	if c.emit == nil {
		return
	}
	if ev.RunID == "" {
		ev.RunID = uuid.NewString()
	}
	if ev.Tags == nil {
		ev.Tags = c.tags()
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	if c.node != "" {
		ev.Metadata[MetaNode] = c.node
		ev.Metadata[MetaStep] = c.step
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	c.emit(ev)
}

func (c Config) tags() []string {
	if len(c.Tags) == 0 {
		return []string{}
	}
	return append([]string(nil), c.Tags...)
}
