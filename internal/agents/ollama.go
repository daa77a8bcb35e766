package agents

import (
	"context"
	"fmt"

	"plebchat/internal/graph"
	appmodel "plebchat/internal/model"
)

// OllamaInput is the ollama agent's input record.
type OllamaInput struct {
	Query    string `json:"query" jsonschema:"Your message"`
	Messages []any  `json:"messages"`
}

// OllamaConfig is the ollama agent's configuration record.
type OllamaConfig struct {
	Model           string `json:"model" jsonschema:"Local model to chat with"`
	Temperature     int    `json:"temperature" jsonschema:"Temperature for the model"`
	KeepAlive       string `json:"keep_alive" jsonschema:"How long to keep the model in memory"`
	DisableCommands bool   `json:"disable_commands" jsonschema:"Whether to disable commands (i.e. starts with '/')"`
	SystemPrompt    string `json:"system_prompt" jsonschema:"System prompt sent before the conversation"`
}

// Local models offered by the agents.
var localModels = []string{"phi4", "llama3.1"}

const (
	ollamaVersion       = "0.7.0"
	defaultSystemPrompt = "You are a helpful assistant."
)

var (
	ollamaInputSchema = mustEmitSchema[OllamaInput]("State", map[string]Prop{
		"query": {Default: "", Format: "multi-line"},
	})
	ollamaConfigSchema = mustEmitSchema[OllamaConfig]("Configuration", map[string]Prop{
		"model":            {Default: "phi4", Enum: localModels, EnumName: "LLMModelsAvailable"},
		"temperature":      {Default: 50, Minimum: bound(0), Maximum: bound(100)},
		"keep_alive":       {Default: "5m", Enum: []string{"0", "5m", "-1"}, EnumName: "KeepAlive"},
		"disable_commands": {Default: false},
		"system_prompt":    {Default: defaultSystemPrompt, Format: "multi-line"},
	})
)

const ollamaInformation = `
**Chatbot Agent**

Hi, I'm just some agent dude...

Try ` + "`/usage`" + ` for a list of commands.
`

// NewOllama builds the local chat agent.
func NewOllama(models ModelFactory) (*ServedGraph, error) {
	if models == nil {
		return nil, fmt.Errorf("ollama: model factory is required")
	}
	a, err := newServedGraph(&ServedGraph{
		ID:           "ollama",
		Name:         "Ollama",
		Placeholder:  "Ask the 🦙",
		Info:         "These models are all run locally!",
		Version:      ollamaVersion,
		InputSchema:  ollamaInputSchema,
		ConfigSchema: ollamaConfigSchema,
	})
	if err != nil {
		return nil, err
	}
	defaults := defaultsOf[OllamaConfig](a.config)
	commands := newCommandSet(ollamaVersion, ollamaInformation, nil)

	chat := func(ctx context.Context, s graph.State, cfg graph.Config) (graph.State, error) {
		c, err := configFrom(cfg, defaults)
		if err != nil {
			return nil, err
		}
		// keep_alive has no counterpart on the OpenAI-compatible endpoint.
		temp := float64(c.Temperature) / 100
		m, gen, err := models(appmodel.Config{Provider: appmodel.ProviderOllama, Model: c.Model, Temperature: &temp})
		if err != nil {
			return nil, err
		}

		msgs := append([]appmodel.Message{{Role: "system", Content: c.SystemPrompt}}, history(s)...)
		if q := stringOf(s, QueryKey); q != "" {
			if last := msgs[len(msgs)-1]; last.Role != "user" || last.Content != q {
				msgs = append(msgs, appmodel.Message{Role: "user", Content: q})
			}
		}

		text, err := streamChat(ctx, cfg, m, gen, msgs)
		if err != nil {
			return nil, err
		}
		return assistantReply(text), nil
	}

	g, err := graph.NewBuilder(graph.Schema{MessagesKey: graph.Append}).
		AddNode("handle_command", commandNode(commands)).
		AddNode("ollama", chat).
		AddConditionalEdges(graph.Start, "_check_for_command", commandRouter(defaults, func(c OllamaConfig) bool { return c.DisableCommands }, "ollama"),
			"handle_command", "ollama").
		SetFinishPoint("handle_command").
		SetFinishPoint("ollama").
		Compile()
	if err != nil {
		return nil, err
	}
	a.Graph = g
	return a, nil
}
