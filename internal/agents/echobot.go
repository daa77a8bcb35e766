package agents

import (
	"context"

	"plebchat/internal/graph"
)

// EchobotInput is the echobot's input record.
type EchobotInput struct {
	Query       string `json:"query" jsonschema:"What do you want to research?"`
	Messages    []any  `json:"messages"`
	LuckyNumber int    `json:"lucky_number" jsonschema:"How intense the dude transformation should be (1-3)"`
}

// EchobotConfig is the echobot's configuration record.
type EchobotConfig struct {
	Temperature     int    `json:"temperature" jsonschema:"Temperature for the model"`
	RepeatDirection string `json:"repeat_direction" jsonschema:"Direction to echo back."`
	DisableCommands bool   `json:"disable_commands" jsonschema:"Whether to disable commands (i.e. starts with '/')"`
}

// Repeat directions.
const (
	Forward = "forward"
	Reverse = "reverse"
)

const echobotVersion = "0.99.1"

var (
	echobotInputSchema = mustEmitSchema[EchobotInput]("State", map[string]Prop{
		"query":        {Default: "what is 17 * 17?", Format: "multi-line"},
		"lucky_number": {Default: 1, Minimum: bound(1), Maximum: bound(3)},
	})
	echobotConfigSchema = mustEmitSchema[EchobotConfig]("Config", map[string]Prop{
		"temperature":      {Default: 50, Minimum: bound(0), Maximum: bound(100)},
		"repeat_direction": {Default: Forward, Enum: []string{Forward, Reverse}, EnumName: "RepeatDirection"},
		"disable_commands": {Default: false},
	})
)

// NewEchobot builds the echo agent. It replies with the query, reversed
// when configured, and answers slash commands.
func NewEchobot() (*ServedGraph, error) {
	a := &ServedGraph{
		ID:           "echobot",
		Name:         "Echo bot",
		Placeholder:  "Hello, World!",
		Info:         "holler back",
		Version:      echobotVersion,
		InputSchema:  echobotInputSchema,
		ConfigSchema: echobotConfigSchema,
	}
	a, err := newServedGraph(a)
	if err != nil {
		return nil, err
	}
	defaults := defaultsOf[EchobotConfig](a.config)
	commands := newCommandSet(echobotVersion, echobotInformation, nil)

	g, err := graph.NewBuilder(graph.Schema{MessagesKey: graph.Append}).
		AddNode("handle_command", commandNode(commands)).
		AddNode("echobot", func(_ context.Context, s graph.State, cfg graph.Config) (graph.State, error) {
			c, err := configFrom(cfg, defaults)
			if err != nil {
				return nil, err
			}
			reply := stringOf(s, QueryKey)
			if c.RepeatDirection == Reverse {
				reply = reverse(reply)
			}
			return assistantReply(reply), nil
		}).
		AddConditionalEdges(graph.Start, "_check_for_command", commandRouter(defaults, func(c EchobotConfig) bool { return c.DisableCommands }, "echobot"),
			"handle_command", "echobot").
		SetFinishPoint("handle_command").
		SetFinishPoint("echobot").
		Compile()
	if err != nil {
		return nil, err
	}
	a.Graph = g
	return a, nil
}

const echobotInformation = `
**Echo Agent**

I repeat whatever you tell me, forwards or backwards.

Try ` + "`/usage`" + ` for a list of commands.
`

// commandRouter sends slash commands to handle_command unless the
// configuration disables them.
func commandRouter[T any](defaults T, disabled func(T) bool, fallback string) graph.Router {
	return func(_ context.Context, s graph.State, cfg graph.Config) (string, error) {
		c, err := configFrom(cfg, defaults)
		if err != nil {
			return "", err
		}
		if !disabled(c) && isCommand(stringOf(s, QueryKey)) {
			return "handle_command", nil
		}
		return fallback, nil
	}
}

func commandNode(commands *commandSet) graph.NodeFunc {
	return func(ctx context.Context, s graph.State, _ graph.Config) (graph.State, error) {
		reply, err := commands.Run(ctx, stringOf(s, QueryKey))
		if err != nil {
			return nil, err
		}
		return assistantReply(reply), nil
	}
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
