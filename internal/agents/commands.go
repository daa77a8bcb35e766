package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"trpc.group/trpc-go/trpc-agent-go/tool"
	"trpc.group/trpc-go/trpc-agent-go/tool/function"
)

// usage lists the chat commands.
const usage = `/version                  Get the version of the agent

/info, /about             Get information about the agent

/help, /usage             Get a list of commands

/random [digits]          Get a random number (1-100 by default, or with specified digits)`

const (
	commandPrefix = "/"
	invalidDigits = "Invalid number of digits. Please provide a single integer."
	maxDigits     = 18
)

type commandArgs struct {
	Args []string `json:"args"`
}

type commandReply struct {
	Text string `json:"text"`
}

// commandSet dispatches slash commands to function tools.
type commandSet struct {
	tools map[string]tool.CallableTool
}

// newCommandSet builds the command table of one agent.
func newCommandSet(version, info string, rnd *rand.Rand) *commandSet {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	reply := func(s string) (commandReply, error) { return commandReply{Text: s}, nil }

	versionTool := function.NewFunctionTool(
		func(_ context.Context, _ commandArgs) (commandReply, error) {
			return reply(fmt.Sprintf("Version `%s`", version))
		},
		function.WithName("version"),
		function.WithDescription("Get the version of the agent."),
	)
	infoTool := function.NewFunctionTool(
		func(_ context.Context, _ commandArgs) (commandReply, error) { return reply(info) },
		function.WithName("info"),
		function.WithDescription("Get information about the agent."),
	)
	usageTool := function.NewFunctionTool(
		func(_ context.Context, _ commandArgs) (commandReply, error) {
			return reply(fmt.Sprintf("Available commands:\n```\n%s```", usage))
		},
		function.WithName("usage"),
		function.WithDescription("Get a list of commands."),
	)
	randomTool := function.NewFunctionTool(
		func(_ context.Context, req commandArgs) (commandReply, error) {
			return reply(randomNumber(rnd, req.Args))
		},
		function.WithName("random"),
		function.WithDescription("Get a random number, 1-100 or with the given number of digits."),
	)

	return &commandSet{tools: map[string]tool.CallableTool{
		"version": versionTool,
		"info":    infoTool,
		"about":   infoTool,
		"usage":   usageTool,
		"help":    usageTool,
		"random":  randomTool,
	}}
}

// isCommand reports whether a query is a slash command.
func isCommand(query string) bool {
	return strings.HasPrefix(query, commandPrefix)
}

// parseCommand splits "/name arg..." into the lower-cased name and its
// arguments.
func parseCommand(query string) (string, []string) {
	fields := strings.Fields(strings.TrimPrefix(query, commandPrefix))
	if len(fields) == 0 || strings.HasPrefix(query, commandPrefix+" ") {
		return "", fields
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// Run executes a command query and returns the reply text.
func (c *commandSet) Run(ctx context.Context, query string) (string, error) {
	name, args := parseCommand(query)
	t, ok := c.tools[name]
	if !ok {
		return fmt.Sprintf("Command not found.\nAvailable commands:\n```\n%s```", usage), nil
	}
	if args == nil {
		args = []string{}
	}
	raw, err := json.Marshal(commandArgs{Args: args})
	if err != nil {
		return "", err
	}
	out, err := t.Call(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("command %s: %w", name, err)
	}
	switch r := out.(type) {
	case commandReply:
		return r.Text, nil
	case *commandReply:
		return r.Text, nil
	default:
		return fmt.Sprint(out), nil
	}
}

func randomNumber(rnd *rand.Rand, args []string) string {
	if len(args) == 0 {
		return fmt.Sprintf("`%d`", rnd.Int64N(100)+1)
	}
	digits, err := strconv.Atoi(args[0])
	if err != nil || digits < 0 || digits > maxDigits {
		return invalidDigits
	}
	upper := int64(1)
	for range digits {
		upper *= 10
	}
	return fmt.Sprintf("`%d`", rnd.Int64N(upper)+1)
}
