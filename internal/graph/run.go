package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Graph is a compiled, immutable step graph. It is safe for concurrent runs.
type Graph struct {
	name     string
	schema   Schema
	nodes    map[string]NodeFunc
	edges    map[string]string
	branches map[string]branch
}

// Name is the graph's lifecycle event name.
func (g *Graph) Name() string { return g.name }

// Invoke runs the graph and returns only the final state.
func (g *Graph) Invoke(ctx context.Context, input State, cfg Config) (State, error) {
	return g.Run(ctx, input, cfg, nil)
}

// Run executes the graph from its entry point until End, calling emit for
// every event in the order produced. A step error aborts the run after an
// on_chain_error event. Cancelling ctx stops the run between steps.
func (g *Graph) Run(ctx context.Context, input State, cfg Config, emit func(Event)) (State, error) {
	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = DefaultRecursionLimit
	}
	cfg.emit = emit
	cfg.node = ""

	runID := uuid.NewString()
	state := g.schema.Apply(State{}, input)

	cfg.Emit(Event{Event: OnChainStart, Name: g.name, RunID: runID, Data: map[string]any{"input": input.Clone()}})

	current := Start
	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		next, err := g.next(ctx, current, state, cfg, step)
		if err != nil {
			cfg.Emit(Event{Event: OnChainError, Name: g.name, RunID: runID, Data: map[string]any{"error": err.Error()}})
			return state, err
		}
		if next == End {
			break
		}
		if step > cfg.RecursionLimit {
			err := fmt.Errorf("%w: %d steps without reaching %s", ErrRecursionLimit, cfg.RecursionLimit, End)
			cfg.Emit(Event{Event: OnChainError, Name: g.name, RunID: runID, Data: map[string]any{"error": err.Error()}})
			return state, err
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		state, err = g.step(ctx, next, state, cfg, step)
		if err != nil {
			cfg.Emit(Event{Event: OnChainError, Name: g.name, RunID: runID, Data: map[string]any{"error": err.Error()}})
			return state, err
		}
		current = next
	}

	cfg.Emit(Event{Event: OnChainEnd, Name: g.name, RunID: runID, Data: map[string]any{"output": state.Clone()}})
	return state, nil
}

// step runs one node and applies its patch.
func (g *Graph) step(ctx context.Context, name string, state State, cfg Config, step int) (State, error) {
	ncfg := cfg
	ncfg.node = name
	ncfg.step = step

	runID := uuid.NewString()
	input := state.Clone()
	ncfg.Emit(Event{Event: OnChainStart, Name: name, RunID: runID, Data: map[string]any{"input": input}})

	patch, err := g.nodes[name](ctx, input, ncfg)
	if err != nil {
		ncfg.Emit(Event{Event: OnChainError, Name: name, RunID: runID, Data: map[string]any{"error": err.Error()}})
		return state, fmt.Errorf("graph: node %q: %w", name, err)
	}
	if patch == nil {
		patch = State{}
	}
	ncfg.Emit(Event{Event: OnChainEnd, Name: name, RunID: runID, Data: map[string]any{"input": input, "output": patch}})

	writeID := uuid.NewString()
	ncfg.Emit(Event{Event: OnChainStart, Name: WriteName, RunID: writeID, Data: map[string]any{"input": patch}})
	ncfg.Emit(Event{Event: OnChainEnd, Name: WriteName, RunID: writeID, Data: map[string]any{"input": patch, "output": patch}})

	return g.schema.Apply(state, patch), nil
}

// next resolves the successor of from, evaluating its router when it has
// conditional edges.
func (g *Graph) next(ctx context.Context, from string, state State, cfg Config, step int) (string, error) {
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	br := g.branches[from]

	rcfg := cfg
	rcfg.node = from
	rcfg.step = step
	runID := uuid.NewString()
	input := state.Clone()
	rcfg.Emit(Event{Event: OnChainStart, Name: br.name, RunID: runID, Data: map[string]any{"input": input}})

	to, err := br.route(ctx, input, rcfg)
	if err != nil {
		rcfg.Emit(Event{Event: OnChainError, Name: br.name, RunID: runID, Data: map[string]any{"error": err.Error()}})
		return "", fmt.Errorf("graph: router %q: %w", br.name, err)
	}
	if !slices.Contains(br.targets, to) {
		err := fmt.Errorf("%w: %q chose %q, want one of %v", ErrInvalidRoute, br.name, to, br.targets)
		rcfg.Emit(Event{Event: OnChainError, Name: br.name, RunID: runID, Data: map[string]any{"error": err.Error()}})
		return "", err
	}
	rcfg.Emit(Event{Event: OnChainEnd, Name: br.name, RunID: runID, Data: map[string]any{"input": input, "output": to}})
	return to, nil
}
