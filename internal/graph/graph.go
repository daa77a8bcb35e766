// Package graph runs small directed graphs of steps as a finite-state
// interpreter: an ordered step table plus a transition function, applying
// each step's output as a patch onto the current state.
package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Pseudo-states and reserved names.
const (
	Start = "__start__"
	End   = "__end__"

	// DefaultName names the graph in its own lifecycle events.
	DefaultName = "LangGraph"
	// WriteName names the state write that follows every step.
	WriteName = "_write"

	DefaultRecursionLimit = 25
)

var (
	ErrRecursionLimit = errors.New("graph: recursion limit reached")
	ErrInvalidRoute   = errors.New("graph: invalid route")
)

// NodeFunc is one step. It returns a partial state update.
type NodeFunc func(ctx context.Context, state State, cfg Config) (State, error)

// Router picks the next step after its source step.
type Router func(ctx context.Context, state State, cfg Config) (string, error)

type branch struct {
	name    string
	route   Router
	targets []string
}

// Builder assembles a graph. Errors are collected and reported by Compile.
type Builder struct {
	name     string
	schema   Schema
	nodes    map[string]NodeFunc
	order    []string
	edges    map[string]string
	branches map[string]branch
	errs     []error
}

// NewBuilder starts a graph whose state keys merge with the given schema.
func NewBuilder(schema Schema) *Builder {
	return &Builder{
		name:     DefaultName,
		schema:   schema,
		nodes:    make(map[string]NodeFunc),
		edges:    make(map[string]string),
		branches: make(map[string]branch),
	}
}

// AddNode registers a step.
func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	switch {
	case name == "" || name == Start || name == End:
		b.errs = append(b.errs, fmt.Errorf("graph: reserved node name %q", name))
	case fn == nil:
		b.errs = append(b.errs, fmt.Errorf("graph: node %q has no function", name))
	case b.nodes[name] != nil:
		b.errs = append(b.errs, fmt.Errorf("graph: duplicate node %q", name))
	default:
		b.nodes[name] = fn
		b.order = append(b.order, name)
	}
	return b
}

// AddEdge adds an unconditional transition.
func (b *Builder) AddEdge(from, to string) *Builder {
	if _, ok := b.edges[from]; ok {
		b.errs = append(b.errs, fmt.Errorf("graph: node %q already has an edge", from))
		return b
	}
	b.edges[from] = to
	return b
}

// AddConditionalEdges lets route choose the successor of from among
// targets. name labels the router's own events.
func (b *Builder) AddConditionalEdges(from, name string, route Router, targets ...string) *Builder {
	if route == nil || len(targets) == 0 {
		b.errs = append(b.errs, fmt.Errorf("graph: conditional edges from %q need a router and targets", from))
		return b
	}
	if _, ok := b.branches[from]; ok {
		b.errs = append(b.errs, fmt.Errorf("graph: node %q already has conditional edges", from))
		return b
	}
	b.branches[from] = branch{name: name, route: route, targets: targets}
	return b
}

// SetEntryPoint is AddEdge(Start, name).
func (b *Builder) SetEntryPoint(name string) *Builder {
	return b.AddEdge(Start, name)
}

// SetFinishPoint is AddEdge(name, End).
func (b *Builder) SetFinishPoint(name string) *Builder {
	return b.AddEdge(name, End)
}

// Compile checks the wiring and returns an executable graph.
func (b *Builder) Compile() (*Graph, error) {
	errs := slices.Clone(b.errs)

	known := func(name string) bool { return name == End || b.nodes[name] != nil }
	for _, from := range append([]string{Start}, b.order...) {
		to, hasEdge := b.edges[from]
		br, hasBranch := b.branches[from]
		switch {
		case hasEdge && hasBranch:
			errs = append(errs, fmt.Errorf("graph: node %q has both an edge and conditional edges", from))
		case !hasEdge && !hasBranch:
			if from == Start {
				errs = append(errs, errors.New("graph: no entry point"))
			} else {
				errs = append(errs, fmt.Errorf("graph: node %q has no outgoing edge", from))
			}
		case hasEdge && !known(to):
			errs = append(errs, fmt.Errorf("graph: edge %q -> %q targets an unknown node", from, to))
		case hasBranch:
			for _, t := range br.targets {
				if !known(t) {
					errs = append(errs, fmt.Errorf("graph: conditional edge %q -> %q targets an unknown node", from, t))
				}
			}
		}
	}
	for from := range b.edges {
		if from != Start && b.nodes[from] == nil {
			errs = append(errs, fmt.Errorf("graph: edge from unknown node %q", from))
		}
	}
	for from := range b.branches {
		if from != Start && b.nodes[from] == nil {
			errs = append(errs, fmt.Errorf("graph: conditional edges from unknown node %q", from))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Graph{
		name:     b.name,
		schema:   b.schema,
		nodes:    b.nodes,
		edges:    b.edges,
		branches: b.branches,
	}, nil
}
