// Package pipeline implements the stage graphs that turn a research topic
// into a structured report: planning, per-section research, and report
// composition.
//
// Each stage is a Graph: a sequential executor over a typed state record.
// Steps receive the state by value and return the updated copy, so a failing
// step never commits partial writes. A step may pick the next step from the
// graph's fixed step set; every step runs at most once per execution, so
// execution always terminates.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// End terminates execution when returned as the next step name.
const End = ""

// StepFunc executes one graph step. It returns the updated state and the
// name of the next step to run, or End to finish the graph.
type StepFunc[S any] func(ctx context.Context, state S) (S, string, error)

// Seq adapts a step without branching: it always proceeds to next.
func Seq[S any](next string, fn func(ctx context.Context, state S) (S, error)) StepFunc[S] {
	return func(ctx context.Context, state S) (S, string, error) {
		updated, err := fn(ctx, state)
		return updated, next, err
	}
}

// Graph is a named set of steps with a designated start step.
// Graphs are built once and are safe for concurrent Run calls.
type Graph[S any] struct {
	name   string
	start  string
	steps  map[string]StepFunc[S]
	logger zerolog.Logger
}

// NewGraph creates an empty graph starting at the named step.
func NewGraph[S any](name, start string, logger zerolog.Logger) *Graph[S] {
	return &Graph[S]{
		name:   name,
		start:  start,
		steps:  make(map[string]StepFunc[S]),
		logger: logger.With().Str("graph", name).Logger(),
	}
}

// AddStep registers a step under the given name. It returns the graph to
// allow chained construction.
func (g *Graph[S]) AddStep(name string, fn StepFunc[S]) *Graph[S] {
	g.steps[name] = fn
	return g
}

// Run executes the graph from its start step until a step returns End.
// On failure it returns the state as it was before the failing step ran.
func (g *Graph[S]) Run(ctx context.Context, initial S) (S, error) {
	state := initial
	visited := make(map[string]bool, len(g.steps))
	current := g.start

	for current != End {
		if visited[current] {
			return state, fmt.Errorf("graph %s: step %q scheduled twice", g.name, current)
		}
		fn, ok := g.steps[current]
		if !ok {
			return state, fmt.Errorf("graph %s: unknown step %q", g.name, current)
		}
		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("graph %s: %w", g.name, err)
		}
		visited[current] = true

		start := time.Now()
		updated, next, err := fn(ctx, state)
		if err != nil {
			return state, fmt.Errorf("graph %s: step %s: %w", g.name, current, err)
		}

		g.logger.Debug().
			Str("step", current).
			Str("next", next).
			Dur("duration", time.Since(start)).
			Msg("graph step completed")

		state = updated
		current = next
	}

	return state, nil
}
