package common

import (
	"context"
	"fmt"
)

type Step[T any] struct {
	Name string
	Run  func(context.Context, T) (T, error)
}

// Pipeline runs named steps in order, stopping at the first failure. Each
// step runs in its own tracing subsegment.
type Pipeline[T any] struct {
	steps []Step[T]
}

func NewPipeline[T any]() *Pipeline[T] {
	return &Pipeline[T]{
		steps: make([]Step[T], 0),
	}
}

func (p *Pipeline[T]) AddStep(name string, run func(context.Context, T) (T, error)) *Pipeline[T] {
	p.steps = append(p.steps, Step[T]{Name: name, Run: run})
	return p
}

func (p *Pipeline[T]) Steps() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name
	}
	return names
}

func (p *Pipeline[T]) Execute(ctx context.Context, input T) (T, error) {
	current := input
	for _, step := range p.steps {
		result, err := WithTracedOperation(ctx, step.Name, func(tracedCtx context.Context) (T, error) {
			return step.Run(tracedCtx, current)
		})
		if err != nil {
			return current, fmt.Errorf("%s: %w", step.Name, err)
		}
		current = result
	}
	return current, nil
}

type Result[T any] struct {
	Value T
	Error error
}

func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value, Error: nil}
}

func Err[T any](value T, err error) Result[T] {
	return Result[T]{Value: value, Error: err}
}

func (r Result[T]) IsSuccess() bool {
	return r.Error == nil
}

func (r Result[T]) IsFailure() bool {
	return r.Error != nil
}

// WithTracedPipeline executes the pipeline under a parent subsegment. A failed
// result keeps the state reached before the failing step.
func WithTracedPipeline[T any](ctx context.Context, name string, pipeline *Pipeline[T], input T) Result[T] {
	var value T
	err := WithTracing(ctx, name, func(tracedCtx context.Context) error {
		var err error
		value, err = pipeline.Execute(tracedCtx, input)
		return err
	})
	if err != nil {
		return Err(value, err)
	}
	return Ok(value)
}
