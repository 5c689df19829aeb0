package workflowai

import (
	"context"
	"iter"
)

// RunFunc runs an agent and returns the whole run.
type RunFunc[I, O any] func(ctx context.Context, input I, opts ...RunOption) (*Run[O], error)

// OutputFunc runs an agent and returns its output only.
type OutputFunc[I, O any] func(ctx context.Context, input I, opts ...RunOption) (O, error)

// StreamFunc streams the runs of an agent.
type StreamFunc[I, O any] func(ctx context.Context, input I, opts ...RunOption) iter.Seq2[*Run[O], error]

// StreamOutputFunc streams the successive outputs of an agent.
type StreamOutputFunc[I, O any] func(ctx context.Context, input I, opts ...RunOption) iter.Seq2[O, error]

// RunFunc returns the agent as a function returning runs.
func (a *Agent[I, O]) RunFunc() RunFunc[I, O] {
	return a.Run
}

// OutputFunc returns the agent as a function returning outputs. A run without
// output yields the zero value of O.
func (a *Agent[I, O]) OutputFunc() OutputFunc[I, O] {
	return func(ctx context.Context, input I, opts ...RunOption) (O, error) {
		var zero O
		run, err := a.Run(ctx, input, opts...)
		if err != nil {
			return zero, err
		}
		if run.Output == nil {
			return zero, nil
		}
		return *run.Output, nil
	}
}

// StreamFunc returns the agent as a function streaming runs.
func (a *Agent[I, O]) StreamFunc() StreamFunc[I, O] {
	return a.Stream
}

// StreamOutputFunc returns the agent as a function streaming outputs. Runs
// without output are skipped.
func (a *Agent[I, O]) StreamOutputFunc() StreamOutputFunc[I, O] {
	return func(ctx context.Context, input I, opts ...RunOption) iter.Seq2[O, error] {
		return func(yield func(O, error) bool) {
			var zero O
			for run, err := range a.Stream(ctx, input, opts...) {
				if err != nil {
					yield(zero, err)
					return
				}
				if run.Output == nil {
					continue
				}
				if !yield(*run.Output, nil) {
					return
				}
			}
		}
	}
}
