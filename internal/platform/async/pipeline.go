package async

import (
	"context"
	"fmt"
)

// Step is one named stage of a Pipeline.
type Step[S any] struct {
	Name string
	Run  func(ctx context.Context, state S) (S, error)
}

// StepError reports which step of a pipeline failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Pipeline runs steps in order, each as its own pool task, threading state
// through them. The first failing step stops the chain; later steps never run.
func Pipeline[S any](ctx context.Context, p *Pool, initial S, steps ...Step[S]) *Future[S] {
	current := Completed(initial, nil)
	for _, step := range steps {
		current = Then(ctx, p, current, func(ctx context.Context, state S) (S, error) {
			next, err := step.Run(ctx, state)
			if err != nil {
				return next, &StepError{Step: step.Name, Err: err}
			}
			return next, nil
		})
	}
	return current
}
