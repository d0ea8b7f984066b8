// Package pipeline sequences dependent backend steps and joins independent ones.
//
// Callers pick the combinator explicitly: Sequence/Then when a later step must
// observe an earlier one, Join/Join2 when only completion matters.
package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Step is one named stage of a sequential chain.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepError reports which stage of a chain failed.
type StepError struct {
	Step  string
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Sequence runs steps in order. Step i+1 starts only after step i returned nil;
// the first failure stops the chain and is the error returned.
func Sequence(ctx context.Context, steps ...Step) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: step.Name, Index: i, Err: err}
		}
		if err := step.Run(ctx); err != nil {
			return &StepError{Step: step.Name, Index: i, Err: err}
		}
	}
	return nil
}

// Then runs first and feeds its result to second. second never runs if first fails.
func Then[A, B any](ctx context.Context, first func(context.Context) (A, error), second func(context.Context, A) (B, error)) (B, error) {
	var zero B
	a, err := first(ctx)
	if err != nil {
		return zero, &StepError{Step: "first", Index: 0, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return zero, &StepError{Step: "second", Index: 1, Err: err}
	}
	b, err := second(ctx, a)
	if err != nil {
		return zero, &StepError{Step: "second", Index: 1, Err: err}
	}
	return b, nil
}

// Join runs ops concurrently and waits for all of them. results[i] belongs to ops[i].
// The first error cancels the context handed to the others and is returned.
func Join[T any](ctx context.Context, ops ...func(context.Context) (T, error)) ([]T, error) {
	results := make([]T, len(ops))
	g, gctx := errgroup.WithContext(ctx)
	for i, op := range ops {
		g.Go(func() error {
			v, err := op(gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Join2 is Join for two operations of different result types.
func Join2[A, B any](ctx context.Context, opA func(context.Context) (A, error), opB func(context.Context) (B, error)) (A, B, error) {
	var (
		a A
		b B
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := opA(gctx)
		a = v
		return err
	})
	g.Go(func() error {
		v, err := opB(gctx)
		b = v
		return err
	})
	if err := g.Wait(); err != nil {
		var za A
		var zb B
		return za, zb, err
	}
	return a, b, nil
}

// Join3 is Join for three operations of different result types.
func Join3[A, B, C any](ctx context.Context, opA func(context.Context) (A, error), opB func(context.Context) (B, error), opC func(context.Context) (C, error)) (A, B, C, error) {
	var (
		a A
		b B
		c C
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := opA(gctx)
		a = v
		return err
	})
	g.Go(func() error {
		v, err := opB(gctx)
		b = v
		return err
	})
	g.Go(func() error {
		v, err := opC(gctx)
		c = v
		return err
	})
	if err := g.Wait(); err != nil {
		var (
			za A
			zb B
			zc C
		)
		return za, zb, zc, err
	}
	return a, b, c, nil
}

type outcome[T any] struct {
	val T
	err error
}

// Await runs fn in its own goroutine and returns as soon as either fn finishes
// or ctx is done. A late result is dropped; fn is left to complete on its own.
func Await[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome[T]{val: v, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
