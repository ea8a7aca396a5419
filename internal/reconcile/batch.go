package reconcile

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// MaxParallel bounds the number of in-flight remote calls in one batch.
const MaxParallel = 8

// Call is one remote mutation in a batch. Key identifies it in errors.
type Call struct {
	Key string
	Do  func(ctx context.Context) error
}

// Result is the outcome of one Call.
type Result struct {
	Key string
	Err error
}

// BatchResult holds every call outcome, in call order.
type BatchResult struct {
	Results []Result
}

// Failed returns the results whose call failed.
func (b *BatchResult) Failed() []Result {
	var failed []Result
	for _, r := range b.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err joins every failure, or returns nil when all calls succeeded.
func (b *BatchResult) Err() error {
	var errs []error
	for _, r := range b.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", r.Key, r.Err))
	}
	return errors.Join(errs...)
}

// Run executes calls concurrently, at most MaxParallel at a time, and waits
// for all of them to settle. A failing call does not cancel the others.
func Run(ctx context.Context, calls []Call) *BatchResult {
	res := &BatchResult{Results: make([]Result, len(calls))}

	var g errgroup.Group
	g.SetLimit(MaxParallel)
	for i, call := range calls {
		res.Results[i].Key = call.Key
		g.Go(func() error {
			res.Results[i].Err = call.Do(ctx)
			return nil
		})
	}
	g.Wait()

	return res
}
