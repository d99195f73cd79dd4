// Package asyncx provides small concurrency helpers with first-class
// context support: fire-and-forget goroutines, ordered fan-out over
// slices, and retries with exponential backoff.
package asyncx

import (
	"context"
	"sync"
	"time"
)

// Do fires fn in a goroutine and forgets it (fire-and-forget).
func Do(fn func()) {
	go fn()
}

// DoCtx fires fn in a goroutine only if ctx is not already done.
func DoCtx(ctx context.Context, fn func(context.Context)) {
	go func() {
		select {
		case <-ctx.Done():
			return
		default:
			fn(ctx)
		}
	}()
}

// All runs all fns concurrently and waits for every one to finish.
// Returns a slice of results in the same order as the input functions.
// If any function returns an error the first error is returned; other
// goroutines are still awaited so resources are not leaked.
func All[T any](ctx context.Context, fns ...func(context.Context) (T, error)) ([]T, error) {
	results := make([]T, len(fns))
	errs := make([]error, len(fns))

	var wg sync.WaitGroup
	wg.Add(len(fns))

	for i, fn := range fns {
		i, fn := i, fn
		go func() {
			defer wg.Done()
			results[i], errs[i] = fn(ctx)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Map applies fn to every item in items concurrently and returns the
// transformed slice in the original order. Stops and returns on the first error.
func Map[T any, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	wg.Add(len(items))

	for i, item := range items {
		i, item := i, item
		go func() {
			defer wg.Done()
			results[i], errs[i] = fn(ctx, item)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// RetryWithBackoff calls fn up to attempts times with exponential backoff
// starting at initialDelay. The delay doubles after each failed attempt.
// Respects context cancellation between retries.
func RetryWithBackoff[T any](
	ctx context.Context,
	attempts int,
	initialDelay time.Duration,
	fn func(context.Context) (T, error),
) (T, error) {
	var (
		zero  T
		err   error
		val   T
		delay = initialDelay
	)
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		val, err = fn(ctx)
		if err == nil {
			return val, nil
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return zero, err
}
