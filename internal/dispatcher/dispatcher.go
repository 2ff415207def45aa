// Package dispatcher fans work out over a bounded pool of goroutines.
package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every item using at most workers goroutines and returns
// the results in input order. Items not yet started when ctx ends are skipped
// and the context error is returned alongside the partial results.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) R) ([]R, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = fn(gctx, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("dispatch canceled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("dispatch canceled: %w", err)
	}
	return results, nil
}
