// Package pipeline runs fixed batches of work with bounded parallelism.
package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Func processes one item of a batch. index is the item's submission position.
type Func[T, R any] func(ctx context.Context, index int, item T) (R, error)

// OrderedMap applies fn to every item with at most limit calls in flight and
// returns the results in submission order, whatever order they completed in.
// The first error cancels the context passed to the remaining calls and is
// returned once all started calls have finished.
func OrderedMap[T, R any](ctx context.Context, limit int, items []T, fn Func[T, R]) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, item := range items {
		i, item := i, item
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r, err := fn(gctx, i, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// OrderedFlatMap is OrderedMap for functions producing several results per
// item; the per-item slices are concatenated in submission order.
func OrderedFlatMap[T, R any](ctx context.Context, limit int, items []T, fn Func[T, []R]) ([]R, error) {
	batches, err := OrderedMap(ctx, limit, items, fn)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	out := make([]R, 0, n)
	for _, b := range batches {
		out = append(out, b...)
	}
	return out, nil
}
