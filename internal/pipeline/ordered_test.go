package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedMapPreservesSubmissionOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}

	// later items finish first
	out, err := OrderedMap(context.Background(), 8, items, func(_ context.Context, i int, n int) (int, error) {
		time.Sleep(time.Duration(len(items)-i) * time.Millisecond)
		return n * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80}, out)
}

func TestOrderedMapBoundsParallelism(t *testing.T) {
	var inFlight, peak int64
	items := make([]int, 20)

	_, err := OrderedMap(context.Background(), 3, items, func(context.Context, int, int) (struct{}, error) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

func TestOrderedMapFirstErrorCancels(t *testing.T) {
	boom := errors.New("boom")
	_, err := OrderedMap(context.Background(), 2, []int{0, 1, 2, 3}, func(ctx context.Context, i int, _ int) (int, error) {
		if i == 0 {
			return 0, boom
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return i, nil
		}
	})
	require.ErrorIs(t, err, boom)
}

func TestOrderedMapEmpty(t *testing.T) {
	out, err := OrderedMap(context.Background(), 4, nil, func(context.Context, int, string) (string, error) {
		t.Fatal("called")
		return "", nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestOrderedFlatMap(t *testing.T) {
	out, err := OrderedFlatMap(context.Background(), 4, []string{"a", "b", "c"}, func(_ context.Context, i int, s string) ([]string, error) {
		if s == "b" {
			return nil, nil
		}
		return []string{s + "1", s + "2"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "c1", "c2"}, out)
}

func TestOrderedMapParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := OrderedMap(ctx, 1, []int{1, 2}, func(ctx context.Context, _ int, n int) (int, error) {
		return n, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
