package async_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/async"
)

func TestAsync(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := async.Async(ctx, 42, func(_ context.Context, n int) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return fmt.Sprintf("number %d", n), nil
	})

	res, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "number 42", res)
	assert.True(t, f.IsComplete())
}

func TestAsync_Error(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	f := async.Async(context.Background(), 0, func(context.Context, int) (int, error) {
		return 0, errBoom
	})

	_, err := f.Await()
	assert.ErrorIs(t, err, errBoom)
}

func TestAsync_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	f := async.Async(ctx, 0, func(context.Context, int) (int, error) {
		called = true
		return 1, nil
	})

	_, err := f.Await()
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestAsync_Panic(t *testing.T) {
	t.Parallel()

	f := async.Async(context.Background(), 0, func(context.Context, int) (int, error) {
		panic("provider exploded")
	})

	_, err := f.Await()
	assert.ErrorIs(t, err, async.ErrPanicked)
	assert.Contains(t, err.Error(), "provider exploded")
}

func TestFuture_AwaitWithTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := async.Async(context.Background(), 0, func(context.Context, int) (int, error) {
		<-release
		return 7, nil
	})

	_, err := f.AwaitWithTimeout(5 * time.Millisecond)
	assert.ErrorIs(t, err, async.ErrTimeout)
	assert.False(t, f.IsComplete())

	close(release)
	res, err := f.AwaitWithTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, res)
}

func TestFuture_AwaitContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	f := async.Async(context.Background(), 0, func(context.Context, int) (int, error) {
		<-release
		return 1, nil
	})

	t.Run("deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		_, err := f.AwaitContext(ctx)
		assert.ErrorIs(t, err, async.ErrTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.AwaitContext(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, async.ErrTimeout)
	})
}

func TestResolved(t *testing.T) {
	t.Parallel()

	f := async.Resolved("ok", nil)
	assert.True(t, f.IsComplete())
	res, err := f.AwaitContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", res)

	errBoom := errors.New("boom")
	_, err = async.Resolved(0, errBoom).Await()
	assert.ErrorIs(t, err, errBoom)

	select {
	case <-f.Done():
	default:
		t.Fatal("resolved future must be done")
	}
}

func TestWaitAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	square := func(_ context.Context, n int) (int, error) { return n * n, nil }

	res, err := async.WaitAll(
		async.Async(ctx, 1, square),
		async.Async(ctx, 2, square),
		async.Async(ctx, 3, square),
	)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9}, res)

	errBoom := errors.New("boom")
	_, err = async.WaitAll(async.Resolved(1, nil), async.Resolved(0, errBoom))
	assert.ErrorIs(t, err, errBoom)
}

func TestWaitSettled(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	out := async.WaitSettled(async.Resolved(1, nil), async.Resolved(0, errBoom), async.Resolved(3, nil))
	require.Len(t, out, 3)
	assert.Equal(t, 1, out[0].Result)
	assert.ErrorIs(t, out[1].Err, errBoom)
	assert.Equal(t, 3, out[2].Result)
}

func TestWaitAny(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	slow := async.Async(ctx, 0, func(context.Context, int) (string, error) {
		time.Sleep(200 * time.Millisecond)
		return "slow", nil
	})
	fast := async.Async(ctx, 0, func(context.Context, int) (string, error) {
		return "fast", nil
	})

	idx, res, err := async.WaitAny(slow, fast)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "fast", res)

	_, _, err = async.WaitAny[int]()
	assert.ErrorIs(t, err, async.ErrNoFutures)
}
