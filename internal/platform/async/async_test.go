package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2, nil)
	var running, peak atomic.Int32
	release := make(chan struct{})

	futures := make([]*Future[int], 0, 6)
	for i := 0; i < 6; i++ {
		futures = append(futures, Submit(context.Background(), pool, func(context.Context) (int, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return i, nil
		}))
	}
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i, f := range futures {
		v, err := f.Await(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	pool := NewPool(1, nil)
	boom := errors.New("boom")
	var ran []string

	result := Pipeline(context.Background(), pool, 0,
		Step[int]{Name: "first", Run: func(_ context.Context, s int) (int, error) {
			ran = append(ran, "first")
			return s + 1, nil
		}},
		Step[int]{Name: "second", Run: func(_ context.Context, s int) (int, error) {
			ran = append(ran, "second")
			return s, boom
		}},
		Step[int]{Name: "third", Run: func(_ context.Context, s int) (int, error) {
			ran = append(ran, "third")
			return s + 1, nil
		}},
	)

	_, err := result.Await(context.Background())
	require.ErrorIs(t, err, boom)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, "second", stepErr.Step)
	require.Equal(t, []string{"first", "second"}, ran)
}

func TestPipelineWithSingleSlotDoesNotDeadlock(t *testing.T) {
	pool := NewPool(1, nil)
	steps := make([]Step[int], 0, 10)
	for i := 0; i < 10; i++ {
		steps = append(steps, Step[int]{Name: "inc", Run: func(_ context.Context, s int) (int, error) { return s + 1, nil }})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v, err := Pipeline(ctx, pool, 0, steps...).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, v)
}

func TestCombineSeesBothOutcomes(t *testing.T) {
	pool := NewPool(2, nil)
	a := Submit(context.Background(), pool, func(context.Context) (int, error) { return 3, nil })
	b := Submit(context.Background(), pool, func(context.Context) (int, error) { return 0, errors.New("unavailable") })

	sum := Combine(a, b, func(x int, errX error, y int, errY error) (int, error) {
		require.NoError(t, errX)
		require.Error(t, errY)
		return x + y, nil
	})
	v, err := sum.Join()
	require.NoError(t, err)
	require.Equal(t, 3, v)
}

func TestRecoverAndPanicConversion(t *testing.T) {
	pool := NewPool(1, nil)
	f := Submit(context.Background(), pool, func(context.Context) (string, error) {
		panic("bad state")
	})
	_, err := f.Join()
	require.ErrorContains(t, err, "bad state")

	recovered := Recover(f, func(err error) string { return "recovered: " + err.Error() })
	v, err := recovered.Join()
	require.NoError(t, err)
	require.Contains(t, v, "recovered")
}

func TestDetachAndWait(t *testing.T) {
	pool := NewPool(2, nil)
	var count atomic.Int32
	for i := 0; i < 5; i++ {
		pool.Detach(func(context.Context) { count.Add(1) })
	}
	pool.Wait()
	require.Equal(t, int32(5), count.Load())
}

func TestDetachedWorkRunsWhileSlotsAreHeld(t *testing.T) {
	pool := NewPool(1, nil)
	done := make(chan struct{})

	f := Submit(context.Background(), pool, func(context.Context) (int, error) {
		pool.Detach(func(context.Context) { close(done) })
		<-done
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestAwaitHonoursContext(t *testing.T) {
	pool := NewPool(1, nil)
	block := make(chan struct{})
	defer close(block)
	f := Submit(context.Background(), pool, func(context.Context) (int, error) {
		<-block
		return 1, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPipelineOutlivesCallerCancellation(t *testing.T) {
	pool := NewPool(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var ran []string

	result := Pipeline(ctx, pool, 0,
		Step[int]{Name: "persist", Run: func(_ context.Context, s int) (int, error) {
			ran = append(ran, "persist")
			cancel()
			return s + 1, nil
		}},
		Step[int]{Name: "follow-up", Run: func(stepCtx context.Context, s int) (int, error) {
			ran = append(ran, "follow-up")
			if err := stepCtx.Err(); err != nil {
				return s, err
			}
			return s + 1, nil
		}},
	)

	v, err := result.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Equal(t, []string{"persist", "follow-up"}, ran)
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}
