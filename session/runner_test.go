package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/quicbench/quicbench/remote"
)

func newTestRunner(t *testing.T, iterations int) *Runner {
	t.Helper()
	cfg := testConfig()
	cfg.Iterations = iterations
	server := &fakeTarget{addr: "perf@10.0.0.1"}
	r := NewRunner(zerolog.Nop(), cfg, server,
		[]remote.Target{&fakeTarget{addr: "perf@10.0.0.2"}},
		t.TempDir(), t.TempDir())
	r.pause = time.Millisecond
	return r
}

func TestRunnerRunsAllIterations(t *testing.T) {
	r := newTestRunner(t, 3)

	var got []int
	r.runOne = func(ctx context.Context, iteration int) error {
		got = append(got, iteration)
		return nil
	}

	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestRunnerFailFast(t *testing.T) {
	r := newTestRunner(t, 5)

	boom := errors.New("session exploded")
	var calls int
	r.runOne = func(ctx context.Context, iteration int) error {
		calls++
		if iteration == 2 {
			return boom
		}
		return nil
	}

	err := r.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "iteration 2")
	require.Equal(t, 2, calls)
}

func TestRunnerStopsOnInterrupt(t *testing.T) {
	r := newTestRunner(t, 3)

	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	r.runOne = func(ctx context.Context, iteration int) error {
		calls++
		cancel()
		return nil
	}

	err := r.Run(ctx)
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRunnerStopsOnInterruptDuringPause(t *testing.T) {
	// An interrupt landing in the inter-iteration pause must not start
	// the next iteration against a dead context.
	r := newTestRunner(t, 3)
	r.pause = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	r.runOne = func(ctx context.Context, iteration int) error {
		calls++
		return nil
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestRunnerSingleIteration(t *testing.T) {
	r := newTestRunner(t, 1)

	var calls int
	r.runOne = func(ctx context.Context, iteration int) error {
		calls++
		require.Equal(t, 1, iteration)
		return nil
	}

	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, 1, calls)
}
