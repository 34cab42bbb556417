package workers

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	assert.Equal(t, runtime.GOMAXPROCS(0), New(0).Size())
	assert.Equal(t, 3, New(3).Size())
}

func TestResize(t *testing.T) {
	p := New(2)
	require.NoError(t, p.Resize(5))
	assert.Equal(t, 5, p.Size())
	assert.ErrorIs(t, p.Resize(0), ErrInvalidSize)
	assert.Equal(t, 5, p.Size())
}

func TestParallelFor(t *testing.T) {
	p := New(4)

	var sum atomic.Int64
	seen := make([]atomic.Bool, 1000)
	err := p.ParallelFor(context.Background(), 1000, func(i int) error {
		sum.Add(int64(i))
		assert.False(t, seen[i].Swap(true), "index %d visited twice", i)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(999*1000/2), sum.Load())

	require.NoError(t, p.ParallelFor(context.Background(), 0, func(int) error {
		t.Fatal("must not be called")
		return nil
	}))
}

func TestParallelForBoundsConcurrency(t *testing.T) {
	p := New(3)

	var running, peak atomic.Int32
	err := p.ParallelFor(context.Background(), 200, func(int) error {
		cur := running.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		runtime.Gosched()
		running.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestParallelForError(t *testing.T) {
	p := New(2)
	boom := errors.New("boom")

	var calls atomic.Int32
	err := p.ParallelFor(context.Background(), 10000, func(i int) error {
		calls.Add(1)
		if i == 10 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Less(t, calls.Load(), int32(10000))
}

func TestParallelForCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(2).ParallelFor(ctx, 10, func(int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
