// Package workers provides the resizable pool shared by batch insertion and batch queries.
package workers

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrInvalidSize is returned for a non-positive pool size.
var ErrInvalidSize = errors.New("workers: size must be positive")

// Pool bounds how many goroutines run batch work at once across all callers.
// Resize swaps the semaphore; batches already running keep the old one.
type Pool struct {
	mu   sync.RWMutex
	size int
	sem  *semaphore.Weighted
}

// New creates a pool with size workers. A size <= 0 uses GOMAXPROCS.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{size: size, sem: semaphore.NewWeighted(int64(size))}
}

// Size returns the current number of workers.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.size
}

// Resize changes the number of workers for batches started afterwards.
func (p *Pool) Resize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	p.mu.Lock()
	p.size = size
	p.sem = semaphore.NewWeighted(int64(size))
	p.mu.Unlock()
	return nil
}

func (p *Pool) snapshot() (*semaphore.Weighted, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sem, p.size
}

// ParallelFor calls fn for every i in [0, n) on up to Size goroutines.
// The first error cancels the remaining work and is returned; calls that
// already completed are not undone.
func (p *Pool) ParallelFor(ctx context.Context, n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	sem, size := p.snapshot()

	g, ctx := errgroup.WithContext(ctx)
	var next atomic.Int64
	for range min(size, n) {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				i := int(next.Add(1) - 1)
				if i >= n {
					return nil
				}
				if err := fn(i); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}
