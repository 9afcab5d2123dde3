// ABOUTME: Bounded worker pool for offloading blocking embedding and generation calls
// ABOUTME: Submit returns a typed Future; Shutdown waits for in-flight work
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/harper/docrag/internal/logging"
	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Submit after Shutdown
var ErrPoolClosed = errors.New("worker pool is shut down")

// Pool runs submitted functions on at most size goroutines at once
type Pool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger *log.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool. size <= 0 means one worker.
func NewPool(size int, logger *log.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		logger: logging.Component(logger, "worker"),
	}
}

// Future is the pending result of a submitted function
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Wait blocks until the result is ready or ctx is done
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the result is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Submit schedules fn on the pool. fn receives ctx, and a panic inside fn is
// reported as the future's error.
func Submit[T any](p *Pool, ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		f.err = ErrPoolClosed
		close(f.done)
		return f
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer close(f.done)

		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.err = err
			return
		}
		defer p.sem.Release(1)

		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("task panicked", "panic", r)
				f.err = fmt.Errorf("task panicked: %v", r)
			}
		}()

		f.value, f.err = fn(ctx)
	}()

	return f
}

// Shutdown stops accepting work and waits for submitted tasks or ctx
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
