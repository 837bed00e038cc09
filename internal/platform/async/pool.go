// Package async runs store-touching work on a shared bounded pool and
// composes the results as futures.
package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the number of tasks allowed to run at once when no size is given.
const DefaultSize = 16

// Pool bounds the number of concurrently running tasks. A task holds a slot
// only while its function runs; waiting on a dependency never holds one.
type Pool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool builds a pool with size slots.
func NewPool(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), logger: logger}
}

// Detach runs fn on its own goroutine without taking a slot. Wait still
// covers it. Work that pool tasks may block on must be detached, or a full
// pool would wait on itself. A nil pool runs fn on a plain goroutine.
func (p *Pool) Detach(fn func(context.Context)) {
	if p == nil {
		go fn(context.Background())
		return
	}
	p.spawn(func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("detached task panicked", slog.Any("panic", r))
			}
		}()
		fn(context.Background())
	})
}

// Wait blocks until every task started through the pool has returned.
func (p *Pool) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}

func (p *Pool) spawn(fn func()) {
	if p == nil {
		go fn()
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

func (p *Pool) acquire(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("async: acquire slot: %w", err)
	}
	return nil
}

func (p *Pool) release() {
	if p == nil {
		return
	}
	p.sem.Release(1)
}
