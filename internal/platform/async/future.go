package async

import (
	"context"
	"fmt"
	"sync"
)

// Future is the eventual result of a task.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future that is already resolved.
func Completed[T any](value T, err error) *Future[T] {
	f := newFuture[T]()
	f.complete(value, err)
	return f
}

func (f *Future[T]) complete(value T, err error) {
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
	})
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx ends. Giving up on ctx does
// not cancel the underlying task.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Join blocks until the future resolves.
func (f *Future[T]) Join() (T, error) {
	<-f.done
	return f.value, f.err
}

// Submit runs fn on the pool. A submitted task always runs to completion:
// fn sees ctx without its cancellation, and callers give up through Await.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) *Future[T] {
	ctx = context.WithoutCancel(ctx)
	f := newFuture[T]()
	p.spawn(func() {
		if err := p.acquire(ctx); err != nil {
			var zero T
			f.complete(zero, err)
			return
		}
		defer p.release()
		runGuarded(f, func() (T, error) { return fn(ctx) })
	})
	return f
}

// Spawn runs fn on its own goroutine without taking a pool slot. It suits
// work that only waits on other futures.
func Spawn[T any](p *Pool, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	p.spawn(func() { runGuarded(f, fn) })
	return f
}

// Then runs fn on the pool with the value of f once f succeeds. A failure of
// f is passed through without calling fn. Like Submit, fn sees ctx without
// its cancellation.
func Then[T, U any](ctx context.Context, p *Pool, f *Future[T], fn func(context.Context, T) (U, error)) *Future[U] {
	ctx = context.WithoutCancel(ctx)
	out := newFuture[U]()
	p.spawn(func() {
		value, err := f.Join()
		if err != nil {
			var zero U
			out.complete(zero, err)
			return
		}
		if err := p.acquire(ctx); err != nil {
			var zero U
			out.complete(zero, err)
			return
		}
		defer p.release()
		runGuarded(out, func() (U, error) { return fn(ctx, value) })
	})
	return out
}

// Map transforms the value of f without taking a pool slot.
func Map[T, U any](f *Future[T], fn func(T) U) *Future[U] {
	out := newFuture[U]()
	go func() {
		value, err := f.Join()
		if err != nil {
			var zero U
			out.complete(zero, err)
			return
		}
		runGuarded(out, func() (U, error) { return fn(value), nil })
	}()
	return out
}

// Combine resolves once both a and b resolve. fn sees each outcome,
// including failures, and decides the combined result.
func Combine[A, B, C any](a *Future[A], b *Future[B], fn func(A, error, B, error) (C, error)) *Future[C] {
	out := newFuture[C]()
	go func() {
		va, errA := a.Join()
		vb, errB := b.Join()
		runGuarded(out, func() (C, error) { return fn(va, errA, vb, errB) })
	}()
	return out
}

// Recover turns a failed future into a successful one using fn.
func Recover[T any](f *Future[T], fn func(error) T) *Future[T] {
	out := newFuture[T]()
	go func() {
		value, err := f.Join()
		if err != nil {
			out.complete(fn(err), nil)
			return
		}
		out.complete(value, nil)
	}()
	return out
}

func runGuarded[T any](f *Future[T], fn func() (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			f.complete(zero, fmt.Errorf("async: task panicked: %v", r))
		}
	}()
	value, err := fn()
	f.complete(value, err)
}
