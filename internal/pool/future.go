package pool

import "context"

// Future is the pending result of a pool request. Awaiting it is the only
// point where a caller blocks.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// failed returns an already resolved future carrying err.
func failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	f.resolve(*new(T), err)
	return f
}

func (f *Future[T]) resolve(val T, err error) {
	f.val, f.err = val, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx ends. Giving up on a
// future does not undo work the pool has already committed.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AwaitAll awaits every future in order and returns the results, or the
// first error encountered.
func AwaitAll[T any](ctx context.Context, futures []*Future[T]) ([]T, error) {
	out := make([]T, 0, len(futures))
	for _, f := range futures {
		v, err := f.Await(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
