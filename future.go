package lokacall

import (
	"context"
	"sync"
)

// Future is a tagged completion object: a value of type T that is not yet
// available. Every decorator layer operates on Futures rather than on bare
// blocking calls, the same "future-shaped composition" described in
// spec.md §9 — in a language without built-in futures, model completion
// as setValue/setException plus a single registration point.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// NewFuture returns a Future that has not completed yet.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future that is already complete with value v.
func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.setResult(v, nil)
	return f
}

// Failed returns a Future that is already complete with err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	var zero T
	f.setResult(zero, err)
	return f
}

// SetValue completes the future successfully. Exactly one of SetValue /
// SetException must be called during a Future's lifetime; subsequent
// calls are ignored, matching the RequestIssuer invariant in spec.md §3.
func (f *Future[T]) SetValue(v T) {
	f.setResult(v, nil)
}

// SetException completes the future with a failure.
func (f *Future[T]) SetException(err error) {
	var zero T
	f.setResult(zero, err)
}

func (f *Future[T]) setResult(v T, err error) {
	f.once.Do(func() {
		f.val = v
		f.err = err
		close(f.done)
	})
}

// Done reports whether the future has completed, without blocking.
func (f *Future[T]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future completes or ctx is done, whichever comes
// first. A ctx cancellation does not cancel the underlying work — it only
// stops this caller from waiting on it, per spec.md §5's "cancellation of
// an in-flight attempt is delegated to the transport" rule.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
