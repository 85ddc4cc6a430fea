// Package derive defines the pull-based iterator contract shared by every
// stage of the derivation pipeline.
//
// Please keep this package free of third-party dependencies.
package derive

// Result is the outcome of a single pull from an Iterator.
//
// A NotReady result does not mean the iterator is exhausted. It means the
// stage cannot produce a value with the upstream data it currently holds;
// the caller is expected to supply more input and pull again later.
type Result[T any] struct {
	value T
	ready bool
}

// Ready wraps a produced value.
func Ready[T any](v T) Result[T] {
	return Result[T]{value: v, ready: true}
}

// NotReady reports that no value can be produced right now.
func NotReady[T any]() Result[T] {
	return Result[T]{}
}

// Get returns the value and whether one was produced.
func (r Result[T]) Get() (T, bool) {
	return r.value, r.ready
}

// IsReady reports whether the result carries a value.
func (r Result[T]) IsReady() bool {
	return r.ready
}

// Value returns the produced value, or the zero value of T when not ready.
func (r Result[T]) Value() T {
	return r.value
}

// Iterator is an unbounded, pull-based sequence of values.
//
// Next never blocks. It returns NotReady when the upstream has not yet
// delivered enough data, and it may return a value on a later call.
type Iterator[T any] interface {
	Next() Result[T]
}

// PurgeableIterator is an Iterator that can discard its in-flight state.
//
// Purge drops every buffered or partially assembled value and purges the
// iterator's own upstream, so that one call on the last stage of a chain
// resets the whole chain. After Purge the iterator behaves like a freshly
// constructed one that is still wired to the same upstream.
type PurgeableIterator[T any] interface {
	Iterator[T]
	Purge()
}

// Drain pulls from it until the first NotReady result and returns every value
// produced. A max of 0 means no bound; otherwise at most max values are pulled.
func Drain[T any](it Iterator[T], max int) []T {
	var out []T
	for max == 0 || len(out) < max {
		v, ok := it.Next().Get()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}
