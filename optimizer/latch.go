package optimizer

import "sync/atomic"

// latch holds the most recent value written to it.
// Writers never block; a newer value replaces an older one that has not been read yet.
type latch[T any] struct {
	v atomic.Pointer[T]
}

// Store latches v.
func (l *latch[T]) Store(v T) {
	l.v.Store(&v)
}

// Load returns the latched value without consuming it.
func (l *latch[T]) Load() (T, bool) {
	p := l.v.Load()
	if p == nil {
		var zero T
		return zero, false
	}

	return *p, true
}

// Take returns the latched value and clears the latch.
func (l *latch[T]) Take() (T, bool) {
	p := l.v.Swap(nil)
	if p == nil {
		var zero T
		return zero, false
	}

	return *p, true
}
