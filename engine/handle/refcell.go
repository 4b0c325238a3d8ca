package handle

import (
	"sync"
	"sync/atomic"
)

// RefCell is an atomically reference-counted value. It lets data outlive the handle that
// created it, e.g. action data still referenced by a session attachment.
type RefCell[T any] struct {
	refs   atomic.Int32
	value  T
	onZero func(T)
	once   sync.Once
}

// NewRefCell returns a cell holding v with one reference.
//
// Parameters:
//   - v: the value
//   - onZero: called once when the last reference is released, may be nil
//
// Returns:
//   - *RefCell[T]: the new cell
func NewRefCell[T any](v T, onZero func(T)) *RefCell[T] {
	c := &RefCell[T]{value: v, onZero: onZero}
	c.refs.Store(1)
	return c
}

// Retain takes a reference and returns the cell for chaining.
func (c *RefCell[T]) Retain() *RefCell[T] {
	c.refs.Add(1)
	return c
}

// Release drops a reference and reports whether it was the last one.
func (c *RefCell[T]) Release() bool {
	if c.refs.Add(-1) > 0 {
		return false
	}
	c.once.Do(func() {
		if c.onZero != nil {
			c.onZero(c.value)
		}
	})
	return true
}

// Value returns the held value.
func (c *RefCell[T]) Value() T {
	return c.value
}

// Refs returns the current reference count.
func (c *RefCell[T]) Refs() int32 {
	return c.refs.Load()
}
