// Package observable provides a single-slot latest-value cell with
// broadcast change notification. Readers always see the most recent
// published value; there is no history queue.
package observable

import "sync"

// Value holds the latest published value of type T.
type Value[T any] struct {
	mu      sync.RWMutex
	current T
	version uint64
	changed chan struct{}
}

// NewValue creates a cell seeded with initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		changed: make(chan struct{}),
	}
}

// Store publishes a new value and wakes all watchers.
func (v *Value[T]) Store(val T) {
	v.mu.Lock()
	v.current = val
	v.version++
	close(v.changed)
	v.changed = make(chan struct{})
	v.mu.Unlock()
}

// Load returns the latest published value.
func (v *Value[T]) Load() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Watch returns the latest value together with a channel that is closed
// on the next Store. A watcher loop re-calls Watch after each wakeup and
// only ever observes the newest value.
func (v *Value[T]) Watch() (T, <-chan struct{}) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current, v.changed
}

// Version returns the number of Store calls so far.
func (v *Value[T]) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}
