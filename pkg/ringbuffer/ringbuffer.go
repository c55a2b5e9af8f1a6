// Package ringbuffer contains a single-producer, single-consumer ring buffer.
package ringbuffer

import (
	"fmt"
	"sync/atomic"
)

// RingBuffer is a ring buffer that can be written by one routine
// and read by another one without locks.
type RingBuffer[T any] struct {
	size       uint64
	readIndex  atomic.Uint64
	writeIndex atomic.Uint64
	closed     atomic.Bool
	buffer     []T
	event      *event
}

// New allocates a RingBuffer.
func New[T any](size uint64) (*RingBuffer[T], error) {
	// when writeIndex overflows, if size is not a power of
	// two, only a portion of the buffer is used.
	if size == 0 || (size&(size-1)) != 0 {
		return nil, fmt.Errorf("size must be a power of two")
	}

	return &RingBuffer[T]{
		size:   size,
		buffer: make([]T, size),
		event:  newEvent(),
	}, nil
}

// Close makes Push() and Pull() return false.
// Items still in the buffer are discarded.
func (r *RingBuffer[T]) Close() {
	r.closed.Store(true)
	r.event.signal()
}

// Len returns the number of items in the buffer.
func (r *RingBuffer[T]) Len() int {
	return int(r.writeIndex.Load() - r.readIndex.Load())
}

// Push pushes an item at the end of the buffer.
// It never blocks, and returns false when the buffer is full or closed.
func (r *RingBuffer[T]) Push(v T) bool {
	if r.closed.Load() {
		return false
	}

	writeIndex := r.writeIndex.Load()
	if writeIndex-r.readIndex.Load() >= r.size {
		return false
	}

	r.buffer[writeIndex%r.size] = v
	r.writeIndex.Store(writeIndex + 1)

	r.event.signal()
	return true
}

// Pull pulls an item from the beginning of the buffer.
// It never blocks, and returns false when the buffer is empty or closed.
func (r *RingBuffer[T]) Pull() (T, bool) {
	var zero T

	if r.closed.Load() {
		return zero, false
	}

	readIndex := r.readIndex.Load()
	if readIndex == r.writeIndex.Load() {
		return zero, false
	}

	i := readIndex % r.size
	v := r.buffer[i]
	r.buffer[i] = zero
	r.readIndex.Store(readIndex + 1)

	return v, true
}

// PullWait pulls an item from the beginning of the buffer.
// It waits until an item is available, and returns false when the buffer is closed.
func (r *RingBuffer[T]) PullWait() (T, bool) {
	for {
		v, ok := r.Pull()
		if ok {
			return v, true
		}

		if r.closed.Load() {
			return v, false
		}

		r.event.wait()
	}
}
