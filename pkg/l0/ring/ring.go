// Package ring provides a fixed-capacity circular array with power-of-two
// capacity.
//
// A Ring doesn't own any head or tail index. Callers keep the indices (often
// in atomics shared between a producer and a consumer) and use the Ring to
// do all index arithmetic, so no index outside [0, Cap()) is ever built.
package ring

import "errors"

// MaxCapacity is the largest capacity supported.
const MaxCapacity = 1 << 16

// ErrCapacity indicates the capacity is not a power of two within range.
var ErrCapacity = errors.New("ring capacity must be a power of two in [2, 65536]")

// Ring is a fixed set of slots addressed modulo its capacity.
type Ring[T any] struct {
	slots []T
	mask  uint32
}

// ValidCapacity checks if n can be used as a Ring capacity.
func ValidCapacity(n int) bool {
	return n >= 2 && n <= MaxCapacity && n&(n-1) == 0
}

// New creates a Ring with n slots.
func New[T any](n int) (*Ring[T], error) {
	if !ValidCapacity(n) {
		return nil, ErrCapacity
	}
	return &Ring[T]{slots: make([]T, n), mask: uint32(n - 1)}, nil
}

// Cap returns the number of slots.
func (r *Ring[T]) Cap() int {
	return len(r.slots)
}

// At returns the slot at index i, wrapped.
func (r *Ring[T]) At(i uint32) *T {
	return &r.slots[i&r.mask]
}

// Next is the wraparound increment.
func (r *Ring[T]) Next(i uint32) uint32 {
	return (i + 1) & r.mask
}

// Add advances i by n slots.
func (r *Ring[T]) Add(i, n uint32) uint32 {
	return (i + n) & r.mask
}

// Count returns the number of slots between tail and head.
func (r *Ring[T]) Count(head, tail uint32) uint32 {
	return (head - tail) & r.mask
}

// Space returns the free slots from head to tail. One slot is always
// reserved so that a full ring is distinguishable from an empty one.
func (r *Ring[T]) Space(head, tail uint32) uint32 {
	return (tail - head - 1) & r.mask
}

// CountToEnd returns the used slots from tail that can be read without
// wrapping.
func (r *Ring[T]) CountToEnd(head, tail uint32) uint32 {
	head, tail = head&r.mask, tail&r.mask
	if head >= tail {
		return head - tail
	}
	return uint32(len(r.slots)) - tail
}

// SpaceToEnd returns the free slots from head that can be written without
// wrapping.
func (r *Ring[T]) SpaceToEnd(head, tail uint32) uint32 {
	space := r.Space(head, tail)
	if end := uint32(len(r.slots)) - head&r.mask; space > end {
		return end
	}
	return space
}
