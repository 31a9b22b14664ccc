// Package stream models the valid/ready boundary between pipeline stages.
//
// Every stage boundary in the capture pipeline is a single-slot register. A
// producer may only write into an empty slot and a consumer drains it. Stages
// are evaluated downstream-first inside one cycle, so a value written in cycle
// N is visible to the consumer no earlier than cycle N+1, and a slot drained
// in cycle N can be refilled in the same cycle.
package stream

// Reg is a one-slot pipeline register carrying a value and a valid flag.
// The zero value is an empty register.
type Reg[T any] struct {
	data  T
	valid bool
}

// Ready reports whether a producer may write this cycle.
func (r *Reg[T]) Ready() bool {
	return !r.valid
}

// Valid reports whether the register holds a value.
func (r *Reg[T]) Valid() bool {
	return r.valid
}

// TryPut stores v if the register is empty. It returns false when the
// consumer has not yet taken the previous value; the producer must then hold
// its state and retry on the next cycle.
func (r *Reg[T]) TryPut(v T) bool {
	if r.valid {
		return false
	}
	r.data = v
	r.valid = true
	return true
}

// Peek returns the held value without consuming it.
func (r *Reg[T]) Peek() (T, bool) {
	return r.data, r.valid
}

// Take consumes the held value.
func (r *Reg[T]) Take() (T, bool) {
	v, ok := r.data, r.valid
	var zero T
	r.data = zero
	r.valid = false
	return v, ok
}

// Reset empties the register.
func (r *Reg[T]) Reset() {
	var zero T
	r.data = zero
	r.valid = false
}
