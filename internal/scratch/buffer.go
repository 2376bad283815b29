// Package scratch provides the per-task derivative buffer shared by every
// node fused into one task loop. One buffer lives per worker and is recycled
// between tasks, so clearing replays the recorded active indices instead of
// rezeroing the whole dense backing array.
package scratch

import "fmt"

// Buffer maps (slot, derivative index) to a derivative magnitude for the
// task currently being evaluated. Slots are assigned by the fusion planner,
// one per streamed value component. The dense backing array gives O(1)
// accumulation; the per-slot active lists keep reduction sparse.
type Buffer struct {
	nslots int
	nder   int
	task   int

	values []float64
	deriv  []float64
	marked []bool
	active [][]int

	frozen bool
}

// New returns a buffer with the given number of value slots and derivative
// indices per slot.
func New(nslots, nder int) *Buffer {
	b := &Buffer{}
	b.Resize(nslots, nder)
	return b
}

// Resize grows the buffer to accommodate a new chain geometry. Contents are
// discarded.
func (b *Buffer) Resize(nslots, nder int) {
	b.nslots = nslots
	b.nder = nder
	b.values = make([]float64, nslots)
	b.deriv = make([]float64, nslots*nder)
	b.marked = make([]bool, nslots*nder)
	b.active = make([][]int, nslots)
	b.frozen = false
	b.task = 0
}

// Slots returns the number of value slots.
func (b *Buffer) Slots() int { return b.nslots }

// DerivativesPerSlot returns the size of the derivative index space.
func (b *Buffer) DerivativesPerSlot() int { return b.nder }

// SetTask records which task this buffer currently represents.
func (b *Buffer) SetTask(t int) { b.task = t }

// Task returns the task index the buffer currently represents.
func (b *Buffer) Task() int { return b.task }

func (b *Buffer) slotCheck(slot int) {
	if slot < 0 || slot >= b.nslots {
		panic(fmt.Sprintf("scratch: slot %d out of range [0,%d)", slot, b.nslots))
	}
}

func (b *Buffer) flat(slot, index int) int {
	b.slotCheck(slot)
	if index < 0 || index >= b.nder {
		panic(fmt.Sprintf("scratch: derivative index %d out of range [0,%d)", index, b.nder))
	}
	return slot*b.nder + index
}

// SetValue writes the streamed value of a slot for the current task.
func (b *Buffer) SetValue(slot int, x float64) {
	b.slotCheck(slot)
	b.values[slot] = x
}

// AddValue accumulates into the streamed value of a slot.
func (b *Buffer) AddValue(slot int, x float64) {
	b.slotCheck(slot)
	b.values[slot] += x
}

// Value returns the streamed value of a slot for the current task.
func (b *Buffer) Value(slot int) float64 {
	b.slotCheck(slot)
	return b.values[slot]
}

// AddDerivative accumulates amount into (slot, index) and registers the
// index as active if it was not already. After CompleteUpdate only indices
// already registered may be touched; anything else would be silently dropped
// during reduction, so it is treated as a contract violation.
func (b *Buffer) AddDerivative(slot, index int, amount float64) {
	f := b.flat(slot, index)
	if !b.marked[f] {
		if b.frozen {
			panic(fmt.Sprintf("scratch: derivative on unregistered index %d of slot %d after update was completed", index, slot))
		}
		b.marked[f] = true
		b.active[slot] = append(b.active[slot], index)
	}
	b.deriv[f] += amount
}

// UpdateIndex registers an index as active without adding to it. This keeps
// the sparsity structure traversable downstream even when a derivative
// happens to evaluate to exactly zero.
func (b *Buffer) UpdateIndex(slot, index int) {
	f := b.flat(slot, index)
	if b.marked[f] {
		return
	}
	if b.frozen {
		panic(fmt.Sprintf("scratch: index %d of slot %d registered after update was completed", index, slot))
	}
	b.marked[f] = true
	b.active[slot] = append(b.active[slot], index)
}

// Derivative returns the accumulated derivative at (slot, index).
func (b *Buffer) Derivative(slot, index int) float64 {
	return b.deriv[b.flat(slot, index)]
}

// NumberActive returns how many derivative indices slot has registered.
func (b *Buffer) NumberActive(slot int) int {
	b.slotCheck(slot)
	return len(b.active[slot])
}

// ActiveIndex returns the k-th registered index of a slot. Indices come back
// in insertion order; callers must not rely on them being sorted.
func (b *Buffer) ActiveIndex(slot, k int) int {
	b.slotCheck(slot)
	return b.active[slot][k]
}

// CompleteUpdate freezes the active-index lists for this task. Unregistered
// indices are structurally zero from here on.
func (b *Buffer) CompleteUpdate() { b.frozen = true }

// Clear resets the buffer for the next task by replaying the active lists,
// leaving the dense array zeroed without touching untracked entries.
func (b *Buffer) Clear() {
	for slot := range b.active {
		base := slot * b.nder
		for _, idx := range b.active[slot] {
			b.deriv[base+idx] = 0
			b.marked[base+idx] = false
		}
		b.active[slot] = b.active[slot][:0]
	}
	for i := range b.values {
		b.values[i] = 0
	}
	b.frozen = false
}
