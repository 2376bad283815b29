// Package value holds the named quantities exchanged between nodes of the
// evaluation graph. Every Value of one configuration lives in a single Arena
// and is addressed by a stable integer Handle, so nodes never alias raw
// pointers into each other's storage.
package value

import (
	"fmt"
)

// Value is a named quantity with derivative and force storage. Rank 0 is a
// scalar, rank 1 a vector, rank 2 a matrix. A Value is owned by exactly one
// node and read by any number of downstream nodes.
type Value struct {
	name  string
	owner string
	shape []int

	data  []float64
	force []float64

	// deriv is the dense per-argument derivative vector. It is only used by
	// true scalars (hasDeriv), where the full gradient is small enough to
	// keep alongside the value.
	deriv    []float64
	hasDeriv bool

	period *Period

	constant bool
	frozen   bool

	// storeFull marks per-task results that must be kept in the dense data
	// buffer because some consumer needs random access across tasks.
	storeFull bool
	storedFor []string

	// accumulate marks values filled by additive reduction over tasks
	// (sums, histogram cells) rather than one-slot-per-task scatter.
	accumulate bool

	// tasks is the number of independent tasks that fill this value during
	// the forward pass. Zero for values computed in a single shot.
	tasks int

	symmetric bool
	history   bool
}

// Name returns the full name of the value: "label" or "label.component".
func (v *Value) Name() string { return v.name }

// Owner returns the label of the node that owns this value.
func (v *Value) Owner() string { return v.owner }

// Rank returns 0 for scalars, 1 for vectors, 2 for matrices.
func (v *Value) Rank() int { return len(v.shape) }

// Shape returns the dimensions of the value. Callers must not mutate it.
func (v *Value) Shape() []int { return v.shape }

// Size returns the number of scalar elements held by the value.
func (v *Value) Size() int {
	n := 1
	for _, s := range v.shape {
		n *= s
	}
	return n
}

// Resize changes the shape of a vector or matrix value. Only host-driven and
// grid values are resized, and only before the first step records
// derivatives against the old index space.
func (v *Value) Resize(shape []int) {
	if v.frozen {
		panic(fmt.Sprintf("value %s: resize after freeze", v.name))
	}
	v.shape = append([]int(nil), shape...)
	n := v.Size()
	v.data = make([]float64, n)
	v.force = make([]float64, n)
}

func (v *Value) bounds(i int) {
	if i < 0 || i >= len(v.data) {
		panic(fmt.Sprintf("value %s: index %d out of range [0,%d)", v.name, i, len(v.data)))
	}
}

// Get returns element i of the value.
func (v *Value) Get(i int) float64 {
	v.bounds(i)
	return v.data[i]
}

// Set writes element i of the value.
func (v *Value) Set(i int, x float64) {
	v.bounds(i)
	if v.frozen {
		panic(fmt.Sprintf("value %s: write to frozen constant", v.name))
	}
	v.data[i] = x
}

// Add accumulates into element i of the value. Used by reduction gathers.
func (v *Value) Add(i int, x float64) {
	v.bounds(i)
	if v.frozen {
		panic(fmt.Sprintf("value %s: write to frozen constant", v.name))
	}
	v.data[i] += x
}

// Data returns the backing array. The engine uses it for bulk clears and for
// checkpointing; nodes go through Get/Set.
func (v *Value) Data() []float64 { return v.data }

// AddForce accumulates a force onto element i. Forces are only ever added,
// never overwritten, so independent force paths combine correctly.
func (v *Value) AddForce(i int, f float64) {
	v.bounds(i)
	v.force[i] += f
}

// Force returns the accumulated force on element i.
func (v *Value) Force(i int) float64 {
	v.bounds(i)
	return v.force[i]
}

// HasForce reports whether any element carries a non-zero force.
func (v *Value) HasForce() bool {
	for _, f := range v.force {
		if f != 0 {
			return true
		}
	}
	return false
}

// ClearForces zeroes the force slots. Called once per step before the
// forward pass touches the value.
func (v *Value) ClearForces() {
	for i := range v.force {
		v.force[i] = 0
	}
}

// SetupDerivatives attaches a dense derivative vector of length n to a
// scalar value.
func (v *Value) SetupDerivatives(n int) {
	if v.Rank() != 0 {
		panic(fmt.Sprintf("value %s: dense derivatives on rank %d value", v.name, v.Rank()))
	}
	v.hasDeriv = true
	v.deriv = make([]float64, n)
}

// HasDerivatives reports whether the value keeps a dense derivative vector.
func (v *Value) HasDerivatives() bool { return v.hasDeriv }

// NumberOfDerivatives returns the length of the dense derivative vector.
func (v *Value) NumberOfDerivatives() int { return len(v.deriv) }

// AddDerivative accumulates into entry i of the dense derivative vector.
func (v *Value) AddDerivative(i int, d float64) {
	if v.frozen {
		panic(fmt.Sprintf("value %s: derivative on frozen constant", v.name))
	}
	if i < 0 || i >= len(v.deriv) {
		panic(fmt.Sprintf("value %s: derivative index %d out of range [0,%d)", v.name, i, len(v.deriv)))
	}
	v.deriv[i] += d
}

// Derivative returns entry i of the dense derivative vector.
func (v *Value) Derivative(i int) float64 {
	if i < 0 || i >= len(v.deriv) {
		panic(fmt.Sprintf("value %s: derivative index %d out of range [0,%d)", v.name, i, len(v.deriv)))
	}
	return v.deriv[i]
}

// ClearDerivatives zeroes the dense derivative vector.
func (v *Value) ClearDerivatives() {
	for i := range v.deriv {
		v.deriv[i] = 0
	}
}

// SetPeriod gives the value a periodic domain [min,max).
func (v *Value) SetPeriod(min, max float64) { v.period = &Period{Min: min, Max: max} }

// IsPeriodic reports whether the value has a periodic domain.
func (v *Value) IsPeriodic() bool { return v.period != nil }

// Difference returns the signed difference b-a, minimum-image if the value
// is periodic.
func (v *Value) Difference(a, b float64) float64 {
	if v.period != nil {
		return v.period.Difference(a, b)
	}
	return b - a
}

// SetConstant marks the value as computed once and never changed.
func (v *Value) SetConstant() { v.constant = true }

// IsConstant reports whether the value is constant.
func (v *Value) IsConstant() bool { return v.constant }

// Freeze rejects any further mutation of a constant value. Called after the
// build-time evaluation of constant nodes.
func (v *Value) Freeze() {
	if !v.constant {
		panic(fmt.Sprintf("value %s: freeze on non-constant value", v.name))
	}
	v.frozen = true
}

// RequestStore records that the node with the given label needs this value
// materialized in full rather than consumed transiently from the stream.
func (v *Value) RequestStore(label string) {
	for _, l := range v.storedFor {
		if l == label {
			return
		}
	}
	v.storeFull = true
	v.storedFor = append(v.storedFor, label)
}

// StoredInFull reports whether per-task results are kept in the dense buffer.
func (v *Value) StoredInFull() bool { return v.storeFull }

// StoredFor returns the labels of the consumers that requested storage.
func (v *Value) StoredFor() []string { return v.storedFor }

// SetTaskCount records how many tasks fill this value.
func (v *Value) SetTaskCount(n int) { v.tasks = n }

// TaskCount returns the number of tasks that fill this value.
func (v *Value) TaskCount() int { return v.tasks }

// SetAccumulator marks the value as filled by additive task reduction.
func (v *Value) SetAccumulator() { v.accumulate = true }

// IsAccumulator reports whether tasks reduce additively into this value.
func (v *Value) IsAccumulator() bool { return v.accumulate }

// SetSymmetric flags a square matrix value as symmetric.
func (v *Value) SetSymmetric() {
	if v.Rank() != 2 || v.shape[0] != v.shape[1] {
		panic(fmt.Sprintf("value %s: symmetric flag on non-square value", v.name))
	}
	v.symmetric = true
}

// IsSymmetric reports whether the matrix value is flagged symmetric.
func (v *Value) IsSymmetric() bool { return v.symmetric }

// SetHistory marks the value as history dependent: its contents survive from
// step to step and belong in checkpoints.
func (v *Value) SetHistory() { v.history = true }

// IsHistory reports whether the value is history dependent.
func (v *Value) IsHistory() bool { return v.history }

// ForceForTask returns the force driving task t of this value during the
// backward pass: the force on slot t for scatter-stored vectors, the force
// on the single slot for scalar accumulators.
func (v *Value) ForceForTask(t int) float64 {
	if v.Rank() == 0 {
		return v.force[0]
	}
	if t < 0 || t >= len(v.force) {
		panic(fmt.Sprintf("value %s: task %d out of range [0,%d)", v.name, t, len(v.force)))
	}
	return v.force[t]
}
