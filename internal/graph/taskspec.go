package graph

import (
	"github.com/agoscinski/colvar/internal/scratch"
	"github.com/agoscinski/colvar/internal/value"
)

// TaskSpec is the wiring the fusion planner installs on a task node before
// the first step: which buffer slot each output component streams through,
// where each argument comes from, and where each argument source's
// derivative space starts in the chain's shared index range.
type TaskSpec struct {
	// OutSlots holds one buffer slot per owned component, in component order.
	OutSlots []int
	// ArgSlots holds, per argument, the buffer slot it streams through, or
	// -1 when the argument is read from materialized storage.
	ArgSlots []int
	// ArgDerivStarts holds, per argument, the offset of the derivative space
	// of the source supplying it. Arguments sharing a source share an offset.
	ArgDerivStarts []int
	// NumDerivatives is the total width of the chain's derivative space.
	NumDerivatives int
	// Fused reports whether the node runs inside an upstream task loop.
	Fused bool
}

// Accumulator collects additive per-task contributions on behalf of one
// worker. Workers never write accumulator values directly; the engine merges
// the per-worker buffers in ascending block order so that summation order is
// fixed regardless of scheduling.
type Accumulator struct {
	bufs map[*value.Value][]float64
}

// NewAccumulator returns an empty per-worker accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{bufs: make(map[*value.Value][]float64)}
}

// Add accumulates x into element i of the worker-local buffer for v.
func (a *Accumulator) Add(v *value.Value, i int, x float64) {
	b, ok := a.bufs[v]
	if !ok {
		b = make([]float64, v.Size())
		a.bufs[v] = b
	}
	b[i] += x
}

// MergeInto adds this worker's partial sums into the backing values.
func (a *Accumulator) MergeInto() {
	for v, b := range a.bufs {
		for i, x := range b {
			if x != 0 {
				v.Add(i, x)
			}
		}
	}
}

// GatherStreamed is the common Gather implementation: scatter per-task slots
// of vector values into storage when required, and route accumulator values
// through the worker's accumulation buffer.
func GatherStreamed(comps []*value.Value, spec TaskSpec, task int, buf *scratch.Buffer, acc *Accumulator) {
	for i, v := range comps {
		slot := spec.OutSlots[i]
		switch {
		case v.IsAccumulator():
			acc.Add(v, 0, buf.Value(slot))
		case v.Rank() > 0 && v.StoredInFull():
			v.Set(task, buf.Value(slot))
		}
	}
}

// GatherStreamedForces is the common GatherForces implementation: for every
// output slot carrying a force for this task, push force times recorded
// derivative into the chain's shared force array.
func GatherStreamedForces(comps []*value.Value, spec TaskSpec, task int, buf *scratch.Buffer, forces []float64) {
	for i, v := range comps {
		f := v.ForceForTask(task)
		if f == 0 {
			continue
		}
		slot := spec.OutSlots[i]
		for k := 0; k < buf.NumberActive(slot); k++ {
			idx := buf.ActiveIndex(slot, k)
			forces[idx] += f * buf.Derivative(slot, idx)
		}
	}
}
