package nodes

import (
	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/scratch"
	"github.com/agoscinski/colvar/internal/value"
)

// Histogram accumulates a vector argument into fixed-width bins. Binning is
// not differentiable, so the node records no derivative entries and the
// backward pass stops here. With Accumulate set the bin contents survive
// from step to step and are written to checkpoints.
type Histogram struct {
	valueOwner
	withArgs
	taskSpecHolder

	min, max float64
	bins     int
	height   float64
	size     int
	out      value.Handle
}

// NewHistogram builds a histogram of one vector argument over [min, max)
// with the given number of bins. height scales every sample's contribution.
func NewHistogram(label string, arena *value.Arena, arg value.Handle, argOwner graph.Action, min, max float64, bins int, height float64, accumulate bool) (*Histogram, error) {
	if bins <= 0 {
		return nil, graph.Errorf(label, "need a positive bin count, got %d", bins)
	}
	if max <= min {
		return nil, graph.Errorf(label, "empty domain [%g,%g)", min, max)
	}
	if height == 0 {
		height = 1
	}
	hg := &Histogram{
		valueOwner: newValueOwner("histogram", label, arena),
		withArgs:   withArgs{args: []value.Handle{arg}},
		min:        min,
		max:        max,
		bins:       bins,
		height:     height,
	}
	n, err := vectorArgSize(arena, label, hg.args)
	if err != nil {
		return nil, err
	}
	hg.size = n
	h, err := hg.addComponent("", []int{bins})
	if err != nil {
		return nil, err
	}
	hg.out = h
	v := arena.Get(h)
	v.SetAccumulator()
	v.SetTaskCount(n)
	if accumulate {
		v.SetHistory()
	}
	hg.AddDependency(argOwner)
	return hg, nil
}

// CanChain reports false: bins are shared between tasks, so nothing
// downstream can join this loop.
func (hg *Histogram) CanChain() bool { return false }

// NumberOfTasks returns the length of the argument vector.
func (hg *Histogram) NumberOfTasks() int { return hg.size }

// bin maps a sample to its bin, or -1 when it falls outside the domain.
func (hg *Histogram) bin(x float64) int {
	if x < hg.min || x >= hg.max {
		return -1
	}
	b := int(float64(hg.bins) * (x - hg.min) / (hg.max - hg.min))
	if b >= hg.bins {
		b = hg.bins - 1
	}
	return b
}

// PerformTask streams the sampled value; the bin is recomputed at gather
// time from the same stream slot.
func (hg *Histogram) PerformTask(task int, buf *scratch.Buffer) {
	x := argForTask(hg.arena, hg.spec, hg.args, 0, task, buf)
	buf.SetValue(hg.spec.OutSlots[0], x)
}

// Gather drops the sample's weight into its bin through the worker's
// accumulation buffer.
func (hg *Histogram) Gather(task int, buf *scratch.Buffer, acc *graph.Accumulator) {
	x := buf.Value(hg.spec.OutSlots[0])
	if b := hg.bin(x); b >= 0 {
		acc.Add(hg.component(0), b, hg.height)
	}
}

// GatherForces is a no-op: binning carries no derivatives.
func (hg *Histogram) GatherForces(task int, buf *scratch.Buffer, forces []float64) {}
