package nodes

import (
	"math"

	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/scratch"
	"github.com/agoscinski/colvar/internal/value"
)

// LessThan applies a rational switching function elementwise to a vector
// argument. The result is close to one well below R0 and decays to zero
// above it, so summing the outputs counts how many inputs sit under the
// threshold. One element is one task, which lets the node fuse into the
// loop producing its argument.
type LessThan struct {
	valueOwner
	withArgs
	taskSpecHolder

	r0   float64
	nn   int
	mm   int
	size int
	out  value.Handle
}

// NewLessThan builds a switching node over one vector argument with the
// rational exponents nn and mm. mm defaults to twice nn.
func NewLessThan(label string, arena *value.Arena, arg value.Handle, argOwner graph.Action, r0 float64, nn, mm int) (*LessThan, error) {
	if r0 <= 0 {
		return nil, graph.Errorf(label, "r0 must be positive, got %g", r0)
	}
	if nn <= 0 {
		nn = 6
	}
	if mm <= 0 {
		mm = 2 * nn
	}
	l := &LessThan{
		valueOwner: newValueOwner("lessthan", label, arena),
		withArgs:   withArgs{args: []value.Handle{arg}},
		r0:         r0,
		nn:         nn,
		mm:         mm,
	}
	n, err := vectorArgSize(arena, label, l.args)
	if err != nil {
		return nil, err
	}
	l.size = n
	h, err := l.addComponent("", []int{n})
	if err != nil {
		return nil, err
	}
	l.out = h
	arena.Get(h).SetTaskCount(n)
	l.AddDependency(argOwner)
	return l, nil
}

// CanChain reports that downstream nodes may fuse into this task loop.
func (l *LessThan) CanChain() bool { return true }

// NumberOfTasks returns the length of the argument vector.
func (l *LessThan) NumberOfTasks() int { return l.size }

// switching evaluates the rational function and its derivative at r.
func (l *LessThan) switching(r float64) (f, df float64) {
	if r <= 0 {
		return 1, 0
	}
	x := r / l.r0
	xn := math.Pow(x, float64(l.nn))
	xm := math.Pow(x, float64(l.mm))
	num := 1 - xn
	den := 1 - xm
	if math.Abs(den) < 1e-12 {
		// Removable singularity at x == 1: take the n/m limit.
		return float64(l.nn) / float64(l.mm), 0
	}
	f = num / den
	dnum := -float64(l.nn) * xn / r
	dden := -float64(l.mm) * xm / r
	df = (dnum*den - num*dden) / (den * den)
	return f, df
}

// PerformTask applies the switching function to one element and carries the
// upstream derivative entries through by the chain rule.
func (l *LessThan) PerformTask(task int, buf *scratch.Buffer) {
	x := argForTask(l.arena, l.spec, l.args, 0, task, buf)
	f, df := l.switching(x)
	slot := l.spec.OutSlots[0]
	buf.SetValue(slot, f)
	chainRule(l.spec, 0, slot, task, df, buf)
}

// Gather scatters the per-task result when a consumer needs it stored.
func (l *LessThan) Gather(task int, buf *scratch.Buffer, acc *graph.Accumulator) {
	graph.GatherStreamed(l.Components(), l.spec, task, buf, acc)
}

// GatherForces pulls forces on the switched values into the chain's shared
// force array.
func (l *LessThan) GatherForces(task int, buf *scratch.Buffer, forces []float64) {
	graph.GatherStreamedForces(l.Components(), l.spec, task, buf, forces)
}
