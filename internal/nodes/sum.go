package nodes

import (
	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/scratch"
	"github.com/agoscinski/colvar/internal/value"
)

// Sum reduces a vector argument additively into one scalar. Tasks contribute
// through per-worker accumulation buffers merged in a fixed order, so the
// result does not depend on thread scheduling.
type Sum struct {
	valueOwner
	withArgs
	taskSpecHolder

	size int
	out  value.Handle
}

// NewSum builds a sum reduction over one vector argument.
func NewSum(label string, arena *value.Arena, arg value.Handle, argOwner graph.Action) (*Sum, error) {
	s := &Sum{
		valueOwner: newValueOwner("sum", label, arena),
		withArgs:   withArgs{args: []value.Handle{arg}},
	}
	n, err := vectorArgSize(arena, label, s.args)
	if err != nil {
		return nil, err
	}
	s.size = n
	h, err := s.addComponent("", []int{})
	if err != nil {
		return nil, err
	}
	s.out = h
	v := arena.Get(h)
	v.SetAccumulator()
	v.SetTaskCount(n)
	s.AddDependency(argOwner)
	return s, nil
}

// CanChain reports false: the output is a scalar accumulator, nothing can
// share this node's task domain downstream of the reduction.
func (s *Sum) CanChain() bool { return false }

// NumberOfTasks returns the length of the argument vector.
func (s *Sum) NumberOfTasks() int { return s.size }

// PerformTask streams one element's contribution and derivative entries.
func (s *Sum) PerformTask(task int, buf *scratch.Buffer) {
	x := argForTask(s.arena, s.spec, s.args, 0, task, buf)
	slot := s.spec.OutSlots[0]
	buf.SetValue(slot, x)
	chainRule(s.spec, 0, slot, task, 1, buf)
}

// Gather adds this task's contribution into the worker's accumulation
// buffer.
func (s *Sum) Gather(task int, buf *scratch.Buffer, acc *graph.Accumulator) {
	graph.GatherStreamed(s.Components(), s.spec, task, buf, acc)
}

// GatherForces spreads the force on the scalar total across every task's
// derivative entries.
func (s *Sum) GatherForces(task int, buf *scratch.Buffer, forces []float64) {
	graph.GatherStreamedForces(s.Components(), s.spec, task, buf, forces)
}
