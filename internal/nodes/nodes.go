// Package nodes implements the node kinds wired into the evaluation graph:
// the host-input terminal, a small set of collective variables, streaming
// functions, reductions and the bias/output nodes. Each kind registers a
// builder with the registry the way the engine's driver expects.
package nodes

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/scratch"
	"github.com/agoscinski/colvar/internal/value"
)

// valueOwner carries the fields shared by every node that owns output
// values: the arena the values live in and the handles of its components.
type valueOwner struct {
	graph.ActionBase
	arena *value.Arena
	comps []value.Handle
}

func newValueOwner(kind, label string, arena *value.Arena) valueOwner {
	return valueOwner{ActionBase: graph.NewActionBase(kind, label), arena: arena}
}

// addComponent creates an owned value. An empty name yields the bare label,
// anything else "label.name".
func (o *valueOwner) addComponent(name string, shape []int) (value.Handle, error) {
	full := o.Label()
	if name != "" {
		full = o.Label() + "." + name
	}
	h, err := o.arena.New(full, o.Label(), shape)
	if err != nil {
		return 0, graph.Errorf(o.Label(), "%v", err)
	}
	o.comps = append(o.comps, h)
	return h, nil
}

// Components returns the owned values in creation order.
func (o *valueOwner) Components() []*value.Value {
	out := make([]*value.Value, len(o.comps))
	for i, h := range o.comps {
		out[i] = o.arena.Get(h)
	}
	return out
}

// component returns the i-th owned value.
func (o *valueOwner) component(i int) *value.Value { return o.arena.Get(o.comps[i]) }

// withArgs carries the argument handles of a consuming node.
type withArgs struct {
	args []value.Handle
}

// Arguments returns the argument handles.
func (w *withArgs) Arguments() []value.Handle { return w.args }

// taskSpecHolder stores the wiring the planner installs before the first
// step.
type taskSpecHolder struct {
	spec graph.TaskSpec
}

// SetTaskSpec installs the planner's wiring.
func (t *taskSpecHolder) SetTaskSpec(s graph.TaskSpec) { t.spec = s }

// Spec returns the installed wiring.
func (t *taskSpecHolder) Spec() graph.TaskSpec { return t.spec }

// argForTask reads argument a for one task: from the stream when fused,
// from materialized storage otherwise.
func argForTask(arena *value.Arena, spec graph.TaskSpec, args []value.Handle, a, task int, buf *scratch.Buffer) float64 {
	if slot := spec.ArgSlots[a]; slot >= 0 {
		return buf.Value(slot)
	}
	return arena.Get(args[a]).Get(task)
}

// chainRule propagates df through argument a onto the output slot: for a
// streamed argument every active index of its slot is carried over scaled by
// df; for a stored argument the derivative space is the argument's own index
// space and the entry is df at the task index.
func chainRule(spec graph.TaskSpec, a, outSlot, task int, df float64, buf *scratch.Buffer) {
	if df == 0 {
		// Structurally zero: registering the upstream indices anyway would
		// bloat every downstream active list with dead entries.
		return
	}
	if slot := spec.ArgSlots[a]; slot >= 0 {
		for k := 0; k < buf.NumberActive(slot); k++ {
			idx := buf.ActiveIndex(slot, k)
			buf.AddDerivative(outSlot, idx, df*buf.Derivative(slot, idx))
		}
		return
	}
	buf.AddDerivative(outSlot, spec.ArgDerivStarts[a]+task, df)
}

// stepWarn reports a numerical degeneracy at most once per step, from any
// worker.
type stepWarn struct {
	logger *slog.Logger
	fired  atomic.Bool
}

// Reset re-arms the warning at the start of a step.
func (w *stepWarn) Reset() { w.fired.Store(false) }

func (w *stepWarn) warn(msg string, args ...any) {
	if w.logger != nil && w.fired.CompareAndSwap(false, true) {
		w.logger.Warn(msg, args...)
	}
}

// vectorArgSize checks that every argument is a vector of the same length
// and returns that length.
func vectorArgSize(arena *value.Arena, label string, args []value.Handle) (int, error) {
	n := -1
	for _, h := range args {
		v := arena.Get(h)
		if v.Rank() != 1 {
			return 0, graph.Errorf(label, "argument %s has rank %d, need a vector", v.Name(), v.Rank())
		}
		if n >= 0 && v.Size() != n {
			return 0, graph.Errorf(label, "argument %s has length %d, other arguments have %d", v.Name(), v.Size(), n)
		}
		n = v.Size()
	}
	if n < 0 {
		return 0, graph.Errorf(label, "at least one argument is required")
	}
	return n, nil
}

func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func dot3(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
