package nodes

import (
	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/scratch"
	"github.com/agoscinski/colvar/internal/value"
)

// Distance computes the minimum-image distance for each configured atom
// pair; one pair is one task. It is a task-producing node: downstream
// vector functions fuse into its loop.
type Distance struct {
	valueOwner
	taskSpecHolder

	src   graph.AtomSource
	pairs [][2]int
	out   value.Handle
}

// NewDistance builds a distance node over the given atom pairs.
func NewDistance(label string, arena *value.Arena, src graph.AtomSource, srcAction graph.Action, pairs [][2]int) (*Distance, error) {
	if len(pairs) == 0 {
		return nil, graph.Errorf(label, "at least one atom pair is required")
	}
	d := &Distance{
		valueOwner: newValueOwner("distance", label, arena),
		src:        src,
		pairs:      pairs,
	}
	h, err := d.addComponent("", []int{len(pairs)})
	if err != nil {
		return nil, err
	}
	d.out = h
	arena.Get(h).SetTaskCount(len(pairs))
	d.AddDependency(srcAction)
	return d, nil
}

// AtomSource returns the node supplying atom data, which terminates this
// node's derivative index space.
func (d *Distance) AtomSource() graph.AtomSource { return d.src }

// CanChain reports that downstream nodes may fuse into this task loop.
func (d *Distance) CanChain() bool { return true }

// NumberOfTasks returns the number of configured pairs.
func (d *Distance) NumberOfTasks() int { return len(d.pairs) }

// PerformTask computes one pair distance and its derivatives with respect to
// the two atoms and the cell.
func (d *Distance) PerformTask(task int, buf *scratch.Buffer) {
	i, j := d.pairs[task][0], d.pairs[task][1]
	vec := d.src.PbcDistance(d.src.Position(i), d.src.Position(j))
	r := norm3(vec)
	slot := d.spec.OutSlots[0]
	buf.SetValue(slot, r)

	vbase := 3 * d.src.NumberOfAtoms()
	for c := 0; c < 3; c++ {
		u := vec[c] / r
		buf.AddDerivative(slot, 3*i+c, -u)
		buf.AddDerivative(slot, 3*j+c, u)
		for a := 0; a < 3; a++ {
			buf.AddDerivative(slot, vbase+3*a+c, -vec[a]*u)
		}
	}
}

// Gather scatters the per-task distance when a consumer needs it stored.
func (d *Distance) Gather(task int, buf *scratch.Buffer, acc *graph.Accumulator) {
	graph.GatherStreamed(d.Components(), d.spec, task, buf, acc)
}

// GatherForces pulls forces on the distance vector back onto the atomistic
// index space.
func (d *Distance) GatherForces(task int, buf *scratch.Buffer, forces []float64) {
	graph.GatherStreamedForces(d.Components(), d.spec, task, buf, forces)
}
