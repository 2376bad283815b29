package nodes

import (
	"log/slog"
	"math"

	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/scratch"
	"github.com/agoscinski/colvar/internal/value"
)

// Angle computes the angle subtended at the middle atom of each configured
// triple; one triple is one task.
type Angle struct {
	valueOwner
	taskSpecHolder

	src     graph.AtomSource
	triples [][3]int
	out     value.Handle
	degen   stepWarn
}

// NewAngle builds an angle node over the given atom triples. The middle atom
// of each triple is the vertex.
func NewAngle(label string, arena *value.Arena, src graph.AtomSource, srcAction graph.Action, triples [][3]int) (*Angle, error) {
	if len(triples) == 0 {
		return nil, graph.Errorf(label, "at least one atom triple is required")
	}
	a := &Angle{
		valueOwner: newValueOwner("angle", label, arena),
		src:        src,
		triples:    triples,
	}
	h, err := a.addComponent("", []int{len(triples)})
	if err != nil {
		return nil, err
	}
	a.out = h
	arena.Get(h).SetTaskCount(len(triples))
	a.AddDependency(srcAction)
	return a, nil
}

// SetLogger wires the warning channel for degenerate geometry.
func (a *Angle) SetLogger(l *slog.Logger) { a.degen.logger = l }

// AtomSource returns the node supplying atom data.
func (a *Angle) AtomSource() graph.AtomSource { return a.src }

// CanChain reports that downstream nodes may fuse into this task loop.
func (a *Angle) CanChain() bool { return true }

// NumberOfTasks returns the number of configured triples.
func (a *Angle) NumberOfTasks() int { return len(a.triples) }

// Prepare re-arms the once-per-step degeneracy warning.
func (a *Angle) Prepare(step int) { a.degen.Reset() }

// PerformTask computes one angle and its derivatives. For a triple (i,j,k)
// the two bond vectors run from the vertex j to i and k.
func (a *Angle) PerformTask(task int, buf *scratch.Buffer) {
	i, j, k := a.triples[task][0], a.triples[task][1], a.triples[task][2]
	pj := a.src.Position(j)
	r1 := a.src.PbcDistance(pj, a.src.Position(i))
	r2 := a.src.PbcDistance(pj, a.src.Position(k))
	n1, n2 := norm3(r1), norm3(r2)

	var e1, e2 [3]float64
	for c := 0; c < 3; c++ {
		e1[c] = r1[c] / n1
		e2[c] = r2[c] / n2
	}
	cosT := dot3(e1, e2)
	if cosT > 1 {
		cosT = 1
	} else if cosT < -1 {
		cosT = -1
	}
	theta := math.Acos(cosT)
	sinT := math.Sin(theta)
	if sinT < 1e-8 {
		// Collinear atoms leave the angle gradient undefined. The value is
		// still usable, so warn and clamp rather than abort the step.
		a.degen.warn("degenerate angle geometry, clamping gradient", "node", a.Label(), "task", task)
		sinT = 1e-8
	}

	slot := a.spec.OutSlots[0]
	buf.SetValue(slot, theta)

	// dtheta/dr1 = -(e2 - cos theta e1) / (|r1| sin theta), same for r2 with
	// the vectors swapped. The vertex picks up the negative sum.
	var d1, d2 [3]float64
	for c := 0; c < 3; c++ {
		d1[c] = -(e2[c] - cosT*e1[c]) / (n1 * sinT)
		d2[c] = -(e1[c] - cosT*e2[c]) / (n2 * sinT)
	}

	vbase := 3 * a.src.NumberOfAtoms()
	for c := 0; c < 3; c++ {
		buf.AddDerivative(slot, 3*i+c, d1[c])
		buf.AddDerivative(slot, 3*k+c, d2[c])
		buf.AddDerivative(slot, 3*j+c, -d1[c]-d2[c])
		for b := 0; b < 3; b++ {
			buf.AddDerivative(slot, vbase+3*b+c, -r1[b]*d1[c]-r2[b]*d2[c])
		}
	}
}

// Gather scatters the per-task angle when a consumer needs it stored.
func (a *Angle) Gather(task int, buf *scratch.Buffer, acc *graph.Accumulator) {
	graph.GatherStreamed(a.Components(), a.spec, task, buf, acc)
}

// GatherForces pulls forces on the angles back onto the atomistic index
// space.
func (a *Angle) GatherForces(task int, buf *scratch.Buffer, forces []float64) {
	graph.GatherStreamedForces(a.Components(), a.spec, task, buf, forces)
}
