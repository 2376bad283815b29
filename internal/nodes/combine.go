package nodes

import (
	"math"

	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/scratch"
	"github.com/agoscinski/colvar/internal/value"
)

// Combine computes an elementwise polynomial combination of its vector
// arguments: sum_k c_k * x_k^p_k. All arguments must share one length; one
// element is one task.
type Combine struct {
	valueOwner
	withArgs
	taskSpecHolder

	coeffs []float64
	powers []float64
	size   int
	out    value.Handle
}

// NewCombine builds a combination node. Missing coefficients default to one,
// missing powers to one.
func NewCombine(label string, arena *value.Arena, args []value.Handle, owners []graph.Action, coeffs, powers []float64) (*Combine, error) {
	n, err := vectorArgSize(arena, label, args)
	if err != nil {
		return nil, err
	}
	if len(coeffs) == 0 {
		coeffs = make([]float64, len(args))
		for i := range coeffs {
			coeffs[i] = 1
		}
	}
	if len(powers) == 0 {
		powers = make([]float64, len(args))
		for i := range powers {
			powers[i] = 1
		}
	}
	if len(coeffs) != len(args) || len(powers) != len(args) {
		return nil, graph.Errorf(label, "need one coefficient and one power per argument (%d args, %d coefficients, %d powers)", len(args), len(coeffs), len(powers))
	}
	c := &Combine{
		valueOwner: newValueOwner("combine", label, arena),
		withArgs:   withArgs{args: args},
		coeffs:     coeffs,
		powers:     powers,
		size:       n,
	}
	h, err := c.addComponent("", []int{n})
	if err != nil {
		return nil, err
	}
	c.out = h
	arena.Get(h).SetTaskCount(n)
	for _, o := range owners {
		c.AddDependency(o)
	}
	return c, nil
}

// CanChain reports that downstream nodes may fuse into this task loop.
func (c *Combine) CanChain() bool { return true }

// NumberOfTasks returns the shared argument length.
func (c *Combine) NumberOfTasks() int { return c.size }

// PerformTask evaluates the polynomial for one element and carries each
// argument's derivative entries through by the chain rule.
func (c *Combine) PerformTask(task int, buf *scratch.Buffer) {
	slot := c.spec.OutSlots[0]
	total := 0.0
	for a := range c.args {
		x := argForTask(c.arena, c.spec, c.args, a, task, buf)
		p := c.powers[a]
		var term, dterm float64
		if p == 1 {
			term, dterm = x, 1
		} else {
			term = math.Pow(x, p)
			dterm = p * math.Pow(x, p-1)
		}
		total += c.coeffs[a] * term
		chainRule(c.spec, a, slot, task, c.coeffs[a]*dterm, buf)
	}
	buf.SetValue(slot, total)
}

// Gather scatters the per-task result when a consumer needs it stored.
func (c *Combine) Gather(task int, buf *scratch.Buffer, acc *graph.Accumulator) {
	graph.GatherStreamed(c.Components(), c.spec, task, buf, acc)
}

// GatherForces pulls forces on the combined values into the chain's shared
// force array.
func (c *Combine) GatherForces(task int, buf *scratch.Buffer, forces []float64) {
	graph.GatherStreamedForces(c.Components(), c.spec, task, buf, forces)
}
