package engine

import (
	"context"
	"fmt"

	"github.com/agoscinski/colvar/internal/ctxlog"
	"github.com/agoscinski/colvar/internal/graph"
)

// Backward walks the node set tail to head and pulls the forces accumulated
// on output values back onto input values, down to the atoms. Fused chain
// members are handled by their head's chain; nodes outside any task loop
// apply forces through their dense derivative vectors.
func (e *Engine) Backward(ctx context.Context, ec *EvalContext) error {
	logger := ctxlog.FromContext(ctx)
	order := e.set.Order()

	for i := len(order) - 1; i >= 0; i-- {
		a := order[i]
		if !a.IsActive() {
			continue
		}
		switch e.plan.ModeOf(a.Label()) {
		case ModeFused, ModeNone:
			// Fused members propagate inside their head's chain walk.
		case ModeHead:
			e.backwardChain(ctx, e.plan.ChainOf(a.Label()))
		case ModeSingle:
			if fc, ok := a.(graph.ForceConsumer); ok {
				if err := fc.Apply(); err != nil {
					return fmt.Errorf("backward pass failed at %q: %w", a.Label(), err)
				}
			}
		}
	}

	logger.Debug("Backward pass complete.", "step", ec.Step)
	return nil
}

// backwardChain re-runs a chain's task loop to recover the per-task
// derivatives, multiplies them by the forces sitting on member outputs, and
// reduces the products into one force entry per derivative index. The
// terminal converts its span into atom forces and a virial contribution;
// stored sources receive theirs element by element.
func (e *Engine) backwardChain(ctx context.Context, c *Chain) {
	driven := false
	for _, m := range c.Members {
		if vp, ok := m.(graph.ValueProducer); ok {
			for _, v := range vp.Components() {
				if v.HasForce() {
					driven = true
				}
			}
		}
	}
	if !driven {
		return
	}

	workers := e.activeWorkers(c.Tasks)
	partials := make([][]float64, workers)

	e.blocks(c.Tasks, func(w, lo, hi int) {
		buf := e.bufs[w]
		buf.Resize(c.NumSlots, c.NumDerivatives)
		forces := make([]float64, c.NumDerivatives)
		partials[w] = forces
		for t := lo; t < hi; t++ {
			buf.Clear()
			buf.SetTask(t)
			for _, m := range c.Members {
				m.PerformTask(t, buf)
			}
			buf.CompleteUpdate()
			for _, m := range c.Members {
				m.GatherForces(t, buf, forces)
			}
		}
	})

	total := partials[0]
	for w := 1; w < workers; w++ {
		for i, f := range partials[w] {
			total[i] += f
		}
	}

	if c.Terminal != nil {
		c.Terminal.ApplyDerivedForces(total[:c.Terminal.NumberOfDerivatives()])
	}
	for _, s := range c.Sources {
		if s.Constant {
			continue
		}
		v := e.arena.Get(s.Handle)
		for k := 0; k < s.Len; k++ {
			if f := total[s.Start+k]; f != 0 {
				v.AddForce(k, f)
			}
		}
	}
}
