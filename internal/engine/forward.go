package engine

import (
	"context"
	"fmt"

	"github.com/agoscinski/colvar/internal/ctxlog"
	"github.com/agoscinski/colvar/internal/graph"
)

// Forward walks the node set head to tail and computes every active node's
// values and derivative entries. Fused chains run as one task loop; bias
// contributions flow into the evaluation context and seed the force that
// the backward pass will propagate.
func (e *Engine) Forward(ctx context.Context, ec *EvalContext) error {
	logger := ctxlog.FromContext(ctx)

	// Clearing happens for every active node before any node computes, so a
	// node may safely add forces to upstream values during the later
	// backward pass without racing this step's leftovers.
	for _, a := range e.set.Order() {
		if !a.IsActive() {
			continue
		}
		if vp, ok := a.(graph.ValueProducer); ok {
			for _, v := range vp.Components() {
				if v.IsConstant() {
					continue
				}
				v.ClearForces()
				if v.HasDerivatives() {
					v.ClearDerivatives()
				}
				if v.IsAccumulator() && !v.IsHistory() {
					data := v.Data()
					for i := range data {
						data[i] = 0
					}
				}
			}
		}
		if sp, ok := a.(graph.StepPreparer); ok {
			sp.Prepare(ec.Step)
		}
	}

	for _, a := range e.set.Order() {
		if !a.IsActive() {
			continue
		}
		switch e.plan.ModeOf(a.Label()) {
		case ModeFused, ModeNone:
			// Fused members run inside their head's loop.
		case ModeHead:
			e.runChain(ctx, e.plan.ChainOf(a.Label()))
		case ModeSingle:
			if c, ok := a.(graph.Calculator); ok {
				if err := c.Calculate(ctx); err != nil {
					return fmt.Errorf("forward pass failed at %q: %w", a.Label(), err)
				}
			}
		}
		if bp, ok := a.(graph.BiasProvider); ok {
			v := bp.BiasValue()
			ec.Bias += v.Get(0)
			// Seed the backward pass: pulling this unit force through the
			// recorded derivatives yields minus the bias gradient, i.e. the
			// force the host expects on its atoms.
			v.AddForce(0, -1)
		}
	}

	logger.Debug("Forward pass complete.", "step", ec.Step, "bias", ec.Bias)
	return nil
}

// runChain executes one fused task loop. Workers cover contiguous task
// blocks with private scratch buffers and accumulation buffers; the partial
// accumulations merge in worker order after the loop, so summation order is
// a function of the configuration alone.
func (e *Engine) runChain(ctx context.Context, c *Chain) {
	workers := e.activeWorkers(c.Tasks)
	accs := make([]*graph.Accumulator, workers)

	e.blocks(c.Tasks, func(w, lo, hi int) {
		buf := e.bufs[w]
		buf.Resize(c.NumSlots, c.NumDerivatives)
		acc := graph.NewAccumulator()
		accs[w] = acc
		for t := lo; t < hi; t++ {
			buf.Clear()
			buf.SetTask(t)
			for _, m := range c.Members {
				m.PerformTask(t, buf)
			}
			buf.CompleteUpdate()
			for _, m := range c.Members {
				m.Gather(t, buf, acc)
			}
		}
	})

	for _, acc := range accs {
		if acc != nil {
			acc.MergeInto()
		}
	}
}
