// Package engine drives the evaluation graph: it plans which nodes fuse
// into shared task loops, runs the forward pass that fills values and
// derivative entries, and runs the backward pass that pulls forces back to
// the atoms.
package engine

// EvalContext carries the per-step running totals. It is owned by the
// driver, handed into every pass explicitly, and reset at the start of each
// step; nothing in the engine keeps process-wide mutable state.
type EvalContext struct {
	// Step is the simulation step being evaluated.
	Step int
	// Bias is the total bias energy accumulated during the forward pass.
	Bias float64
	// Work is the accumulated work of time-dependent biases.
	Work float64
}

// Reset prepares the context for a new step.
func (ec *EvalContext) Reset(step int) {
	ec.Step = step
	ec.Bias = 0
	ec.Work = 0
}
