package engine

import (
	"context"
	"sync"

	"github.com/agoscinski/colvar/internal/ctxlog"
	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/scratch"
	"github.com/agoscinski/colvar/internal/value"
)

// Engine evaluates one configuration's graph step by step. It owns the
// fusion plan and the per-worker scratch buffers; the node set and value
// arena are shared with the driver that built them.
type Engine struct {
	set   *graph.Set
	arena *value.Arena

	workers          int
	forceMaterialize bool

	plan *Plan
	bufs []*scratch.Buffer
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets how many workers cooperate on one node's task range.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithForceMaterialize disables fusion entirely: every intermediate is
// stored in full. Slower, but comparable against the fused path, which is
// how the determinism tests pin the engine down.
func WithForceMaterialize() Option {
	return func(e *Engine) { e.forceMaterialize = true }
}

// New returns an engine over a validated node set.
func New(set *graph.Set, arena *value.Arena, opts ...Option) *Engine {
	e := &Engine{set: set, arena: arena, workers: 1}
	for _, o := range opts {
		o(e)
	}
	e.bufs = make([]*scratch.Buffer, e.workers)
	for i := range e.bufs {
		e.bufs[i] = scratch.New(0, 0)
	}
	return e
}

// Plan validates the graph and builds the fusion plan. It must run before
// the first step and again whenever the graph's shape changes, for example
// when the host pushes a different atom count.
func (e *Engine) Plan(ctx context.Context) error {
	if err := e.set.Validate(); err != nil {
		return err
	}
	p, err := e.buildPlan(ctx)
	if err != nil {
		return err
	}
	e.plan = p
	return nil
}

// CurrentPlan returns the active fusion plan.
func (e *Engine) CurrentPlan() *Plan { return e.plan }

// Step runs one full evaluation: activation closure, forward pass, backward
// pass. The forward pass always completes before the backward pass starts.
func (e *Engine) Step(ctx context.Context, ec *EvalContext, step int) error {
	if e.plan == nil {
		if err := e.Plan(ctx); err != nil {
			return err
		}
	}
	ec.Reset(step)
	if !e.set.ActivateForStep(step) {
		// Nothing runs this step, but the host still reads the force
		// terminals afterwards: the previous step's forces must not leak.
		for _, a := range e.set.Order() {
			if _, ok := a.(graph.AtomForceTerminal); !ok {
				continue
			}
			if p, ok := a.(graph.StepPreparer); ok {
				p.Prepare(step)
			}
		}
		ctxlog.FromContext(ctx).Debug("No pilot scheduled, skipping step.", "step", step)
		return nil
	}
	if err := e.Forward(ctx, ec); err != nil {
		return err
	}
	return e.Backward(ctx, ec)
}

// blocks runs fn once per worker over a contiguous slice of the task range.
// Block w covers [w*T/W, (w+1)*T/W), so the split is stable for a given
// worker count and everything that merges per-worker results in worker
// order stays deterministic.
func (e *Engine) blocks(tasks int, fn func(worker, lo, hi int)) {
	workers := e.activeWorkers(tasks)
	if workers <= 1 {
		fn(0, 0, tasks)
		return
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		lo := w * tasks / workers
		hi := (w + 1) * tasks / workers
		go func(w, lo, hi int) {
			defer wg.Done()
			fn(w, lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()
}

// activeWorkers returns how many workers a task range actually uses.
func (e *Engine) activeWorkers(tasks int) int {
	if tasks < 1 {
		return 1
	}
	if e.workers > tasks {
		return tasks
	}
	return e.workers
}
