package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/agoscinski/colvar/internal/ctxlog"
	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/value"
)

// Mode is the planner's per-node decision.
type Mode int

const (
	// ModeNone marks nodes the passes skip entirely (constant producers).
	ModeNone Mode = iota
	// ModeSingle marks nodes computed in one shot outside any task loop.
	ModeSingle
	// ModeHead marks task nodes that own a task loop.
	ModeHead
	// ModeFused marks task nodes evaluated inside an upstream node's loop.
	ModeFused
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeHead:
		return "head"
	case ModeFused:
		return "fused"
	default:
		return "none"
	}
}

// Source is a span of a chain's derivative index space fed by a stored or
// constant value rather than by the chain's own stream.
type Source struct {
	Handle   value.Handle
	Start    int
	Len      int
	Constant bool
}

// Chain is one fused task loop: the head that produces tasks, the members
// evaluated inside the loop in declaration order, the optional atomistic
// terminal, and the stored-value sources appended to the derivative space.
type Chain struct {
	Head     graph.TaskIterable
	Members  []graph.TaskIterable
	Terminal graph.AtomForceTerminal
	Sources  []Source

	Tasks          int
	NumSlots       int
	NumDerivatives int

	sourceStart map[string]int
}

// Plan is the fusion decision for a whole configuration. Re-planning an
// unchanged graph yields an identical plan.
type Plan struct {
	chains  []*Chain
	chainOf map[string]*Chain
	mode    map[string]Mode
}

// ModeOf returns the planner's decision for a node label.
func (p *Plan) ModeOf(label string) Mode { return p.mode[label] }

// ChainOf returns the chain a node belongs to, or nil.
func (p *Plan) ChainOf(label string) *Chain { return p.chainOf[label] }

// Chains returns the chains in head declaration order.
func (p *Plan) Chains() []*Chain { return p.chains }

// Describe returns a deterministic textual fingerprint of the plan, used by
// debug logging and by the idempotence tests.
func (p *Plan) Describe() string {
	var b strings.Builder
	for _, c := range p.chains {
		fmt.Fprintf(&b, "chain %s tasks=%d slots=%d nder=%d members=[", c.Head.Label(), c.Tasks, c.NumSlots, c.NumDerivatives)
		for i, m := range c.Members {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(m.Label())
		}
		b.WriteString("] sources=[")
		for i, s := range c.Sources {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%d@%d+%d", s.Handle, s.Start, s.Len)
		}
		b.WriteString("]\n")
	}
	return b.String()
}

// atomSourced is implemented by task nodes whose derivative index space is
// an atom source's.
type atomSourced interface {
	AtomSource() graph.AtomSource
}

// buildPlan decides, for every node, whether its per-task computation fuses
// into an upstream loop or reads materialized arguments. Storage requests
// recorded on values are monotone, so the fixpoint loop terminates after at
// most one extra sweep per newly stored value.
func (e *Engine) buildPlan(ctx context.Context) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)
	order := e.set.Order()

	for sweep := 0; ; sweep++ {
		if sweep > len(order)+1 {
			return nil, fmt.Errorf("fusion planning did not converge after %d sweeps", sweep)
		}
		p := &Plan{chainOf: make(map[string]*Chain), mode: make(map[string]Mode)}
		changed := false

		for _, a := range order {
			ti, isTask := a.(graph.TaskIterable)
			if !isTask {
				if _, isCalc := a.(graph.Calculator); isCalc {
					p.mode[a.Label()] = ModeSingle
					changed = e.storeArgs(a) || changed
				} else if _, isFC := a.(graph.ForceConsumer); isFC {
					p.mode[a.Label()] = ModeSingle
				} else {
					p.mode[a.Label()] = ModeNone
				}
				continue
			}

			if cand := e.fusionCandidate(p, a); cand != nil && cand.Tasks == ti.NumberOfTasks() {
				cand.Members = append(cand.Members, ti)
				p.chainOf[a.Label()] = cand
				p.mode[a.Label()] = ModeFused
				continue
			}

			// The node runs its own loop; every non-constant vector argument
			// must be materialized before the loop starts.
			changed = e.storeArgs(a) || changed
			c := &Chain{Head: ti, Members: []graph.TaskIterable{ti}, Tasks: ti.NumberOfTasks()}
			if as, ok := a.(atomSourced); ok {
				c.Terminal = as.AtomSource()
			}
			p.chains = append(p.chains, c)
			p.chainOf[a.Label()] = c
			p.mode[a.Label()] = ModeHead
		}

		if changed {
			continue
		}
		if err := e.finalizePlan(ctx, p); err != nil {
			return nil, err
		}
		logger.Debug("Fusion plan ready.", "sweeps", sweep+1, "chains", len(p.chains))
		return p, nil
	}
}

// fusionCandidate returns the unique upstream chain the node's vector
// arguments all originate from, or nil when fusion is illegal: mixed
// origins, a stored intermediate, a non-chainable producer, or forced
// materialization.
func (e *Engine) fusionCandidate(p *Plan, a graph.Action) *Chain {
	if e.forceMaterialize {
		return nil
	}
	at, ok := a.(graph.ArgumentTaker)
	if !ok {
		return nil
	}
	var cand *Chain
	for _, h := range at.Arguments() {
		v := e.arena.Get(h)
		if v.Rank() == 0 || v.IsConstant() {
			continue
		}
		if v.StoredInFull() {
			// Somebody needs random access across tasks; everyone reads the
			// materialized buffer.
			return nil
		}
		owner, ok := e.set.Get(v.Owner())
		if !ok {
			return nil
		}
		ch, ok := owner.(graph.Chainable)
		if !ok || !ch.CanChain() {
			return nil
		}
		c := p.chainOf[v.Owner()]
		if c == nil {
			return nil
		}
		if cand == nil {
			cand = c
		} else if cand != c {
			return nil
		}
	}
	return cand
}

// storeArgs requests full storage for every non-constant vector argument of
// a node that reads outside a fused stream. It reports whether any value
// newly became stored, which forces another planning sweep.
func (e *Engine) storeArgs(a graph.Action) bool {
	at, ok := a.(graph.ArgumentTaker)
	if !ok {
		return false
	}
	changed := false
	for _, h := range at.Arguments() {
		v := e.arena.Get(h)
		if v.Rank() == 0 || v.IsConstant() {
			continue
		}
		if !v.StoredInFull() {
			changed = true
		}
		v.RequestStore(a.Label())
	}
	return changed
}

// finalizePlan assigns buffer slots and derivative spans chain by chain and
// installs the resulting TaskSpec on every member.
func (e *Engine) finalizePlan(ctx context.Context, p *Plan) error {
	for _, c := range p.chains {
		slotOf := make(map[string]int)
		c.sourceStart = make(map[string]int)
		nslots := 0
		nder := 0
		if c.Terminal != nil {
			nder = c.Terminal.NumberOfDerivatives()
		}

		for _, m := range c.Members {
			vp, ok := m.(graph.ValueProducer)
			if !ok {
				return graph.Errorf(m.Label(), "task node produces no values")
			}
			var outSlots []int
			for _, v := range vp.Components() {
				slotOf[v.Name()] = nslots
				outSlots = append(outSlots, nslots)
				nslots++
			}

			var argSlots, argStarts []int
			if at, ok := m.(graph.ArgumentTaker); ok {
				for _, h := range at.Arguments() {
					v := e.arena.Get(h)
					slot, inChain := slotOf[v.Name()]
					if inChain && !v.StoredInFull() && p.chainOf[v.Owner()] == c {
						argSlots = append(argSlots, slot)
						argStarts = append(argStarts, 0)
						continue
					}
					start, seen := c.sourceStart[v.Name()]
					if !seen {
						start = nder
						c.sourceStart[v.Name()] = start
						c.Sources = append(c.Sources, Source{Handle: h, Start: start, Len: v.Size(), Constant: v.IsConstant()})
						nder += v.Size()
					}
					argSlots = append(argSlots, -1)
					argStarts = append(argStarts, start)
				}
			}

			m.SetTaskSpec(graph.TaskSpec{
				OutSlots:       outSlots,
				ArgSlots:       argSlots,
				ArgDerivStarts: argStarts,
				Fused:          m != c.Head,
			})
		}

		c.NumSlots = nslots
		c.NumDerivatives = nder
		for _, m := range c.Members {
			spec := m.Spec()
			spec.NumDerivatives = nder
			m.SetTaskSpec(spec)
		}
	}

	e.foldConstantChains(ctx, p)
	return nil
}

// foldConstantChains evaluates single-node chains whose arguments are all
// constant once at planning time, freezes their outputs and drops them from
// the step schedule.
func (e *Engine) foldConstantChains(ctx context.Context, p *Plan) {
	logger := ctxlog.FromContext(ctx)
	for _, c := range p.chains {
		if len(c.Members) != 1 || c.Terminal != nil {
			continue
		}
		at, ok := c.Head.(graph.ArgumentTaker)
		if !ok || len(at.Arguments()) == 0 {
			continue
		}
		constant := true
		for _, h := range at.Arguments() {
			if !e.arena.Get(h).IsConstant() {
				constant = false
				break
			}
		}
		if !constant {
			continue
		}
		vp := c.Head.(graph.ValueProducer)
		already := true
		for _, v := range vp.Components() {
			if !v.IsConstant() {
				already = false
				break
			}
		}
		if already {
			// Folded by an earlier plan; the frozen outputs stand.
			p.mode[c.Head.Label()] = ModeNone
			continue
		}
		for _, v := range vp.Components() {
			if v.Rank() > 0 {
				v.RequestStore(c.Head.Label())
			}
		}
		e.runChain(ctx, c)
		for _, v := range vp.Components() {
			v.SetConstant()
			v.Freeze()
		}
		p.mode[c.Head.Label()] = ModeNone
		logger.Debug("Folded constant node at plan time.", "node", c.Head.Label())
	}
}
