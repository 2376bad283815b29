package nodes

import (
	"context"
	"fmt"
	"io"

	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/value"
)

// Print writes selected values to a columnar stream once per stride. It
// requests full storage of every vector or matrix argument, which is what
// forces materialization of intermediates that would otherwise stay fused
// inside a task loop.
type Print struct {
	graph.ActionBase
	withArgs

	arena  *value.Arena
	w      io.Writer
	stride int
	header bool
	step   int
}

// NewPrint builds a print node writing the given values to w every stride
// steps.
func NewPrint(label string, arena *value.Arena, args []value.Handle, owners []graph.Action, w io.Writer, stride int) (*Print, error) {
	if len(args) == 0 {
		return nil, graph.Errorf(label, "at least one argument is required")
	}
	if stride <= 0 {
		stride = 1
	}
	p := &Print{
		ActionBase: graph.NewActionBase("print", label),
		withArgs:   withArgs{args: args},
		arena:      arena,
		w:          w,
		stride:     stride,
	}
	for i, h := range args {
		v := arena.Get(h)
		if v.Rank() > 0 {
			v.RequestStore(label)
		}
		p.AddDependency(owners[i])
	}
	return p, nil
}

// OnStep reports whether the node writes on this step.
func (p *Print) OnStep(step int) bool { return step%p.stride == 0 }

// Prepare records the step number written at the head of each line.
func (p *Print) Prepare(step int) { p.step = step }

// Calculate writes one line: the step marker followed by every element of
// every argument in declaration order.
func (p *Print) Calculate(ctx context.Context) error {
	if !p.header {
		fmt.Fprintf(p.w, "#! FIELDS step")
		for _, h := range p.args {
			v := p.arena.Get(h)
			if v.Size() == 1 {
				fmt.Fprintf(p.w, " %s", v.Name())
				continue
			}
			for i := 0; i < v.Size(); i++ {
				fmt.Fprintf(p.w, " %s[%d]", v.Name(), i)
			}
		}
		fmt.Fprintln(p.w)
		p.header = true
	}
	fmt.Fprintf(p.w, "%d", p.step)
	for _, h := range p.args {
		v := p.arena.Get(h)
		for i := 0; i < v.Size(); i++ {
			fmt.Fprintf(p.w, " %.10f", v.Get(i))
		}
	}
	fmt.Fprintln(p.w)
	return nil
}
