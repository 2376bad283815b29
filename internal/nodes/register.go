package nodes

import (
	"context"

	"github.com/agoscinski/colvar/internal/config"
	"github.com/agoscinski/colvar/internal/ctxlog"
	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/registry"
)

// RegisterAll wires every node kind into the registry. The host-input
// terminal is not registered here: the driver creates it before the graph
// builds and exposes it through the build context.
func RegisterAll(r *registry.Registry) {
	r.Register("constant", buildConstant)
	r.Register("distance", buildDistance)
	r.Register("angle", buildAngle)
	r.Register("lessthan", buildLessThan)
	r.Register("combine", buildCombine)
	r.Register("sum", buildSum)
	r.Register("histogram", buildHistogram)
	r.Register("restraint", buildRestraint)
	r.Register("print", buildPrint)
}

func buildConstant(ctx context.Context, bc *registry.BuildContext, n *config.Node) (graph.Action, error) {
	var args struct {
		Values []float64 `cty:"values"`
		Shape  []int     `cty:"shape"`
	}
	if err := bc.Convert.DecodeBody(ctx, &args, n); err != nil {
		return nil, err
	}
	shape := args.Shape
	if shape == nil && len(args.Values) != 1 {
		shape = []int{len(args.Values)}
	}
	return NewConstant(n.Label, bc.Arena, shape, args.Values)
}

// atomGroups splits a flat atom index list into groups of the given width.
func atomGroups(label string, atoms []int, width int) ([][]int, error) {
	if len(atoms) == 0 || len(atoms)%width != 0 {
		return nil, graph.Errorf(label, "atoms must list a multiple of %d indices, got %d", width, len(atoms))
	}
	groups := make([][]int, 0, len(atoms)/width)
	for i := 0; i < len(atoms); i += width {
		groups = append(groups, atoms[i:i+width])
	}
	return groups, nil
}

func buildDistance(ctx context.Context, bc *registry.BuildContext, n *config.Node) (graph.Action, error) {
	var args struct {
		Atoms []int `cty:"atoms"`
	}
	if err := bc.Convert.DecodeBody(ctx, &args, n); err != nil {
		return nil, err
	}
	if bc.Atoms == nil {
		return nil, graph.Errorf(n.Label, "no atom source is configured")
	}
	groups, err := atomGroups(n.Label, args.Atoms, 2)
	if err != nil {
		return nil, err
	}
	pairs := make([][2]int, len(groups))
	for i, g := range groups {
		pairs[i] = [2]int{g[0], g[1]}
	}
	return NewDistance(n.Label, bc.Arena, bc.Atoms, bc.Atoms, pairs)
}

func buildAngle(ctx context.Context, bc *registry.BuildContext, n *config.Node) (graph.Action, error) {
	var args struct {
		Atoms []int `cty:"atoms"`
	}
	if err := bc.Convert.DecodeBody(ctx, &args, n); err != nil {
		return nil, err
	}
	if bc.Atoms == nil {
		return nil, graph.Errorf(n.Label, "no atom source is configured")
	}
	groups, err := atomGroups(n.Label, args.Atoms, 3)
	if err != nil {
		return nil, err
	}
	triples := make([][3]int, len(groups))
	for i, g := range groups {
		triples[i] = [3]int{g[0], g[1], g[2]}
	}
	a, err := NewAngle(n.Label, bc.Arena, bc.Atoms, bc.Atoms, triples)
	if err != nil {
		return nil, err
	}
	a.SetLogger(ctxlog.FromContext(ctx))
	return a, nil
}

func buildLessThan(ctx context.Context, bc *registry.BuildContext, n *config.Node) (graph.Action, error) {
	var args struct {
		Arg string  `cty:"arg"`
		R0  float64 `cty:"r0"`
		NN  int     `cty:"nn"`
		MM  int     `cty:"mm"`
	}
	if err := bc.Convert.DecodeBody(ctx, &args, n); err != nil {
		return nil, err
	}
	handles, owners, err := bc.ResolveArgs(n.Label, []string{args.Arg})
	if err != nil {
		return nil, err
	}
	return NewLessThan(n.Label, bc.Arena, handles[0], owners[0], args.R0, args.NN, args.MM)
}

func buildCombine(ctx context.Context, bc *registry.BuildContext, n *config.Node) (graph.Action, error) {
	var args struct {
		Args         []string  `cty:"args"`
		Coefficients []float64 `cty:"coefficients"`
		Powers       []float64 `cty:"powers"`
	}
	if err := bc.Convert.DecodeBody(ctx, &args, n); err != nil {
		return nil, err
	}
	handles, owners, err := bc.ResolveArgs(n.Label, args.Args)
	if err != nil {
		return nil, err
	}
	return NewCombine(n.Label, bc.Arena, handles, owners, args.Coefficients, args.Powers)
}

func buildSum(ctx context.Context, bc *registry.BuildContext, n *config.Node) (graph.Action, error) {
	var args struct {
		Arg string `cty:"arg"`
	}
	if err := bc.Convert.DecodeBody(ctx, &args, n); err != nil {
		return nil, err
	}
	handles, owners, err := bc.ResolveArgs(n.Label, []string{args.Arg})
	if err != nil {
		return nil, err
	}
	return NewSum(n.Label, bc.Arena, handles[0], owners[0])
}

func buildHistogram(ctx context.Context, bc *registry.BuildContext, n *config.Node) (graph.Action, error) {
	var args struct {
		Arg        string  `cty:"arg"`
		Min        float64 `cty:"min"`
		Max        float64 `cty:"max"`
		Bins       int     `cty:"bins"`
		Height     float64 `cty:"height"`
		Accumulate bool    `cty:"accumulate"`
	}
	args.Height = 1
	if err := bc.Convert.DecodeBody(ctx, &args, n); err != nil {
		return nil, err
	}
	handles, owners, err := bc.ResolveArgs(n.Label, []string{args.Arg})
	if err != nil {
		return nil, err
	}
	return NewHistogram(n.Label, bc.Arena, handles[0], owners[0], args.Min, args.Max, args.Bins, args.Height, args.Accumulate)
}

func buildRestraint(ctx context.Context, bc *registry.BuildContext, n *config.Node) (graph.Action, error) {
	var args struct {
		Args   []string  `cty:"args"`
		At     []float64 `cty:"at"`
		Kappa  []float64 `cty:"kappa"`
		Stride int       `cty:"stride"`
	}
	if err := bc.Convert.DecodeBody(ctx, &args, n); err != nil {
		return nil, err
	}
	handles, owners, err := bc.ResolveArgs(n.Label, args.Args)
	if err != nil {
		return nil, err
	}
	return NewRestraint(n.Label, bc.Arena, handles, owners, args.At, args.Kappa, args.Stride)
}

func buildPrint(ctx context.Context, bc *registry.BuildContext, n *config.Node) (graph.Action, error) {
	var args struct {
		Args   []string `cty:"args"`
		File   string   `cty:"file"`
		Stride int      `cty:"stride"`
	}
	if err := bc.Convert.DecodeBody(ctx, &args, n); err != nil {
		return nil, err
	}
	if args.File == "" {
		return nil, graph.Errorf(n.Label, "file is required")
	}
	handles, owners, err := bc.ResolveArgs(n.Label, args.Args)
	if err != nil {
		return nil, err
	}
	w, err := bc.OpenOutput(args.File)
	if err != nil {
		return nil, graph.Errorf(n.Label, "opening %s: %v", args.File, err)
	}
	return NewPrint(n.Label, bc.Arena, handles, owners, w, args.Stride)
}
