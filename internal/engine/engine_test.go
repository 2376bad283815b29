package engine_test

import (
	"bytes"
	"context"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/agoscinski/colvar/internal/ctxlog"
	"github.com/agoscinski/colvar/internal/engine"
	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/host"
	"github.com/agoscinski/colvar/internal/nodes"
	"github.com/agoscinski/colvar/internal/value"
)

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

func frameFor(pos [][3]float64) *host.Frame {
	flat := make([]float64, 0, 3*len(pos))
	for _, p := range pos {
		flat = append(flat, p[0], p[1], p[2])
	}
	return &host.Frame{Positions: flat}
}

func handle(t *testing.T, arena *value.Arena, name string) value.Handle {
	t.Helper()
	h, ok := arena.Lookup(name)
	require.True(t, ok, "value %s", name)
	return h
}

// rig is a coordination-number graph: per-pair distances, a switching
// function, a sum and a harmonic restraint on the total.
type rig struct {
	arena *value.Arena
	set   *graph.Set
	atoms *nodes.Position
	eng   *engine.Engine
}

func buildRig(t *testing.T, pos [][3]float64, pairs [][2]int, at, kappa float64, opts ...engine.Option) *rig {
	t.Helper()
	arena := value.NewArena()
	set := graph.NewSet()

	atoms := nodes.NewPosition("atoms")
	require.NoError(t, set.Add(atoms))
	atoms.SetFrame(frameFor(pos))

	d, err := nodes.NewDistance("d", arena, atoms, atoms, pairs)
	require.NoError(t, err)
	require.NoError(t, set.Add(d))

	lt, err := nodes.NewLessThan("lt", arena, handle(t, arena, "d"), d, 1.5, 6, 0)
	require.NoError(t, err)
	require.NoError(t, set.Add(lt))

	cn, err := nodes.NewSum("cn", arena, handle(t, arena, "lt"), lt)
	require.NoError(t, err)
	require.NoError(t, set.Add(cn))

	r, err := nodes.NewRestraint("r", arena,
		[]value.Handle{handle(t, arena, "cn")}, []graph.Action{cn},
		[]float64{at}, []float64{kappa}, 1)
	require.NoError(t, err)
	require.NoError(t, set.Add(r))

	eng := engine.New(set, arena, opts...)
	require.NoError(t, eng.Plan(testCtx()))
	return &rig{arena: arena, set: set, atoms: atoms, eng: eng}
}

func fourAtoms() [][3]float64 {
	return [][3]float64{
		{0, 0, 0},
		{1.2, 0.1, -0.2},
		{-0.3, 1.4, 0.5},
		{0.9, -1.1, 0.8},
	}
}

func starPairs() [][2]int {
	return [][2]int{{0, 1}, {0, 2}, {0, 3}}
}

func TestPlanFusesVectorChain(t *testing.T) {
	r := buildRig(t, fourAtoms(), starPairs(), 1.0, 5.0)
	p := r.eng.CurrentPlan()

	require.Equal(t, engine.ModeHead, p.ModeOf("d"))
	require.Equal(t, engine.ModeFused, p.ModeOf("lt"))
	require.Equal(t, engine.ModeFused, p.ModeOf("cn"))
	require.Equal(t, engine.ModeSingle, p.ModeOf("r"))
	require.Equal(t, engine.ModeNone, p.ModeOf("atoms"))

	require.Len(t, p.Chains(), 1)
	require.Contains(t, p.Describe(), "members=[d lt cn]")
}

func TestStoredArgumentBreaksFusion(t *testing.T) {
	r := buildRig(t, fourAtoms(), starPairs(), 1.0, 5.0)

	// A consumer that needs the distances stored forbids streaming them.
	pr, err := nodes.NewPrint("out", r.arena,
		[]value.Handle{handle(t, r.arena, "d")},
		[]graph.Action{mustGet(t, r.set, "d")}, io.Discard, 1)
	require.NoError(t, err)
	require.NoError(t, r.set.Add(pr))
	require.NoError(t, r.eng.Plan(testCtx()))

	p := r.eng.CurrentPlan()
	require.Equal(t, engine.ModeHead, p.ModeOf("d"))
	require.Equal(t, engine.ModeHead, p.ModeOf("lt"))
	require.Equal(t, engine.ModeFused, p.ModeOf("cn"))
	require.Len(t, p.Chains(), 2)
}

func mustGet(t *testing.T, s *graph.Set, label string) graph.Action {
	t.Helper()
	a, ok := s.Get(label)
	require.True(t, ok)
	return a
}

func TestPlanIsIdempotent(t *testing.T) {
	r := buildRig(t, fourAtoms(), starPairs(), 1.0, 5.0)
	first := r.eng.CurrentPlan().Describe()
	require.NoError(t, r.eng.Plan(testCtx()))
	require.Equal(t, first, r.eng.CurrentPlan().Describe())
}

func TestHarmonicRestraintForces(t *testing.T) {
	// Two atoms 2.0 apart along x, restrained to 1.5. No switching function
	// in between, so the force is exactly kappa*(r-at) along the bond.
	arena := value.NewArena()
	set := graph.NewSet()
	atoms := nodes.NewPosition("atoms")
	require.NoError(t, set.Add(atoms))
	atoms.SetFrame(frameFor([][3]float64{{0, 0, 0}, {2, 0, 0}}))

	d, err := nodes.NewDistance("d", arena, atoms, atoms, [][2]int{{0, 1}})
	require.NoError(t, err)
	require.NoError(t, set.Add(d))
	s, err := nodes.NewSum("s", arena, handle(t, arena, "d"), d)
	require.NoError(t, err)
	require.NoError(t, set.Add(s))
	r, err := nodes.NewRestraint("r", arena,
		[]value.Handle{handle(t, arena, "s")}, []graph.Action{s},
		[]float64{1.5}, []float64{10}, 1)
	require.NoError(t, err)
	require.NoError(t, set.Add(r))

	eng := engine.New(set, arena)
	ec := &engine.EvalContext{}
	require.NoError(t, eng.Step(testCtx(), ec, 0))

	require.InDelta(t, 0.5*10*0.25, ec.Bias, 1e-12)

	forces := atoms.Forces()
	require.InDelta(t, 5.0, forces[0], 1e-12, "atom 0 is pulled outward along +x")
	require.InDelta(t, -5.0, forces[3], 1e-12, "atom 1 is pulled back along -x")
	for _, k := range []int{1, 2, 4, 5} {
		require.InDelta(t, 0.0, forces[k], 1e-12)
	}
	require.InDelta(t, 0.0, forces[0]+forces[3], 1e-12, "no net translation")

	require.InDelta(t, 10.0, atoms.Virial().At(0, 0), 1e-12)
	require.InDelta(t, 0.0, atoms.Virial().At(1, 1), 1e-12)
}

func TestRestraintStrideGatesSteps(t *testing.T) {
	arena := value.NewArena()
	set := graph.NewSet()
	atoms := nodes.NewPosition("atoms")
	require.NoError(t, set.Add(atoms))
	atoms.SetFrame(frameFor([][3]float64{{0, 0, 0}, {2, 0, 0}}))

	d, err := nodes.NewDistance("d", arena, atoms, atoms, [][2]int{{0, 1}})
	require.NoError(t, err)
	require.NoError(t, set.Add(d))
	s, err := nodes.NewSum("s", arena, handle(t, arena, "d"), d)
	require.NoError(t, err)
	require.NoError(t, set.Add(s))
	r, err := nodes.NewRestraint("r", arena,
		[]value.Handle{handle(t, arena, "s")}, []graph.Action{s},
		[]float64{1.5}, []float64{10}, 2)
	require.NoError(t, err)
	require.NoError(t, set.Add(r))

	eng := engine.New(set, arena)
	ec := &engine.EvalContext{}
	require.NoError(t, eng.Step(testCtx(), ec, 0))
	require.Greater(t, ec.Bias, 0.0)
	require.NotEqual(t, 0.0, atoms.Forces()[0])

	require.NoError(t, eng.Step(testCtx(), ec, 1))
	require.Equal(t, 0.0, ec.Bias, "off-stride step runs nothing")
	for k, f := range atoms.Forces() {
		require.Equal(t, 0.0, f, "stale force component %d survived a gated step", k)
	}
	require.Equal(t, 0.0, atoms.Virial().At(0, 0))

	require.NoError(t, eng.Step(testCtx(), ec, 2))
	require.Greater(t, ec.Bias, 0.0)
}

func TestFusedMatchesMaterialized(t *testing.T) {
	fused := buildRig(t, fourAtoms(), starPairs(), 1.0, 5.0)
	mat := buildRig(t, fourAtoms(), starPairs(), 1.0, 5.0, engine.WithForceMaterialize())

	require.Greater(t, len(mat.eng.CurrentPlan().Chains()), len(fused.eng.CurrentPlan().Chains()))

	ecF, ecM := &engine.EvalContext{}, &engine.EvalContext{}
	require.NoError(t, fused.eng.Step(testCtx(), ecF, 0))
	require.NoError(t, mat.eng.Step(testCtx(), ecM, 0))

	require.InDelta(t, ecM.Bias, ecF.Bias, 1e-12)
	fF, fM := fused.atoms.Forces(), mat.atoms.Forces()
	require.Len(t, fF, len(fM))
	for k := range fF {
		require.InDelta(t, fM[k], fF[k], 1e-9, "force component %d", k)
	}
}

func TestRepeatedRunsAreBitwiseIdentical(t *testing.T) {
	// All pairs over 46 atoms: 1035 tasks, enough to exercise uneven block
	// splits and multi-worker merges.
	pos := make([][3]float64, 46)
	var pairs [][2]int
	for i := range pos {
		pos[i] = [3]float64{
			math.Sin(float64(3 * i)),
			math.Cos(float64(5*i + 1)),
			0.3 * float64(i%7),
		}
		for j := 0; j < i; j++ {
			pairs = append(pairs, [2]int{j, i})
		}
	}

	run := func() (float64, []float64) {
		r := buildRig(t, pos, pairs, 2.0, 3.0, engine.WithWorkers(3))
		ec := &engine.EvalContext{}
		require.NoError(t, r.eng.Step(testCtx(), ec, 0))
		return ec.Bias, append([]float64(nil), r.atoms.Forces()...)
	}

	bias1, forces1 := run()
	bias2, forces2 := run()
	require.Equal(t, bias1, bias2, "identical configuration and worker count must reproduce bitwise")
	require.Equal(t, forces1, forces2)

	// A different worker count changes only the association of the partial
	// sums, never the physics.
	single := buildRig(t, pos, pairs, 2.0, 3.0, engine.WithWorkers(1))
	ec := &engine.EvalContext{}
	require.NoError(t, single.eng.Step(testCtx(), ec, 0))
	require.InDelta(t, bias1, ec.Bias, 1e-12)
	for k, f := range single.atoms.Forces() {
		require.InDelta(t, forces1[k], f, 1e-9, "force component %d", k)
	}
}

func TestForcesMatchFiniteDifferences(t *testing.T) {
	pos := fourAtoms()
	r := buildRig(t, pos, starPairs(), 1.0, 5.0)
	ec := &engine.EvalContext{}
	require.NoError(t, r.eng.Step(testCtx(), ec, 0))
	forces := append([]float64(nil), r.atoms.Forces()...)

	biasAt := func(p [][3]float64) float64 {
		rr := buildRig(t, p, starPairs(), 1.0, 5.0)
		e := &engine.EvalContext{}
		require.NoError(t, rr.eng.Step(testCtx(), e, 0))
		return e.Bias
	}

	const h = 1e-6
	for k := 0; k < 12; k++ {
		moved := make([][3]float64, len(pos))
		copy(moved, pos)
		moved[k/3][k%3] += h
		plus := biasAt(moved)
		moved[k/3][k%3] -= 2 * h
		minus := biasAt(moved)
		fd := (plus - minus) / (2 * h)
		require.InDelta(t, -forces[k], fd, 1e-5, "coordinate %d", k)
	}
}

func TestRestrainedAngleConservesMomentumAndTorque(t *testing.T) {
	pos := [][3]float64{
		{1, 0, 0},
		{0, 0, 0},
		{0, 1.2, 0},
	}
	arena := value.NewArena()
	set := graph.NewSet()
	atoms := nodes.NewPosition("atoms")
	require.NoError(t, set.Add(atoms))
	atoms.SetFrame(frameFor(pos))

	ang, err := nodes.NewAngle("theta", arena, atoms, atoms, [][3]int{{0, 1, 2}})
	require.NoError(t, err)
	require.NoError(t, set.Add(ang))
	s, err := nodes.NewSum("total", arena, handle(t, arena, "theta"), ang)
	require.NoError(t, err)
	require.NoError(t, set.Add(s))
	r, err := nodes.NewRestraint("r", arena,
		[]value.Handle{handle(t, arena, "total")}, []graph.Action{s},
		[]float64{1}, []float64{2}, 1)
	require.NoError(t, err)
	require.NoError(t, set.Add(r))

	eng := engine.New(set, arena)
	ec := &engine.EvalContext{}
	require.NoError(t, eng.Step(testCtx(), ec, 0))

	require.InDelta(t, math.Pi/2, arena.Get(handle(t, arena, "theta")).Get(0), 1e-12)

	forces := atoms.Forces()
	vertex := forces[3:6]
	require.Greater(t, vertex[0]*vertex[0]+vertex[1]*vertex[1], 0.0,
		"the vertex atom carries force")
	require.Equal(t, 0.0, vertex[2], "a planar angle has no out-of-plane force")

	for c := 0; c < 3; c++ {
		var net float64
		for i := 0; i < 3; i++ {
			net += forces[3*i+c]
		}
		require.InDelta(t, 0.0, net, 1e-10, "net force component %d", c)
	}

	var torque [3]float64
	for i := 0; i < 3; i++ {
		p, f := pos[i], forces[3*i:3*i+3]
		torque[0] += p[1]*f[2] - p[2]*f[1]
		torque[1] += p[2]*f[0] - p[0]*f[2]
		torque[2] += p[0]*f[1] - p[1]*f[0]
	}
	for c := 0; c < 3; c++ {
		require.InDelta(t, 0.0, torque[c], 1e-10, "net torque component %d", c)
	}
}

func TestHistogramAccumulatesAcrossSteps(t *testing.T) {
	arena := value.NewArena()
	set := graph.NewSet()
	atoms := nodes.NewPosition("atoms")
	require.NoError(t, set.Add(atoms))
	atoms.SetFrame(frameFor(fourAtoms()))

	d, err := nodes.NewDistance("d", arena, atoms, atoms, starPairs())
	require.NoError(t, err)
	require.NoError(t, set.Add(d))
	hg, err := nodes.NewHistogram("hist", arena, handle(t, arena, "d"), d, 0, 5, 10, 1, true)
	require.NoError(t, err)
	require.NoError(t, set.Add(hg))
	pr, err := nodes.NewPrint("out", arena,
		[]value.Handle{handle(t, arena, "hist")}, []graph.Action{hg}, io.Discard, 1)
	require.NoError(t, err)
	require.NoError(t, set.Add(pr))

	eng := engine.New(set, arena, engine.WithWorkers(2))
	ec := &engine.EvalContext{}
	for step := 0; step < 3; step++ {
		require.NoError(t, eng.Step(testCtx(), ec, step))
	}

	hist := arena.Get(handle(t, arena, "hist"))
	require.InDelta(t, 9.0, floats.Sum(hist.Data()), 1e-12,
		"three steps of three in-range samples each")
}

func TestTransientAccumulatorResetsEachStep(t *testing.T) {
	arena := value.NewArena()
	set := graph.NewSet()
	atoms := nodes.NewPosition("atoms")
	require.NoError(t, set.Add(atoms))
	atoms.SetFrame(frameFor(fourAtoms()))

	d, err := nodes.NewDistance("d", arena, atoms, atoms, starPairs())
	require.NoError(t, err)
	require.NoError(t, set.Add(d))
	s, err := nodes.NewSum("s", arena, handle(t, arena, "d"), d)
	require.NoError(t, err)
	require.NoError(t, set.Add(s))
	pr, err := nodes.NewPrint("out", arena,
		[]value.Handle{handle(t, arena, "s")}, []graph.Action{s}, io.Discard, 1)
	require.NoError(t, err)
	require.NoError(t, set.Add(pr))

	eng := engine.New(set, arena)
	ec := &engine.EvalContext{}
	require.NoError(t, eng.Step(testCtx(), ec, 0))
	first := arena.Get(handle(t, arena, "s")).Get(0)
	require.NoError(t, eng.Step(testCtx(), ec, 1))
	require.Equal(t, first, arena.Get(handle(t, arena, "s")).Get(0),
		"the total restarts from zero each step instead of growing")
}

func TestConstantArgumentsFoldAtPlanTime(t *testing.T) {
	arena := value.NewArena()
	set := graph.NewSet()

	c, err := nodes.NewConstant("c", arena, []int{3}, []float64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, set.Add(c))
	sq, err := nodes.NewCombine("sq", arena,
		[]value.Handle{c.Value()}, []graph.Action{c}, []float64{1}, []float64{2})
	require.NoError(t, err)
	require.NoError(t, set.Add(sq))

	var out bytes.Buffer
	pr, err := nodes.NewPrint("out", arena,
		[]value.Handle{handle(t, arena, "sq")}, []graph.Action{sq}, &out, 1)
	require.NoError(t, err)
	require.NoError(t, set.Add(pr))

	eng := engine.New(set, arena)
	require.NoError(t, eng.Plan(testCtx()))

	p := eng.CurrentPlan()
	require.Equal(t, engine.ModeNone, p.ModeOf("sq"))
	v := arena.Get(handle(t, arena, "sq"))
	require.True(t, v.IsConstant())
	require.Equal(t, []float64{1, 4, 9}, v.Data())

	// Steps skip the folded node but its frozen values keep flowing.
	ec := &engine.EvalContext{}
	require.NoError(t, eng.Step(testCtx(), ec, 0))
	require.Contains(t, out.String(), "1.0000000000 4.0000000000 9.0000000000")

	// Re-planning leaves the folded values untouched.
	require.NoError(t, eng.Plan(testCtx()))
	require.Equal(t, []float64{1, 4, 9}, v.Data())
}

func TestStepWithoutPilotsSkips(t *testing.T) {
	arena := value.NewArena()
	set := graph.NewSet()
	atoms := nodes.NewPosition("atoms")
	require.NoError(t, set.Add(atoms))
	atoms.SetFrame(frameFor(fourAtoms()))
	d, err := nodes.NewDistance("d", arena, atoms, atoms, starPairs())
	require.NoError(t, err)
	require.NoError(t, set.Add(d))

	eng := engine.New(set, arena)
	ec := &engine.EvalContext{}
	require.NoError(t, eng.Step(testCtx(), ec, 0))
	require.Equal(t, 0.0, ec.Bias)
}
