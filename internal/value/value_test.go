package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeriodDifferenceWraps(t *testing.T) {
	p := &Period{Min: -math.Pi, Max: math.Pi}
	require.InDelta(t, 2*math.Pi-6, p.Difference(3, -3), 1e-12)
	require.InDelta(t, 0.2, p.Difference(-0.1, 0.1), 1e-12)
	// The wrapped result always lands in [-w/2, w/2).
	require.InDelta(t, -math.Pi, p.Difference(0, math.Pi), 1e-12)
}

func TestPeriodBring(t *testing.T) {
	p := &Period{Min: 0, Max: 2 * math.Pi}
	require.InDelta(t, 7-2*math.Pi, p.Bring(7), 1e-12)
	require.InDelta(t, 2*math.Pi-1, p.Bring(-1), 1e-12)
	require.InDelta(t, 1.5, p.Bring(1.5), 1e-12)
}

func TestDifferenceNonPeriodic(t *testing.T) {
	a := NewArena()
	h, err := a.New("d", "owner", nil)
	require.NoError(t, err)
	require.Equal(t, 6.0, a.Get(h).Difference(-3, 3))
}

func TestDifferencePeriodicValue(t *testing.T) {
	a := NewArena()
	h, err := a.New("phi", "owner", nil)
	require.NoError(t, err)
	v := a.Get(h)
	v.SetPeriod(-math.Pi, math.Pi)
	require.True(t, v.IsPeriodic())
	require.InDelta(t, 2*math.Pi-6, v.Difference(3, -3), 1e-12)
}

func TestArenaRejectsDuplicateNames(t *testing.T) {
	a := NewArena()
	_, err := a.New("d", "owner", nil)
	require.NoError(t, err)
	_, err = a.New("d", "other", nil)
	require.Error(t, err)
}

func TestArenaLookup(t *testing.T) {
	a := NewArena()
	h, err := a.New("d.x", "d", []int{3})
	require.NoError(t, err)
	got, ok := a.Lookup("d.x")
	require.True(t, ok)
	require.Equal(t, h, got)
	_, ok = a.Lookup("missing")
	require.False(t, ok)
}

func TestArenaGetPanicsOnBadHandle(t *testing.T) {
	a := NewArena()
	require.Panics(t, func() { a.Get(Handle(0)) })
}

func TestBoundsViolationPanics(t *testing.T) {
	a := NewArena()
	h, _ := a.New("v", "owner", []int{2})
	v := a.Get(h)
	require.Panics(t, func() { v.Get(2) })
	require.Panics(t, func() { v.Set(-1, 0) })
}

func TestFrozenConstantRejectsWrites(t *testing.T) {
	a := NewArena()
	h, _ := a.New("c", "owner", []int{1})
	v := a.Get(h)
	v.Set(0, 4)
	v.SetConstant()
	v.Freeze()
	require.Panics(t, func() { v.Set(0, 5) })
	require.Panics(t, func() { v.Add(0, 1) })
	require.Equal(t, 4.0, v.Get(0))
}

func TestFreezeRequiresConstant(t *testing.T) {
	a := NewArena()
	h, _ := a.New("v", "owner", nil)
	require.Panics(t, func() { a.Get(h).Freeze() })
}

func TestRequestStoreDedupesConsumers(t *testing.T) {
	a := NewArena()
	h, _ := a.New("d", "owner", []int{4})
	v := a.Get(h)
	require.False(t, v.StoredInFull())
	v.RequestStore("print1")
	v.RequestStore("print1")
	v.RequestStore("print2")
	require.True(t, v.StoredInFull())
	require.Equal(t, []string{"print1", "print2"}, v.StoredFor())
}

func TestForceForTask(t *testing.T) {
	a := NewArena()
	hs, _ := a.New("s", "owner", nil)
	s := a.Get(hs)
	s.AddForce(0, -1)
	require.Equal(t, -1.0, s.ForceForTask(0))
	require.Equal(t, -1.0, s.ForceForTask(7), "scalars drive every task with the same force")

	hv, _ := a.New("v", "owner", []int{3})
	v := a.Get(hv)
	v.AddForce(1, 0.5)
	require.Equal(t, 0.0, v.ForceForTask(0))
	require.Equal(t, 0.5, v.ForceForTask(1))
	require.Panics(t, func() { v.ForceForTask(3) })
}

func TestHasForceAndClear(t *testing.T) {
	a := NewArena()
	h, _ := a.New("v", "owner", []int{2})
	v := a.Get(h)
	require.False(t, v.HasForce())
	v.AddForce(1, 2)
	require.True(t, v.HasForce())
	v.ClearForces()
	require.False(t, v.HasForce())
}

func TestDenseDerivatives(t *testing.T) {
	a := NewArena()
	h, _ := a.New("bias", "owner", nil)
	v := a.Get(h)
	v.SetupDerivatives(3)
	require.True(t, v.HasDerivatives())
	require.Equal(t, 3, v.NumberOfDerivatives())
	v.AddDerivative(2, 1.5)
	v.AddDerivative(2, 0.5)
	require.Equal(t, 2.0, v.Derivative(2))
	v.ClearDerivatives()
	require.Equal(t, 0.0, v.Derivative(2))
	require.Panics(t, func() { v.AddDerivative(3, 1) })
}

func TestDenseDerivativesRejectVectors(t *testing.T) {
	a := NewArena()
	h, _ := a.New("v", "owner", []int{2})
	require.Panics(t, func() { a.Get(h).SetupDerivatives(3) })
}
