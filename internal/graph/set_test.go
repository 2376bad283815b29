package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubAction struct {
	ActionBase
}

func newStub(label string, deps ...Action) *stubAction {
	a := &stubAction{ActionBase: NewActionBase("stub", label)}
	for _, d := range deps {
		a.AddDependency(d)
	}
	return a
}

type stubPilot struct {
	ActionBase
	stride int
}

func (p *stubPilot) OnStep(step int) bool { return step%p.stride == 0 }

func newPilot(label string, stride int, deps ...Action) *stubPilot {
	p := &stubPilot{ActionBase: NewActionBase("pilot", label), stride: stride}
	for _, d := range deps {
		p.AddDependency(d)
	}
	return p
}

func TestAddRejectsDuplicateLabels(t *testing.T) {
	s := NewSet()
	require.NoError(t, s.Add(newStub("a")))
	err := s.Add(newStub("a"))
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "a", cerr.Label)
}

func TestAddRejectsForwardReferences(t *testing.T) {
	s := NewSet()
	a := newStub("a")
	b := newStub("b", a)
	err := s.Add(b)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "b", cerr.Label)
}

func TestValidateDetectsCycles(t *testing.T) {
	s := NewSet()
	a := newStub("a")
	require.NoError(t, s.Add(a))
	b := newStub("b", a)
	require.NoError(t, s.Add(b))
	require.NoError(t, s.Validate())

	// Close the loop behind the set's back.
	a.AddDependency(b)
	err := s.Validate()
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
}

func TestActivationClosureFollowsStrides(t *testing.T) {
	s := NewSet()
	base := newStub("base")
	mid := newStub("mid", base)
	unrelated := newStub("unrelated")
	every2 := newPilot("every2", 2, mid)
	require.NoError(t, s.Add(base))
	require.NoError(t, s.Add(mid))
	require.NoError(t, s.Add(unrelated))
	require.NoError(t, s.Add(every2))

	require.True(t, s.ActivateForStep(0))
	require.True(t, base.IsActive())
	require.True(t, mid.IsActive())
	require.True(t, every2.IsActive())
	require.False(t, unrelated.IsActive())

	require.False(t, s.ActivateForStep(1))
	require.False(t, base.IsActive())
	require.False(t, mid.IsActive())
	require.False(t, every2.IsActive())
}

func TestPilots(t *testing.T) {
	s := NewSet()
	require.NoError(t, s.Add(newStub("a")))
	require.NoError(t, s.Add(newPilot("p1", 1)))
	require.NoError(t, s.Add(newPilot("p2", 5)))
	require.Len(t, s.Pilots(), 2)
}

func TestConfigErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := &ConfigError{Label: "x", Err: inner}
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), `node "x"`)
}
