package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoscinski/colvar/internal/config"
	"github.com/agoscinski/colvar/internal/ctxlog"
	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/registry"
	"github.com/agoscinski/colvar/internal/value"
)

type stubAction struct {
	graph.ActionBase
}

func newStub(label string) *stubAction {
	return &stubAction{ActionBase: graph.NewActionBase("stub", label)}
}

func buildStub(ctx context.Context, bc *registry.BuildContext, n *config.Node) (graph.Action, error) {
	return newStub(n.Label), nil
}

func TestRegisterRejectsDuplicateKind(t *testing.T) {
	r := registry.New()
	r.Register("stub", buildStub)
	require.Panics(t, func() { r.Register("stub", buildStub) })
}

func TestKindsAreSorted(t *testing.T) {
	r := registry.New()
	r.Register("zeta", buildStub)
	r.Register("alpha", buildStub)
	require.Equal(t, []string{"alpha", "zeta"}, r.Kinds())
}

func TestBuildAddsNodesInDeclarationOrder(t *testing.T) {
	r := registry.New()
	r.Register("stub", buildStub)

	bc := &registry.BuildContext{
		Arena: value.NewArena(),
		Set:   graph.NewSet(),
	}
	model := &config.Model{Nodes: []*config.Node{
		{Kind: "stub", Label: "a"},
		{Kind: "stub", Label: "b"},
	}}
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.Discard())
	require.NoError(t, r.Build(ctx, bc, model))

	labels := make([]string, 0, 2)
	for _, a := range bc.Set.Order() {
		labels = append(labels, a.Label())
	}
	require.Equal(t, []string{"a", "b"}, labels)
}

func TestBuildUnknownKindNamesRegisteredOnes(t *testing.T) {
	r := registry.New()
	r.Register("stub", buildStub)

	bc := &registry.BuildContext{Arena: value.NewArena(), Set: graph.NewSet()}
	model := &config.Model{Nodes: []*config.Node{{Kind: "mystery", Label: "m"}}}
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.Discard())
	err := r.Build(ctx, bc, model)
	require.Error(t, err)
	require.Contains(t, err.Error(), "mystery")
	require.Contains(t, err.Error(), "stub")
}

func TestResolveArgsDeduplicatesOwners(t *testing.T) {
	arena := value.NewArena()
	set := graph.NewSet()

	owner := newStub("src")
	require.NoError(t, set.Add(owner))
	for _, name := range []string{"src.a", "src.b"} {
		_, err := arena.New(name, "src", nil)
		require.NoError(t, err)
	}

	bc := &registry.BuildContext{Arena: arena, Set: set}
	handles, owners, err := bc.ResolveArgs("consumer", []string{"src.a", "src.b"})
	require.NoError(t, err)
	require.Len(t, handles, 2)
	require.Len(t, owners, 1, "one action owns both values")
	require.Equal(t, "src", owners[0].Label())
}

func TestResolveArgsUnknownValue(t *testing.T) {
	bc := &registry.BuildContext{Arena: value.NewArena(), Set: graph.NewSet()}
	_, _, err := bc.ResolveArgs("consumer", []string{"ghost"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "ghost")
}
