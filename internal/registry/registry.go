// Package registry maps node kind names to builder functions and drives
// graph construction from a loaded configuration model. Kinds register at
// startup; building walks the model in declaration order so the resulting
// node set is already topologically sorted.
package registry

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/agoscinski/colvar/internal/config"
	"github.com/agoscinski/colvar/internal/ctxlog"
	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/value"
)

// BuildContext carries everything a node builder needs: the arena the
// values live in, the node set built so far, the host-input terminal and
// the converter that decodes raw attribute bodies.
type BuildContext struct {
	Arena   *value.Arena
	Set     *graph.Set
	Atoms   graph.AtomSource
	Convert config.Converter

	// OpenOutput opens a named output stream for nodes that write files.
	// The driver owns the underlying files and closes them when the run
	// ends; tests substitute in-memory buffers.
	OpenOutput func(name string) (io.Writer, error)
}

// ResolveArgs maps value names to handles and collects the distinct owning
// nodes, preserving first-mention order. Unknown names are configuration
// errors carrying the consuming node's label.
func (bc *BuildContext) ResolveArgs(label string, names []string) ([]value.Handle, []graph.Action, error) {
	if len(names) == 0 {
		return nil, nil, graph.Errorf(label, "at least one argument is required")
	}
	handles := make([]value.Handle, 0, len(names))
	var owners []graph.Action
	seen := make(map[string]struct{})
	for _, name := range names {
		h, ok := bc.Arena.Lookup(name)
		if !ok {
			return nil, nil, graph.Errorf(label, "argument %q names no value declared before this node", name)
		}
		handles = append(handles, h)
		owner := bc.Arena.Get(h).Owner()
		if _, dup := seen[owner]; dup {
			continue
		}
		seen[owner] = struct{}{}
		a, ok := bc.Set.Get(owner)
		if !ok {
			return nil, nil, graph.Errorf(label, "value %q belongs to unknown node %q", name, owner)
		}
		owners = append(owners, a)
	}
	return handles, owners, nil
}

// Builder constructs one node from its decoded configuration block.
type Builder func(ctx context.Context, bc *BuildContext, n *config.Node) (graph.Action, error)

// Registry holds the registered node kinds of one application instance.
type Registry struct {
	builders map[string]Builder
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds a builder for a kind. Registering a kind twice is a
// programming defect and panics.
func (r *Registry) Register(kind string, b Builder) {
	if _, ok := r.builders[kind]; ok {
		panic(fmt.Sprintf("registry: kind %q registered twice", kind))
	}
	r.builders[kind] = b
}

// Kinds returns the registered kind names, sorted, for error hints.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.builders))
	for k := range r.builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build constructs every node of the model in declaration order and adds it
// to the set. The first failure aborts the build.
func (r *Registry) Build(ctx context.Context, bc *BuildContext, model *config.Model) error {
	logger := ctxlog.FromContext(ctx)

	for _, n := range model.Nodes {
		builder, ok := r.builders[n.Kind]
		if !ok {
			return graph.Errorf(n.Label, "unknown node kind %q, registered kinds: %v", n.Kind, r.Kinds())
		}
		a, err := builder(ctx, bc, n)
		if err != nil {
			return err
		}
		if err := bc.Set.Add(a); err != nil {
			return err
		}
		logger.Debug("Built node.", "kind", n.Kind, "label", n.Label)
	}
	return nil
}
