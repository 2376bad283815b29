// Package config holds the format-agnostic graph definition model. A
// format-specific loader (HCL today) translates user files into this model;
// the registry builds the node set from it without knowing the source
// syntax.
package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
)

// Model is the unified representation of one graph configuration: the node
// declarations in file order. Declaration order is meaningful, a node may
// only refer to values declared before it.
type Model struct {
	Nodes []*Node
}

// Node is the format-agnostic representation of one `node` block.
type Node struct {
	Kind       string
	Label      string
	Attributes map[string]hcl.Expression
}

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from the given paths, translates it into the
	// format-agnostic model, and returns a matching Converter.
	Load(ctx context.Context, paths ...string) (*Model, Converter, error)
}

// Converter binds a node's raw attributes to a Go struct. It is the bridge
// between the source syntax and the typed arguments node builders consume.
type Converter interface {
	// DecodeBody decodes the node's attributes into the target struct,
	// matching attribute names against `cty` field tags. Attributes with no
	// matching field are configuration errors.
	DecodeBody(ctx context.Context, target any, n *Node) error
}
