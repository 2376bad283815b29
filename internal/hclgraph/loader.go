// Package hclgraph is the HCL implementation of the configuration loader:
// it discovers .hcl files, parses `node "<kind>" "<label>"` blocks in file
// order and translates them into the format-agnostic config model.
package hclgraph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/agoscinski/colvar/internal/config"
	"github.com/agoscinski/colvar/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot decodes the top-level blocks of one file.
type fileRoot struct {
	Nodes  []*nodeBlock `hcl:"node,block"`
	Remain hcl.Body     `hcl:",remain"`
}

// nodeBlock is the raw form of a `node "<kind>" "<label>"` block. The body
// stays undecoded; the registry's builder decides its schema.
type nodeBlock struct {
	Kind   string   `hcl:"kind,label"`
	Label  string   `hcl:"label,label"`
	Remain hcl.Body `hcl:",remain"`
}

// Load parses every .hcl file reachable from the given paths and returns
// the merged model. Files are visited in path order, blocks in file order,
// so the model's node order matches what the user wrote.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	model := &config.Model{}
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, blk := range root.Nodes {
			n, err := l.translateNode(blk)
			if err != nil {
				return nil, nil, fmt.Errorf("in file %s: %w", file, err)
			}
			model.Nodes = append(model.Nodes, n)
		}
	}

	logger.Debug("HCL loading complete.", "nodes", len(model.Nodes))
	return model, NewConverter(), nil
}

// translateNode flattens a block body into the attribute map of the model.
// Nested blocks are rejected; the node grammar is attributes only.
func (l *Loader) translateNode(blk *nodeBlock) (*config.Node, error) {
	attrs, diags := blk.Remain.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("in node %q %q: %w", blk.Kind, blk.Label, diags)
	}
	n := &config.Node{
		Kind:       blk.Kind,
		Label:      blk.Label,
		Attributes: make(map[string]hcl.Expression, len(attrs)),
	}
	for name, attr := range attrs {
		n.Attributes[name] = attr.Expr
	}
	return n, nil
}

// findAllHCLFiles walks all given paths and returns a flat list of the .hcl
// files found, each at most once.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // It's not an error if a configured path doesn't exist.
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && filepath.Ext(p) == ".hcl" {
					if _, wasSeen := seen[p]; !wasSeen {
						allFiles = append(allFiles, p)
						seen[p] = struct{}{}
					}
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else if filepath.Ext(path) == ".hcl" {
			if _, wasSeen := seen[path]; !wasSeen {
				allFiles = append(allFiles, path)
				seen[path] = struct{}{}
			}
		}
	}
	return allFiles, nil
}
