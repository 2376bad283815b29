// Package app assembles one runnable instance of the evaluation engine:
// logger, configuration model, node registry, graph and engine, wired
// together once and driven step by step over a trajectory.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/agoscinski/colvar/internal/config"
	"github.com/agoscinski/colvar/internal/ctxlog"
	"github.com/agoscinski/colvar/internal/engine"
	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/hclgraph"
	"github.com/agoscinski/colvar/internal/host"
	"github.com/agoscinski/colvar/internal/nodes"
	"github.com/agoscinski/colvar/internal/registry"
	"github.com/agoscinski/colvar/internal/value"
)

// AtomsLabel is the label of the implicit host-input node every graph gets.
// Collective variables refer to it only indirectly, through atom indices.
const AtomsLabel = "atoms"

// App encapsulates one configured engine instance and its lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	cfg    *Config

	arena   *value.Arena
	set     *graph.Set
	atoms   *nodes.Position
	engine  *engine.Engine
	outputs *outputSet
	results *host.Results
}

// NewApp builds the application: it loads the graph definition, registers
// the node kinds, constructs the node set around the implicit host-input
// node and creates the engine. The returned App has not planned fusion yet;
// planning needs the first frame's atom count.
func NewApp(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	var loader config.Loader = hclgraph.NewLoader()
	model, converter, err := loader.Load(ctx, cfg.GraphPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(model.Nodes) == 0 {
		return nil, fmt.Errorf("no node blocks found under %s", cfg.GraphPath)
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	reg := registry.New()
	nodes.RegisterAll(reg)
	logger.Debug("Node kinds registered.", "kinds", reg.Kinds())

	arena := value.NewArena()
	set := graph.NewSet()
	atoms := nodes.NewPosition(AtomsLabel)
	if err := set.Add(atoms); err != nil {
		return nil, err
	}

	outputs := newOutputSet(cfg.OutputDir)
	bc := &registry.BuildContext{
		Arena:      arena,
		Set:        set,
		Atoms:      atoms,
		Convert:    converter,
		OpenOutput: outputs.Open,
	}
	if err := reg.Build(ctx, bc, model); err != nil {
		outputs.Close()
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	logger.Debug("Graph built.", "node_count", set.Len(), "value_count", arena.Len())

	eng := engine.New(set, arena, engine.WithWorkers(cfg.Workers))

	return &App{
		outW:    outW,
		logger:  logger,
		cfg:     cfg,
		arena:   arena,
		set:     set,
		atoms:   atoms,
		engine:  eng,
		outputs: outputs,
	}, nil
}

// Engine returns the application's engine. This is primarily for testing.
func (a *App) Engine() *engine.Engine { return a.engine }

// Atoms returns the host-input node. This is primarily for testing.
func (a *App) Atoms() *nodes.Position { return a.atoms }

// Results returns the last step's host-facing outputs, or nil before the
// first step completes.
func (a *App) Results() *host.Results { return a.results }

// Close releases the output files opened during the build.
func (a *App) Close() error {
	return a.outputs.Close()
}
