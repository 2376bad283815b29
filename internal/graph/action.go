// Package graph defines the node abstraction of the evaluation engine: the
// Action base type, the capability interfaces a node may implement, and the
// ordered Set that doubles as the topological order for the forward and
// backward passes.
package graph

import (
	"context"

	"github.com/agoscinski/colvar/internal/scratch"
	"github.com/agoscinski/colvar/internal/value"
)

// Action is the minimal contract of a graph node: identity, declared
// dependencies and an activation flag recomputed every step.
type Action interface {
	Label() string
	Kind() string
	Dependencies() []Action
	IsActive() bool
	Activate()
	Deactivate()
}

// ActionBase carries the state every node shares. Node types embed it and
// add their own values, arguments and task logic.
type ActionBase struct {
	label  string
	kind   string
	deps   []Action
	active bool
}

// NewActionBase returns a base for a node with the given kind and label.
func NewActionBase(kind, label string) ActionBase {
	return ActionBase{label: label, kind: kind}
}

// Label returns the unique label of the node.
func (a *ActionBase) Label() string { return a.label }

// Kind returns the registered kind name of the node.
func (a *ActionBase) Kind() string { return a.kind }

// Dependencies returns the nodes this node declared a dependency on.
func (a *ActionBase) Dependencies() []Action { return a.deps }

// AddDependency declares that this node requires another node to have run.
func (a *ActionBase) AddDependency(dep Action) {
	for _, d := range a.deps {
		if d == dep {
			return
		}
	}
	a.deps = append(a.deps, dep)
}

// IsActive reports whether the node is scheduled for the current step.
func (a *ActionBase) IsActive() bool { return a.active }

// Activate marks the node and, recursively, every transitive dependency as
// required this step.
func (a *ActionBase) Activate() {
	if a.active {
		return
	}
	a.active = true
	for _, d := range a.deps {
		d.Activate()
	}
}

// Deactivate clears the activation flag.
func (a *ActionBase) Deactivate() { a.active = false }

// ValueProducer is implemented by nodes that own output values.
type ValueProducer interface {
	Action
	Components() []*value.Value
}

// ArgumentTaker is implemented by nodes that read values owned by other
// nodes. Arguments are handles into the configuration's arena.
type ArgumentTaker interface {
	Action
	Arguments() []value.Handle
}

// Calculator is implemented by nodes that compute in a single shot over
// their full argument arrays, without a task decomposition.
type Calculator interface {
	Action
	Calculate(ctx context.Context) error
}

// TaskIterable is implemented by nodes whose computation decomposes into
// independent tasks driven by the engine's task loop.
type TaskIterable interface {
	Action
	// NumberOfTasks returns the size T of the task domain [0, T).
	NumberOfTasks() int
	// SetTaskSpec installs the slot and derivative-offset wiring decided by
	// the fusion planner.
	SetTaskSpec(TaskSpec)
	// Spec returns the installed wiring.
	Spec() TaskSpec
	// PerformTask computes the node's streamed values and sparse derivative
	// entries for one task.
	PerformTask(task int, buf *scratch.Buffer)
	// Gather merges one task's streamed results into the node's values.
	Gather(task int, buf *scratch.Buffer, acc *Accumulator)
	// GatherForces pulls the forces on the node's outputs for one task into
	// the chain's shared derivative-indexed force array.
	GatherForces(task int, buf *scratch.Buffer, forces []float64)
}

// Chainable is implemented by task nodes that permit downstream consumers to
// fuse into their task loop.
type Chainable interface {
	TaskIterable
	CanChain() bool
}

// ForceConsumer is implemented by nodes that convert forces on their outputs
// into forces on their inputs outside of a task loop.
type ForceConsumer interface {
	Action
	Apply() error
}

// AtomForceTerminal is implemented by the node that owns the host's atoms.
// It terminates backward propagation by converting per-index forces into
// per-atom force vectors and a virial contribution.
type AtomForceTerminal interface {
	Action
	// NumberOfDerivatives returns the width of the atomistic derivative
	// index space: three per atom plus nine virial components.
	NumberOfDerivatives() int
	// ApplyDerivedForces adds the forces accumulated against the atomistic
	// index space onto the atoms and the virial.
	ApplyDerivedForces(forces []float64)
}

// AtomSource provides atom data to atomistic task nodes and acts as the
// terminal for their derivative index space.
type AtomSource interface {
	AtomForceTerminal
	NumberOfAtoms() int
	Position(i int) [3]float64
	Mass(i int) float64
	Charge(i int) float64
	// PbcDistance returns the minimum-image vector from atom position a to b.
	PbcDistance(a, b [3]float64) [3]float64
}

// Pilot is implemented by nodes driven directly by the step clock. The
// activation closure starts from the pilots scheduled for the step.
type Pilot interface {
	Action
	OnStep(step int) bool
}

// BiasProvider is implemented by nodes contributing to the total bias
// energy. After the forward pass the engine adds the bias value into the
// evaluation context and seeds the force that drives backward propagation.
type BiasProvider interface {
	Action
	BiasValue() *value.Value
}

// StepPreparer is implemented by nodes that need per-step setup before the
// forward pass: clearing accumulators, re-arming warnings, refreshing
// dynamic task lists.
type StepPreparer interface {
	Action
	Prepare(step int)
}
