package nodes

import (
	"context"

	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/value"
)

// Restraint applies a harmonic bias to its scalar arguments. It is a pilot:
// the step clock drives it, and the activation closure pulls in everything
// its arguments depend on. The bias energy flows into the evaluation
// context; the backward pass converts the seeded force on the bias value
// into forces on the arguments through the dense derivative vector recorded
// here.
type Restraint struct {
	valueOwner
	withArgs

	at     []float64
	kappa  []float64
	stride int

	bias   value.Handle
	force2 value.Handle
}

// NewRestraint builds a harmonic restraint on the given scalar arguments.
// at and kappa give the center and spring constant per argument.
func NewRestraint(label string, arena *value.Arena, args []value.Handle, owners []graph.Action, at, kappa []float64, stride int) (*Restraint, error) {
	if len(args) == 0 {
		return nil, graph.Errorf(label, "at least one argument is required")
	}
	if len(at) != len(args) || len(kappa) != len(args) {
		return nil, graph.Errorf(label, "need one center and one spring constant per argument (%d args, %d at, %d kappa)", len(args), len(at), len(kappa))
	}
	for _, h := range args {
		v := arena.Get(h)
		if v.Rank() != 0 {
			return nil, graph.Errorf(label, "argument %s has rank %d, restraints act on scalars", v.Name(), v.Rank())
		}
	}
	if stride <= 0 {
		stride = 1
	}
	r := &Restraint{
		valueOwner: newValueOwner("restraint", label, arena),
		withArgs:   withArgs{args: args},
		at:         at,
		kappa:      kappa,
		stride:     stride,
	}
	b, err := r.addComponent("bias", []int{})
	if err != nil {
		return nil, err
	}
	r.bias = b
	arena.Get(b).SetupDerivatives(len(args))
	f2, err := r.addComponent("force2", []int{})
	if err != nil {
		return nil, err
	}
	r.force2 = f2
	for _, o := range owners {
		r.AddDependency(o)
	}
	return r, nil
}

// OnStep reports whether the restraint runs on this step.
func (r *Restraint) OnStep(step int) bool { return step%r.stride == 0 }

// BiasValue returns the scalar energy component.
func (r *Restraint) BiasValue() *value.Value { return r.arena.Get(r.bias) }

// Calculate computes the bias energy and its dense gradient with respect to
// the arguments. Periodic arguments are compared through their
// minimum-image difference.
func (r *Restraint) Calculate(ctx context.Context) error {
	bias := r.arena.Get(r.bias)
	ene, totf2 := 0.0, 0.0
	for i, h := range r.args {
		v := r.arena.Get(h)
		cv := v.Difference(r.at[i], v.Get(0))
		f := r.kappa[i] * cv
		ene += 0.5 * f * cv
		totf2 += f * f
		bias.AddDerivative(i, f)
	}
	bias.Set(0, ene)
	r.arena.Get(r.force2).Set(0, totf2)
	return nil
}

// Apply converts the force seeded on the bias value into forces on the
// arguments: each receives force times the recorded gradient entry.
func (r *Restraint) Apply() error {
	bias := r.arena.Get(r.bias)
	f := bias.Force(0)
	if f == 0 {
		return nil
	}
	for i, h := range r.args {
		r.arena.Get(h).AddForce(0, f*bias.Derivative(i))
	}
	return nil
}
