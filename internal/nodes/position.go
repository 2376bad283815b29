package nodes

import (
	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/host"
	"github.com/agoscinski/colvar/internal/pbc"
)

// Position is the host-input terminal node. It owns the atom data pushed by
// the embedding code and terminates backward propagation: forces accumulated
// against the atomistic derivative index space end up here as per-atom force
// vectors and a virial contribution.
type Position struct {
	graph.ActionBase

	natoms  int
	pos     []float64
	masses  []float64
	charges []float64
	box     *pbc.Box

	forces []float64
	virial *pbc.Virial

	resized bool
}

// NewPosition returns the host-input node with the given label.
func NewPosition(label string) *Position {
	return &Position{
		ActionBase: graph.NewActionBase("position", label),
		box:        pbc.NewBox(),
		virial:     pbc.NewVirial(),
	}
}

// SetFrame installs one step's worth of host data. It reports whether the
// atom count changed, which forces the engine to re-plan the graph.
func (p *Position) SetFrame(f *host.Frame) bool {
	n := f.NumberOfAtoms()
	changed := n != p.natoms
	p.natoms = n
	p.pos = f.Positions
	p.masses = f.Masses
	p.charges = f.Charges
	if f.Box != nil {
		p.box.Set(f.Box)
	}
	if changed {
		p.forces = make([]float64, 3*n)
		p.resized = true
	}
	return changed
}

// Prepare clears the per-step force and virial accumulators.
func (p *Position) Prepare(step int) {
	for i := range p.forces {
		p.forces[i] = 0
	}
	p.virial.Zero()
}

// NumberOfAtoms returns the number of atoms of the current frame.
func (p *Position) NumberOfAtoms() int { return p.natoms }

// Position returns the coordinates of atom i.
func (p *Position) Position(i int) [3]float64 {
	return [3]float64{p.pos[3*i], p.pos[3*i+1], p.pos[3*i+2]}
}

// Mass returns the mass of atom i, defaulting to one when the host did not
// push masses.
func (p *Position) Mass(i int) float64 {
	if i >= len(p.masses) {
		return 1
	}
	return p.masses[i]
}

// Charge returns the charge of atom i.
func (p *Position) Charge(i int) float64 {
	if i >= len(p.charges) {
		return 0
	}
	return p.charges[i]
}

// PbcDistance returns the minimum-image vector from a to b.
func (p *Position) PbcDistance(a, b [3]float64) [3]float64 {
	return p.box.Distance(a, b)
}

// Box returns the simulation cell.
func (p *Position) Box() *pbc.Box { return p.box }

// NumberOfDerivatives returns the width of the atomistic index space: three
// per atom plus the nine virial components.
func (p *Position) NumberOfDerivatives() int { return 3*p.natoms + 9 }

// ApplyDerivedForces maps the per-index forces of a chain onto the atoms and
// the virial. The layout is fixed once per configuration: 3N atom entries
// followed by nine row-major virial entries.
func (p *Position) ApplyDerivedForces(forces []float64) {
	n := 3 * p.natoms
	for i := 0; i < n && i < len(forces); i++ {
		p.forces[i] += forces[i]
	}
	for k := 0; k < 9 && n+k < len(forces); k++ {
		p.virial.Add(k/3, k%3, forces[n+k])
	}
}

// Forces returns the per-atom forces accumulated this step.
func (p *Position) Forces() []float64 { return p.forces }

// Virial returns the virial tensor accumulated this step.
func (p *Position) Virial() *pbc.Virial { return p.virial }

// CollectResults fills the host-facing output with this step's forces and
// virial.
func (p *Position) CollectResults(out *host.Results) {
	out.Forces = append(out.Forces[:0], p.forces...)
	for k := 0; k < 9; k++ {
		out.Virial[k] = p.virial.At(k/3, k%3)
	}
}
