// Package host defines the boundary with the embedding simulation code: the
// per-step data it pushes in and the quantities it reads back out.
package host

// Frame is one step's worth of input from the host engine. Positions is laid
// out x0 y0 z0 x1 y1 z1 ... for N atoms; Box holds nine row-major cell
// components, or is nil for a non-periodic run.
type Frame struct {
	Positions []float64
	Masses    []float64
	Charges   []float64
	Box       []float64
}

// NumberOfAtoms returns N.
func (f *Frame) NumberOfAtoms() int { return len(f.Positions) / 3 }

// Results is what the host reads back after a step: the total bias energy,
// the force on every atom (same layout as positions) and the virial.
type Results struct {
	Bias   float64
	Forces []float64
	Virial [9]float64
}
