// Package pbc handles the simulation cell: minimum-image vectors under
// periodic boundary conditions and the virial tensor accumulated during the
// backward pass.
package pbc

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Box is the simulation cell. Row i of the matrix is the i-th lattice
// vector. A zero box disables periodicity.
type Box struct {
	h   *mat.Dense
	inv *mat.Dense
	set bool
}

// NewBox returns a non-periodic box.
func NewBox() *Box {
	return &Box{h: mat.NewDense(3, 3, nil)}
}

// Set installs the nine box components, row major, and precomputes the
// inverse used for wrapping. A singular box is treated as non-periodic.
func (b *Box) Set(cell []float64) {
	if len(cell) != 9 {
		panic("pbc: box needs nine components")
	}
	b.h = mat.NewDense(3, 3, append([]float64(nil), cell...))
	var inv mat.Dense
	if err := inv.Inverse(b.h); err != nil {
		b.inv = nil
		b.set = false
		return
	}
	b.inv = &inv
	b.set = true
}

// Enabled reports whether the box is periodic.
func (b *Box) Enabled() bool { return b.set }

// Cell returns the box matrix. Callers must not mutate it.
func (b *Box) Cell() *mat.Dense { return b.h }

// Distance returns the minimum-image vector from a to b.
func (b *Box) Distance(a, p [3]float64) [3]float64 {
	d := [3]float64{p[0] - a[0], p[1] - a[1], p[2] - a[2]}
	if !b.set {
		return d
	}
	// Work in scaled coordinates: s = d H^-1, wrap each component to
	// [-0.5, 0.5), map back.
	var s [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s[i] += d[j] * b.inv.At(j, i)
		}
	}
	for i := 0; i < 3; i++ {
		s[i] -= math.Round(s[i])
	}
	var out [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i] += s[j] * b.h.At(j, i)
		}
	}
	return out
}

// Virial is the 3x3 stress contribution assembled while forces are pulled
// back onto the atoms.
type Virial struct {
	m *mat.Dense
}

// NewVirial returns a zeroed virial tensor.
func NewVirial() *Virial {
	return &Virial{m: mat.NewDense(3, 3, nil)}
}

// Zero clears the tensor.
func (v *Virial) Zero() { v.m.Zero() }

// Add accumulates x into component (i, j).
func (v *Virial) Add(i, j int, x float64) { v.m.Set(i, j, v.m.At(i, j)+x) }

// At returns component (i, j).
func (v *Virial) At(i, j int) float64 { return v.m.At(i, j) }

// Matrix returns the underlying dense matrix. Callers must not mutate it.
func (v *Virial) Matrix() *mat.Dense { return v.m }
