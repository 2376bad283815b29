package value

// Period describes a closed periodic domain [Min, Max) with wraparound
// arithmetic. A nil *Period means the quantity is not periodic.
type Period struct {
	Min, Max float64
}

// Width returns the length of the periodic domain.
func (p *Period) Width() float64 { return p.Max - p.Min }

// Difference returns the minimum-image signed difference b-a inside the
// domain. The result is always in [-Width/2, Width/2).
func (p *Period) Difference(a, b float64) float64 {
	w := p.Width()
	d := b - a
	for d >= 0.5*w {
		d -= w
	}
	for d < -0.5*w {
		d += w
	}
	return d
}

// Bring maps x into the domain [Min, Max).
func (p *Period) Bring(x float64) float64 {
	w := p.Width()
	for x >= p.Max {
		x -= w
	}
	for x < p.Min {
		x += w
	}
	return x
}
