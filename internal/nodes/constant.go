package nodes

import (
	"github.com/agoscinski/colvar/internal/graph"
	"github.com/agoscinski/colvar/internal/value"
)

// Constant owns a value fixed at configuration time. Its output is frozen
// at build; downstream task nodes treat it as a stored source with zero
// force flow, and single-node loops fed only by constants fold away at plan
// time.
type Constant struct {
	valueOwner
}

// NewConstant builds a constant value with the given shape and contents.
// A nil or empty shape yields a scalar.
func NewConstant(label string, arena *value.Arena, shape []int, data []float64) (*Constant, error) {
	c := &Constant{valueOwner: newValueOwner("constant", label, arena)}
	h, err := c.addComponent("", shape)
	if err != nil {
		return nil, err
	}
	v := arena.Get(h)
	if len(data) != v.Size() {
		return nil, graph.Errorf(label, "shape %v holds %d elements, got %d", shape, v.Size(), len(data))
	}
	for i, x := range data {
		v.Set(i, x)
	}
	if isSymmetricSquare(shape, data) {
		v.SetSymmetric()
	}
	v.SetConstant()
	v.Freeze()
	return c, nil
}

func isSymmetricSquare(shape []int, data []float64) bool {
	if len(shape) != 2 || shape[0] != shape[1] {
		return false
	}
	n := shape[0]
	for r := 0; r < n; r++ {
		for c := r + 1; c < n; c++ {
			if data[r*n+c] != data[c*n+r] {
				return false
			}
		}
	}
	return true
}

// Value returns the frozen value handle.
func (c *Constant) Value() value.Handle { return c.comps[0] }
