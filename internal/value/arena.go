package value

import "fmt"

// Handle is a stable index into an Arena. Nodes keep Handles to the values
// they read and own; the Arena keeps the only pointers.
type Handle int

// Arena owns every Value of one graph configuration. It is created at
// build time and discarded wholesale on a full graph reset.
type Arena struct {
	vals  []*Value
	index map[string]Handle
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{index: make(map[string]Handle)}
}

// New creates a value with the given full name, owner label and shape.
// Names are unique within one configuration.
func (a *Arena) New(name, owner string, shape []int) (Handle, error) {
	if _, ok := a.index[name]; ok {
		return 0, fmt.Errorf("duplicate value name %q", name)
	}
	v := &Value{name: name, owner: owner}
	v.Resize(shape)
	h := Handle(len(a.vals))
	a.vals = append(a.vals, v)
	a.index[name] = h
	return h, nil
}

// Get returns the value for a handle. An invalid handle is a programming
// defect and panics.
func (a *Arena) Get(h Handle) *Value {
	if int(h) < 0 || int(h) >= len(a.vals) {
		panic(fmt.Sprintf("arena: invalid handle %d", h))
	}
	return a.vals[h]
}

// Lookup resolves a full value name to its handle.
func (a *Arena) Lookup(name string) (Handle, bool) {
	h, ok := a.index[name]
	return h, ok
}

// Len returns the number of values in the arena.
func (a *Arena) Len() int { return len(a.vals) }

// Each calls fn for every value in creation order.
func (a *Arena) Each(fn func(Handle, *Value)) {
	for i, v := range a.vals {
		fn(Handle(i), v)
	}
}
