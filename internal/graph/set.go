package graph

import (
	"fmt"
)

// Set is the ordered collection of nodes of one configuration. Declaration
// order is the authoritative topological order: a node may only depend on
// nodes added before it, which both passes rely on.
type Set struct {
	order   []Action
	byLabel map[string]Action
}

// NewSet returns an empty node set.
func NewSet() *Set {
	return &Set{byLabel: make(map[string]Action)}
}

// Add appends a node. Duplicate labels and dependencies on nodes not yet in
// the set (forward references) are configuration errors.
func (s *Set) Add(a Action) error {
	if _, ok := s.byLabel[a.Label()]; ok {
		return Errorf(a.Label(), "duplicate label")
	}
	for _, dep := range a.Dependencies() {
		if _, ok := s.byLabel[dep.Label()]; !ok {
			return Errorf(a.Label(), "dependency %q is not declared before this node", dep.Label())
		}
	}
	s.order = append(s.order, a)
	s.byLabel[a.Label()] = a
	return nil
}

// Get resolves a label to its node.
func (s *Set) Get(label string) (Action, bool) {
	a, ok := s.byLabel[label]
	return a, ok
}

// Len returns the number of nodes.
func (s *Set) Len() int { return len(s.order) }

// Order returns the nodes in declaration order. Callers must not mutate it.
func (s *Set) Order() []Action { return s.order }

// Validate runs the structural checks that the incremental Add cannot see,
// in particular cycle detection over the full dependency graph.
func (s *Set) Validate() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(s.order))

	var visit func(a Action) error
	visit = func(a Action) error {
		switch state[a.Label()] {
		case done:
			return nil
		case visiting:
			return Errorf(a.Label(), "cyclic reference")
		}
		state[a.Label()] = visiting
		for _, dep := range a.Dependencies() {
			if _, ok := s.byLabel[dep.Label()]; !ok {
				return Errorf(a.Label(), "dependency %q is not part of this configuration", dep.Label())
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[a.Label()] = done
		return nil
	}

	for _, a := range s.order {
		if err := visit(a); err != nil {
			return err
		}
	}
	return nil
}

// Pilots returns every node driven directly by the step clock.
func (s *Set) Pilots() []Pilot {
	var pilots []Pilot
	for _, a := range s.order {
		if p, ok := a.(Pilot); ok {
			pilots = append(pilots, p)
		}
	}
	return pilots
}

// ActivateForStep recomputes the activation flags: every node is switched
// off, then the reachability closure is taken from the pilots scheduled for
// this step. It reports whether anything at all is active.
func (s *Set) ActivateForStep(step int) bool {
	for _, a := range s.order {
		a.Deactivate()
	}
	active := false
	for _, p := range s.Pilots() {
		if p.OnStep(step) {
			p.Activate()
			active = true
		}
	}
	return active
}

// String lists the labels in order, for error hints and debug logs.
func (s *Set) String() string {
	labels := make([]string, len(s.order))
	for i, a := range s.order {
		labels[i] = a.Label()
	}
	return fmt.Sprintf("%v", labels)
}
