// Package step defines the closed set of step kinds a routing slip can
// carry and binds each kind to its pure step function.
//
// Kinds are parsed once at the edges (CLI, plan construction, stored
// slips); inside the pipeline they are compared as tagged values, so a
// misspelled step name fails loudly instead of silently matching nothing.
package step

import (
	"fmt"

	"github.com/xraph/choreo"
)

// Kind names a step. The zero value is not a valid kind.
type Kind string

// The supported step kinds.
const (
	Square Kind = "square"
	Cube   Kind = "cube"
	Quad   Kind = "quad"
)

// Func is a pure step transformation applied to a single operand.
type Func func(operand int64) int64

// table is the dispatch table from kind to step function.
//
// Quad multiplies by four. It is not the fourth power.
var table = map[Kind]Func{
	Square: func(x int64) int64 { return x * x },
	Cube:   func(x int64) int64 { return x * x * x },
	Quad:   func(x int64) int64 { return x * 4 },
}

// order lists kinds in their canonical plan order.
var order = []Kind{Square, Cube, Quad}

// Kinds returns every supported kind in canonical order.
func Kinds() []Kind {
	out := make([]Kind, len(order))
	copy(out, order)
	return out
}

// Parse converts a step name into a Kind.
func Parse(name string) (Kind, error) {
	k := Kind(name)
	if _, ok := table[k]; !ok {
		return "", fmt.Errorf("%w: %q", choreo.ErrUnknownStep, name)
	}
	return k, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded names.
func MustParse(name string) Kind {
	k, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return k
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	_, ok := table[k]
	return ok
}

// String implements fmt.Stringer.
func (k Kind) String() string { return string(k) }

// Func returns the step function bound to k.
func (k Kind) Func() (Func, error) {
	fn, ok := table[k]
	if !ok {
		return nil, fmt.Errorf("%w: %q", choreo.ErrUnknownStep, string(k))
	}
	return fn, nil
}

// Apply runs the step function bound to k on operand.
func (k Kind) Apply(operand int64) (int64, error) {
	fn, err := k.Func()
	if err != nil {
		return 0, err
	}
	return fn(operand), nil
}

// ParsePlan converts step names into a plan of kinds.
func ParsePlan(names []string) ([]Kind, error) {
	plan := make([]Kind, 0, len(names))
	for _, n := range names {
		k, err := Parse(n)
		if err != nil {
			return nil, err
		}
		plan = append(plan, k)
	}
	return plan, nil
}

// Names converts kinds back into their string names.
func Names(kinds []Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
