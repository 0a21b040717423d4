// Package builtin implements the registration contract for native
// functions callable from pattern-language source: a name, a namespace
// path, an arity rule and the Go function that backs it. It mirrors
// sentra's createMathModule/createStringModule registration pattern
// without carrying over sentra's own math/string builtins.
package builtin

import (
	"strings"

	plerrors "patternvm/internal/errors"
	"patternvm/internal/vm"
)

// ParameterCount is an arity rule a call site is checked against before a
// native function runs.
type ParameterCount struct {
	kind kind
	a, b int
}

type kind uint8

const (
	exactly kind = iota
	atLeast
	between
	none
)

func Exactly(n int) ParameterCount  { return ParameterCount{kind: exactly, a: n} }
func AtLeast(n int) ParameterCount  { return ParameterCount{kind: atLeast, a: n} }
func Between(a, b int) ParameterCount { return ParameterCount{kind: between, a: a, b: b} }
func None() ParameterCount          { return ParameterCount{kind: none} }

func (p ParameterCount) accepts(n int) bool {
	switch p.kind {
	case exactly:
		return n == p.a
	case atLeast:
		return n >= p.a
	case between:
		return n >= p.a && n <= p.b
	case none:
		return n == 0
	}
	return false
}

// Func is a native function body: it receives the already-evaluated
// argument values and returns a single result value.
type Func func(args []*vm.Value) (*vm.Value, error)

// Entry pairs a registered function with its arity rule and whether it is
// "dangerous" (I/O, non-deterministic, or otherwise unsafe for an
// embedding tool to call from untrusted pattern source without opt-in).
type Entry struct {
	Name      string
	Params    ParameterCount
	Fn        Func
	Dangerous bool
}

// Registry is a namespace-qualified function table; names are joined with
// "::" the way the pattern language's call sites spell a namespaced call
// (std::mem::base_address, for instance).
type Registry struct {
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

func qualify(namespace []string, name string) string {
	if len(namespace) == 0 {
		return name
	}
	return strings.Join(namespace, "::") + "::" + name
}

func (r *Registry) Add(namespace []string, name string, params ParameterCount, fn Func) {
	r.entries[qualify(namespace, name)] = &Entry{Name: name, Params: params, Fn: fn}
}

func (r *Registry) AddDangerous(namespace []string, name string, params ParameterCount, fn Func) {
	r.entries[qualify(namespace, name)] = &Entry{Name: name, Params: params, Fn: fn, Dangerous: true}
}

func (r *Registry) Remove(namespace []string, name string) {
	delete(r.entries, qualify(namespace, name))
}

func (r *Registry) Lookup(qualifiedName string) (*Entry, bool) {
	e, ok := r.entries[qualifiedName]
	return e, ok
}

// Call resolves qualifiedName, checks arity, and invokes it.
// allowDangerous gates functions registered via AddDangerous, matching the
// pattern language's "calling this needs the embedder's explicit consent"
// rule for functions that can observe or affect the outside world.
func (r *Registry) Call(qualifiedName string, args []*vm.Value, allowDangerous bool) (*vm.Value, error) {
	e, ok := r.Lookup(qualifiedName)
	if !ok {
		return nil, plerrors.NewRuntimeError(plerrors.MissingFunction, "no such builtin "+qualifiedName, "", 0)
	}
	if e.Dangerous && !allowDangerous {
		return nil, plerrors.NewRuntimeError(plerrors.InvalidType, "dangerous builtin "+qualifiedName+" not permitted", "", 0)
	}
	if !e.Params.accepts(len(args)) {
		return nil, plerrors.NewRuntimeError(plerrors.TypeMismatch, "wrong argument count for "+qualifiedName, "", 0)
	}
	return e.Fn(args)
}
