// Package pragma implements the name-to-handler registry driving
// `#pragma name value;` directives: each handler parses its own argument
// text and applies it to the runtime state passed in at Dispatch time.
package pragma

import (
	"fmt"
	"strconv"
	"strings"

	"patternvm/internal/errors"
	"patternvm/internal/vm"
)

// State is the subset of runtime configuration pragmas are allowed to
// mutate; internal/runtime's façade owns the real fields and passes a
// view of them in on every Dispatch call.
type State struct {
	Endian        *vm.Endian
	BitfieldOrder *vm.BitfieldOrder
	Limits        *vm.Limits
}

// Handler applies one pragma's argument text to State.
type Handler func(arg string, st *State) error

// Registry maps a pragma name to its Handler, matching the same add/
// remove-by-name shape `internal/builtin` uses for function registration.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.registerBuiltins()
	return r
}

func (r *Registry) Add(name string, h Handler) { r.handlers[name] = h }
func (r *Registry) Remove(name string)         { delete(r.handlers, name) }

// Dispatch runs name's handler against arg, returning a StageError tagged
// as StageValidator if name is unknown (pragmas are resolved at compile
// time, before any bytecode runs).
func (r *Registry) Dispatch(name, arg string, st *State) error {
	h, ok := r.handlers[name]
	if !ok {
		return errors.NewStageError(errors.StageValidator, "P0100", "unknown pragma "+name, errors.Location{})
	}
	if err := h(arg, st); err != nil {
		return errors.NewStageError(errors.StageValidator, "P0101", err.Error(), errors.Location{})
	}
	return nil
}

func (r *Registry) registerBuiltins() {
	r.Add("endian", func(arg string, st *State) error {
		switch strings.TrimSpace(arg) {
		case "little":
			*st.Endian = vm.LittleEndian
		case "big":
			*st.Endian = vm.BigEndian
		case "native":
			*st.Endian = vm.NativeEndian()
		default:
			return unexpected(arg, "little, big or native")
		}
		return nil
	})
	r.Add("bitfield_order", func(arg string, st *State) error {
		switch strings.TrimSpace(arg) {
		case "left_to_right":
			*st.BitfieldOrder = vm.LeftToRight
		case "right_to_left":
			*st.BitfieldOrder = vm.RightToLeft
		default:
			return unexpected(arg, "left_to_right or right_to_left")
		}
		return nil
	})
	r.Add("eval_depth", intLimit(func(st *State) *int { return &st.Limits.EvalDepth }))
	r.Add("array_limit", intLimit(func(st *State) *int { return &st.Limits.ArrayLimit }))
	r.Add("pattern_limit", intLimit(func(st *State) *int { return &st.Limits.PatternLimit }))
	r.Add("loop_limit", intLimit(func(st *State) *int { return &st.Limits.LoopLimit }))
	r.Add("debug", func(arg string, st *State) error { return nil })
}

func intLimit(field func(*State) *int) Handler {
	return func(arg string, st *State) error {
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return unexpected(arg, "an integer")
		}
		*field(st) = n
		return nil
	}
}

func unexpected(got, want string) error {
	return fmt.Errorf("expected %s, got %q", want, got)
}
