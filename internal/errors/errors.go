// Package errors defines the stage-tagged error taxonomy shared by every
// component of the compile/execute pipeline: preprocessor, lexer, parser,
// validator, compiler and the VM each raise a distinct error kind, and the
// runtime façade unwraps back to the originating stage without losing the
// wrapped cause.
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Stage identifies which pipeline phase raised an error.
type Stage string

const (
	StagePreprocessor Stage = "preprocessor"
	StageLexer        Stage = "lexer"
	StageParser       Stage = "parser"
	StageValidator    Stage = "validator"
	StageCompiler     Stage = "compiler"
	StageRuntime      Stage = "runtime"
)

// Location is a line/column pair in the original source text.
type Location struct {
	Line   int
	Column int
}

func (l Location) String() string {
	if l.Line == 0 && l.Column == 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// StageError carries a numeric diagnostic code (E0001, P0002, ...), a
// message, an optional hint and the source location, for the early pipeline
// stages (preprocessor/lexer/parser/validator).
type StageError struct {
	Stage    Stage
	Code     string
	Message  string
	Location Location
	Hint     string
	cause    error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s error %s at %s: %s", e.Stage, e.Code, e.Location, e.Message)
	if e.Hint != "" {
		msg += " (hint: " + e.Hint + ")"
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.cause }

func NewStageError(stage Stage, code, message string, loc Location) *StageError {
	return &StageError{Stage: stage, Code: code, Message: message, Location: loc}
}

func (e *StageError) WithHint(hint string) *StageError {
	e.Hint = hint
	return e
}

func (e *StageError) Wrap(cause error) *StageError {
	e.cause = pkgerrors.WithStack(cause)
	return e
}

// CompileError is thrown from AST lowering when a construct has no emit
// rule ("don't know how to emit X"); it carries the offending node's source
// location instead of a diagnostic code.
type CompileError struct {
	Message  string
	Location Location
	cause    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error at %s: %s", e.Location, e.Message)
}

func (e *CompileError) Unwrap() error { return e.cause }

func NewCompileError(message string, loc Location) *CompileError {
	return &CompileError{Message: message, Location: loc}
}

// RuntimeErrorKind enumerates the VM's error categories.
type RuntimeErrorKind string

const (
	UndefinedVariable RuntimeErrorKind = "UndefinedVariable"
	TypeMismatch      RuntimeErrorKind = "TypeMismatch"
	StackUnderflow    RuntimeErrorKind = "StackUnderflow"
	MissingFunction   RuntimeErrorKind = "MissingFunction"
	InvalidType       RuntimeErrorKind = "InvalidType"
	LimitExceeded     RuntimeErrorKind = "LimitExceeded"
	IOError           RuntimeErrorKind = "IOError"
	NativeCallFailed  RuntimeErrorKind = "NativeCallFailed"
)

// RuntimeError is raised by the VM's fetch-decode-execute loop. It carries
// the current program counter and function name so the façade can report
// where execution was when it failed.
type RuntimeError struct {
	Kind     RuntimeErrorKind
	Message  string
	Function string
	PC       int
	cause    error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error %s in %s@%d: %s", e.Kind, e.Function, e.PC, e.Message)
}

func (e *RuntimeError) Unwrap() error { return e.cause }

func NewRuntimeError(kind RuntimeErrorKind, message, function string, pc int) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: message, Function: function, PC: pc}
}

// Wrap attaches a stack trace and a stage tag to an arbitrary error. No
// pipeline stage in this module calls it.
func Wrap(err error, stage Stage) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithMessage(pkgerrors.WithStack(err), string(stage))
}
