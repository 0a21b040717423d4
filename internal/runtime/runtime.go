// Package runtime is the embedding façade: it strings the preprocessor,
// lexer, parser, validator, compiler and VM into one ExecuteString/
// ExecuteFile call, and exposes the settings and pattern-reading methods
// an embedding tool (an editor plugin, a CLI, a test harness) drives.
// Grounded on sentra's cmd/sentra "run" path (scan -> parse -> compile ->
// enter VM) collapsed into a single reusable type instead of a one-shot
// main().
package runtime

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/kr/pretty"

	"patternvm/internal/builtin"
	"patternvm/internal/bytecode"
	"patternvm/internal/compiler"
	plerrors "patternvm/internal/errors"
	"patternvm/internal/lexer"
	"patternvm/internal/parser"
	"patternvm/internal/pattern"
	"patternvm/internal/pragma"
	"patternvm/internal/preprocessor"
	"patternvm/internal/validator"
	"patternvm/internal/vm"
)

// Runtime wires one VM instance together with its supporting registries.
// Every embedded caller owns its own Runtime; ID is a per-instance
// identifier a multi-instance host can read to tell Runtimes apart. It is
// not written into console-log lines, patterns or errors.
type Runtime struct {
	ID uuid.UUID

	vm         *vm.VM
	bc         *bytecode.Bytecode
	natives    *builtin.Registry
	pragmas    *pragma.Registry
	pp         *preprocessor.Preprocessor
	palette    pattern.Counter
	verbose    bool

	endian        vm.Endian
	bitfieldOrder vm.BitfieldOrder
	limits        vm.Limits
	allowDangerous bool
	startAddress  uint64
	includePaths  []string
	dataSize      uint64

	console []string
	lastErr error
}

// New builds a Runtime with the language's default pragma handlers and an
// empty native-function registry; callers add their own std::* modules
// (or none at all) through AddFunction/AddDangerousFunction.
func New() *Runtime {
	r := &Runtime{
		ID:      uuid.New(),
		vm:      vm.New(),
		natives: builtin.NewRegistry(),
		pragmas: pragma.NewRegistry(),
	}
	r.vm.SetNativeCaller(r.natives)
	return r
}

// ApplyConfig copies a TOML-loaded Config onto the Runtime's settings.
func (r *Runtime) ApplyConfig(cfg Config) error {
	switch strings.ToLower(cfg.Endian) {
	case "big":
		r.SetDefaultEndian(vm.BigEndian)
	case "little", "":
		r.SetDefaultEndian(vm.LittleEndian)
	case "native":
		r.SetDefaultEndian(vm.NativeEndian())
	default:
		return fmt.Errorf("runtime: unknown endian %q", cfg.Endian)
	}
	switch strings.ToLower(cfg.BitfieldOrder) {
	case "right_to_left":
		r.SetBitfieldOrder(vm.RightToLeft)
	case "left_to_right", "":
		r.SetBitfieldOrder(vm.LeftToRight)
	default:
		return fmt.Errorf("runtime: unknown bitfield_order %q", cfg.BitfieldOrder)
	}
	r.SetStartAddress(cfg.StartAddress)
	r.SetIncludePaths(cfg.IncludePaths)
	r.SetLimits(vm.Limits{
		EvalDepth:    cfg.EvalDepth,
		ArrayLimit:   cfg.ArrayLimit,
		PatternLimit: cfg.PatternLimit,
		LoopLimit:    cfg.LoopLimit,
	})
	r.SetAllowDangerous(cfg.AllowDangerous)
	return nil
}

func (r *Runtime) SetDataSource(base, size uint64, read vm.ReadFunc, write vm.WriteFunc) {
	r.dataSize = size
	r.vm.SetDataSource(base, size, read, write)
}

func (r *Runtime) SetStartAddress(addr uint64) {
	r.startAddress = addr
	r.vm.SetStartAddress(addr)
}

func (r *Runtime) SetDefaultEndian(e vm.Endian) {
	r.endian = e
	r.vm.SetDefaultEndian(e)
}

func (r *Runtime) SetBitfieldOrder(o vm.BitfieldOrder) {
	r.bitfieldOrder = o
	r.vm.SetBitfieldOrder(o)
}

func (r *Runtime) SetLimits(l vm.Limits) {
	r.limits = l
	r.vm.SetLimits(l)
}

func (r *Runtime) SetAllowDangerous(allow bool) {
	r.allowDangerous = allow
	r.vm.SetAllowDangerous(allow)
}

// SetIncludePaths configures the directories #include searches, and
// rebuilds the preprocessor against the new list and the real
// filesystem-backed reader.
func (r *Runtime) SetIncludePaths(paths []string) {
	r.includePaths = paths
	r.pp = preprocessor.New(paths, r.readIncludedFile)
}

func (r *Runtime) readIncludedFile(name string) (string, error) {
	if filepath.IsAbs(name) {
		b, err := os.ReadFile(name)
		return string(b), err
	}
	for _, dir := range r.includePaths {
		full := filepath.Join(dir, name)
		if b, err := os.ReadFile(full); err == nil {
			return string(b), nil
		}
	}
	return "", fmt.Errorf("runtime: include %q not found in any include path", name)
}

func (r *Runtime) SetVerbose(v bool) { r.verbose = v }

// AddPragma/RemovePragma let an embedder extend or restrict the
// `#pragma name value;` surface beyond the language's built-ins.
func (r *Runtime) AddPragma(name string, h pragma.Handler) { r.pragmas.Add(name, h) }
func (r *Runtime) RemovePragma(name string)                { r.pragmas.Remove(name) }

// AddDefine/RemoveDefine pass through to the preprocessor's #define table,
// letting an embedder seed constants before ExecuteString ever runs.
func (r *Runtime) AddDefine(name, value string) {
	if r.pp == nil {
		r.pp = preprocessor.New(nil, r.readIncludedFile)
	}
	r.pp.AddDefine(name, value)
}
func (r *Runtime) RemoveDefine(name string) {
	if r.pp != nil {
		r.pp.RemoveDefine(name)
	}
}

// AddFunction registers an ordinary native function, callable from
// pattern source without the embedder's explicit consent.
func (r *Runtime) AddFunction(namespace []string, name string, params builtin.ParameterCount, fn builtin.Func) {
	r.natives.Add(namespace, name, params, fn)
}

// AddDangerousFunction registers a native function gated behind
// SetAllowDangerous(true) — I/O, process control, anything that touches
// the world outside the data source being parsed.
func (r *Runtime) AddDangerousFunction(namespace []string, name string, params builtin.ParameterCount, fn builtin.Func) {
	r.natives.AddDangerous(namespace, name, params, fn)
}

// ExecuteFile reads path and runs it as ExecuteString does.
func (r *Runtime) ExecuteFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return plerrors.NewStageError(plerrors.StagePreprocessor, "PP0003", "cannot read "+path, plerrors.Location{}).Wrap(err)
	}
	return r.ExecuteString(string(src))
}

// ExecuteString runs the full preprocess -> lex -> parse -> validate ->
// compile -> run pipeline over source, leaving the resulting patterns,
// console log and any error on the Runtime for the getters below to read.
func (r *Runtime) ExecuteString(source string) error {
	r.console = nil
	r.lastErr = nil
	r.vm.Reset()
	r.palette = pattern.Counter{}

	if r.pp == nil {
		r.pp = preprocessor.New(r.includePaths, r.readIncludedFile)
	}

	expanded, pragmas, err := r.extractPragmas(source)
	if err != nil {
		r.lastErr = err
		return err
	}
	expanded, err = r.pp.Process(expanded)
	if err != nil {
		r.lastErr = err
		return err
	}

	st := &pragma.State{Endian: &r.endian, BitfieldOrder: &r.bitfieldOrder, Limits: &r.limits}
	for _, d := range pragmas {
		if err := r.pragmas.Dispatch(d.name, d.arg, st); err != nil {
			r.lastErr = err
			return err
		}
	}
	r.SetDefaultEndian(r.endian)
	r.SetBitfieldOrder(r.bitfieldOrder)
	r.SetLimits(r.limits)

	scanner := lexer.NewScanner(expanded)
	tokens := scanner.ScanTokens()
	if scanner.HadError() {
		lexErr := plerrors.NewStageError(plerrors.StageLexer, "L0001", strings.Join(scanner.Errors(), "; "), plerrors.Location{})
		r.lastErr = lexErr
		return lexErr
	}

	prog, err := parser.New(tokens).Parse()
	if err != nil {
		if pe, ok := err.(*parser.ParseError); ok {
			err = plerrors.NewStageError(plerrors.StageParser, "P0001", pe.Message, plerrors.Location{Line: pe.Line, Column: pe.Column})
		}
		r.lastErr = err
		return err
	}

	if errs := validator.New().Validate(prog); len(errs) > 0 {
		r.lastErr = errs[0]
		return errs[0]
	}

	bc, err := compiler.Compile(prog)
	if err != nil {
		r.lastErr = err
		return err
	}
	r.bc = bc
	r.vm.LoadBytecode(bc)

	if r.verbose {
		r.log(fmt.Sprintf("%# v", pretty.Formatter(bc)))
	}

	start := time.Now()
	if _, err := r.vm.Run(); err != nil {
		r.lastErr = err
		return err
	}
	if r.verbose {
		r.log(fmt.Sprintf("ran in %s over a %s data source, exported %s pattern(s)",
			time.Since(start), humanize.Bytes(r.dataSize), humanize.Comma(int64(len(r.vm.Exports)))))
	}
	return nil
}

// ExecuteFunction re-enters an already-compiled program's function by
// name, used by tools that want to call a single pattern-language helper
// function without re-running the whole file.
func (r *Runtime) ExecuteFunction(name string) error {
	if r.bc == nil {
		return fmt.Errorf("runtime: no program compiled yet")
	}
	if _, err := r.vm.RunFunction(name); err != nil {
		r.lastErr = err
		return err
	}
	return nil
}

type pragmaDirective struct{ name, arg string }

// extractPragmas strips `#pragma name value;` lines out of source before
// the preprocessor and lexer ever see them, the same line-scan shape
// preprocessor.Process uses for #include/#define.
func (r *Runtime) extractPragmas(source string) (string, []pragmaDirective, error) {
	lines := strings.Split(source, "\n")
	var out []string
	var found []pragmaDirective
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#pragma") {
			out = append(out, line)
			continue
		}
		rest := strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(trimmed, "#pragma")), ";")
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) == 0 || parts[0] == "" {
			return "", nil, plerrors.NewStageError(plerrors.StagePreprocessor, "PP0004", "empty #pragma directive", plerrors.Location{})
		}
		name := parts[0]
		arg := ""
		if len(parts) == 2 {
			arg = strings.TrimSpace(parts[1])
		}
		found = append(found, pragmaDirective{name: name, arg: arg})
	}
	return strings.Join(out, "\n"), found, nil
}

func (r *Runtime) log(line string) { r.console = append(r.console, line) }

// GetConsoleLog returns every line logged by this run, in order.
func (r *Runtime) GetConsoleLog() []string { return r.console }

// GetError returns the error that stopped the last ExecuteString/
// ExecuteFile call, or nil if it completed cleanly.
func (r *Runtime) GetError() error { return r.lastErr }

// GetAllPatterns projects every EXPORT-ed value from the last run into
// the addressed pattern.Pattern tree an embedding UI renders.
func (r *Runtime) GetAllPatterns() []*pattern.Pattern {
	patterns := make([]*pattern.Pattern, 0, len(r.vm.Exports))
	for _, ex := range r.vm.Exports {
		p := projectValue(ex.Name, ex.Value, r.vm.Symbols, &r.palette)
		if p != nil {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// GetPatternsAtAddress answers "what overlaps this address" over the
// flattened pattern set from the last run.
func (r *Runtime) GetPatternsAtAddress(addr uint64) []*pattern.Pattern {
	roots := r.GetAllPatterns()
	flat := pattern.Flatten(roots)
	tree := pattern.BuildIntervalTree(flat)
	return tree.QueryAddress(new(big.Int).SetUint64(addr))
}

// GetSections groups the last run's patterns by the section they were
// read from (main input stream vs heap-allocated structures).
func (r *Runtime) GetSections() map[pattern.Section][]*pattern.Pattern {
	out := make(map[pattern.Section][]*pattern.Pattern)
	for _, p := range r.GetAllPatterns() {
		out[p.Section] = append(out[p.Section], p)
	}
	return out
}

// Reset drops the last run's compiled program, exports and console log so
// the Runtime can be reused for a fresh ExecuteString call.
func (r *Runtime) Reset() {
	r.bc = nil
	r.console = nil
	r.lastErr = nil
	r.vm.Reset()
	r.palette = pattern.Counter{}
}

// Abort stops the in-flight run and discards its results: the VM's export
// list, frame stack and cursor are thrown away exactly as Reset leaves
// them, so GetAllPatterns/GetSections/GetPatternsAtAddress all report
// empty immediately afterward. The compiled program itself survives so a
// caller can inspect Disassemble or call ExecuteFunction again without
// recompiling.
func (r *Runtime) Abort() {
	r.vm.Abort()
	r.palette = pattern.Counter{}
}

// Disassemble renders the last compiled program's bytecode, used by
// cmd/plvm's disasm subcommand and by tests asserting on lowering shape.
func (r *Runtime) Disassemble() string {
	if r.bc == nil {
		return ""
	}
	return r.bc.Disassemble()
}
