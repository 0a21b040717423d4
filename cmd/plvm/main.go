// cmd/plvm is a small driver over internal/runtime: point it at a pattern
// source file and a data file, and it prints the exported pattern tree (or
// the compiled bytecode disassembly, or a pass/fail check). Its run/check
// subcommands are narrowed to this language's actual surface — no
// build/watch/mod/repl/debug tooling, since this is a single-shot
// compile-and-read tool rather than a general scripting runtime.
package main

import (
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"

	isatty "github.com/mattn/go-isatty"

	"patternvm/internal/pattern"
	"patternvm/internal/runtime"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run holds every subcommand's logic behind an exit code instead of a
// direct os.Exit call, so cmd/plvm's testscript harness can drive it
// in-process via testscript.RunMain instead of shelling out to a built
// binary for every scenario.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stdout)
		return 1
	}

	switch args[0] {
	case "run":
		return runCmd(args[1:], stdout, stderr)
	case "check":
		return checkCmd(args[1:], stdout, stderr)
	case "disasm":
		return disasmCmd(args[1:], stdout, stderr)
	case "version", "--version", "-v":
		fmt.Fprintln(stdout, "plvm", version)
		return 0
	case "help", "--help", "-h":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "plvm: unknown command %q\n", args[0])
		usage(stdout)
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: plvm <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  plvm run -data <file> <source.pat>      compile and run, printing exported patterns")
	fmt.Fprintln(w, "  plvm check <source.pat>                 full pipeline, VM included, over an empty data source")
	fmt.Fprintln(w, "  plvm disasm <source.pat>                compile and print bytecode disassembly")
	fmt.Fprintln(w, "  plvm version")
}

func commonFlags(fs *flag.FlagSet) (endian, bitfield *string, start *uint64, dangerous *bool, verbose *bool, includePath *string) {
	endian = fs.String("endian", "little", "default byte order: little, big or native")
	bitfield = fs.String("bitfield-order", "left_to_right", "bitfield packing direction: left_to_right or right_to_left")
	start = fs.Uint64("start", 0, "start address of the data source cursor")
	dangerous = fs.Bool("allow-dangerous", false, "permit dangerous native functions")
	verbose = fs.Bool("verbose", false, "dump compiled bytecode and a run summary")
	includePath = fs.String("include", "", "colon-separated #include search path")
	return
}

func newConfiguredRuntime(endian, bitfield string, start uint64, dangerous, verbose bool, includePath string) (*runtime.Runtime, error) {
	r := runtime.New()
	cfg, err := runtime.LoadConfigString(fmt.Sprintf(
		"endian = %q\nbitfield_order = %q\nstart_address = %d\nallow_dangerous = %t\n",
		endian, bitfield, start, dangerous))
	if err != nil {
		return nil, err
	}
	if includePath != "" {
		cfg.IncludePaths = splitPaths(includePath)
	}
	if err := r.ApplyConfig(cfg); err != nil {
		return nil, err
	}
	r.SetVerbose(verbose)
	return r, nil
}

func splitPaths(s string) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == ':' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func runCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataPath := fs.String("data", "", "path to the binary data source (required)")
	endian, bitfield, start, dangerous, verbose, includePath := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "plvm run: a source file is required")
		return 1
	}
	if *dataPath == "" {
		fmt.Fprintln(stderr, "plvm run: -data is required")
		return 1
	}

	data, err := os.ReadFile(*dataPath)
	if err != nil {
		return fail(stderr, err)
	}

	r, err := newConfiguredRuntime(*endian, *bitfield, *start, *dangerous, *verbose, *includePath)
	if err != nil {
		return fail(stderr, err)
	}
	r.SetDataSource(0, uint64(len(data)), func(address uint64, buf []byte) error {
		copy(buf, data[address:])
		return nil
	}, nil)

	if err := r.ExecuteFile(fs.Arg(0)); err != nil {
		printVerboseLog(r, stderr)
		return fail(stderr, err)
	}
	printVerboseLog(r, stderr)
	printPatterns(stdout, r.GetAllPatterns(), 0, colorsEnabled())
	return 0
}

func checkCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	includePath := fs.String("include", "", "colon-separated #include search path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "plvm check: a source file is required")
		return 1
	}

	r := runtime.New()
	r.SetIncludePaths(splitPaths(*includePath))
	r.SetDataSource(0, 0, func(uint64, []byte) error { return nil }, nil)

	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fail(stderr, err)
	}
	if err := r.ExecuteString(string(src)); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "%s: syntax and semantics are valid\n", fs.Arg(0))
	return 0
}

func disasmCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("disasm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	endian, bitfield, start, dangerous, verbose, includePath := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "plvm disasm: a source file is required")
		return 1
	}

	r, err := newConfiguredRuntime(*endian, *bitfield, *start, *dangerous, *verbose, *includePath)
	if err != nil {
		return fail(stderr, err)
	}
	r.SetDataSource(0, 0, func(uint64, []byte) error { return nil }, nil)

	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fail(stderr, err)
	}
	// disasm only needs a compiled program; run errors (e.g. an
	// unreadable data source) are reported but don't suppress the dump.
	runErr := r.ExecuteString(string(src))
	fmt.Fprintln(stdout, r.Disassemble())
	if runErr != nil {
		return fail(stderr, runErr)
	}
	return 0
}

func printVerboseLog(r *runtime.Runtime, stderr io.Writer) {
	for _, line := range r.GetConsoleLog() {
		fmt.Fprintln(stderr, line)
	}
}

// colorsEnabled only turns on color codes when stdout is a real tty,
// never when piped to a file.
func colorsEnabled() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func printPatterns(w io.Writer, patterns []*pattern.Pattern, depth int, color bool) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	for _, p := range patterns {
		label := formatLeaf(p)
		if color {
			fmt.Fprintf(w, "%s\x1b[38;2;%d;%d;%dm%s\x1b[0m\n", indent, (p.Color>>16)&0xff, (p.Color>>8)&0xff, p.Color&0xff, label)
		} else {
			fmt.Fprintf(w, "%s%s\n", indent, label)
		}
		if len(p.Children) > 0 {
			printPatterns(w, p.Children, depth+1, color)
		}
	}
}

func formatLeaf(p *pattern.Pattern) string {
	addr := p.Address
	if addr == nil {
		addr = new(big.Int)
	}
	switch p.Kind {
	case pattern.Boolean:
		return fmt.Sprintf("%s : %s @ 0x%x = %t", p.Name, p.TypeName, addr, p.Bool)
	case pattern.Unsigned:
		return fmt.Sprintf("%s : %s @ 0x%x = %s", p.Name, p.TypeName, addr, p.Uint)
	case pattern.Signed:
		return fmt.Sprintf("%s : %s @ 0x%x = %s", p.Name, p.TypeName, addr, p.Int)
	case pattern.Float:
		return fmt.Sprintf("%s : %s @ 0x%x = %g", p.Name, p.TypeName, addr, p.Float64)
	default:
		return fmt.Sprintf("%s : %s @ 0x%x", p.Name, p.TypeName, addr)
	}
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintln(stderr, "plvm:", err)
	return 1
}
