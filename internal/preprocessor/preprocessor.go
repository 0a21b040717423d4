// Package preprocessor expands #include and #define directives before
// the lexer ever sees the source text. It is grounded on the *shape* of
// sentra/internal/module/module.go's ModuleLoader (a cache keyed by
// resolved path, plus a search-path list) rather than its module-loading
// semantics, since this surface only needs textual inclusion.
package preprocessor

import (
	"regexp"
	"strings"

	plerrors "patternvm/internal/errors"
)

// ReadFileFunc resolves an #include path against the configured search
// paths and returns its contents; the runtime façade supplies the real
// implementation, tests supply an in-memory map.
type ReadFileFunc func(path string) (string, error)

type Preprocessor struct {
	searchPaths []string
	readFile    ReadFileFunc
	defines     map[string]string
	included    map[string]bool
}

func New(searchPaths []string, readFile ReadFileFunc) *Preprocessor {
	return &Preprocessor{
		searchPaths: searchPaths,
		readFile:    readFile,
		defines:     make(map[string]string),
		included:    make(map[string]bool),
	}
}

func (p *Preprocessor) AddDefine(name, value string) { p.defines[name] = value }
func (p *Preprocessor) RemoveDefine(name string)      { delete(p.defines, name) }

// Process expands every #include and substitutes every #define'd token,
// returning the flattened source text the lexer consumes.
func (p *Preprocessor) Process(source string) (string, error) {
	lines := strings.Split(source, "\n")
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#include"):
			included, err := p.expandInclude(trimmed)
			if err != nil {
				return "", err
			}
			out = append(out, included)
		case strings.HasPrefix(trimmed, "#define"):
			p.applyDefine(trimmed)
		default:
			out = append(out, p.substitute(line))
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *Preprocessor) expandInclude(directive string) (string, error) {
	name := strings.Trim(strings.TrimSpace(strings.TrimPrefix(directive, "#include")), "\"<>")
	if p.included[name] {
		return "", nil
	}
	p.included[name] = true

	if p.readFile == nil {
		return "", plerrors.NewStageError(plerrors.StagePreprocessor, "PP0001", "no file reader configured for #include "+name, plerrors.Location{})
	}
	text, err := p.readFile(name)
	if err != nil {
		return "", plerrors.NewStageError(plerrors.StagePreprocessor, "PP0002", "cannot read included file "+name, plerrors.Location{}).Wrap(err)
	}
	return p.Process(text)
}

func (p *Preprocessor) applyDefine(directive string) {
	rest := strings.TrimSpace(strings.TrimPrefix(directive, "#define"))
	parts := strings.SplitN(rest, " ", 2)
	name := parts[0]
	value := ""
	if len(parts) == 2 {
		value = strings.TrimSpace(parts[1])
	}
	p.defines[name] = value
}

func (p *Preprocessor) substitute(line string) string {
	for name, value := range p.defines {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
		line = re.ReplaceAllLiteralString(line, value)
	}
	return line
}
