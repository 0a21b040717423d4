package preprocessor

import (
	"strings"
	"testing"
)

func TestDefineSubstitution(t *testing.T) {
	p := New(nil, nil)
	out, err := p.Process("#define HEADER_SIZE 16\nu32 x @ HEADER_SIZE;\n")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(out, "u32 x @ 16;") {
		t.Fatalf("expected substituted output, got %q", out)
	}
}

func TestIncludeExpansion(t *testing.T) {
	files := map[string]string{
		"common.pat": "u32 magic;\n",
	}
	p := New([]string{"."}, func(path string) (string, error) {
		return files[path], nil
	})
	out, err := p.Process("#include \"common.pat\"\nu8 version;\n")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(out, "u32 magic;") || !strings.Contains(out, "u8 version;") {
		t.Fatalf("expected both included and trailing lines, got %q", out)
	}
}

func TestIncludeIsIdempotentPerFile(t *testing.T) {
	files := map[string]string{"a.pat": "u8 a;\n"}
	calls := 0
	p := New([]string{"."}, func(path string) (string, error) {
		calls++
		return files[path], nil
	})
	_, err := p.Process("#include \"a.pat\"\n#include \"a.pat\"\n")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a.pat to be read once, got %d reads", calls)
	}
}

func TestIncludeMissingReaderErrors(t *testing.T) {
	p := New(nil, nil)
	if _, err := p.Process("#include \"missing.pat\"\n"); err == nil {
		t.Fatalf("expected an error with no file reader configured")
	}
}
