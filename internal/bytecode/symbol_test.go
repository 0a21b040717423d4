package bytecode

import "testing"

func TestSymbolTableDeduplication(t *testing.T) {
	cases := []struct {
		name   string
		insert func(t *SymbolTable) (SymbolId, SymbolId)
	}{
		{"string", func(t *SymbolTable) (SymbolId, SymbolId) {
			return t.InternString("hello"), t.InternString("hello")
		}},
		{"unsigned", func(t *SymbolTable) (SymbolId, SymbolId) {
			return t.InternUnsigned(42), t.InternUnsigned(42)
		}},
		{"signed", func(t *SymbolTable) (SymbolId, SymbolId) {
			return t.InternSigned(-7), t.InternSigned(-7)
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			table := NewSymbolTable()
			before := table.Len()
			a, b := c.insert(table)
			if a != b {
				t.Fatalf("expected same id, got %d and %d", a, b)
			}
			if table.Len() != before+1 {
				t.Fatalf("expected table to grow by exactly 1, got %d -> %d", before, table.Len())
			}
		})
	}
}

func TestSymbolTableNullSentinel(t *testing.T) {
	table := NewSymbolTable()
	if !table.IsEmpty() {
		t.Fatal("expected fresh table to be empty")
	}
	id := table.InternString("x")
	if id == NullSymbol {
		t.Fatal("interning a real symbol must never return the null sentinel")
	}
}

func TestSymbolTableClear(t *testing.T) {
	table := NewSymbolTable()
	table.InternString("a")
	table.InternString("b")
	table.Clear()
	if !table.IsEmpty() {
		t.Fatal("expected table to be empty after clear")
	}
	id := table.InternString("a")
	if id != SymbolId(1) {
		t.Fatalf("expected ids to restart at 1 after clear, got %d", id)
	}
}

func TestSymbolTableDistinctPayloads(t *testing.T) {
	table := NewSymbolTable()
	a := table.InternString("a")
	b := table.InternString("b")
	if a == b {
		t.Fatal("distinct payloads must not share an id")
	}
}
