// Package pattern defines the typed, addressed tree an embedding tool
// renders (internal/runtime's projectValue builds it from EXPORT-ed
// values), the deterministic color palette, section bookkeeping and the
// flattened interval tree used to answer "what overlaps address X" queries.
package pattern

import (
	"math/big"
	"sort"
)

// Kind distinguishes the leaf/composite pattern variants EXPORT can emit.
type Kind uint8

const (
	Boolean Kind = iota
	Unsigned
	Signed
	Float
	StructKind
	StaticArrayKind
	DynamicArrayKind
)

// Section identifies the logical address namespace a pattern was read
// from; 0 is the main input stream.
type Section uint64

const (
	SectionMain Section = 0
	SectionHeap Section = ^Section(0)
)

// Pattern is a typed, addressed node describing a region of the data
// source — the exported unit of the whole pipeline.
type Pattern struct {
	Kind     Kind
	Name     string
	TypeName string
	Address  *big.Int
	Section  Section
	Size     uint16
	Color    uint32

	Bool    bool
	Uint    *big.Int
	Int     *big.Int
	Float64 float64

	Children []*Pattern
	Attrs    []string
}

// paletteColors is the fixed color cycle patterns are deterministically
// assigned from.
var paletteColors = []uint32{
	0x63b4d1, 0x70c285, 0xd1a663, 0xd17a8c, 0x9a7cd1, 0xc2c263, 0x63d1c0, 0xd19d63,
}

// Counter is a per-runtime-instance color cursor rather than a process-wide
// palette index: each runtime.Runtime owns one so concurrent VMs never
// interfere with each other's color assignment.
type Counter struct {
	next uint32
}

func (c *Counter) NextColor() uint32 {
	color := paletteColors[c.next%uint32(len(paletteColors))]
	c.next++
	return color
}

// Flatten walks a pattern tree and appends every node (the pattern itself
// and, recursively, its children) into a single slice, used to build the
// interval tree's candidate endpoint set.
func Flatten(roots []*Pattern) []*Pattern {
	var out []*Pattern
	var walk func(p *Pattern)
	walk = func(p *Pattern) {
		out = append(out, p)
		for _, c := range p.Children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return out
}

// IntervalTree answers "which patterns overlap address X" for one
// section's flattened pattern set; built once per run, queried by sorted
// binary search (no interval-tree library appears in the retrieval pack —
// see DESIGN.md).
type IntervalTree struct {
	entries []*Pattern // sorted by Address ascending
}

func BuildIntervalTree(flat []*Pattern) *IntervalTree {
	entries := make([]*Pattern, len(flat))
	copy(entries, flat)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address.Cmp(entries[j].Address) < 0
	})
	return &IntervalTree{entries: entries}
}

// QueryAddress returns every pattern whose [Address, Address+Size) span
// contains addr.
func (t *IntervalTree) QueryAddress(addr *big.Int) []*Pattern {
	// idx is the first entry starting after addr; every entry before it is
	// scanned from the start, since spans can overlap addr despite starting
	// before it.
	idx := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Address.Cmp(addr) > 0
	})
	var out []*Pattern
	for i := 0; i < idx; i++ {
		end := new(big.Int).Add(t.entries[i].Address, big.NewInt(int64(t.entries[i].Size)))
		if addr.Cmp(t.entries[i].Address) >= 0 && addr.Cmp(end) < 0 {
			out = append(out, t.entries[i])
		}
	}
	return out
}
