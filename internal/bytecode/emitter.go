package bytecode

// pendingSite records one forward/backward reference to a not-yet-resolved
// Label: the instruction index and which operand slot holds the jump
// target placeholder.
type pendingSite struct {
	insn    int
	operand int
}

// Label is a deferred instruction index. Jmp records a pending site
// against it; PlaceLabel fixes its target to the current instruction
// index; ResolveLabel patches every pending site's operand to the
// signed offset targetPc-insnIndex.
type Label struct {
	targetPc int
	pending  []pendingSite
	placed   bool
}

func (e *Emitter) Label() *Label {
	return &Label{}
}

// Emitter is a fluent builder appending instructions to one function body.
// It interns operands into the shared symbol table, tracks labels and
// records each local's declared type name for later STORE_LOCAL/LOAD_LOCAL
// lowering.
type Emitter struct {
	symbols  *SymbolTable
	fn       *Function
	locals   map[string]string
	Ctor     bool // true while lowering a constructor body
	IsMain   bool
}

func NewEmitter(symbols *SymbolTable, fn *Function) *Emitter {
	return &Emitter{symbols: symbols, fn: fn, locals: make(map[string]string)}
}

func (e *Emitter) Symbols() *SymbolTable { return e.symbols }

func (e *Emitter) emit(op Opcode, operands ...uint16) int {
	idx := len(e.fn.Instructions)
	e.fn.Instructions = append(e.fn.Instructions, Instruction{Op: op, Operands: operands})
	return idx
}

func (e *Emitter) internString(s string) uint16 { return uint16(e.symbols.InternString(s)) }

// --- high level mnemonics ---

func (e *Emitter) LoadSymbol(id SymbolId) int {
	return e.emit(LoadSymbol, uint16(id))
}

func (e *Emitter) LoadLocal(name string) int {
	return e.emit(LoadLocal, e.internString(name))
}

func (e *Emitter) StoreLocal(name, typeName string) int {
	return e.emit(StoreLocal, e.internString(name), e.internString(typeName))
}

func (e *Emitter) LoadFromThis(field string) int {
	return e.emit(LoadFromThis, e.internString(field))
}

func (e *Emitter) StoreInThis(field, typeName string) int {
	return e.emit(StoreInThis, e.internString(field), e.internString(typeName))
}

func (e *Emitter) LoadField(name string) int {
	return e.emit(LoadField, e.internString(name))
}

func (e *Emitter) StoreField(name, typeName string) int {
	return e.emit(StoreField, e.internString(name), e.internString(typeName))
}

func (e *Emitter) StoreAttribute(name string) int {
	return e.emit(StoreAttribute, e.internString(name))
}

func (e *Emitter) NewStruct(typeName string) int {
	return e.emit(NewStruct, e.internString(typeName))
}

func (e *Emitter) ReadValue(typeName string, id TypeId) int {
	return e.emit(ReadValue, e.internString(typeName), uint16(id))
}

func (e *Emitter) ReadField(name, typeName string, id TypeId) int {
	return e.emit(ReadField, e.internString(name), e.internString(typeName), uint16(id))
}

func (e *Emitter) ReadArray() int { return e.emit(ReadArray) }

// ReadStaticArray is the "while"-conditioned static-array state machine: it
// reads one scalar element itself on each true iteration, so it carries the
// element's type unlike the *_WITH_SIZE variants which read their template
// through a preceding READ_VALUE.
func (e *Emitter) ReadStaticArray(typeName string, id TypeId) int {
	return e.emit(ReadStaticArray, e.internString(typeName), uint16(id))
}

func (e *Emitter) ReadStaticArrayWithSize() int { return e.emit(ReadStaticArrayWithSize) }

func (e *Emitter) ReadDynamicArray(typeName string, id TypeId) int {
	return e.emit(ReadDynamicArray, e.internString(typeName), uint16(id))
}

func (e *Emitter) ReadDynamicArrayWithSize() int { return e.emit(ReadDynamicArrayWithSize) }

func (e *Emitter) Dup() int    { return e.emit(Dup) }
func (e *Emitter) Pop() int    { return e.emit(Pop) }
func (e *Emitter) Cmp() int    { return e.emit(Cmp) }
func (e *Emitter) Eq() int     { return e.emit(Eq) }
func (e *Emitter) Neq() int    { return e.emit(Neq) }
func (e *Emitter) Lt() int     { return e.emit(Lt) }
func (e *Emitter) Lte() int    { return e.emit(Lte) }
func (e *Emitter) Gt() int     { return e.emit(Gt) }
func (e *Emitter) Gte() int    { return e.emit(Gte) }
func (e *Emitter) Not() int    { return e.emit(Not) }
func (e *Emitter) Return() int { return e.emit(Return) }

// Call emits a CALL with the callee's interned name and the number of
// arguments the caller has already pushed. argCount lets opCall pop the
// right number of values when name resolves to a native function instead
// of a compiled one; compiled functions ignore it and manage their own
// locals.
func (e *Emitter) Call(name string, argCount int) int {
	return e.emit(Call, e.internString(name), uint16(argCount))
}

func (e *Emitter) Export(name string) int {
	return e.emit(Export, e.internString(name))
}

// Jmp appends a JMP with a placeholder operand and records the site against
// label for later resolution.
func (e *Emitter) Jmp(label *Label) int {
	idx := e.emit(Jmp, 0)
	label.pending = append(label.pending, pendingSite{insn: idx, operand: 0})
	return idx
}

// PlaceLabel fixes label's target to the current end of the instruction
// stream. Must happen before ResolveLabel.
func (e *Emitter) PlaceLabel(label *Label) {
	label.targetPc = len(e.fn.Instructions)
	label.placed = true
}

// ResolveLabel patches every pending jump site's operand to the signed
// offset targetPc-insnIndex. label must already be placed.
func (e *Emitter) ResolveLabel(label *Label) {
	if !label.placed {
		panic("bytecode: resolve_label on a label that was never placed")
	}
	for _, site := range label.pending {
		offset := int16(label.targetPc - site.insn)
		e.fn.Instructions[site.insn].Operands[site.operand] = uint16(offset)
	}
}

// Local records that subsequent STORE_LOCAL/LOAD_LOCAL for name carries
// typeName, read back through LocalType by the compiler during assignment
// lowering.
func (e *Emitter) Local(name, typeName string) {
	e.locals[name] = typeName
}

func (e *Emitter) LocalType(name string) (string, bool) {
	t, ok := e.locals[name]
	return t, ok
}

// StoreValue encodes the "top-of-stack becomes a placed local, a local and
// an export" idiom: outside a constructor the value is bound
// locally, duplicated and exported; inside a constructor it is written
// straight into the receiver's field slot.
func (e *Emitter) StoreValue(name, typeName string) {
	if e.Ctor {
		e.StoreInThis(name, typeName)
		return
	}
	e.Local(name, typeName)
	e.Dup()
	e.StoreLocal(name, typeName)
	e.Export(name)
}

func (e *Emitter) PC() int { return len(e.fn.Instructions) }
