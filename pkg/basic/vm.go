package basic

import (
	"context"
	"fmt"
	"strings"
)

// VMOptions bound the VM's runtime resources.
type VMOptions struct {
	StackSize  int // operand stack entries
	MaxFrames  int // call-frame depth
	MaxGosub   int // GOSUB return-address depth
	ZoneWidth  int // PRINT comma zone width
}

// DefaultVMOptions returns the standard limits.
func DefaultVMOptions() VMOptions {
	return VMOptions{StackSize: 4096, MaxFrames: 512, MaxGosub: 1024, ZoneWidth: 14}
}

// frame is one structured procedure activation.
type frame struct {
	retPC  int
	locals []Value
	proc   *ProcEntry
}

// forFrame is one live FOR loop.
type forFrame struct {
	slotEnc int32
	end     Value
	step    Value
	up      bool
}

// VM executes an emitted Program against a Host. All state is private
// to the instance; distinct VMs share nothing.
type VM struct {
	prog *Program
	host Host
	opts VMOptions

	pc      int
	stack   *Stack
	globals []Value
	frames  []frame
	gosub   []int
	fors    []forFrame

	dataCursor int
	rng        *rngState

	channels map[int]*Channel
	outCh    int // 0 = console
	inCh     int
	col      int // console column, for PRINT zones

	inputFields []string
	halted      bool
}

// NewVM creates a VM for a program. Globals are zero-initialized from
// the program's slot descriptors.
func NewVM(prog *Program, host Host, opts VMOptions) *VM {
	vm := &VM{
		prog:     prog,
		host:     host,
		opts:     opts,
		stack:    NewStack(opts.StackSize),
		channels: make(map[int]*Channel),
		rng:      newRNG(),
	}
	vm.globals = initSlots(prog, prog.GlobalDescs)
	return vm
}

// initSlots builds zero values for a slot descriptor list.
func initSlots(prog *Program, descs []SlotDesc) []Value {
	slots := make([]Value, len(descs))
	for i, d := range descs {
		slots[i] = zeroForDesc(prog, d)
	}
	return slots
}

func zeroForDesc(prog *Program, d SlotDesc) Value {
	switch d.Kind {
	case KindRecord:
		if d.RecordID >= 0 && d.RecordID < len(prog.Records) {
			return Value{Kind: KindRecord, Rec: prog.Records[d.RecordID].NewRecordValue()}
		}
	case KindFixedString:
		return Value{Kind: KindFixedString, Str: FitFixed("", d.FixedLen)}
	case KindArray, KindEmpty:
		return Value{}
	}
	return ZeroValue(d.Kind)
}

// Globals exposes the module slot array so a REPL can carry values
// across recompiles.
func (vm *VM) Globals() []Value { return vm.globals }

// StackDepth reports the operand stack depth, which must be zero
// between complete statements.
func (vm *VM) StackDepth() int { return vm.stack.Depth() }

// SetGlobals replaces the leading module slots, for REPL continuity.
func (vm *VM) SetGlobals(vals []Value) {
	copy(vm.globals, vals)
}

// Run executes from the entry point until HALT, a runtime failure or
// cancellation.
func (vm *VM) Run(ctx context.Context) *RuntimeError {
	return vm.RunFrom(ctx, 0)
}

// RunFrom executes starting at an instruction offset.
func (vm *VM) RunFrom(ctx context.Context, pc int) *RuntimeError {
	vm.pc = pc
	vm.halted = false
	var err *RuntimeError
	steps := 0
	for !vm.halted && vm.pc < len(vm.prog.Instructions) {
		// cancellation is polled between instructions
		if steps&0xFF == 0 {
			select {
			case <-ctx.Done():
				err = NewRuntimeError(ErrInterrupted, "execution interrupted")
			default:
			}
			if err != nil {
				break
			}
		}
		steps++
		inst := vm.prog.Instructions[vm.pc]
		if err = vm.step(inst); err != nil {
			break
		}
	}
	vm.closeAllChannels()
	if err != nil {
		err.Span = vm.prog.SpanAt(vm.pc)
		return err
	}
	return nil
}

func (vm *VM) closeAllChannels() {
	for n, ch := range vm.channels {
		ch.Close()
		delete(vm.channels, n)
	}
	vm.outCh, vm.inCh = 0, 0
}

// channel resolves an open channel number.
func (vm *VM) channel(n int) (*Channel, *RuntimeError) {
	ch, ok := vm.channels[n]
	if !ok {
		return nil, NewRuntimeError(ErrBadChannel, fmt.Sprintf("channel #%d not open", n))
	}
	return ch, nil
}

func (vm *VM) push(v Value) *RuntimeError { return vm.stack.Push(v) }

func (vm *VM) pop() (Value, *RuntimeError) { return vm.stack.Pop() }

// pop2 pops the right then left operand of a binary instruction.
func (vm *VM) pop2() (Value, Value, *RuntimeError) {
	r, err := vm.pop()
	if err != nil {
		return Value{}, Value{}, err
	}
	l, err := vm.pop()
	if err != nil {
		return Value{}, Value{}, err
	}
	return l, r, nil
}

func (vm *VM) binary(op TokenKind, kw string) *RuntimeError {
	l, r, err := vm.pop2()
	if err != nil {
		return err
	}
	v, rerr := applyBinary(op, kw, l, r)
	if rerr != nil {
		return rerr
	}
	return vm.push(v)
}

// step dispatches one instruction. Jumps set vm.pc themselves; every
// other path falls through to the increment at the end.
func (vm *VM) step(inst Instruction) *RuntimeError {
	switch inst.Op {
	case OP_PUSH_CONST:
		if err := vm.push(vm.prog.Consts[inst.A]); err != nil {
			return err
		}
	case OP_POP:
		if _, err := vm.pop(); err != nil {
			return err
		}
	case OP_DUP:
		v, err := vm.stack.Peek()
		if err != nil {
			return err
		}
		if err := vm.push(v); err != nil {
			return err
		}
	case OP_SWAP:
		a, b, err := vm.pop2()
		if err != nil {
			return err
		}
		if err := vm.push(a); err != nil {
			return err
		}
		if err := vm.push(b); err != nil {
			return err
		}

	case OP_LOAD_LOCAL:
		f := vm.topFrame()
		if f == nil {
			return NewRuntimeError(ErrTypeMismatch, "local access outside procedure")
		}
		if err := vm.push(f.locals[inst.A]); err != nil {
			return err
		}
	case OP_STORE_LOCAL:
		f := vm.topFrame()
		if f == nil {
			return NewRuntimeError(ErrTypeMismatch, "local access outside procedure")
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		f.locals[inst.A] = v.Copy()
	case OP_LOAD_GLOBAL:
		if err := vm.push(vm.globals[inst.A]); err != nil {
			return err
		}
	case OP_STORE_GLOBAL:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.globals[inst.A] = v.Copy()

	case OP_FIELD_GET:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if v.Kind != KindRecord || v.Rec == nil {
			return NewRuntimeError(ErrTypeMismatch, "field access on non-record value")
		}
		if err := vm.push(v.Rec.Fields[inst.A]); err != nil {
			return err
		}
	case OP_FIELD_SET:
		rec, err := vm.pop()
		if err != nil {
			return err
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if rec.Kind != KindRecord || rec.Rec == nil {
			return NewRuntimeError(ErrTypeMismatch, "field access on non-record value")
		}
		f := rec.Rec.Type.Fields[inst.A]
		if f.Kind == KindFixedString {
			v = Value{Kind: KindFixedString, Str: FitFixed(v.Str, f.FixedLen)}
		}
		rec.Rec.Fields[inst.A] = v.Copy()

	case OP_INDEX_GET:
		elem, _, err := vm.arrayElem(int(inst.A))
		if err != nil {
			return err
		}
		if err := vm.push(*elem); err != nil {
			return err
		}
	case OP_INDEX_SET:
		elem, arr, err := vm.arrayElem(int(inst.A))
		if err != nil {
			return err
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if arr.Elem == KindFixedString {
			v = Value{Kind: KindFixedString, Str: FitFixed(v.Str, arr.ElemFixedLen)}
		}
		*elem = v.Copy()

	case OP_DIM_ARRAY:
		return vm.dimArray(inst)
	case OP_FIT_STR:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if err := vm.push(Value{Kind: KindFixedString, Str: FitFixed(v.Str, int(inst.A))}); err != nil {
			return err
		}

	case OP_ADD:
		return vm.binaryAndAdvance(TokPlus, "")
	case OP_SUB:
		return vm.binaryAndAdvance(TokMinus, "")
	case OP_MUL:
		return vm.binaryAndAdvance(TokStar, "")
	case OP_DIV:
		return vm.binaryAndAdvance(TokSlash, "")
	case OP_IDIV:
		return vm.binaryAndAdvance(TokBackslash, "")
	case OP_MOD:
		return vm.binaryAndAdvance(TokEq, "MOD")
	case OP_POW:
		return vm.binaryAndAdvance(TokCaret, "")
	case OP_AND:
		return vm.binaryAndAdvance(TokEq, "AND")
	case OP_OR:
		return vm.binaryAndAdvance(TokEq, "OR")
	case OP_CONCAT:
		return vm.binaryAndAdvance(TokPlus, "")
	case OP_NEG, OP_NOT:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		res, rerr := applyUnary(inst.Op == OP_NOT, v)
		if rerr != nil {
			return rerr
		}
		if err := vm.push(res); err != nil {
			return err
		}
	case OP_CMP:
		l, r, err := vm.pop2()
		if err != nil {
			return err
		}
		res, rerr := compareValues(int(inst.A), l, r)
		if rerr != nil {
			return rerr
		}
		if err := vm.push(res); err != nil {
			return err
		}
	case OP_COERCE:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		c, rerr := v.Coerce(Kind(inst.A))
		if rerr != nil {
			return rerr
		}
		if err := vm.push(c); err != nil {
			return err
		}

	case OP_JMP:
		vm.pc = int(inst.A)
		return nil
	case OP_JMP_IF_FALSE, OP_JMP_IF_TRUE:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if v.IsTrue() == (inst.Op == OP_JMP_IF_TRUE) {
			vm.pc = int(inst.A)
			return nil
		}

	case OP_FOR_INIT:
		return vm.forInit(inst)
	case OP_FOR_STEP:
		return vm.forStep(inst)
	case OP_FOR_END:
		if n := len(vm.fors); n > 0 {
			vm.fors = vm.fors[:n-1]
		}

	case OP_GOSUB:
		if len(vm.gosub) >= vm.opts.MaxGosub {
			return NewRuntimeError(ErrStackOverflow, "GOSUB depth exceeded")
		}
		vm.gosub = append(vm.gosub, vm.pc+1)
		vm.pc = int(inst.A)
		return nil
	case OP_RET_SUB:
		if len(vm.gosub) == 0 {
			return NewRuntimeError(ErrReturnWithoutGosub, "")
		}
		ret := vm.gosub[len(vm.gosub)-1]
		vm.gosub = vm.gosub[:len(vm.gosub)-1]
		if inst.A >= 0 {
			vm.pc = int(inst.A)
		} else {
			vm.pc = ret
		}
		return nil

	case OP_CALL:
		return vm.call(inst)
	case OP_RET:
		return vm.ret()

	case OP_PRINT_ITEM:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if err := vm.writeOut(v.PrintForm()); err != nil {
			return err
		}
		if inst.A == sepZone {
			if err := vm.advanceZone(); err != nil {
				return err
			}
		}
	case OP_PRINT_EOL:
		if err := vm.writeOut("\n"); err != nil {
			return err
		}
	case OP_WRITE_ITEM:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		s := v.Format()
		if v.Kind.IsString() {
			s = "\"" + s + "\""
		} else {
			s = strings.TrimSpace(s)
		}
		if inst.A == 1 {
			s += ","
		}
		if err := vm.writeOut(s); err != nil {
			return err
		}

	case OP_INPUT_ITEM:
		return vm.inputItem(inst)
	case OP_LINE_INPUT:
		line, err := vm.readInLine()
		if err != nil {
			return err
		}
		if err := vm.push(StringValue(line)); err != nil {
			return err
		}

	case OP_OPEN:
		return vm.open(inst)
	case OP_CLOSE:
		if inst.A < 0 {
			vm.closeAllChannels()
			break
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		n := int(v.AsInt64())
		if ch, ok := vm.channels[n]; ok {
			ch.Close()
			delete(vm.channels, n)
		}
	case OP_FILE_IO:
		return vm.fileIO(inst)

	case OP_READ_DATA:
		if vm.dataCursor >= len(vm.prog.Data) {
			return NewRuntimeError(ErrOutOfData, "")
		}
		item := vm.prog.Data[vm.dataCursor]
		vm.dataCursor++
		v, rerr := coerceData(item, Kind(inst.A))
		if rerr != nil {
			return rerr
		}
		if err := vm.push(v); err != nil {
			return err
		}
	case OP_RESTORE_DATA:
		vm.dataCursor = int(inst.A)

	case OP_RANDOMIZE:
		if inst.A == 1 {
			v, err := vm.pop()
			if err != nil {
				return err
			}
			vm.rng.SeedFromValue(v)
		} else {
			vm.rng.SeedFromValue(DoubleValue(vm.host.NowTicks()))
		}

	case OP_INTRINSIC:
		argc := int(inst.B)
		args := make([]Value, argc)
		for i := argc - 1; i >= 0; i-- {
			v, err := vm.pop()
			if err != nil {
				return err
			}
			args[i] = v
		}
		res, rerr := vm.callIntrinsic(int(inst.A), args)
		if rerr != nil {
			return rerr
		}
		if !intrinsicDefs[inst.A].Statement {
			if err := vm.push(res); err != nil {
				return err
			}
		}

	case OP_HALT:
		vm.halted = true
		return nil
	default:
		return NewRuntimeError(ErrTypeMismatch, "unknown opcode "+inst.Op.String())
	}
	vm.pc++
	return nil
}

// binaryAndAdvance wraps binary ops so the shared increment applies.
func (vm *VM) binaryAndAdvance(op TokenKind, kw string) *RuntimeError {
	if err := vm.binary(op, kw); err != nil {
		return err
	}
	vm.pc++
	return nil
}

func compareValues(cmp int, l, r Value) (Value, *RuntimeError) {
	var op TokenKind
	switch cmp {
	case cmpEq:
		op = TokEq
	case cmpNe:
		op = TokNe
	case cmpLt:
		op = TokLt
	case cmpLe:
		op = TokLe
	case cmpGt:
		op = TokGt
	default:
		op = TokGe
	}
	if l.Kind.IsString() || r.Kind.IsString() {
		if !l.Kind.IsString() || !r.Kind.IsString() {
			return Value{}, NewRuntimeError(ErrTypeMismatch, "cannot compare string and number")
		}
		return boolValue(compareStrings(op, l.Str, r.Str)), nil
	}
	return boolValue(compareNumbers(op, l, r)), nil
}

func (vm *VM) topFrame() *frame {
	if len(vm.frames) == 0 {
		return nil
	}
	return &vm.frames[len(vm.frames)-1]
}

// slotPtr resolves a FOR counter slot encoding.
func (vm *VM) slotPtr(enc int32) (*Value, *RuntimeError) {
	slot := int(enc >> 1)
	if enc&1 == 1 {
		return &vm.globals[slot], nil
	}
	f := vm.topFrame()
	if f == nil {
		return nil, NewRuntimeError(ErrTypeMismatch, "local access outside procedure")
	}
	return &f.locals[slot], nil
}

func (vm *VM) forInit(inst Instruction) *RuntimeError {
	step, err := vm.pop()
	if err != nil {
		return err
	}
	end, err := vm.pop()
	if err != nil {
		return err
	}
	from, err := vm.pop()
	if err != nil {
		return err
	}
	slot, rerr := vm.slotPtr(inst.A)
	if rerr != nil {
		return rerr
	}
	*slot = from

	stepSign := step.AsDouble()
	vm.fors = append(vm.fors, forFrame{slotEnc: inst.A, end: end, step: step, up: stepSign > 0})
	// a zero step executes zero iterations; otherwise the initial
	// comparison decides by the step sign
	run := false
	switch {
	case stepSign > 0:
		run = compareNumbers(TokLe, from, end)
	case stepSign < 0:
		run = compareNumbers(TokGe, from, end)
	}
	if !run {
		vm.pc = int(inst.B) // jump to FOR_END, which pops the frame
		return nil
	}
	vm.pc++
	return nil
}

func (vm *VM) forStep(inst Instruction) *RuntimeError {
	if len(vm.fors) == 0 {
		return NewRuntimeError(ErrTypeMismatch, "NEXT without FOR")
	}
	f := &vm.fors[len(vm.fors)-1]
	slot, rerr := vm.slotPtr(inst.A)
	if rerr != nil {
		return rerr
	}
	next, err := applyBinary(TokPlus, "", *slot, f.step)
	if err != nil {
		return err
	}
	// counter keeps the declared kind
	next, err = next.Coerce(slot.Kind)
	if err != nil {
		return err
	}
	*slot = next
	cont := false
	if f.up {
		cont = compareNumbers(TokLe, next, f.end)
	} else {
		cont = compareNumbers(TokGe, next, f.end)
	}
	if cont {
		vm.pc = int(inst.B)
		return nil
	}
	vm.pc++ // fall through to FOR_END
	return nil
}

// arrayElem pops dims indices plus the array reference and returns a
// pointer to the addressed element, bounds-checked.
func (vm *VM) arrayElem(dims int) (*Value, *ArrayValue, *RuntimeError) {
	idx := make([]int, dims)
	for i := dims - 1; i >= 0; i-- {
		v, err := vm.pop()
		if err != nil {
			return nil, nil, err
		}
		idx[i] = int(v.AsInt64())
	}
	ref, err := vm.pop()
	if err != nil {
		return nil, nil, err
	}
	if ref.Kind != KindArray || ref.Arr == nil {
		return nil, nil, NewRuntimeError(ErrBoundsViolation, "array not dimensioned")
	}
	arr := ref.Arr
	if len(idx) != len(arr.Bounds) {
		return nil, nil, NewRuntimeError(ErrBoundsViolation, "wrong number of subscripts")
	}
	off := 0
	for d, i := range idx {
		b := arr.Bounds[d]
		if i < b.Lo || i > b.Hi {
			return nil, nil, NewRuntimeError(ErrBoundsViolation, fmt.Sprintf("subscript %d out of range", i))
		}
		off = off*b.Count() + (i - b.Lo)
	}
	return &arr.Data[off], arr, nil
}

func (vm *VM) dimArray(inst Instruction) *RuntimeError {
	desc := vm.prog.ArrayDescs[inst.B]
	bounds := make([]ArrayBounds, desc.Dims)
	for d := desc.Dims - 1; d >= 0; d-- {
		hi, err := vm.pop()
		if err != nil {
			return err
		}
		lo, err := vm.pop()
		if err != nil {
			return err
		}
		b := ArrayBounds{Lo: int(lo.AsInt64()), Hi: int(hi.AsInt64())}
		if b.Hi < b.Lo {
			return NewRuntimeError(ErrBoundsViolation, "upper bound below lower bound")
		}
		bounds[d] = b
	}
	total := 1
	for _, b := range bounds {
		total *= b.Count()
	}
	arr := &ArrayValue{Elem: desc.ElemKind, ElemFixedLen: desc.FixedLen, Bounds: bounds, Data: make([]Value, total)}
	if desc.RecordID >= 0 {
		arr.ElemType = vm.prog.Records[desc.RecordID]
	}
	for i := range arr.Data {
		switch desc.ElemKind {
		case KindRecord:
			arr.Data[i] = Value{Kind: KindRecord, Rec: arr.ElemType.NewRecordValue()}
		case KindFixedString:
			arr.Data[i] = Value{Kind: KindFixedString, Str: FitFixed("", desc.FixedLen)}
		default:
			arr.Data[i] = ZeroValue(desc.ElemKind)
		}
	}
	slot, rerr := vm.slotPtr(inst.A)
	if rerr != nil {
		return rerr
	}
	*slot = Value{Kind: KindArray, Arr: arr}
	vm.pc++
	return nil
}

func (vm *VM) call(inst Instruction) *RuntimeError {
	if len(vm.frames) >= vm.opts.MaxFrames {
		return NewRuntimeError(ErrStackOverflow, "call depth exceeded")
	}
	entry := &vm.prog.Procs[inst.A]
	locals := initSlots(vm.prog, entry.LocalDescs)
	if len(locals) < entry.LocalCount {
		grown := make([]Value, entry.LocalCount)
		copy(grown, locals)
		locals = grown
	}
	argc := int(inst.B)
	for i := argc - 1; i >= 0; i-- {
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if i < len(entry.Params) && entry.Params[i].ByVal {
			v = v.Copy()
		}
		locals[i] = v
	}
	vm.frames = append(vm.frames, frame{retPC: vm.pc + 1, locals: locals, proc: entry})
	vm.pc = entry.Entry
	return nil
}

// ret unwinds one frame. For functions the return slot (right after
// the parameters) is pushed first; by-reference scalar finals follow
// in parameter order so call sites can copy them back.
func (vm *VM) ret() *RuntimeError {
	f := vm.topFrame()
	if f == nil {
		return NewRuntimeError(ErrTypeMismatch, "RET outside procedure")
	}
	entry := f.proc
	retPC := f.retPC
	if entry.IsFunction {
		if err := vm.push(f.locals[len(entry.Params)]); err != nil {
			return err
		}
	}
	for i, p := range entry.Params {
		if !p.ByVal && !p.IsArray {
			if err := vm.push(f.locals[i]); err != nil {
				return err
			}
		}
	}
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.pc = retPC
	return nil
}

// ---- I/O ----

// writeOut emits text to the selected output channel, tracking the
// console column for PRINT zones.
func (vm *VM) writeOut(s string) *RuntimeError {
	if vm.outCh == 0 {
		vm.host.StdoutWrite(s)
		if i := strings.LastIndexByte(s, '\n'); i >= 0 {
			vm.col = len(s) - i - 1
		} else {
			vm.col += len(s)
		}
		return nil
	}
	ch, err := vm.channel(vm.outCh)
	if err != nil {
		return err
	}
	return ch.WriteString(s)
}

// advanceZone pads to the next PRINT zone; when the column already
// sits past a zone boundary it moves to the one after.
func (vm *VM) advanceZone() *RuntimeError {
	w := vm.opts.ZoneWidth
	pad := w - vm.col%w
	return vm.writeOut(strings.Repeat(" ", pad))
}

func (vm *VM) readInLine() (string, *RuntimeError) {
	if vm.inCh == 0 {
		line, err := vm.host.StdinReadLine()
		if err != nil {
			return "", NewRuntimeError(ErrIOError, err.Error())
		}
		return line, nil
	}
	ch, err := vm.channel(vm.inCh)
	if err != nil {
		return "", err
	}
	return ch.ReadLine()
}

func (vm *VM) inputItem(inst Instruction) *RuntimeError {
	if inst.B == 1 {
		vm.inputFields = nil
	}
	if len(vm.inputFields) == 0 {
		line, err := vm.readInLine()
		if err != nil {
			return err
		}
		vm.inputFields = splitInputFields(line)
	}
	field := vm.inputFields[0]
	vm.inputFields = vm.inputFields[1:]

	kind := Kind(inst.A)
	var v Value
	if kind.IsString() {
		v = StringValue(field)
	} else {
		var rerr *RuntimeError
		v, rerr = DoubleValue(parseVal(field)).Coerce(kind)
		if rerr != nil {
			return rerr
		}
	}
	if err := vm.push(v); err != nil {
		return err
	}
	vm.pc++
	return nil
}

// splitInputFields splits an INPUT line on commas, honoring quoted
// fields and trimming unquoted whitespace.
func splitInputFields(line string) []string {
	var fields []string
	i := 0
	for {
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i < len(line) && line[i] == '"' {
			i++
			start := i
			for i < len(line) && line[i] != '"' {
				i++
			}
			fields = append(fields, line[start:i])
			if i < len(line) {
				i++
			}
			for i < len(line) && line[i] != ',' {
				i++
			}
		} else {
			start := i
			for i < len(line) && line[i] != ',' {
				i++
			}
			fields = append(fields, strings.TrimRight(line[start:i], " \t"))
		}
		if i >= len(line) {
			break
		}
		i++ // skip comma
	}
	if len(fields) == 0 {
		fields = []string{""}
	}
	return fields
}

func (vm *VM) open(inst Instruction) *RuntimeError {
	recLen := 128
	if inst.B == 1 {
		v, err := vm.pop()
		if err != nil {
			return err
		}
		recLen = int(v.AsInt64())
	}
	chv, err := vm.pop()
	if err != nil {
		return err
	}
	path, err := vm.pop()
	if err != nil {
		return err
	}
	n := int(chv.AsInt64())
	if n <= 0 {
		return NewRuntimeError(ErrBadChannel, "channel number must be positive")
	}
	if _, open := vm.channels[n]; open {
		return NewRuntimeError(ErrBadChannel, fmt.Sprintf("channel #%d already open", n))
	}
	mode := FileMode(inst.A)
	file, oerr := vm.host.Open(path.Str, mode)
	if oerr != nil {
		return NewRuntimeError(ErrIOError, oerr.Error())
	}
	vm.channels[n] = newChannel(n, mode, recLen, file)
	vm.pc++
	return nil
}

func (vm *VM) fileIO(inst Instruction) *RuntimeError {
	switch inst.A {
	case fileReset:
		vm.outCh, vm.inCh = 0, 0
		vm.pc++
		return nil
	}
	v, err := vm.pop()
	if err != nil {
		return err
	}
	n := int(v.AsInt64())
	ch, err := vm.channel(n)
	if err != nil {
		return err
	}
	switch inst.A {
	case fileSelOut:
		if ch.Mode == ModeInput {
			return NewRuntimeError(ErrBadChannel, "channel not open for OUTPUT")
		}
		vm.outCh = n
	case fileSelIn:
		if ch.Mode != ModeInput {
			return NewRuntimeError(ErrBadChannel, "channel not open for INPUT")
		}
		vm.inCh = n
	}
	vm.pc++
	return nil
}

// coerceData converts a DATA literal to the READ target type.
func coerceData(item Value, kind Kind) (Value, *RuntimeError) {
	if kind.IsString() {
		return StringValue(item.Format()), nil
	}
	if !item.Kind.IsNumeric() {
		return Value{}, NewRuntimeError(ErrTypeMismatch, "numeric READ target, string DATA item")
	}
	return item.Coerce(kind)
}
