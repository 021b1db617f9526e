package basic

import "fmt"

// Emitter lowers the analyzed tree to the linear instruction stream.
// Labels may be referenced before their pc is known; a fixup table
// holds the pending jump sites and patches them at scope end.
type Emitter struct {
	an    *Analysis
	prog  *Program
	diags *DiagSink

	constIdx map[string]int
	spanIdx  map[Span]int32

	// per-scope state
	curProc *ProcInfo
	labels  map[string]int
	fixups  []labelFixup
	loops   []*loopCtx
	retFix  []int
	extraLocals int
}

type labelFixup struct {
	pc    int
	label string
}

type loopCtx struct {
	isFor    bool
	exitFix  []int
	forEndPC int // patched when known
}

// Emit lowers an analysis result into a Program.
func Emit(an *Analysis, diags *DiagSink) *Program {
	e := &Emitter{
		an:    an,
		diags: diags,
		prog: &Program{
			Labels: make(map[string]int),
			Data:   an.Data,
		},
		constIdx: make(map[string]int),
		spanIdx:  make(map[Span]int32),
	}
	e.prog.Records = an.Records
	for _, g := range an.Globals {
		e.prog.GlobalDescs = append(e.prog.GlobalDescs, slotDesc(g))
	}
	var flags uint16 = rngMixVersion // documents the RANDOMIZE mixing
	if an.Console {
		flags |= flagConsole
	}
	e.prog.Flags = flags

	// main body
	e.labels = make(map[string]int)
	e.emitStmts(an.Module.Stmts)
	e.emit(Span{}, OP_HALT, 0, 0)
	e.patchLabels()
	for name, pc := range e.labels {
		e.prog.Labels[name] = pc
	}

	// procedures
	for _, info := range an.Procs {
		if !info.Defined {
			continue
		}
		e.emitProc(info)
	}
	return e.prog
}

func slotDesc(sym *Symbol) SlotDesc {
	d := SlotDesc{Kind: sym.Type.Kind, FixedLen: sym.Type.FixedLen, RecordID: -1}
	if sym.Kind == SymArray {
		d.Kind = KindArray
	}
	if sym.Type.Record != nil {
		d.RecordID = sym.Type.Record.ID
	}
	return d
}

// flags stored in the image header
const (
	rngMixVersion uint16 = 1 << 0 // xorshift64* with splitmix seeding
	flagConsole   uint16 = 1 << 1
)

func (e *Emitter) emit(span Span, op OpCode, a, b int32) int {
	idx, ok := e.spanIdx[span]
	if !ok {
		idx = int32(len(e.prog.Spans))
		e.prog.Spans = append(e.prog.Spans, span)
		e.spanIdx[span] = idx
	}
	pc := len(e.prog.Instructions)
	e.prog.Instructions = append(e.prog.Instructions, Instruction{Op: op, A: a, B: b, SpanIdx: idx})
	return pc
}

func (e *Emitter) pc() int { return len(e.prog.Instructions) }

func (e *Emitter) patchA(pc, target int) {
	e.prog.Instructions[pc].A = int32(target)
}

func (e *Emitter) patchB(pc, target int) {
	e.prog.Instructions[pc].B = int32(target)
}

// patchLabels resolves the fixups of the scope just emitted.
func (e *Emitter) patchLabels() {
	for _, f := range e.fixups {
		pc, ok := e.labels[f.label]
		if !ok {
			// semantic analysis already reported UnknownLabel
			pc = len(e.prog.Instructions) - 1
		}
		e.patchA(f.pc, pc)
	}
	e.fixups = e.fixups[:0]
}

// constIndex deduplicates literals in the constant pool.
func (e *Emitter) constIndex(v Value) int32 {
	key := fmt.Sprintf("%d|%d|%x|%s", v.Kind, v.Int, v.Real, v.Str)
	if idx, ok := e.constIdx[key]; ok {
		return int32(idx)
	}
	idx := len(e.prog.Consts)
	e.prog.Consts = append(e.prog.Consts, v)
	e.constIdx[key] = idx
	return int32(idx)
}

func (e *Emitter) pushConst(span Span, v Value) {
	e.emit(span, OP_PUSH_CONST, e.constIndex(v), 0)
}

// slotEnc packs a slot index with its global bit.
func slotEnc(sym *Symbol) int32 {
	enc := int32(sym.Slot) << 1
	if sym.Global {
		enc |= 1
	}
	return enc
}

func (e *Emitter) emitProc(info *ProcInfo) {
	e.curProc = info
	e.labels = make(map[string]int)
	e.retFix = e.retFix[:0]
	e.extraLocals = 0

	entry := e.pc()
	e.emitStmts(info.Decl.Body)
	// epilogue: EXIT SUB/FUNCTION jumps land here
	ret := e.emit(info.Decl.GetSpan(), OP_RET, 0, 0)
	for _, pc := range e.retFix {
		e.patchA(pc, ret)
	}
	e.patchLabels()

	entryRow := ProcEntry{
		Name:       info.Name,
		Entry:      entry,
		LocalCount: info.LocalCount + e.extraLocals,
		IsFunction: info.IsFunction,
	}
	for _, p := range info.Params {
		entryRow.Params = append(entryRow.Params, ParamDesc{Kind: p.Type.Kind, ByVal: p.ByVal, IsArray: p.Kind == SymArray})
	}
	for _, l := range info.Locals {
		entryRow.LocalDescs = append(entryRow.LocalDescs, slotDesc(l))
	}
	for i := 0; i < e.extraLocals; i++ {
		entryRow.LocalDescs = append(entryRow.LocalDescs, SlotDesc{RecordID: -1})
	}
	e.prog.Procs = append(e.prog.Procs, entryRow)
	e.curProc = nil
}

// tempSlot allocates a hidden slot for SELECT CASE subjects.
func (e *Emitter) tempSlot() *Symbol {
	if e.curProc == nil {
		sym := &Symbol{Slot: len(e.prog.GlobalDescs), Global: true}
		e.prog.GlobalDescs = append(e.prog.GlobalDescs, SlotDesc{RecordID: -1})
		return sym
	}
	sym := &Symbol{Slot: e.curProc.LocalCount + e.extraLocals}
	e.extraLocals++
	return sym
}

func (e *Emitter) emitStmts(stmts []Stmt) {
	for _, s := range stmts {
		e.emitStmt(s)
	}
}

func (e *Emitter) emitStmt(s Stmt) {
	switch st := s.(type) {
	case *LabelStmt:
		e.labels[st.Name] = e.pc()
	case *DimStmt:
		e.emitDim(st)
	case *AssignStmt:
		e.emitExpr(st.Value)
		e.emitStore(st.Target)
	case *PrintStmt:
		e.emitPrint(st)
	case *WriteStmt:
		e.emitWrite(st)
	case *InputStmt:
		e.emitInput(st)
	case *IfStmt:
		e.emitIf(st)
	case *SelectStmt:
		e.emitSelect(st)
	case *ForStmt:
		e.emitFor(st)
	case *WhileStmt:
		e.emitWhile(st)
	case *DoStmt:
		e.emitDo(st)
	case *ExitStmt:
		e.emitExit(st)
	case *GotoStmt:
		pc := e.emit(st.GetSpan(), OP_JMP, 0, 0)
		e.fixups = append(e.fixups, labelFixup{pc, st.Target})
	case *GosubStmt:
		pc := e.emit(st.GetSpan(), OP_GOSUB, 0, 0)
		e.fixups = append(e.fixups, labelFixup{pc, st.Target})
	case *ReturnStmt:
		pc := e.emit(st.GetSpan(), OP_RET_SUB, -1, 0)
		if st.Target != "" {
			e.fixups = append(e.fixups, labelFixup{pc, st.Target})
		}
	case *CallStmt:
		e.emitCallStmt(st)
	case *OpenStmt:
		e.emitExpr(st.Path)
		e.emitExpr(st.Channel)
		hasLen := int32(0)
		if st.RecLen != nil {
			e.emitExpr(st.RecLen)
			hasLen = 1
		}
		e.emit(st.GetSpan(), OP_OPEN, int32(st.Mode), hasLen)
	case *CloseStmt:
		if len(st.Channels) == 0 {
			e.emit(st.GetSpan(), OP_CLOSE, -1, 0)
			return
		}
		for _, ch := range st.Channels {
			e.emitExpr(ch)
			e.emit(st.GetSpan(), OP_CLOSE, 0, 0)
		}
	case *ReadStmt:
		for _, t := range st.Targets {
			e.emit(t.GetSpan(), OP_READ_DATA, int32(t.Type().Kind), 0)
			e.emitStore(t)
		}
	case *RestoreStmt:
		idx := 0
		if st.Target != "" {
			idx = e.an.DataLabels[st.Target]
		}
		e.emit(st.GetSpan(), OP_RESTORE_DATA, int32(idx), 0)
	case *RandomizeStmt:
		if st.Seed != nil {
			e.emitExpr(st.Seed)
			e.emit(st.GetSpan(), OP_RANDOMIZE, 1, 0)
		} else {
			e.emit(st.GetSpan(), OP_RANDOMIZE, 0, 0)
		}
	case *SwapStmt:
		e.emitExpr(st.A)
		e.emitExpr(st.B)
		e.emitStore(st.A)
		e.emitStore(st.B)
	case *EndStmt:
		e.emit(st.GetSpan(), OP_HALT, 0, 0)
	case *DataStmt, *ConstStmt, *TypeDeclStmt, *DeclareStmt,
		*OptionBaseStmt, *MetaStmt:
		// no code; consumed by the semantic pass
	}
}

func (e *Emitter) emitDim(st *DimStmt) {
	for i := range st.Decls {
		d := &st.Decls[i]
		sym := e.lookupDeclSym(d, st.Shared)
		if sym == nil || sym.Kind != SymArray {
			continue // scalar slots are zero-initialized by the VM
		}
		for _, b := range d.Bounds {
			if b[0] != nil {
				e.emitExpr(b[0])
			} else {
				e.pushConst(d.Span, Int32Value(int32(e.an.OptionBase)))
			}
			e.emitExpr(b[1])
		}
		desc := ArrayDesc{Dims: len(d.Bounds), ElemKind: sym.Type.Kind, FixedLen: sym.Type.FixedLen, RecordID: -1}
		if sym.Type.Record != nil {
			desc.RecordID = sym.Type.Record.ID
		}
		descIdx := len(e.prog.ArrayDescs)
		e.prog.ArrayDescs = append(e.prog.ArrayDescs, desc)
		e.emit(d.Span, OP_DIM_ARRAY, slotEnc(sym), int32(descIdx))
	}
}

// lookupDeclSym finds the symbol a DIM declarator bound during
// analysis.
func (e *Emitter) lookupDeclSym(d *VarDecl, shared bool) *Symbol {
	want := d.Name
	if len(d.Bounds) > 0 {
		want = arrayKey(d.Name)
	}
	if e.curProc != nil && !shared {
		for _, l := range e.curProc.Locals {
			if l.Name == want {
				return l
			}
		}
	}
	for _, g := range e.an.Globals {
		if g.Name == want {
			return g
		}
	}
	return nil
}

// emitLoad pushes a scalar slot.
func (e *Emitter) emitLoad(span Span, sym *Symbol) {
	if sym.Global {
		e.emit(span, OP_LOAD_GLOBAL, int32(sym.Slot), 0)
	} else {
		e.emit(span, OP_LOAD_LOCAL, int32(sym.Slot), 0)
	}
}

func (e *Emitter) emitStoreSlot(span Span, sym *Symbol) {
	if sym.Global {
		e.emit(span, OP_STORE_GLOBAL, int32(sym.Slot), 0)
	} else {
		e.emit(span, OP_STORE_LOCAL, int32(sym.Slot), 0)
	}
}

// emitStore writes the value on top of the stack into an l-value. For
// array elements and record fields the reference chain is evaluated
// after the value, which therefore sits below it on the stack.
func (e *Emitter) emitStore(target Expr) {
	switch t := target.(type) {
	case *NameRef:
		if t.T.Kind == KindFixedString {
			e.emit(t.GetSpan(), OP_FIT_STR, int32(t.T.FixedLen), 0)
		}
		e.emitStoreSlot(t.GetSpan(), t.Sym)
	case *CallOrIndex:
		if t.T.Kind == KindFixedString {
			e.emit(t.GetSpan(), OP_FIT_STR, int32(t.T.FixedLen), 0)
		}
		e.emitLoad(t.GetSpan(), t.Sym)
		for _, idx := range t.Args {
			e.emitExpr(idx)
		}
		e.emit(t.GetSpan(), OP_INDEX_SET, int32(len(t.Args)), 0)
	case *FieldExpr:
		if t.T.Kind == KindFixedString {
			e.emit(t.GetSpan(), OP_FIT_STR, int32(t.T.FixedLen), 0)
		}
		e.emitExpr(t.Base)
		e.emit(t.GetSpan(), OP_FIELD_SET, int32(t.FieldIdx), 0)
	default:
		// semantic analysis reported NotAnLValue; keep the stack sane
		e.emit(target.GetSpan(), OP_POP, 0, 0)
	}
}

func (e *Emitter) emitPrint(st *PrintStmt) {
	if st.Channel != nil {
		e.emitExpr(st.Channel)
		e.emit(st.GetSpan(), OP_FILE_IO, fileSelOut, 0)
	}
	for _, item := range st.Items {
		e.emitExpr(item.Expr)
		sep := int32(sepNone)
		switch item.Sep {
		case ';':
			sep = sepSemi
		case ',':
			sep = sepZone
		}
		e.emit(item.Expr.GetSpan(), OP_PRINT_ITEM, sep, 0)
	}
	if st.TrailingSep == 0 {
		e.emit(st.GetSpan(), OP_PRINT_EOL, 0, 0)
	}
	if st.Channel != nil {
		e.emit(st.GetSpan(), OP_FILE_IO, fileReset, 0)
	}
}

func (e *Emitter) emitWrite(st *WriteStmt) {
	if st.Channel != nil {
		e.emitExpr(st.Channel)
		e.emit(st.GetSpan(), OP_FILE_IO, fileSelOut, 0)
	}
	for i, item := range st.Items {
		e.emitExpr(item)
		comma := int32(0)
		if i < len(st.Items)-1 {
			comma = 1
		}
		e.emit(item.GetSpan(), OP_WRITE_ITEM, comma, 0)
	}
	e.emit(st.GetSpan(), OP_PRINT_EOL, 0, 0)
	if st.Channel != nil {
		e.emit(st.GetSpan(), OP_FILE_IO, fileReset, 0)
	}
}

func (e *Emitter) emitInput(st *InputStmt) {
	if st.Channel != nil {
		e.emitExpr(st.Channel)
		e.emit(st.GetSpan(), OP_FILE_IO, fileSelIn, 0)
	} else if st.Prompt != "" {
		e.pushConst(st.GetSpan(), StringValue(st.Prompt))
		e.emit(st.GetSpan(), OP_PRINT_ITEM, sepSemi, 0)
	}
	for i, t := range st.Targets {
		first := int32(0)
		if i == 0 {
			first = 1
		}
		if st.LineMode {
			e.emit(t.GetSpan(), OP_LINE_INPUT, 0, 0)
		} else {
			e.emit(t.GetSpan(), OP_INPUT_ITEM, int32(t.Type().Kind), first)
		}
		e.emitStore(t)
	}
	if st.Channel != nil {
		e.emit(st.GetSpan(), OP_FILE_IO, fileReset, 0)
	}
}

func (e *Emitter) emitIf(st *IfStmt) {
	var endJumps []int

	cond := st.Cond
	thenBody := st.Then
	arms := st.ElseIfs
	for {
		e.emitExpr(cond)
		skip := e.emit(cond.GetSpan(), OP_JMP_IF_FALSE, 0, 0)
		e.emitStmts(thenBody)
		if len(arms) > 0 || len(st.Else) > 0 {
			endJumps = append(endJumps, e.emit(st.GetSpan(), OP_JMP, 0, 0))
		}
		e.patchA(skip, e.pc())
		if len(arms) == 0 {
			break
		}
		cond = arms[0].Cond
		thenBody = arms[0].Body
		arms = arms[1:]
	}
	e.emitStmts(st.Else)
	for _, pc := range endJumps {
		e.patchA(pc, e.pc())
	}
}

func (e *Emitter) emitSelect(st *SelectStmt) {
	tmp := e.tempSlot()
	e.emitExpr(st.Subject)
	e.emitStoreSlot(st.GetSpan(), tmp)

	var endJumps []int
	for i := range st.Arms {
		arm := &st.Arms[i]
		var bodyJumps []int
		if !arm.IsElse {
			for g := range arm.Guards {
				bodyJumps = append(bodyJumps, e.emitCaseGuard(tmp, &arm.Guards[g])...)
			}
			// none of the guards matched
			next := e.emit(arm.Span, OP_JMP, 0, 0)
			for _, pc := range bodyJumps {
				e.patchA(pc, e.pc())
			}
			e.emitStmts(arm.Body)
			endJumps = append(endJumps, e.emit(arm.Span, OP_JMP, 0, 0))
			e.patchA(next, e.pc())
		} else {
			e.emitStmts(arm.Body)
			endJumps = append(endJumps, e.emit(arm.Span, OP_JMP, 0, 0))
		}
	}
	for _, pc := range endJumps {
		e.patchA(pc, e.pc())
	}
}

// emitCaseGuard emits one guard test; returned pcs jump to the arm
// body on a match.
func (e *Emitter) emitCaseGuard(tmp *Symbol, g *CaseGuard) []int {
	span := g.Lo.GetSpan()
	switch g.Kind {
	case CaseExpr:
		e.emitLoad(span, tmp)
		e.emitExpr(g.Lo)
		e.emit(span, OP_CMP, cmpEq, 0)
		return []int{e.emit(span, OP_JMP_IF_TRUE, 0, 0)}
	case CaseIs:
		e.emitLoad(span, tmp)
		e.emitExpr(g.Lo)
		e.emit(span, OP_CMP, cmpForTok(g.Op), 0)
		return []int{e.emit(span, OP_JMP_IF_TRUE, 0, 0)}
	default: // CaseRange: subject >= lo AND subject <= hi
		e.emitLoad(span, tmp)
		e.emitExpr(g.Lo)
		e.emit(span, OP_CMP, cmpGe, 0)
		fail := e.emit(span, OP_JMP_IF_FALSE, 0, 0)
		e.emitLoad(span, tmp)
		e.emitExpr(g.Hi)
		e.emit(span, OP_CMP, cmpLe, 0)
		hit := e.emit(span, OP_JMP_IF_TRUE, 0, 0)
		e.patchA(fail, e.pc())
		return []int{hit}
	}
}

func cmpForTok(op TokenKind) int32 {
	switch op {
	case TokEq:
		return cmpEq
	case TokNe:
		return cmpNe
	case TokLt:
		return cmpLt
	case TokLe:
		return cmpLe
	case TokGt:
		return cmpGt
	}
	return cmpGe
}

func (e *Emitter) emitFor(st *ForStmt) {
	sym := st.Var.Sym
	e.emitExpr(st.From)
	e.emitExpr(st.To)
	if st.Step != nil {
		e.emitExpr(st.Step)
	} else {
		one, _ := Int16Value(1).Coerce(st.Var.Type().Kind)
		e.pushConst(st.GetSpan(), one)
	}
	initPC := e.emit(st.GetSpan(), OP_FOR_INIT, slotEnc(sym), 0)

	loop := &loopCtx{isFor: true}
	e.loops = append(e.loops, loop)
	bodyPC := e.pc()
	e.emitStmts(st.Body)
	e.emit(st.GetSpan(), OP_FOR_STEP, slotEnc(sym), int32(bodyPC))
	endPC := e.emit(st.GetSpan(), OP_FOR_END, 0, 0)
	e.patchB(initPC, endPC)
	for _, pc := range loop.exitFix {
		e.patchA(pc, endPC)
	}
	e.loops = e.loops[:len(e.loops)-1]
}

func (e *Emitter) emitWhile(st *WhileStmt) {
	loop := &loopCtx{}
	e.loops = append(e.loops, loop)
	start := e.pc()
	e.emitExpr(st.Cond)
	exit := e.emit(st.Cond.GetSpan(), OP_JMP_IF_FALSE, 0, 0)
	e.emitStmts(st.Body)
	e.emit(st.GetSpan(), OP_JMP, int32(start), 0)
	end := e.pc()
	e.patchA(exit, end)
	for _, pc := range loop.exitFix {
		e.patchA(pc, end)
	}
	e.loops = e.loops[:len(e.loops)-1]
}

func (e *Emitter) emitDo(st *DoStmt) {
	loop := &loopCtx{}
	e.loops = append(e.loops, loop)
	start := e.pc()
	var preExit int = -1
	if st.PreCond != nil {
		e.emitExpr(st.PreCond)
		if st.PreUntil {
			preExit = e.emit(st.PreCond.GetSpan(), OP_JMP_IF_TRUE, 0, 0)
		} else {
			preExit = e.emit(st.PreCond.GetSpan(), OP_JMP_IF_FALSE, 0, 0)
		}
	}
	e.emitStmts(st.Body)
	switch {
	case st.PostCond != nil:
		e.emitExpr(st.PostCond)
		if st.PostUntil {
			e.emit(st.PostCond.GetSpan(), OP_JMP_IF_FALSE, int32(start), 0)
		} else {
			e.emit(st.PostCond.GetSpan(), OP_JMP_IF_TRUE, int32(start), 0)
		}
	default:
		e.emit(st.GetSpan(), OP_JMP, int32(start), 0)
	}
	end := e.pc()
	if preExit >= 0 {
		e.patchA(preExit, end)
	}
	for _, pc := range loop.exitFix {
		e.patchA(pc, end)
	}
	e.loops = e.loops[:len(e.loops)-1]
}

func (e *Emitter) emitExit(st *ExitStmt) {
	switch st.Kind {
	case ExitFor, ExitDo:
		want := st.Kind == ExitFor
		for i := len(e.loops) - 1; i >= 0; i-- {
			if e.loops[i].isFor == want {
				pc := e.emit(st.GetSpan(), OP_JMP, 0, 0)
				e.loops[i].exitFix = append(e.loops[i].exitFix, pc)
				return
			}
		}
	case ExitSub, ExitFunction:
		pc := e.emit(st.GetSpan(), OP_JMP, 0, 0)
		e.retFix = append(e.retFix, pc)
	}
}

func (e *Emitter) emitCallStmt(st *CallStmt) {
	if st.Intrinsic >= 0 {
		for _, a := range st.Args {
			e.emitExpr(a)
		}
		e.emit(st.GetSpan(), OP_INTRINSIC, int32(st.Intrinsic), int32(len(st.Args)))
		return
	}
	if st.Sym == nil {
		return
	}
	e.emitProcCall(st.GetSpan(), st.Sym.Proc, st.Args)
}

// emitProcCall lowers a SUB/FUNCTION invocation including the
// copy-restore of by-reference scalar arguments. After OP_RET the VM
// leaves (function return value, then by-ref finals in parameter
// order) on the stack; the stores below unwind them in reverse.
func (e *Emitter) emitProcCall(span Span, proc *ProcInfo, args []Expr) {
	for _, a := range args {
		e.emitExpr(a)
	}
	e.emit(span, OP_CALL, int32(proc.Index), int32(len(args)))
	for i := len(args) - 1; i >= 0; i-- {
		prm := proc.Params[i]
		if prm.ByVal || prm.Kind == SymArray {
			continue
		}
		if isLValue(args[i]) {
			e.emitStore(args[i])
		} else {
			e.emit(span, OP_POP, 0, 0)
		}
	}
}

// ---- expressions ----

func (e *Emitter) emitExpr(expr Expr) {
	switch ex := expr.(type) {
	case *NumberLit:
		e.pushConst(ex.GetSpan(), ex.Value)
	case *StringLit:
		e.pushConst(ex.GetSpan(), StringValue(ex.Value))
	case *NameRef:
		switch {
		case ex.Sym == nil && ex.Intrinsic >= 0:
			e.emit(ex.GetSpan(), OP_INTRINSIC, int32(ex.Intrinsic), 0)
		case ex.Sym == nil:
			e.pushConst(ex.GetSpan(), Int16Value(0))
		case ex.Sym.Kind == SymConst:
			e.pushConst(ex.GetSpan(), ex.Sym.ConstVal)
		case ex.Sym.Kind == SymProc:
			e.emitProcCall(ex.GetSpan(), ex.Sym.Proc, nil)
		default:
			e.emitLoad(ex.GetSpan(), ex.Sym)
		}
	case *CallOrIndex:
		e.emitCallOrIndex(ex)
	case *FieldExpr:
		e.emitExpr(ex.Base)
		e.emit(ex.GetSpan(), OP_FIELD_GET, int32(ex.FieldIdx), 0)
	case *UnaryExpr:
		e.emitExpr(ex.Operand)
		if ex.Not {
			e.emit(ex.GetSpan(), OP_NOT, 0, 0)
		} else {
			e.emit(ex.GetSpan(), OP_NEG, 0, 0)
		}
	case *BinaryExpr:
		e.emitBinary(ex)
	case *CoerceExpr:
		e.emitExpr(ex.Operand)
		e.emit(ex.GetSpan(), OP_COERCE, int32(ex.T.Kind), 0)
	}
}

func (e *Emitter) emitCallOrIndex(ex *CallOrIndex) {
	switch {
	case ex.Intrinsic >= 0:
		for _, a := range ex.Args {
			e.emitExpr(a)
		}
		e.emit(ex.GetSpan(), OP_INTRINSIC, int32(ex.Intrinsic), int32(len(ex.Args)))
	case ex.Sym != nil && ex.Sym.Kind == SymArray:
		e.emitLoad(ex.GetSpan(), ex.Sym)
		if len(ex.Args) == 0 {
			// bare NAME() passes the array reference itself
			return
		}
		for _, idx := range ex.Args {
			e.emitExpr(idx)
		}
		e.emit(ex.GetSpan(), OP_INDEX_GET, int32(len(ex.Args)), 0)
	case ex.Sym != nil && ex.Sym.Kind == SymProc:
		e.emitProcCall(ex.GetSpan(), ex.Sym.Proc, ex.Args)
	default:
		e.pushConst(ex.GetSpan(), Int16Value(0))
	}
}

func (e *Emitter) emitBinary(ex *BinaryExpr) {
	e.emitExpr(ex.L)
	e.emitExpr(ex.R)
	span := ex.GetSpan()
	strs := ex.L.Type().Kind.IsString()

	switch {
	case ex.Kw == "AND":
		e.emit(span, OP_AND, 0, 0)
	case ex.Kw == "OR":
		e.emit(span, OP_OR, 0, 0)
	case ex.Kw == "MOD":
		e.emit(span, OP_MOD, 0, 0)
	case ex.Op == TokPlus && strs:
		e.emit(span, OP_CONCAT, 0, 0)
	case ex.Op == TokPlus:
		e.emit(span, OP_ADD, 0, 0)
	case ex.Op == TokMinus:
		e.emit(span, OP_SUB, 0, 0)
	case ex.Op == TokStar:
		e.emit(span, OP_MUL, 0, 0)
	case ex.Op == TokSlash:
		e.emit(span, OP_DIV, 0, 0)
	case ex.Op == TokBackslash:
		e.emit(span, OP_IDIV, 0, 0)
	case ex.Op == TokCaret:
		e.emit(span, OP_POW, 0, 0)
	case ex.Op.isRelOp():
		e.emit(span, OP_CMP, cmpForTok(ex.Op), 0)
	default:
		e.diags.Errorf(DiagUnexpectedToken, span, "cannot lower operator")
	}
}
