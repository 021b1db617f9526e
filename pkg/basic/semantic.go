package basic

import "strings"

// Analyzer performs the two semantic sub-passes: collection of
// CONSTs, TYPEs, procedure signatures and the DATA pool, then full
// name/type resolution over every expression.
type Analyzer struct {
	diags  *DiagSink
	module *Module

	moduleScope *Scope
	scope       *Scope
	records     map[string]*RecordType
	recordList  []*RecordType
	globals     []*Symbol
	procs       []*ProcInfo
	procByName  map[string]*ProcInfo

	data       []Value
	dataLabels map[string]int
	labels     map[string]bool // labels of the scope currently resolved
	modLabels  map[string]bool

	curProc    *ProcInfo
	localSlots int
	optionBase int
	console    bool

	forDepth int
	doDepth  int
}

// Analyze runs both passes and returns the emitter input. The
// diagnostics sink receives everything found; the caller decides
// whether to continue.
func Analyze(module *Module, diags *DiagSink) *Analysis {
	a := &Analyzer{
		diags:       diags,
		module:      module,
		moduleScope: NewScope(nil),
		records:     make(map[string]*RecordType),
		procByName:  make(map[string]*ProcInfo),
		dataLabels:  make(map[string]int),
		modLabels:   make(map[string]bool),
	}
	a.scope = a.moduleScope

	a.collect()
	a.resolve()

	return &Analysis{
		Module:     module,
		Globals:    a.globals,
		Procs:      a.procs,
		Records:    a.recordList,
		Data:       a.data,
		DataLabels: a.dataLabels,
		Labels:     a.modLabels,
		OptionBase: a.optionBase,
		Console:    a.console,
	}
}

// ---- Pass A: collection ----

func (a *Analyzer) collect() {
	// TYPE definitions first: procedure signatures may reference them
	a.walkStmts(a.module.Stmts, func(s Stmt) {
		if t, ok := s.(*TypeDeclStmt); ok {
			a.collectType(t)
		}
	})

	// procedure signatures from DECLARE and from definitions
	a.walkStmts(a.module.Stmts, func(s Stmt) {
		if d, ok := s.(*DeclareStmt); ok {
			a.collectSignature(d.Name, d.IsFunction, d.Params, d.GetSpan(), false)
		}
	})
	for _, proc := range a.module.Procs {
		info := a.collectSignature(proc.Name, proc.IsFunction, proc.Params, proc.GetSpan(), true)
		if info != nil {
			info.Decl = proc
		}
	}

	// DATA pool and label->index mapping, in lexical order
	a.walkStmts(a.module.Stmts, func(s Stmt) {
		switch st := s.(type) {
		case *LabelStmt:
			if _, dup := a.dataLabels[st.Name]; dup || a.modLabels[st.Name] {
				a.diags.Errorf(DiagDuplicateLabel, st.GetSpan(), "duplicate label %s", st.Name)
				return
			}
			a.modLabels[st.Name] = true
			a.dataLabels[st.Name] = len(a.data)
		case *DataStmt:
			for _, item := range st.Items {
				a.data = append(a.data, item.Value)
			}
		case *MetaStmt:
			if st.Name == "CONSOLE" {
				a.console = true
			}
		case *OptionBaseStmt:
			a.optionBase = st.Base
		}
	})

	// CONST bindings are folded in source order so later consts can
	// reference earlier ones
	a.walkStmts(a.module.Stmts, func(s Stmt) {
		if c, ok := s.(*ConstStmt); ok {
			a.collectConsts(c)
		}
	})
}

// walkStmts visits statements recursively in source order.
func (a *Analyzer) walkStmts(stmts []Stmt, fn func(Stmt)) {
	for _, s := range stmts {
		fn(s)
		switch st := s.(type) {
		case *IfStmt:
			a.walkStmts(st.Then, fn)
			for _, arm := range st.ElseIfs {
				a.walkStmts(arm.Body, fn)
			}
			a.walkStmts(st.Else, fn)
		case *SelectStmt:
			for _, arm := range st.Arms {
				a.walkStmts(arm.Body, fn)
			}
		case *ForStmt:
			a.walkStmts(st.Body, fn)
		case *WhileStmt:
			a.walkStmts(st.Body, fn)
		case *DoStmt:
			a.walkStmts(st.Body, fn)
		}
	}
}

func (a *Analyzer) collectType(t *TypeDeclStmt) {
	if _, exists := a.records[t.Name]; exists {
		a.diags.Errorf(DiagRedeclared, t.GetSpan(), "type %s already defined", t.Name)
		return
	}
	rt := &RecordType{Name: t.Name, ID: len(a.recordList)}
	offset := 0
	for _, f := range t.Fields {
		field := RecordField{Name: f.Name, Offset: offset}
		field.Kind, field.FixedLen, field.Record = a.fieldType(f)
		if rt.FieldIndex(f.Name) >= 0 {
			a.diags.Errorf(DiagRedeclared, f.Span, "field %s already defined in type %s", f.Name, t.Name)
			continue
		}
		rt.Fields = append(rt.Fields, field)
		offset += scalarKindSize(field.Kind, field.FixedLen, field.Record)
	}
	rt.Size = offset
	a.records[t.Name] = rt
	a.recordList = append(a.recordList, rt)
}

func (a *Analyzer) fieldType(f TypeField) (Kind, int, *RecordType) {
	k := kindFromTypeName(f.TypeName)
	if k == KindString && f.FixedLen != nil {
		if n, ok := a.foldConst(f.FixedLen); ok && n.Kind.IsNumeric() {
			return KindFixedString, int(n.AsInt64()), nil
		}
		a.diags.Errorf(DiagNonConstInConst, f.Span, "fixed string length must be constant")
		return KindFixedString, 0, nil
	}
	if k != KindEmpty {
		return k, 0, nil
	}
	if rt, ok := a.records[f.TypeName]; ok {
		return KindRecord, 0, rt
	}
	a.diags.Errorf(DiagUndeclared, f.Span, "unknown type %s", f.TypeName)
	return KindInt16, 0, nil
}

// kindFromTypeName maps an AS type name to a scalar kind; KindEmpty
// for user types.
func kindFromTypeName(name string) Kind {
	switch name {
	case "INTEGER":
		return KindInt16
	case "LONG":
		return KindInt32
	case "SINGLE":
		return KindSingle
	case "DOUBLE":
		return KindDouble
	case "STRING":
		return KindString
	case "_INTEGER64":
		return KindInt64
	case "_UNSIGNED LONG":
		return KindUInt32
	}
	return KindEmpty
}

func (a *Analyzer) collectSignature(name string, isFunction bool, params []Param, span Span, definition bool) *ProcInfo {
	if existing, ok := a.procByName[name]; ok {
		if definition && !existing.Defined {
			// DECLARE followed by the definition: check arity only
			if len(existing.Params) != len(params) {
				a.diags.Errorf(DiagArityMismatch, span, "%s defined with %d parameters, declared with %d", name, len(params), len(existing.Params))
			}
			existing.Defined = true
			existing.Params = a.paramSymbols(params)
			return existing
		}
		if definition && existing.Defined {
			a.diags.Errorf(DiagRedeclared, span, "procedure %s already defined", name)
		}
		return existing
	}
	info := &ProcInfo{
		Name:       name,
		IsFunction: isFunction,
		Index:      len(a.procs),
		Params:     a.paramSymbols(params),
		Declared:   !definition,
		Defined:    definition,
		Labels:     make(map[string]bool),
	}
	if isFunction {
		info.RetType = a.nameType(name, "", span)
	}
	a.procs = append(a.procs, info)
	a.procByName[name] = info
	a.moduleScope.Define(&Symbol{Name: name, Kind: SymProc, Proc: info})
	return info
}

func (a *Analyzer) paramSymbols(params []Param) []*Symbol {
	syms := make([]*Symbol, len(params))
	for i, prm := range params {
		sym := &Symbol{Name: prm.Name, IsParam: true, ByVal: prm.ByVal, Slot: i}
		sym.Type = a.nameType(prm.Name, prm.TypeName, prm.Span)
		if prm.IsArray {
			sym.Name = arrayKey(prm.Name)
			sym.Kind = SymArray
			sym.Dims = -1 // arity checked at use sites against the argument
		}
		syms[i] = sym
	}
	return syms
}

// nameType derives the type of a name from its sigil, an explicit AS
// type, or the Single default.
func (a *Analyzer) nameType(name, typeName string, span Span) ExprType {
	if typeName != "" {
		if k := kindFromTypeName(typeName); k != KindEmpty {
			return ExprType{Kind: k}
		}
		if rt, ok := a.records[typeName]; ok {
			return ExprType{Kind: KindRecord, Record: rt}
		}
		a.diags.Errorf(DiagUndeclared, span, "unknown type %s", typeName)
		return ExprType{Kind: KindSingle}
	}
	if k := sigilKind(name); k != KindEmpty {
		return ExprType{Kind: k}
	}
	return ExprType{Kind: KindSingle}
}

func (a *Analyzer) collectConsts(c *ConstStmt) {
	for i, name := range c.Names {
		v, ok := a.foldConst(c.Values[i])
		if !ok {
			a.diags.Errorf(DiagNonConstInConst, c.Values[i].GetSpan(), "CONST %s requires a constant expression", name)
			continue
		}
		if sk := sigilKind(name); sk != KindEmpty && sk != v.Kind {
			coerced, err := v.Coerce(sk)
			if err != nil {
				a.diags.Errorf(DiagTypeMismatch, c.Values[i].GetSpan(), "CONST %s: %s", name, err.Message)
				continue
			}
			v = coerced
		}
		if a.moduleScope.LookupLocal(name) != nil {
			a.diags.Errorf(DiagRedeclared, c.GetSpan(), "%s already declared", name)
			continue
		}
		a.moduleScope.Define(&Symbol{Name: name, Kind: SymConst, Type: ExprType{Kind: v.Kind}, ConstVal: v, Global: true})
	}
}

// foldConst evaluates a constant expression at compile time.
func (a *Analyzer) foldConst(e Expr) (Value, bool) {
	switch ex := e.(type) {
	case *NumberLit:
		return ex.Value, true
	case *StringLit:
		return StringValue(ex.Value), true
	case *NameRef:
		if sym := a.scope.Lookup(ex.Name); sym != nil && sym.Kind == SymConst {
			return sym.ConstVal, true
		}
		return Value{}, false
	case *UnaryExpr:
		v, ok := a.foldConst(ex.Operand)
		if !ok || !v.Kind.IsNumeric() {
			return Value{}, false
		}
		if ex.Not {
			return Int32Value(int32(^v.AsInt64())), true
		}
		switch v.Kind {
		case KindSingle, KindDouble:
			v.Real = -v.Real
		default:
			v.Int = -v.Int
		}
		return v, true
	case *BinaryExpr:
		l, ok1 := a.foldConst(ex.L)
		r, ok2 := a.foldConst(ex.R)
		if !ok1 || !ok2 {
			return Value{}, false
		}
		v, err := applyBinary(ex.Op, ex.Kw, l, r)
		if err != nil {
			return Value{}, false
		}
		return v, true
	}
	return Value{}, false
}

// ---- Pass B: resolution ----

func (a *Analyzer) resolve() {
	// main body labels were collected in pass A
	a.labels = a.modLabels
	a.resolveStmts(a.module.Stmts)

	for _, info := range a.procs {
		if !info.Defined {
			a.diags.Errorf(DiagUndeclared, Span{}, "procedure %s declared but never defined", info.Name)
			continue
		}
		a.resolveProc(info)
	}
}

func (a *Analyzer) resolveProc(info *ProcInfo) {
	a.curProc = info
	a.scope = NewScope(a.moduleScope)
	a.localSlots = len(info.Params)
	info.Locals = append([]*Symbol(nil), info.Params...)
	for _, p := range info.Params {
		a.scope.Define(p)
	}
	if info.IsFunction {
		// the function name acts as the return-value slot
		ret := &Symbol{Name: info.Name, Kind: SymVar, Type: info.RetType, Slot: a.localSlots}
		a.localSlots++
		info.Locals = append(info.Locals, ret)
		a.scope.Define(ret)
	}

	// labels are scoped to the procedure
	a.labels = info.Labels
	a.walkStmts(info.Decl.Body, func(s Stmt) {
		if l, ok := s.(*LabelStmt); ok {
			if a.labels[l.Name] {
				a.diags.Errorf(DiagDuplicateLabel, l.GetSpan(), "duplicate label %s", l.Name)
			}
			a.labels[l.Name] = true
		}
	})

	a.resolveStmts(info.Decl.Body)
	info.LocalCount = a.localSlots

	a.curProc = nil
	a.scope = a.moduleScope
	a.labels = a.modLabels
}

func (a *Analyzer) resolveStmts(stmts []Stmt) {
	for _, s := range stmts {
		a.resolveStmt(s)
	}
}

func (a *Analyzer) resolveStmt(s Stmt) {
	switch st := s.(type) {
	case *DimStmt:
		a.resolveDim(st)
	case *AssignStmt:
		a.resolveAssign(st)
	case *PrintStmt:
		if st.Channel != nil {
			a.resolveNumeric(st.Channel)
		}
		for i := range st.Items {
			a.resolveExpr(st.Items[i].Expr)
		}
	case *WriteStmt:
		if st.Channel != nil {
			a.resolveNumeric(st.Channel)
		}
		for _, e := range st.Items {
			a.resolveExpr(e)
		}
	case *InputStmt:
		if st.Channel != nil {
			a.resolveNumeric(st.Channel)
		}
		for _, t := range st.Targets {
			a.resolveLValue(t)
			if st.LineMode && !t.Type().Kind.IsString() {
				a.diags.Errorf(DiagTypeMismatch, t.GetSpan(), "LINE INPUT target must be a string variable")
			}
		}
	case *IfStmt:
		a.resolveNumeric(st.Cond)
		a.resolveStmts(st.Then)
		for i := range st.ElseIfs {
			a.resolveNumeric(st.ElseIfs[i].Cond)
			a.resolveStmts(st.ElseIfs[i].Body)
		}
		a.resolveStmts(st.Else)
	case *SelectStmt:
		a.resolveSelect(st)
	case *ForStmt:
		a.resolveFor(st)
	case *WhileStmt:
		a.resolveNumeric(st.Cond)
		a.doDepth++
		a.resolveStmts(st.Body)
		a.doDepth--
	case *DoStmt:
		if st.PreCond != nil {
			a.resolveNumeric(st.PreCond)
		}
		a.doDepth++
		a.resolveStmts(st.Body)
		a.doDepth--
		if st.PostCond != nil {
			a.resolveNumeric(st.PostCond)
		}
	case *ExitStmt:
		a.resolveExit(st)
	case *GotoStmt:
		a.checkLabel(st.Target, st.GetSpan())
	case *GosubStmt:
		a.checkLabel(st.Target, st.GetSpan())
	case *ReturnStmt:
		if st.Target != "" {
			a.checkLabel(st.Target, st.GetSpan())
		}
	case *CallStmt:
		a.resolveCall(st)
	case *OpenStmt:
		a.resolveString(st.Path)
		a.resolveNumeric(st.Channel)
		if st.RecLen != nil {
			a.resolveNumeric(st.RecLen)
		}
	case *CloseStmt:
		for _, ch := range st.Channels {
			a.resolveNumeric(ch)
		}
	case *ReadStmt:
		for _, t := range st.Targets {
			a.resolveLValue(t)
		}
	case *RestoreStmt:
		if st.Target != "" {
			if _, ok := a.dataLabels[st.Target]; !ok {
				a.diags.Errorf(DiagUnknownLabel, st.GetSpan(), "unknown label %s", st.Target)
			}
		}
	case *RandomizeStmt:
		if st.Seed != nil {
			a.resolveNumeric(st.Seed)
		}
	case *SwapStmt:
		a.resolveLValue(st.A)
		a.resolveLValue(st.B)
		if st.A.Type().Kind != st.B.Type().Kind {
			a.diags.Errorf(DiagTypeMismatch, st.GetSpan(), "SWAP operands must have the same type")
		}
	case *LabelStmt, *DataStmt, *ConstStmt, *TypeDeclStmt, *DeclareStmt,
		*OptionBaseStmt, *MetaStmt, *EndStmt:
		// handled in pass A or by the emitter
	}
}

func (a *Analyzer) resolveDim(st *DimStmt) {
	targetScope := a.scope
	global := a.curProc == nil
	if st.Shared && a.curProc != nil {
		targetScope = a.moduleScope
		global = true
	}
	for i := range st.Decls {
		d := &st.Decls[i]
		for _, b := range d.Bounds {
			if b[0] != nil {
				a.resolveNumeric(b[0])
			}
			a.resolveNumeric(b[1])
		}
		t := a.nameType(d.Name, d.TypeName, d.Span)
		if d.TypeName == "STRING" && d.FixedLen != nil {
			if n, ok := a.foldConst(d.FixedLen); ok && n.Kind.IsNumeric() {
				t = ExprType{Kind: KindFixedString, FixedLen: int(n.AsInt64())}
			} else {
				a.diags.Errorf(DiagNonConstInConst, d.Span, "fixed string length must be constant")
			}
		}
		key := d.Name
		if len(d.Bounds) > 0 {
			key = arrayKey(d.Name)
		}
		existing := targetScope.LookupLocal(key)
		if st.ReDim && existing == nil {
			// REDIM reaches an array declared in an enclosing scope
			existing = a.scope.Lookup(key)
		}
		if existing != nil {
			if st.ReDim && existing.Kind == SymArray {
				// REDIM reallocates with fresh bounds; the arity and
				// element type are fixed by the first declaration
				if existing.Dims != len(d.Bounds) {
					a.diags.Errorf(DiagArityMismatch, d.Span, "REDIM %s changes the number of dimensions", d.Name)
				}
				continue
			}
			a.diags.Errorf(DiagRedeclared, d.Span, "%s already declared", d.Name)
			continue
		}
		if st.ReDim && len(d.Bounds) == 0 {
			a.diags.Errorf(DiagUnexpectedToken, d.Span, "REDIM requires array bounds")
			continue
		}
		sym := &Symbol{Name: key, Type: t, Global: global}
		if len(d.Bounds) > 0 {
			sym.Kind = SymArray
			sym.Dims = len(d.Bounds)
		}
		a.defineSlot(targetScope, sym)
	}
}

// defineSlot assigns the next slot index in the owning scope.
func (a *Analyzer) defineSlot(scope *Scope, sym *Symbol) {
	if scope == a.moduleScope {
		sym.Global = true
		sym.Slot = len(a.globals)
		a.globals = append(a.globals, sym)
	} else {
		sym.Slot = a.localSlots
		a.localSlots++
		if a.curProc != nil {
			a.curProc.Locals = append(a.curProc.Locals, sym)
		}
	}
	scope.Define(sym)
}

// implicitVar creates a scalar on first use, typed by sigil or Single.
func (a *Analyzer) implicitVar(name string, span Span) *Symbol {
	sym := &Symbol{Name: name, Kind: SymVar, Type: a.nameType(name, "", span)}
	a.defineSlot(a.scope, sym)
	return sym
}

func (a *Analyzer) checkLabel(name string, span Span) {
	if !a.labels[name] {
		a.diags.Errorf(DiagUnknownLabel, span, "unknown label %s", name)
	}
}

func (a *Analyzer) resolveExit(st *ExitStmt) {
	switch st.Kind {
	case ExitFor:
		if a.forDepth == 0 {
			a.diags.Errorf(DiagUnexpectedToken, st.GetSpan(), "EXIT FOR outside FOR")
		}
	case ExitDo:
		if a.doDepth == 0 {
			a.diags.Errorf(DiagUnexpectedToken, st.GetSpan(), "EXIT DO outside DO or WHILE")
		}
	case ExitSub:
		if a.curProc == nil || a.curProc.IsFunction {
			a.diags.Errorf(DiagUnexpectedToken, st.GetSpan(), "EXIT SUB outside SUB")
		}
	case ExitFunction:
		if a.curProc == nil || !a.curProc.IsFunction {
			a.diags.Errorf(DiagUnexpectedToken, st.GetSpan(), "EXIT FUNCTION outside FUNCTION")
		}
	}
}

func (a *Analyzer) resolveFor(st *ForStmt) {
	a.resolveExpr(st.Var)
	if !st.Var.Type().Kind.IsNumeric() {
		a.diags.Errorf(DiagTypeMismatch, st.Var.GetSpan(), "FOR counter must be numeric")
	}
	vk := st.Var.Type().Kind
	st.From = a.coerceTo(a.resolveExpr(st.From), vk)
	st.To = a.coerceTo(a.resolveExpr(st.To), vk)
	if st.Step != nil {
		step := a.resolveExpr(st.Step)
		if v, ok := a.foldConst(step); ok && v.Kind.IsNumeric() && v.AsDouble() == 0 {
			a.diags.Warnf(DiagInvalidForStep, step.GetSpan(), "STEP 0 executes zero iterations")
		}
		st.Step = a.coerceTo(step, vk)
	}
	a.forDepth++
	a.resolveStmts(st.Body)
	a.forDepth--
}

func (a *Analyzer) resolveSelect(st *SelectStmt) {
	subj := a.resolveExpr(st.Subject)
	subjStr := subj.Type().Kind.IsString()
	sawElse := false
	for i := range st.Arms {
		arm := &st.Arms[i]
		if arm.IsElse {
			if sawElse {
				a.diags.Errorf(DiagBadCaseRange, arm.Span, "duplicate CASE ELSE")
			}
			sawElse = true
		}
		for g := range arm.Guards {
			guard := &arm.Guards[g]
			a.resolveExpr(guard.Lo)
			if guard.Lo.Type().Kind.IsString() != subjStr {
				a.diags.Errorf(DiagBadCaseRange, guard.Lo.GetSpan(), "CASE guard type does not match SELECT subject")
			}
			if guard.Kind == CaseRange {
				a.resolveExpr(guard.Hi)
				if guard.Hi.Type().Kind.IsString() != subjStr {
					a.diags.Errorf(DiagBadCaseRange, guard.Hi.GetSpan(), "CASE guard type does not match SELECT subject")
				}
				lo, okL := a.foldConst(guard.Lo)
				hi, okH := a.foldConst(guard.Hi)
				if okL && okH && lo.Kind.IsNumeric() && hi.Kind.IsNumeric() && lo.AsDouble() > hi.AsDouble() {
					a.diags.Warnf(DiagBadCaseRange, guard.Lo.GetSpan(), "empty CASE range")
				}
			}
		}
		a.resolveStmts(arm.Body)
	}
}

func (a *Analyzer) resolveAssign(st *AssignStmt) {
	a.resolveLValue(st.Target)
	v := a.resolveExpr(st.Value)
	st.Value = a.coerceAssign(v, *st.Target.Type())
}

func (a *Analyzer) resolveCall(st *CallStmt) {
	// AV statement keywords route to intrinsics
	if id := LookupIntrinsic(st.Name); id >= 0 && intrinsicDefs[id].Statement {
		st.Intrinsic = id
		a.checkIntrinsicArgs(id, st.Args, st.GetSpan())
		return
	}
	st.Intrinsic = -1
	sym := a.scope.Lookup(st.Name)
	if sym == nil || sym.Kind != SymProc {
		a.diags.Errorf(DiagUndeclared, st.GetSpan(), "unknown SUB %s", st.Name)
		return
	}
	if sym.Proc.IsFunction {
		a.diags.Errorf(DiagTypeMismatch, st.GetSpan(), "%s is a FUNCTION, not a SUB", st.Name)
		return
	}
	st.Sym = sym
	a.checkCallArgs(sym.Proc, st.Args, st.GetSpan())
}

// checkCallArgs validates arity and coerces by-value arguments.
func (a *Analyzer) checkCallArgs(proc *ProcInfo, args []Expr, span Span) {
	if len(args) != len(proc.Params) {
		a.diags.Errorf(DiagArityMismatch, span, "%s expects %d arguments, got %d", proc.Name, len(proc.Params), len(args))
		return
	}
	for i, arg := range args {
		prm := proc.Params[i]
		if prm.Kind == SymArray {
			// an array is passed as NAME or NAME(): resolve the bare
			// symbol instead of the expression forms
			var sym *Symbol
			switch ref := arg.(type) {
			case *NameRef:
				sym = a.scope.Lookup(arrayKey(ref.Name))
				ref.Sym = sym
			case *CallOrIndex:
				if len(ref.Args) == 0 {
					sym = a.scope.Lookup(arrayKey(ref.Name))
					ref.Sym = sym
					ref.Intrinsic = -1
				}
			}
			if sym == nil || sym.Kind != SymArray {
				a.diags.Errorf(DiagTypeMismatch, arg.GetSpan(), "argument %d of %s must be an array", i+1, proc.Name)
				continue
			}
			*arg.Type() = sym.Type
			continue
		}
		a.resolveExpr(arg)
		at, pt := arg.Type().Kind, prm.Type.Kind
		if at.IsString() != pt.IsString() {
			a.diags.Errorf(DiagTypeMismatch, arg.GetSpan(), "argument %d of %s: %s is not assignable to %s", i+1, proc.Name, at, pt)
			continue
		}
		if prm.ByVal || !isLValue(arg) {
			args[i] = a.coerceTo(arg, pt)
		} else if at != pt {
			// by-reference requires the exact kind
			a.diags.Errorf(DiagTypeMismatch, arg.GetSpan(), "argument %d of %s must be %s for by-reference passing", i+1, proc.Name, pt)
		}
	}
}

func (a *Analyzer) checkIntrinsicArgs(id int, args []Expr, span Span) Kind {
	def := intrinsicDefs[id]
	if len(args) < def.MinArgs || len(args) > def.MaxArgs {
		a.diags.Errorf(DiagArityMismatch, span, "%s expects %d to %d arguments, got %d", def.Name, def.MinArgs, def.MaxArgs, len(args))
		return def.Result
	}
	for i, arg := range args {
		a.resolveExpr(arg)
		switch def.argClass(i) {
		case 'n':
			if !arg.Type().Kind.IsNumeric() {
				a.diags.Errorf(DiagTypeMismatch, arg.GetSpan(), "%s argument %d must be numeric", def.Name, i+1)
			}
		case 's':
			if !arg.Type().Kind.IsString() {
				a.diags.Errorf(DiagTypeMismatch, arg.GetSpan(), "%s argument %d must be a string", def.Name, i+1)
			}
		}
	}
	if def.Result == KindEmpty && len(args) > 0 {
		return args[0].Type().Kind
	}
	return def.Result
}

// isLValue reports whether the expression can be assigned through.
func isLValue(e Expr) bool {
	switch ex := e.(type) {
	case *NameRef:
		return ex.Sym != nil && ex.Sym.Kind == SymVar
	case *CallOrIndex:
		return ex.Sym != nil && ex.Sym.Kind == SymArray
	case *FieldExpr:
		return true
	}
	return false
}

// resolveLValue resolves an assignment target.
func (a *Analyzer) resolveLValue(e Expr) {
	a.resolveExpr(e)
	switch ex := e.(type) {
	case *NameRef:
		if ex.Sym == nil {
			a.diags.Errorf(DiagNotAnLValue, e.GetSpan(), "%s is not assignable", ex.Name)
			return
		}
		if ex.Sym.Kind == SymConst {
			a.diags.Errorf(DiagConstAssign, e.GetSpan(), "cannot assign to constant %s", ex.Name)
			return
		}
		if ex.Sym.Kind != SymVar {
			a.diags.Errorf(DiagNotAnLValue, e.GetSpan(), "%s is not assignable", ex.Name)
		}
	case *CallOrIndex:
		if ex.Sym == nil || ex.Sym.Kind != SymArray {
			a.diags.Errorf(DiagNotAnLValue, e.GetSpan(), "%s is not an array element", ex.Name)
		}
	case *FieldExpr:
		// checked during resolveExpr
	default:
		a.diags.Errorf(DiagNotAnLValue, e.GetSpan(), "target is not assignable")
	}
}

func (a *Analyzer) resolveNumeric(e Expr) Expr {
	a.resolveExpr(e)
	if !e.Type().Kind.IsNumeric() {
		a.diags.Errorf(DiagTypeMismatch, e.GetSpan(), "numeric expression required")
	}
	return e
}

func (a *Analyzer) resolveString(e Expr) Expr {
	a.resolveExpr(e)
	if !e.Type().Kind.IsString() {
		a.diags.Errorf(DiagTypeMismatch, e.GetSpan(), "string expression required")
	}
	return e
}

// coerceTo wraps e in a CoerceExpr when its kind differs from want.
func (a *Analyzer) coerceTo(e Expr, want Kind) Expr {
	if e.Type().Kind == want || want == KindEmpty {
		return e
	}
	if e.Type().Kind.IsString() != want.IsString() {
		a.diags.Errorf(DiagTypeMismatch, e.GetSpan(), "%s is not assignable to %s", e.Type().Kind, want)
		return e
	}
	c := &CoerceExpr{Operand: e}
	c.Span = e.GetSpan()
	c.T = ExprType{Kind: want}
	return c
}

// coerceAssign coerces a source expression to an assignment target
// type, including fixed strings and records.
func (a *Analyzer) coerceAssign(e Expr, target ExprType) Expr {
	switch target.Kind {
	case KindRecord:
		if e.Type().Kind != KindRecord || e.Type().Record != target.Record {
			a.diags.Errorf(DiagTypeMismatch, e.GetSpan(), "record assignment requires matching TYPE")
		}
		return e
	case KindFixedString, KindString:
		if !e.Type().Kind.IsString() {
			a.diags.Errorf(DiagTypeMismatch, e.GetSpan(), "string required")
		}
		return e
	default:
		return a.coerceTo(e, target.Kind)
	}
}

// resolveExpr resolves names and assigns a type to every node.
func (a *Analyzer) resolveExpr(e Expr) Expr {
	switch ex := e.(type) {
	case *NumberLit:
		ex.T = ExprType{Kind: ex.Value.Kind}
	case *StringLit:
		ex.T = ExprType{Kind: KindString}
	case *NameRef:
		a.resolveNameRef(ex)
	case *CallOrIndex:
		a.resolveCallOrIndex(ex)
	case *FieldExpr:
		a.resolveField(ex)
	case *UnaryExpr:
		a.resolveExpr(ex.Operand)
		k := ex.Operand.Type().Kind
		if !k.IsNumeric() {
			a.diags.Errorf(DiagTypeMismatch, ex.GetSpan(), "numeric operand required")
			k = KindSingle
		}
		if ex.Not {
			k = logicalKind(k, k)
			ex.Operand = a.coerceTo(ex.Operand, k)
		}
		ex.T = ExprType{Kind: k}
	case *BinaryExpr:
		a.resolveBinary(ex)
	case *CoerceExpr:
		// already typed
	}
	return e
}

func (a *Analyzer) resolveNameRef(ex *NameRef) {
	ex.Intrinsic = -1
	sym := a.scope.Lookup(ex.Name)
	if sym == nil {
		// TIMER and RND read naturally without parentheses
		if id := LookupIntrinsic(ex.Name); id >= 0 && !intrinsicDefs[id].Statement && intrinsicDefs[id].MinArgs == 0 {
			ex.Intrinsic = id
			ex.T = ExprType{Kind: intrinsicDefs[id].Result}
			return
		}
		sym = a.implicitVar(ex.Name, ex.GetSpan())
	}
	switch sym.Kind {
	case SymProc:
		if !sym.Proc.IsFunction || len(sym.Proc.Params) != 0 {
			a.diags.Errorf(DiagArityMismatch, ex.GetSpan(), "%s requires arguments", ex.Name)
		}
		ex.Sym = sym
		ex.T = sym.Proc.RetType
		return
	case SymArray:
		a.diags.Errorf(DiagArityMismatch, ex.GetSpan(), "array %s used without indices", ex.Name)
	}
	ex.Sym = sym
	ex.T = sym.Type
}

func (a *Analyzer) resolveCallOrIndex(ex *CallOrIndex) {
	sym := a.scope.Lookup(arrayKey(ex.Name))
	if sym == nil {
		sym = a.scope.Lookup(ex.Name)
	}
	// inside a FUNCTION its name is the return slot; with arguments it
	// is a recursive call of the procedure itself
	if sym != nil && sym.Kind == SymVar && a.curProc != nil && a.curProc.IsFunction && sym.Name == a.curProc.Name {
		sym = a.moduleScope.Lookup(ex.Name)
	}
	if sym != nil && sym.Kind == SymArray {
		ex.Sym = sym
		if sym.Dims >= 0 && len(ex.Args) != sym.Dims {
			a.diags.Errorf(DiagArityMismatch, ex.GetSpan(), "array %s has %d dimensions, got %d indices", ex.Name, sym.Dims, len(ex.Args))
		}
		for i, idx := range ex.Args {
			a.resolveExpr(idx)
			if !idx.Type().Kind.IsNumeric() {
				a.diags.Errorf(DiagTypeMismatch, idx.GetSpan(), "array index must be numeric")
			}
			ex.Args[i] = a.coerceTo(idx, KindInt32)
		}
		ex.Intrinsic = -1
		ex.T = sym.Type
		return
	}
	if sym != nil && sym.Kind == SymProc {
		ex.Sym = sym
		ex.Intrinsic = -1
		if !sym.Proc.IsFunction {
			a.diags.Errorf(DiagTypeMismatch, ex.GetSpan(), "SUB %s used as an expression", ex.Name)
			ex.T = ExprType{Kind: KindSingle}
			return
		}
		a.checkCallArgs(sym.Proc, ex.Args, ex.GetSpan())
		ex.T = sym.Proc.RetType
		return
	}
	if id := LookupIntrinsic(ex.Name); id >= 0 && !intrinsicDefs[id].Statement {
		ex.Intrinsic = id
		ex.T = ExprType{Kind: a.checkIntrinsicArgs(id, ex.Args, ex.GetSpan())}
		return
	}
	a.diags.Errorf(DiagUndeclared, ex.GetSpan(), "unknown array or function %s", ex.Name)
	ex.Intrinsic = -1
	ex.T = ExprType{Kind: KindSingle}
}

func (a *Analyzer) resolveField(ex *FieldExpr) {
	a.resolveExpr(ex.Base)
	bt := ex.Base.Type()
	if bt.Kind != KindRecord || bt.Record == nil {
		a.diags.Errorf(DiagTypeMismatch, ex.GetSpan(), "field access on non-record value")
		ex.T = ExprType{Kind: KindSingle}
		return
	}
	idx := bt.Record.FieldIndex(ex.Field)
	if idx < 0 {
		a.diags.Errorf(DiagRecordFieldUnknown, ex.GetSpan(), "type %s has no field %s", bt.Record.Name, ex.Field)
		ex.T = ExprType{Kind: KindSingle}
		return
	}
	ex.FieldIdx = idx
	f := bt.Record.Fields[idx]
	ex.T = ExprType{Kind: f.Kind, FixedLen: f.FixedLen, Record: f.Record}
}

// logicalKind picks the integer kind AND/OR/NOT compute in.
func logicalKind(l, r Kind) Kind {
	if l == KindInt64 || r == KindInt64 || l == KindUInt32 || r == KindUInt32 {
		return KindInt64
	}
	if l == KindInt16 && r == KindInt16 {
		return KindInt16
	}
	return KindInt32
}

func (a *Analyzer) resolveBinary(ex *BinaryExpr) {
	a.resolveExpr(ex.L)
	a.resolveExpr(ex.R)
	lk, rk := ex.L.Type().Kind, ex.R.Type().Kind

	// string operands: concatenation and comparison only
	if lk.IsString() || rk.IsString() {
		if !lk.IsString() || !rk.IsString() {
			a.diags.Errorf(DiagTypeMismatch, ex.GetSpan(), "cannot mix string and numeric operands")
			ex.T = ExprType{Kind: KindSingle}
			return
		}
		switch {
		case ex.Op == TokPlus:
			ex.T = ExprType{Kind: KindString}
		case ex.Op.isRelOp():
			ex.T = ExprType{Kind: KindInt16}
		default:
			a.diags.Errorf(DiagTypeMismatch, ex.GetSpan(), "invalid string operator")
			ex.T = ExprType{Kind: KindString}
		}
		return
	}
	if !lk.IsNumeric() || !rk.IsNumeric() {
		a.diags.Errorf(DiagTypeMismatch, ex.GetSpan(), "numeric operands required")
		ex.T = ExprType{Kind: KindSingle}
		return
	}

	switch {
	case ex.Kw == "AND" || ex.Kw == "OR":
		k := logicalKind(lk, rk)
		ex.L = a.coerceTo(ex.L, k)
		ex.R = a.coerceTo(ex.R, k)
		ex.T = ExprType{Kind: k}
	case ex.Kw == "MOD" || ex.Op == TokBackslash:
		k := logicalKind(lk, rk)
		ex.L = a.coerceTo(ex.L, k)
		ex.R = a.coerceTo(ex.R, k)
		ex.T = ExprType{Kind: k}
	case ex.Op == TokCaret:
		ex.L = a.coerceTo(ex.L, KindDouble)
		ex.R = a.coerceTo(ex.R, KindDouble)
		ex.T = ExprType{Kind: KindDouble}
	case ex.Op == TokSlash:
		k := CommonKind(CommonKind(lk, rk), KindSingle)
		ex.L = a.coerceTo(ex.L, k)
		ex.R = a.coerceTo(ex.R, k)
		ex.T = ExprType{Kind: k}
	case ex.Op.isRelOp():
		k := CommonKind(lk, rk)
		ex.L = a.coerceTo(ex.L, k)
		ex.R = a.coerceTo(ex.R, k)
		ex.T = ExprType{Kind: KindInt16}
	default:
		k := CommonKind(lk, rk)
		ex.L = a.coerceTo(ex.L, k)
		ex.R = a.coerceTo(ex.R, k)
		ex.T = ExprType{Kind: k}
	}
}

// ProcByName finds a collected procedure, for the REPL and tests.
func (an *Analysis) ProcByName(name string) *ProcInfo {
	name = strings.ToUpper(name)
	for _, p := range an.Procs {
		if p.Name == name {
			return p
		}
	}
	return nil
}
