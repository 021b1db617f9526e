package basic

import (
	"strconv"
	"strings"
)

// Parser is a recursive-descent statement parser with a Pratt
// expression sub-parser. It produces a Module whose nodes all carry
// spans; expression types stay unresolved until the semantic pass.
type Parser struct {
	toks  []Token
	pos   int
	diags *DiagSink
	procs []*ProcDecl

	// set while parsing a SUB/FUNCTION body so EXIT forms can be
	// validated early
	inProc *ProcDecl
}

// Parse tokenizes and parses a whole source buffer.
func Parse(src string, diags *DiagSink) *Module {
	p := &Parser{toks: Tokenize(src, diags), diags: diags}
	stmts := p.parseBlock(func() bool { return false })
	return &Module{Stmts: stmts, Procs: p.procs}
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) next() Token { t := p.toks[p.pos]; p.bump(); return t }

func (p *Parser) bump() {
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
}

func (p *Parser) at(kind TokenKind) bool { return p.cur().Kind == kind }

func (p *Parser) atKw(kw string) bool { return p.cur().IsKw(kw) }

func (p *Parser) eat(kind TokenKind) bool {
	if p.at(kind) {
		p.bump()
		return true
	}
	return false
}

func (p *Parser) eatKw(kw string) bool {
	if p.atKw(kw) {
		p.bump()
		return true
	}
	return false
}

func (p *Parser) expect(kind TokenKind, what string) Token {
	if p.at(kind) {
		return p.next()
	}
	p.errHere("expected %s", what)
	return p.cur()
}

func (p *Parser) expectKw(kw string) {
	if !p.eatKw(kw) {
		p.errHere("expected %s", kw)
	}
}

func (p *Parser) errHere(format string, args ...interface{}) {
	p.diags.Errorf(DiagUnexpectedToken, p.cur().Span, format, args...)
	// swallow the offending token so the parser makes progress
	if !p.at(TokEOF) && !p.at(TokEOL) {
		p.bump()
	}
}

// skipSeparators consumes statement separators (colons and line ends).
func (p *Parser) skipSeparators() {
	for p.at(TokColon) || p.at(TokEOL) {
		p.bump()
	}
}

// syncToStmtEnd skips to the next statement boundary after an error.
func (p *Parser) syncToStmtEnd() {
	for !p.at(TokEOF) && !p.at(TokEOL) && !p.at(TokColon) {
		p.bump()
	}
}

// atLineStart reports whether the previous significant token ended the
// line, i.e. the current token opens a logical line.
func (p *Parser) atLineStart() bool {
	for i := p.pos - 1; i >= 0; i-- {
		switch p.toks[i].Kind {
		case TokEOL:
			return true
		default:
			return false
		}
	}
	return true
}

// endsBlock recognizes block terminators without consuming them.
func (p *Parser) endsBlock(kws ...string) bool {
	t := p.cur()
	if t.Kind != TokKeyword {
		return false
	}
	u := t.Upper()
	for _, kw := range kws {
		if fields := strings.Fields(kw); len(fields) == 2 {
			if u == fields[0] && p.toks[p.pos+1].IsKw(fields[1]) {
				return true
			}
		} else if u == kw {
			return true
		}
	}
	return false
}

// parseBlock parses statements until stop reports a terminator (left
// unconsumed) or the input ends.
func (p *Parser) parseBlock(stop func() bool) []Stmt {
	var stmts []Stmt
	for {
		p.skipSeparators()
		if p.at(TokEOF) || stop() {
			return stmts
		}
		if s := p.parseStatement(); s != nil {
			stmts = append(stmts, s)
			// a label is followed by statements on the same line
			if _, isLabel := s.(*LabelStmt); isLabel {
				continue
			}
			if !p.at(TokEOL) && !p.at(TokColon) && !p.at(TokEOF) && !stop() {
				p.diags.Errorf(DiagExpectedEndOfLine, p.cur().Span, "expected end of statement before %q", p.cur().Text)
				p.syncToStmtEnd()
			}
		}
	}
}

// parseStatement parses one statement, including label definitions.
func (p *Parser) parseStatement() Stmt {
	t := p.cur()

	// a bare integer opening a logical line is a line-number label
	if t.Kind == TokNumber && t.NumKind.IsInteger() && p.atLineStart() {
		p.bump()
		return &LabelStmt{stmtBase: stmtBase{baseNode{t.Span}}, Name: strconv.FormatInt(t.IntVal, 10)}
	}
	// ident followed by ':' in statement position is a label
	if t.Kind == TokIdent && p.toks[p.pos+1].Kind == TokColon {
		p.bump()
		p.bump()
		return &LabelStmt{stmtBase: stmtBase{baseNode{t.Span}}, Name: strings.ToUpper(t.Text)}
	}

	switch {
	case t.Kind == TokMeta:
		p.bump()
		name := strings.ToUpper(strings.TrimPrefix(strings.SplitN(t.Text, ":", 2)[0], "$"))
		return &MetaStmt{stmtBase: stmtBase{baseNode{t.Span}}, Name: name, Arg: t.StrVal}
	case t.Kind == TokIdent:
		return p.parseAssignOrCall(false)
	case t.Kind != TokKeyword:
		p.errHere("expected statement")
		p.syncToStmtEnd()
		return nil
	}

	switch t.Upper() {
	case "DIM", "REDIM":
		return p.parseDim()
	case "LET":
		p.bump()
		return p.parseAssignOrCall(true)
	case "PRINT":
		return p.parsePrint()
	case "WRITE":
		return p.parseWrite()
	case "INPUT":
		return p.parseInput(false)
	case "LINE":
		p.bump()
		p.expectKw("INPUT")
		p.pos-- // parseInput re-reads the INPUT keyword position
		return p.parseInput(true)
	case "IF":
		return p.parseIf()
	case "SELECT":
		return p.parseSelect()
	case "FOR":
		return p.parseFor()
	case "WHILE":
		return p.parseWhile()
	case "DO":
		return p.parseDo()
	case "EXIT":
		return p.parseExit()
	case "GOTO":
		p.bump()
		return &GotoStmt{stmtBase: stmtBase{baseNode{t.Span}}, Target: p.parseJumpTarget()}
	case "GOSUB":
		p.bump()
		return &GosubStmt{stmtBase: stmtBase{baseNode{t.Span}}, Target: p.parseJumpTarget()}
	case "RETURN":
		p.bump()
		target := ""
		if p.at(TokIdent) || p.at(TokNumber) {
			target = p.parseJumpTarget()
		}
		return &ReturnStmt{stmtBase: stmtBase{baseNode{t.Span}}, Target: target}
	case "CONST":
		return p.parseConst()
	case "TYPE":
		return p.parseTypeDecl()
	case "SUB", "FUNCTION":
		p.parseProc(t.Upper() == "FUNCTION")
		return nil
	case "DECLARE":
		return p.parseDeclare()
	case "CALL":
		return p.parseCall()
	case "OPEN":
		return p.parseOpen()
	case "CLOSE":
		return p.parseClose()
	case "DATA":
		return p.parseData()
	case "READ":
		return p.parseRead()
	case "RESTORE":
		p.bump()
		target := ""
		if p.at(TokIdent) || p.at(TokNumber) {
			target = p.parseJumpTarget()
		}
		return &RestoreStmt{stmtBase: stmtBase{baseNode{t.Span}}, Target: target}
	case "RANDOMIZE":
		p.bump()
		var seed Expr
		if !p.at(TokEOL) && !p.at(TokColon) && !p.at(TokEOF) {
			seed = p.parseExpr()
		}
		return &RandomizeStmt{stmtBase: stmtBase{baseNode{t.Span}}, Seed: seed}
	case "SWAP":
		p.bump()
		a := p.parseLValue()
		p.expect(TokComma, "','")
		b := p.parseLValue()
		return &SwapStmt{stmtBase: stmtBase{baseNode{t.Span}}, A: a, B: b}
	case "OPTION":
		p.bump()
		p.expectKw("BASE")
		base := 0
		if n := p.expect(TokNumber, "0 or 1"); n.Kind == TokNumber {
			base = int(n.IntVal)
		}
		if base != 0 && base != 1 {
			p.diags.Errorf(DiagUnexpectedToken, t.Span, "OPTION BASE must be 0 or 1")
			base = 0
		}
		return &OptionBaseStmt{stmtBase: stmtBase{baseNode{t.Span}}, Base: base}
	case "END":
		// END IF / END SELECT / END SUB ... are consumed by the block
		// parsers; a bare END terminates the program.
		p.bump()
		return &EndStmt{stmtBase: stmtBase{baseNode{t.Span}}}
	case "CLS", "BEEP", "SCREEN", "SOUND", "PLAY":
		return p.parseAVStatement()
	}

	p.errHere("unexpected %q", t.Text)
	p.syncToStmtEnd()
	return nil
}

// parseJumpTarget reads a label name or line number.
func (p *Parser) parseJumpTarget() string {
	t := p.cur()
	switch t.Kind {
	case TokIdent:
		p.bump()
		return strings.ToUpper(t.Text)
	case TokNumber:
		p.bump()
		return strconv.FormatInt(t.IntVal, 10)
	}
	p.errHere("expected label or line number")
	return ""
}

// parseAssignOrCall handles `name ... = expr` in statement position.
func (p *Parser) parseAssignOrCall(let bool) Stmt {
	span := p.cur().Span
	target := p.parseLValue()
	if p.eat(TokEq) {
		value := p.parseExpr()
		return &AssignStmt{stmtBase: stmtBase{baseNode{span}}, Let: let, Target: target, Value: value}
	}
	p.errHere("expected '='")
	p.syncToStmtEnd()
	return nil
}

// parseLValue parses a name with optional indices and field accesses.
func (p *Parser) parseLValue() Expr {
	t := p.expect(TokIdent, "variable name")
	var e Expr
	base := exprBase{baseNode: baseNode{t.Span}}
	if p.at(TokLParen) {
		p.bump()
		var args []Expr
		for !p.at(TokRParen) {
			args = append(args, p.parseExpr())
			if !p.eat(TokComma) {
				break
			}
		}
		p.expect(TokRParen, "')'")
		e = &CallOrIndex{exprBase: base, Name: strings.ToUpper(t.Text), Args: args, Intrinsic: -1}
	} else {
		e = &NameRef{exprBase: base, Name: strings.ToUpper(t.Text)}
	}
	for p.at(TokDot) {
		p.bump()
		f := p.expect(TokIdent, "field name")
		e = &FieldExpr{exprBase: exprBase{baseNode: baseNode{f.Span}}, Base: e, Field: strings.ToUpper(f.Text)}
	}
	return e
}

// ---- statement parsers ----

func (p *Parser) parseDim() Stmt {
	kw := p.next() // DIM or REDIM
	shared := p.eatKw("SHARED")
	var decls []VarDecl
	for {
		d := p.parseVarDecl()
		decls = append(decls, d)
		if !p.eat(TokComma) {
			break
		}
	}
	return &DimStmt{stmtBase: stmtBase{baseNode{kw.Span}}, Shared: shared, ReDim: kw.Upper() == "REDIM", Decls: decls}
}

func (p *Parser) parseVarDecl() VarDecl {
	t := p.expect(TokIdent, "variable name")
	d := VarDecl{Span: t.Span, Name: strings.ToUpper(t.Text)}
	if p.eat(TokLParen) {
		for {
			lo := p.parseExpr()
			var hi Expr
			if p.eatKw("TO") {
				hi = p.parseExpr()
			} else {
				hi = lo
				lo = nil
			}
			d.Bounds = append(d.Bounds, [2]Expr{lo, hi})
			if !p.eat(TokComma) {
				break
			}
		}
		p.expect(TokRParen, "')'")
	}
	if p.eatKw("AS") {
		d.TypeName, d.FixedLen = p.parseTypeName()
	}
	return d
}

// parseTypeName reads a type after AS, including STRING * n and the
// two-word _UNSIGNED LONG form.
func (p *Parser) parseTypeName() (string, Expr) {
	t := p.cur()
	switch {
	case t.IsKw("STRING"):
		p.bump()
		if p.eat(TokStar) {
			return "STRING", p.parseExpr()
		}
		return "STRING", nil
	case t.IsKw("_UNSIGNED"):
		p.bump()
		p.expectKw("LONG")
		return "_UNSIGNED LONG", nil
	case t.Kind == TokKeyword, t.Kind == TokIdent:
		p.bump()
		return t.Upper(), nil
	}
	p.errHere("expected type name")
	return "", nil
}

func (p *Parser) parsePrint() Stmt {
	span := p.next().Span // PRINT
	st := &PrintStmt{stmtBase: stmtBase{baseNode{span}}}
	if p.eat(TokHash) {
		st.Channel = p.parseExpr()
		p.expect(TokComma, "','")
	}
	for !p.at(TokEOL) && !p.at(TokColon) && !p.at(TokEOF) && !p.atKw("ELSE") {
		item := PrintItem{Expr: p.parseExpr()}
		switch {
		case p.eat(TokSemicolon):
			item.Sep = ';'
		case p.eat(TokComma):
			item.Sep = ','
		}
		st.Items = append(st.Items, item)
		if item.Sep == 0 {
			break
		}
	}
	if n := len(st.Items); n > 0 {
		last := st.Items[n-1]
		// a separator with nothing after it suppresses the newline
		if last.Sep != 0 && (p.at(TokEOL) || p.at(TokColon) || p.at(TokEOF) || p.atKw("ELSE")) {
			st.TrailingSep = last.Sep
		}
	}
	return st
}

func (p *Parser) parseWrite() Stmt {
	span := p.next().Span // WRITE
	st := &WriteStmt{stmtBase: stmtBase{baseNode{span}}}
	if p.eat(TokHash) {
		st.Channel = p.parseExpr()
		p.expect(TokComma, "','")
	}
	for !p.at(TokEOL) && !p.at(TokColon) && !p.at(TokEOF) {
		st.Items = append(st.Items, p.parseExpr())
		if !p.eat(TokComma) {
			break
		}
	}
	return st
}

func (p *Parser) parseInput(lineMode bool) Stmt {
	span := p.next().Span // INPUT
	st := &InputStmt{stmtBase: stmtBase{baseNode{span}}, LineMode: lineMode}
	if p.eat(TokHash) {
		st.Channel = p.parseExpr()
		p.expect(TokComma, "','")
	} else {
		p.eat(TokSemicolon) // INPUT ; suppresses the echo newline; accepted, ignored
		if p.at(TokString) {
			st.Prompt = p.next().StrVal
			if !p.eat(TokSemicolon) {
				p.expect(TokComma, "';' or ','")
			}
		}
	}
	for {
		st.Targets = append(st.Targets, p.parseLValue())
		if lineMode || !p.eat(TokComma) {
			break
		}
	}
	return st
}

func (p *Parser) parseIf() Stmt {
	span := p.next().Span // IF
	st := &IfStmt{stmtBase: stmtBase{baseNode{span}}}
	st.Cond = p.parseExpr()
	if p.eatKw("GOTO") {
		st.Then = []Stmt{&GotoStmt{stmtBase: stmtBase{baseNode{span}}, Target: p.parseJumpTarget()}}
		if p.eatKw("ELSE") {
			st.Else = p.parseInlineStmts()
		}
		return st
	}
	p.expectKw("THEN")

	// single-line IF when a statement follows THEN on the same line
	if !p.at(TokEOL) && !p.at(TokEOF) {
		if p.at(TokNumber) {
			// IF cond THEN linenumber
			st.Then = []Stmt{&GotoStmt{stmtBase: stmtBase{baseNode{span}}, Target: p.parseJumpTarget()}}
		} else {
			st.Then = p.parseInlineStmts()
		}
		if p.eatKw("ELSE") {
			if p.at(TokNumber) {
				st.Else = []Stmt{&GotoStmt{stmtBase: stmtBase{baseNode{span}}, Target: p.parseJumpTarget()}}
			} else {
				st.Else = p.parseInlineStmts()
			}
		}
		return st
	}

	// block form
	st.Then = p.parseBlock(func() bool {
		return p.endsBlock("ELSEIF", "ELSE", "END IF")
	})
	for p.atKw("ELSEIF") {
		arm := ElseIfArm{Span: p.next().Span}
		arm.Cond = p.parseExpr()
		p.expectKw("THEN")
		arm.Body = p.parseBlock(func() bool {
			return p.endsBlock("ELSEIF", "ELSE", "END IF")
		})
		st.ElseIfs = append(st.ElseIfs, arm)
	}
	if p.eatKw("ELSE") {
		st.Else = p.parseBlock(func() bool {
			return p.endsBlock("END IF")
		})
	}
	p.expectKw("END")
	p.expectKw("IF")
	return st
}

// parseInlineStmts parses colon-separated statements up to ELSE or end
// of line, for single-line IF bodies.
func (p *Parser) parseInlineStmts() []Stmt {
	var stmts []Stmt
	for {
		if s := p.parseStatement(); s != nil {
			stmts = append(stmts, s)
		}
		if !p.at(TokColon) {
			return stmts
		}
		p.bump()
		if p.at(TokEOL) || p.at(TokEOF) || p.atKw("ELSE") {
			return stmts
		}
	}
}

func (p *Parser) parseSelect() Stmt {
	span := p.next().Span // SELECT
	p.expectKw("CASE")
	st := &SelectStmt{stmtBase: stmtBase{baseNode{span}}}
	st.Subject = p.parseExpr()
	p.skipSeparators()
	for p.atKw("CASE") {
		arm := CaseArm{Span: p.next().Span}
		if p.eatKw("ELSE") {
			arm.IsElse = true
		} else {
			for {
				arm.Guards = append(arm.Guards, p.parseCaseGuard())
				if !p.eat(TokComma) {
					break
				}
			}
		}
		p.eat(TokColon)
		arm.Body = p.parseBlock(func() bool {
			return p.endsBlock("CASE", "END SELECT")
		})
		st.Arms = append(st.Arms, arm)
	}
	p.expectKw("END")
	p.expectKw("SELECT")
	return st
}

func (p *Parser) parseCaseGuard() CaseGuard {
	if p.eatKw("IS") {
		op := p.cur().Kind
		if !op.isRelOp() {
			p.errHere("expected comparison operator after IS")
			op = TokEq
		} else {
			p.bump()
		}
		return CaseGuard{Kind: CaseIs, Op: op, Lo: p.parseExpr()}
	}
	lo := p.parseExpr()
	if p.eatKw("TO") {
		return CaseGuard{Kind: CaseRange, Lo: lo, Hi: p.parseExpr()}
	}
	return CaseGuard{Kind: CaseExpr, Lo: lo}
}

func (p *Parser) parseFor() Stmt {
	span := p.next().Span // FOR
	st := &ForStmt{stmtBase: stmtBase{baseNode{span}}}
	v := p.expect(TokIdent, "loop variable")
	st.Var = &NameRef{exprBase: exprBase{baseNode: baseNode{v.Span}}, Name: strings.ToUpper(v.Text)}
	p.expect(TokEq, "'='")
	st.From = p.parseExpr()
	p.expectKw("TO")
	st.To = p.parseExpr()
	if p.eatKw("STEP") {
		st.Step = p.parseExpr()
	}
	st.Body = p.parseBlock(func() bool { return p.endsBlock("NEXT") })
	p.expectKw("NEXT")
	if p.at(TokIdent) {
		n := p.next()
		if strings.ToUpper(n.Text) != st.Var.Name {
			p.diags.Errorf(DiagUnexpectedToken, n.Span, "NEXT %s does not match FOR %s", n.Text, st.Var.Name)
		}
	}
	return st
}

func (p *Parser) parseWhile() Stmt {
	span := p.next().Span // WHILE
	st := &WhileStmt{stmtBase: stmtBase{baseNode{span}}}
	st.Cond = p.parseExpr()
	st.Body = p.parseBlock(func() bool { return p.endsBlock("WEND") })
	p.expectKw("WEND")
	return st
}

func (p *Parser) parseDo() Stmt {
	span := p.next().Span // DO
	st := &DoStmt{stmtBase: stmtBase{baseNode{span}}}
	if p.eatKw("WHILE") {
		st.PreCond = p.parseExpr()
	} else if p.eatKw("UNTIL") {
		st.PreCond = p.parseExpr()
		st.PreUntil = true
	}
	st.Body = p.parseBlock(func() bool { return p.endsBlock("LOOP") })
	p.expectKw("LOOP")
	if p.eatKw("WHILE") {
		st.PostCond = p.parseExpr()
	} else if p.eatKw("UNTIL") {
		st.PostCond = p.parseExpr()
		st.PostUntil = true
	}
	if st.PreCond != nil && st.PostCond != nil {
		p.diags.Errorf(DiagUnexpectedToken, span, "DO and LOOP cannot both carry a condition")
	}
	return st
}

func (p *Parser) parseExit() Stmt {
	span := p.next().Span // EXIT
	st := &ExitStmt{stmtBase: stmtBase{baseNode{span}}}
	switch {
	case p.eatKw("FOR"):
		st.Kind = ExitFor
	case p.eatKw("DO"):
		st.Kind = ExitDo
	case p.eatKw("SUB"):
		st.Kind = ExitSub
	case p.eatKw("FUNCTION"):
		st.Kind = ExitFunction
	default:
		p.errHere("expected FOR, DO, SUB or FUNCTION after EXIT")
	}
	return st
}

func (p *Parser) parseConst() Stmt {
	span := p.next().Span // CONST
	st := &ConstStmt{stmtBase: stmtBase{baseNode{span}}}
	for {
		t := p.expect(TokIdent, "constant name")
		p.expect(TokEq, "'='")
		st.Names = append(st.Names, strings.ToUpper(t.Text))
		st.Values = append(st.Values, p.parseExpr())
		if !p.eat(TokComma) {
			break
		}
	}
	return st
}

func (p *Parser) parseTypeDecl() Stmt {
	span := p.next().Span // TYPE
	t := p.expect(TokIdent, "type name")
	st := &TypeDeclStmt{stmtBase: stmtBase{baseNode{span}}, Name: strings.ToUpper(t.Text)}
	p.skipSeparators()
	for !p.endsBlock("END TYPE") && !p.at(TokEOF) {
		f := p.expect(TokIdent, "field name")
		field := TypeField{Span: f.Span, Name: strings.ToUpper(f.Text)}
		p.expectKw("AS")
		field.TypeName, field.FixedLen = p.parseTypeName()
		st.Fields = append(st.Fields, field)
		p.skipSeparators()
	}
	p.expectKw("END")
	p.expectKw("TYPE")
	return st
}

func (p *Parser) parseParams() []Param {
	var params []Param
	if !p.eat(TokLParen) {
		return params
	}
	for !p.at(TokRParen) {
		var prm Param
		prm.ByVal = p.eatKw("BYVAL")
		t := p.expect(TokIdent, "parameter name")
		prm.Span = t.Span
		prm.Name = strings.ToUpper(t.Text)
		if p.eat(TokLParen) {
			p.expect(TokRParen, "')'")
			prm.IsArray = true
		}
		if p.eatKw("AS") {
			prm.TypeName, _ = p.parseTypeName()
		}
		params = append(params, prm)
		if !p.eat(TokComma) {
			break
		}
	}
	p.expect(TokRParen, "')'")
	return params
}

func (p *Parser) parseProc(isFunction bool) {
	span := p.next().Span // SUB or FUNCTION
	t := p.expect(TokIdent, "procedure name")
	proc := &ProcDecl{
		stmtBase:   stmtBase{baseNode{span}},
		IsFunction: isFunction,
		Name:       strings.ToUpper(t.Text),
		Params:     p.parseParams(),
	}
	if p.inProc != nil {
		p.diags.Errorf(DiagUnexpectedToken, span, "nested procedure definitions are not allowed")
	}
	prev := p.inProc
	p.inProc = proc
	endKw := "END SUB"
	if isFunction {
		endKw = "END FUNCTION"
	}
	proc.Body = p.parseBlock(func() bool { return p.endsBlock(endKw) })
	p.expectKw("END")
	if isFunction {
		p.expectKw("FUNCTION")
	} else {
		p.expectKw("SUB")
	}
	p.inProc = prev
	p.procs = append(p.procs, proc)
}

func (p *Parser) parseDeclare() Stmt {
	span := p.next().Span // DECLARE
	isFunction := false
	switch {
	case p.eatKw("SUB"):
	case p.eatKw("FUNCTION"):
		isFunction = true
	default:
		p.errHere("expected SUB or FUNCTION after DECLARE")
	}
	t := p.expect(TokIdent, "procedure name")
	return &DeclareStmt{
		stmtBase:   stmtBase{baseNode{span}},
		IsFunction: isFunction,
		Name:       strings.ToUpper(t.Text),
		Params:     p.parseParams(),
	}
}

func (p *Parser) parseCall() Stmt {
	span := p.next().Span // CALL
	t := p.expect(TokIdent, "procedure name")
	st := &CallStmt{stmtBase: stmtBase{baseNode{span}}, Name: strings.ToUpper(t.Text)}
	if p.eat(TokLParen) {
		for !p.at(TokRParen) {
			st.Args = append(st.Args, p.parseExpr())
			if !p.eat(TokComma) {
				break
			}
		}
		p.expect(TokRParen, "')'")
	}
	return st
}

func (p *Parser) parseOpen() Stmt {
	span := p.next().Span // OPEN
	st := &OpenStmt{stmtBase: stmtBase{baseNode{span}}}
	st.Path = p.parseExpr()
	p.expectKw("FOR")
	switch {
	case p.eatKw("INPUT"):
		st.Mode = ModeInput
	case p.eatKw("OUTPUT"):
		st.Mode = ModeOutput
	case p.eatKw("APPEND"):
		st.Mode = ModeAppend
	case p.eatKw("BINARY"):
		st.Mode = ModeBinary
	case p.eatKw("RANDOM"):
		st.Mode = ModeRandom
	default:
		p.errHere("expected file mode")
	}
	p.expectKw("AS")
	p.expect(TokHash, "'#'")
	st.Channel = p.parseExpr()
	if p.atKw("LEN") {
		p.bump()
		p.expect(TokEq, "'='")
		st.RecLen = p.parseExpr()
	}
	return st
}

func (p *Parser) parseClose() Stmt {
	span := p.next().Span // CLOSE
	st := &CloseStmt{stmtBase: stmtBase{baseNode{span}}}
	for p.eat(TokHash) || p.at(TokNumber) || p.at(TokIdent) {
		st.Channels = append(st.Channels, p.parseExpr())
		if !p.eat(TokComma) {
			break
		}
	}
	return st
}

// parseData reads DATA items: numbers, quoted strings, or bare words
// taken verbatim as strings.
func (p *Parser) parseData() Stmt {
	span := p.next().Span // DATA
	st := &DataStmt{stmtBase: stmtBase{baseNode{span}}}
	for !p.at(TokEOL) && !p.at(TokColon) && !p.at(TokEOF) {
		t := p.cur()
		switch {
		case t.Kind == TokString:
			p.bump()
			st.Items = append(st.Items, DataItem{Span: t.Span, Value: StringValue(t.StrVal)})
		case t.Kind == TokNumber:
			p.bump()
			st.Items = append(st.Items, DataItem{Span: t.Span, Value: tokenValue(t)})
		case t.Kind == TokMinus && p.toks[p.pos+1].Kind == TokNumber:
			p.bump()
			n := p.next()
			v := tokenValue(n)
			if v.Kind.IsInteger() {
				v.Int = -v.Int
			} else {
				v.Real = -v.Real
			}
			st.Items = append(st.Items, DataItem{Span: t.Span, Value: v})
		case t.Kind == TokIdent || t.Kind == TokKeyword:
			// unquoted word data
			p.bump()
			st.Items = append(st.Items, DataItem{Span: t.Span, Value: StringValue(t.Text)})
		default:
			p.errHere("bad DATA item")
		}
		if !p.eat(TokComma) {
			break
		}
	}
	return st
}

func (p *Parser) parseRead() Stmt {
	span := p.next().Span // READ
	st := &ReadStmt{stmtBase: stmtBase{baseNode{span}}}
	for {
		st.Targets = append(st.Targets, p.parseLValue())
		if !p.eat(TokComma) {
			break
		}
	}
	return st
}

// parseAVStatement lowers the audio/video statement keywords into
// intrinsic-style calls resolved against the optional host surface.
func (p *Parser) parseAVStatement() Stmt {
	t := p.next()
	st := &CallStmt{stmtBase: stmtBase{baseNode{t.Span}}, Name: t.Upper()}
	for !p.at(TokEOL) && !p.at(TokColon) && !p.at(TokEOF) {
		st.Args = append(st.Args, p.parseExpr())
		if !p.eat(TokComma) {
			break
		}
	}
	return st
}

// tokenValue builds the literal Value of a number token.
func tokenValue(t Token) Value {
	switch t.NumKind {
	case KindInt16:
		return Int16Value(int16(t.IntVal))
	case KindInt32:
		return Int32Value(int32(t.IntVal))
	case KindInt64:
		return Int64Value(t.IntVal)
	case KindUInt32:
		return UInt32Value(uint32(t.IntVal))
	case KindSingle:
		return SingleValue(float32(t.FloatVal))
	case KindDouble:
		return DoubleValue(t.FloatVal)
	}
	return Value{}
}

// ---- expressions (Pratt) ----

// binding powers, high to low: unary/NOT, ^, * /, \, MOD, + -,
// relational, AND, OR.
func bindingPower(t Token) int {
	switch t.Kind {
	case TokCaret:
		return 8
	case TokStar, TokSlash:
		return 7
	case TokBackslash:
		return 6
	case TokPlus, TokMinus:
		return 4
	case TokEq, TokNe, TokLt, TokLe, TokGt, TokGe:
		return 3
	case TokKeyword:
		switch t.Upper() {
		case "MOD":
			return 5
		case "AND":
			return 2
		case "OR":
			return 1
		}
	}
	return 0
}

// parseExpr parses a full expression.
func (p *Parser) parseExpr() Expr { return p.parseBinary(0) }

func (p *Parser) parseBinary(minBP int) Expr {
	left := p.parseUnary()
	for {
		t := p.cur()
		bp := bindingPower(t)
		if bp == 0 || bp <= minBP {
			return left
		}
		p.bump()
		right := p.parseBinary(bp)
		be := &BinaryExpr{exprBase: exprBase{baseNode: baseNode{t.Span}}, Op: t.Kind, L: left, R: right}
		if t.Kind == TokKeyword {
			be.Kw = t.Upper()
		}
		left = be
	}
}

func (p *Parser) parseUnary() Expr {
	t := p.cur()
	switch {
	case t.Kind == TokMinus:
		p.bump()
		return &UnaryExpr{exprBase: exprBase{baseNode: baseNode{t.Span}}, Op: TokMinus, Operand: p.parseUnary()}
	case t.Kind == TokPlus:
		p.bump()
		return p.parseUnary()
	case t.IsKw("NOT"):
		p.bump()
		return &UnaryExpr{exprBase: exprBase{baseNode: baseNode{t.Span}}, Not: true, Operand: p.parseUnary()}
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() Expr {
	t := p.cur()
	switch t.Kind {
	case TokNumber:
		p.bump()
		return &NumberLit{exprBase: exprBase{baseNode: baseNode{t.Span}}, Value: tokenValue(t)}
	case TokString:
		p.bump()
		return &StringLit{exprBase: exprBase{baseNode: baseNode{t.Span}}, Value: t.StrVal}
	case TokLParen:
		p.bump()
		e := p.parseExpr()
		p.expect(TokRParen, "')'")
		return e
	case TokIdent:
		return p.parseLValue()
	case TokKeyword:
		// TIMER, RND and friends lex as identifiers; the only keywords
		// legal in expression head position are none.
	}
	p.errHere("expected expression")
	return &NumberLit{exprBase: exprBase{baseNode: baseNode{t.Span}}, Value: Int16Value(0)}
}
