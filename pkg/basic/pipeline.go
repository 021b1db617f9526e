package basic

import (
	"fmt"
	"strings"

	"github.com/antibyte/retrobasic/pkg/logger"
)

// Compile runs the full pipeline over a source buffer. The program is
// nil when any stage reported errors; the sink carries everything
// that was found. The pipeline short-circuits at the first stage that
// reports diagnostics.
func Compile(src string) (*Program, *Analysis, *DiagSink) {
	diags := &DiagSink{}
	module := Parse(src, diags)
	if diags.HasErrors() {
		logger.Debug(logger.AreaParser, "parse failed with %d diagnostics", len(diags.Diags))
		return nil, nil, diags
	}
	an := Analyze(module, diags)
	if diags.HasErrors() {
		logger.Debug(logger.AreaSemantic, "analysis failed with %d diagnostics", len(diags.Diags))
		return nil, an, diags
	}
	prog := Emit(an, diags)
	if diags.HasErrors() {
		return nil, an, diags
	}
	logger.Debug(logger.AreaEmitter, "emitted %d instructions, %d constants, %d data items",
		len(prog.Instructions), len(prog.Consts), len(prog.Data))
	return prog, an, diags
}

// Check runs the pipeline through semantic analysis only.
func Check(src string) *DiagSink {
	diags := &DiagSink{}
	module := Parse(src, diags)
	if diags.HasErrors() {
		return diags
	}
	Analyze(module, diags)
	return diags
}

// DumpTokens renders the token stream as the stable textual form the
// tokenize command prints.
func DumpTokens(src string) (string, *DiagSink) {
	diags := &DiagSink{}
	var sb strings.Builder
	for _, t := range Tokenize(src, diags) {
		switch t.Kind {
		case TokEOF:
			fmt.Fprintf(&sb, "%d:%d\tEOF\n", t.Span.Line, t.Span.Col)
		case TokEOL:
			fmt.Fprintf(&sb, "%d:%d\tEOL\n", t.Span.Line, t.Span.Col)
		case TokNumber:
			fmt.Fprintf(&sb, "%d:%d\tNUMBER\t%s\t%s\n", t.Span.Line, t.Span.Col, t.Text, tokenValue(t))
		case TokString:
			fmt.Fprintf(&sb, "%d:%d\tSTRING\t%q\n", t.Span.Line, t.Span.Col, t.StrVal)
		case TokIdent:
			fmt.Fprintf(&sb, "%d:%d\tIDENT\t%s\n", t.Span.Line, t.Span.Col, t.Text)
		case TokKeyword:
			fmt.Fprintf(&sb, "%d:%d\tKEYWORD\t%s\n", t.Span.Line, t.Span.Col, t.Upper())
		case TokMeta:
			fmt.Fprintf(&sb, "%d:%d\tMETA\t%s\n", t.Span.Line, t.Span.Col, t.Text)
		default:
			fmt.Fprintf(&sb, "%d:%d\tPUNCT\t%s\n", t.Span.Line, t.Span.Col, t.Text)
		}
	}
	return sb.String(), diags
}

// DumpAST renders a parsed module as an indented stable form for the
// parse command.
func DumpAST(m *Module) string {
	var sb strings.Builder
	d := &astDumper{sb: &sb}
	d.stmts(m.Stmts, 0)
	for _, proc := range m.Procs {
		kind := "sub"
		if proc.IsFunction {
			kind = "function"
		}
		d.linef(0, "(%s %s (params%s)", kind, proc.Name, d.params(proc.Params))
		d.stmts(proc.Body, 1)
		d.linef(0, ")")
	}
	return sb.String()
}

type astDumper struct {
	sb *strings.Builder
}

func (d *astDumper) linef(depth int, format string, args ...interface{}) {
	d.sb.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(d.sb, format, args...)
	d.sb.WriteByte('\n')
}

func (d *astDumper) params(params []Param) string {
	var sb strings.Builder
	for _, p := range params {
		sb.WriteString(" ")
		sb.WriteString(p.Name)
		if p.IsArray {
			sb.WriteString("()")
		}
		if p.ByVal {
			sb.WriteString(":byval")
		}
		if p.TypeName != "" {
			sb.WriteString(":" + p.TypeName)
		}
	}
	return sb.String()
}

func (d *astDumper) stmts(stmts []Stmt, depth int) {
	for _, s := range stmts {
		d.stmt(s, depth)
	}
}

func (d *astDumper) stmt(s Stmt, depth int) {
	switch st := s.(type) {
	case *LabelStmt:
		d.linef(depth, "(label %s)", st.Name)
	case *DimStmt:
		for _, decl := range st.Decls {
			shared := ""
			if st.Shared {
				shared = " shared"
			}
			bounds := ""
			for _, b := range decl.Bounds {
				lo := "base"
				if b[0] != nil {
					lo = d.expr(b[0])
				}
				bounds += fmt.Sprintf(" (%s to %s)", lo, d.expr(b[1]))
			}
			typ := ""
			if decl.TypeName != "" {
				typ = " as " + decl.TypeName
				if decl.FixedLen != nil {
					typ += "*" + d.expr(decl.FixedLen)
				}
			}
			d.linef(depth, "(dim%s %s%s%s)", shared, decl.Name, bounds, typ)
		}
	case *AssignStmt:
		d.linef(depth, "(let %s %s)", d.expr(st.Target), d.expr(st.Value))
	case *PrintStmt:
		parts := make([]string, 0, len(st.Items))
		for _, it := range st.Items {
			p := d.expr(it.Expr)
			if it.Sep != 0 {
				p += string(it.Sep)
			}
			parts = append(parts, p)
		}
		ch := ""
		if st.Channel != nil {
			ch = " #" + d.expr(st.Channel)
		}
		d.linef(depth, "(print%s %s)", ch, strings.Join(parts, " "))
	case *WriteStmt:
		parts := make([]string, 0, len(st.Items))
		for _, it := range st.Items {
			parts = append(parts, d.expr(it))
		}
		d.linef(depth, "(write %s)", strings.Join(parts, " "))
	case *InputStmt:
		kind := "input"
		if st.LineMode {
			kind = "line-input"
		}
		parts := make([]string, 0, len(st.Targets))
		for _, t := range st.Targets {
			parts = append(parts, d.expr(t))
		}
		d.linef(depth, "(%s %q %s)", kind, st.Prompt, strings.Join(parts, " "))
	case *IfStmt:
		d.linef(depth, "(if %s", d.expr(st.Cond))
		d.stmts(st.Then, depth+1)
		for _, arm := range st.ElseIfs {
			d.linef(depth, " elseif %s", d.expr(arm.Cond))
			d.stmts(arm.Body, depth+1)
		}
		if len(st.Else) > 0 {
			d.linef(depth, " else")
			d.stmts(st.Else, depth+1)
		}
		d.linef(depth, ")")
	case *SelectStmt:
		d.linef(depth, "(select %s", d.expr(st.Subject))
		for _, arm := range st.Arms {
			if arm.IsElse {
				d.linef(depth+1, "(case-else")
			} else {
				guards := make([]string, 0, len(arm.Guards))
				for _, g := range arm.Guards {
					switch g.Kind {
					case CaseRange:
						guards = append(guards, fmt.Sprintf("%s to %s", d.expr(g.Lo), d.expr(g.Hi)))
					case CaseIs:
						guards = append(guards, fmt.Sprintf("is %s %s", opText(g.Op), d.expr(g.Lo)))
					default:
						guards = append(guards, d.expr(g.Lo))
					}
				}
				d.linef(depth+1, "(case %s", strings.Join(guards, ", "))
			}
			d.stmts(arm.Body, depth+2)
			d.linef(depth+1, ")")
		}
		d.linef(depth, ")")
	case *ForStmt:
		step := ""
		if st.Step != nil {
			step = " step " + d.expr(st.Step)
		}
		d.linef(depth, "(for %s %s to %s%s", st.Var.Name, d.expr(st.From), d.expr(st.To), step)
		d.stmts(st.Body, depth+1)
		d.linef(depth, ")")
	case *WhileStmt:
		d.linef(depth, "(while %s", d.expr(st.Cond))
		d.stmts(st.Body, depth+1)
		d.linef(depth, ")")
	case *DoStmt:
		head := "(do"
		if st.PreCond != nil {
			word := "while"
			if st.PreUntil {
				word = "until"
			}
			head += fmt.Sprintf(" %s %s", word, d.expr(st.PreCond))
		}
		d.linef(depth, "%s", head)
		d.stmts(st.Body, depth+1)
		tail := ")"
		if st.PostCond != nil {
			word := "while"
			if st.PostUntil {
				word = "until"
			}
			tail = fmt.Sprintf(" loop-%s %s)", word, d.expr(st.PostCond))
		}
		d.linef(depth, "%s", tail)
	case *ExitStmt:
		names := [...]string{"for", "do", "sub", "function"}
		d.linef(depth, "(exit %s)", names[st.Kind])
	case *GotoStmt:
		d.linef(depth, "(goto %s)", st.Target)
	case *GosubStmt:
		d.linef(depth, "(gosub %s)", st.Target)
	case *ReturnStmt:
		if st.Target != "" {
			d.linef(depth, "(return %s)", st.Target)
		} else {
			d.linef(depth, "(return)")
		}
	case *ConstStmt:
		for i, name := range st.Names {
			d.linef(depth, "(const %s %s)", name, d.expr(st.Values[i]))
		}
	case *TypeDeclStmt:
		d.linef(depth, "(type %s", st.Name)
		for _, f := range st.Fields {
			d.linef(depth+1, "(%s %s)", f.Name, f.TypeName)
		}
		d.linef(depth, ")")
	case *DeclareStmt:
		kind := "sub"
		if st.IsFunction {
			kind = "function"
		}
		d.linef(depth, "(declare %s %s (params%s))", kind, st.Name, d.params(st.Params))
	case *CallStmt:
		parts := make([]string, 0, len(st.Args))
		for _, a := range st.Args {
			parts = append(parts, d.expr(a))
		}
		d.linef(depth, "(call %s %s)", st.Name, strings.Join(parts, " "))
	case *OpenStmt:
		d.linef(depth, "(open %s %s #%s)", d.expr(st.Path), st.Mode, d.expr(st.Channel))
	case *CloseStmt:
		parts := make([]string, 0, len(st.Channels))
		for _, c := range st.Channels {
			parts = append(parts, d.expr(c))
		}
		d.linef(depth, "(close %s)", strings.Join(parts, " "))
	case *DataStmt:
		parts := make([]string, 0, len(st.Items))
		for _, it := range st.Items {
			parts = append(parts, it.Value.String())
		}
		d.linef(depth, "(data %s)", strings.Join(parts, " "))
	case *ReadStmt:
		parts := make([]string, 0, len(st.Targets))
		for _, t := range st.Targets {
			parts = append(parts, d.expr(t))
		}
		d.linef(depth, "(read %s)", strings.Join(parts, " "))
	case *RestoreStmt:
		d.linef(depth, "(restore %s)", st.Target)
	case *RandomizeStmt:
		if st.Seed != nil {
			d.linef(depth, "(randomize %s)", d.expr(st.Seed))
		} else {
			d.linef(depth, "(randomize)")
		}
	case *SwapStmt:
		d.linef(depth, "(swap %s %s)", d.expr(st.A), d.expr(st.B))
	case *OptionBaseStmt:
		d.linef(depth, "(option-base %d)", st.Base)
	case *MetaStmt:
		d.linef(depth, "(meta %s %q)", st.Name, st.Arg)
	case *EndStmt:
		d.linef(depth, "(end)")
	}
}

func opText(op TokenKind) string {
	switch op {
	case TokEq:
		return "="
	case TokNe:
		return "<>"
	case TokLt:
		return "<"
	case TokLe:
		return "<="
	case TokGt:
		return ">"
	case TokGe:
		return ">="
	case TokPlus:
		return "+"
	case TokMinus:
		return "-"
	case TokStar:
		return "*"
	case TokSlash:
		return "/"
	case TokBackslash:
		return "\\"
	case TokCaret:
		return "^"
	}
	return "?"
}

func (d *astDumper) expr(e Expr) string {
	switch ex := e.(type) {
	case *NumberLit:
		return ex.Value.Format()
	case *StringLit:
		return fmt.Sprintf("%q", ex.Value)
	case *NameRef:
		return ex.Name
	case *CallOrIndex:
		parts := make([]string, 0, len(ex.Args))
		for _, a := range ex.Args {
			parts = append(parts, d.expr(a))
		}
		return fmt.Sprintf("%s(%s)", ex.Name, strings.Join(parts, ", "))
	case *FieldExpr:
		return d.expr(ex.Base) + "." + ex.Field
	case *UnaryExpr:
		if ex.Not {
			return "(not " + d.expr(ex.Operand) + ")"
		}
		return "(- " + d.expr(ex.Operand) + ")"
	case *BinaryExpr:
		op := ex.Kw
		if op == "" {
			op = opText(ex.Op)
		}
		return fmt.Sprintf("(%s %s %s)", strings.ToLower(op), d.expr(ex.L), d.expr(ex.R))
	case *CoerceExpr:
		return d.expr(ex.Operand)
	}
	return "?"
}
