package basic

import (
	"fmt"
	"strings"
	"testing"
)

func parseOK(t *testing.T, src string) *Module {
	t.Helper()
	diags := &DiagSink{}
	m := Parse(src, diags)
	if diags.HasErrors() {
		t.Fatalf("parse diagnostics for %q: %v", src, diags.Diags)
	}
	return m
}

func TestParserExpressionPrecedence(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1 + 2 * 3", "(+ 1 (* 2 3))"},
		{"1 * 2 + 3", "(+ (* 1 2) 3)"},
		{"2 ^ 3 * 4", "(* (^ 2 3) 4)"},
		{"10 \\ 3 MOD 2", "(mod (\\ 10 3) 2)"},
		{"1 + 2 < 3 * 4", "(< (+ 1 2) (* 3 4))"},
		{"a AND b OR c", "(or (and A B) C)"},
		{"NOT a = b", "(= (not A) B)"},
		{"-2 ^ 2", "(^ (- 2) 2)"},
		{"(1 + 2) * 3", "(* (+ 1 2) 3)"},
		{`"a" + "b"`, `(+ "a" "b")`},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			m := parseOK(t, "X = "+tt.expr)
			assign, ok := m.Stmts[0].(*AssignStmt)
			if !ok {
				t.Fatalf("not an assignment: %T", m.Stmts[0])
			}
			d := &astDumper{sb: &strings.Builder{}}
			if got := d.expr(assign.Value); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParserStatements(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want interface{}
	}{
		{"dim", "DIM A(10) AS INTEGER", &DimStmt{}},
		{"dim shared", "DIM SHARED X", &DimStmt{}},
		{"let", "LET X = 1", &AssignStmt{}},
		{"implicit let", "X = 1", &AssignStmt{}},
		{"print", `PRINT "a"; "b", "c"`, &PrintStmt{}},
		{"print channel", `PRINT #1, "a"`, &PrintStmt{}},
		{"input", `INPUT "name"; n$`, &InputStmt{}},
		{"line input", "LINE INPUT l$", &InputStmt{}},
		{"goto", "GOTO 100", &GotoStmt{}},
		{"gosub", "GOSUB Work", &GosubStmt{}},
		{"return", "RETURN", &ReturnStmt{}},
		{"const", "CONST PI = 3.14159", &ConstStmt{}},
		{"call", "CALL Work(1, 2)", &CallStmt{}},
		{"open", `OPEN "f.txt" FOR OUTPUT AS #1`, &OpenStmt{}},
		{"close", "CLOSE #1", &CloseStmt{}},
		{"data", "DATA 1, two, \"three\"", &DataStmt{}},
		{"read", "READ a, b$", &ReadStmt{}},
		{"restore", "RESTORE L2", &RestoreStmt{}},
		{"randomize", "RANDOMIZE 42", &RandomizeStmt{}},
		{"swap", "SWAP a, b", &SwapStmt{}},
		{"option base", "OPTION BASE 1", &OptionBaseStmt{}},
		{"end", "END", &EndStmt{}},
		{"label", "Foo: PRINT", &LabelStmt{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := parseOK(t, tt.src)
			if len(m.Stmts) == 0 {
				t.Fatal("no statements parsed")
			}
			got := fmt.Sprintf("%T", m.Stmts[0])
			want := fmt.Sprintf("%T", tt.want)
			if got != want {
				t.Errorf("got %s, want %s", got, want)
			}
		})
	}
}

func TestParserIfForms(t *testing.T) {
	// single-line IF with ELSE
	m := parseOK(t, `IF x > 1 THEN PRINT "big" ELSE PRINT "small"`)
	ifst := m.Stmts[0].(*IfStmt)
	if len(ifst.Then) != 1 || len(ifst.Else) != 1 {
		t.Errorf("single-line IF: then=%d else=%d", len(ifst.Then), len(ifst.Else))
	}

	// IF cond THEN linenumber is a jump
	m = parseOK(t, "IF x THEN 100\n100 PRINT")
	ifst = m.Stmts[0].(*IfStmt)
	if _, ok := ifst.Then[0].(*GotoStmt); !ok {
		t.Errorf("THEN linenumber should parse as GOTO, got %T", ifst.Then[0])
	}

	// block IF with ELSEIF chain
	m = parseOK(t, strings.Join([]string{
		"IF a THEN",
		"  PRINT 1",
		"ELSEIF b THEN",
		"  PRINT 2",
		"ELSE",
		"  PRINT 3",
		"END IF",
	}, "\n"))
	ifst = m.Stmts[0].(*IfStmt)
	if len(ifst.ElseIfs) != 1 || len(ifst.Else) != 1 {
		t.Errorf("block IF: elseifs=%d else=%d", len(ifst.ElseIfs), len(ifst.Else))
	}
}

func TestParserSelectCase(t *testing.T) {
	m := parseOK(t, strings.Join([]string{
		"SELECT CASE s",
		`  CASE IS >= 90: PRINT "A"`,
		`  CASE 80 TO 89: PRINT "B"`,
		`  CASE 1, 2, 3: PRINT "low"`,
		`  CASE ELSE: PRINT "?"`,
		"END SELECT",
	}, "\n"))
	sel := m.Stmts[0].(*SelectStmt)
	if len(sel.Arms) != 4 {
		t.Fatalf("arms = %d, want 4", len(sel.Arms))
	}
	if sel.Arms[0].Guards[0].Kind != CaseIs {
		t.Errorf("arm 0 should be IS guard")
	}
	if sel.Arms[1].Guards[0].Kind != CaseRange {
		t.Errorf("arm 1 should be range guard")
	}
	if len(sel.Arms[2].Guards) != 3 {
		t.Errorf("arm 2 should have 3 guards, got %d", len(sel.Arms[2].Guards))
	}
	if !sel.Arms[3].IsElse {
		t.Errorf("arm 3 should be CASE ELSE")
	}
}

func TestParserLoops(t *testing.T) {
	m := parseOK(t, "FOR i = 1 TO 10 STEP 2\nPRINT i\nNEXT i")
	forst := m.Stmts[0].(*ForStmt)
	if forst.Step == nil || len(forst.Body) != 1 {
		t.Errorf("FOR parse: step=%v body=%d", forst.Step, len(forst.Body))
	}

	m = parseOK(t, "WHILE x < 3\nx = x + 1\nWEND")
	if _, ok := m.Stmts[0].(*WhileStmt); !ok {
		t.Errorf("WHILE parse failed: %T", m.Stmts[0])
	}

	m = parseOK(t, "DO UNTIL x = 3\nx = x + 1\nLOOP")
	do := m.Stmts[0].(*DoStmt)
	if do.PreCond == nil || !do.PreUntil {
		t.Errorf("DO UNTIL parse: %+v", do)
	}

	m = parseOK(t, "DO\nx = x + 1\nLOOP WHILE x < 3")
	do = m.Stmts[0].(*DoStmt)
	if do.PostCond == nil || do.PostUntil {
		t.Errorf("DO/LOOP WHILE parse: %+v", do)
	}
}

func TestParserProcedures(t *testing.T) {
	m := parseOK(t, strings.Join([]string{
		"DECLARE FUNCTION Area! (r AS SINGLE)",
		"SUB Greet (name$, BYVAL times AS INTEGER)",
		"  PRINT name$",
		"END SUB",
		"FUNCTION Area! (r AS SINGLE)",
		"  Area! = 3.14159 * r * r",
		"END FUNCTION",
	}, "\n"))
	if len(m.Procs) != 2 {
		t.Fatalf("procs = %d, want 2", len(m.Procs))
	}
	sub := m.Procs[0]
	if sub.IsFunction || sub.Name != "GREET" || len(sub.Params) != 2 {
		t.Errorf("sub parse: %+v", sub)
	}
	if !sub.Params[1].ByVal {
		t.Errorf("BYVAL not recorded")
	}
	fn := m.Procs[1]
	if !fn.IsFunction || fn.Name != "AREA!" {
		t.Errorf("function parse: %+v", fn)
	}
}

func TestParserTypeDecl(t *testing.T) {
	m := parseOK(t, strings.Join([]string{
		"TYPE Point",
		"  x AS INTEGER",
		"  y AS INTEGER",
		"  label AS STRING * 8",
		"END TYPE",
	}, "\n"))
	ty := m.Stmts[0].(*TypeDeclStmt)
	if ty.Name != "POINT" || len(ty.Fields) != 3 {
		t.Fatalf("type parse: %+v", ty)
	}
	if ty.Fields[2].FixedLen == nil {
		t.Errorf("fixed string length missing")
	}
}

// Parsing twice yields structurally identical trees with identical
// spans.
func TestParserDeterminism(t *testing.T) {
	src := strings.Join([]string{
		"DIM a(5) AS LONG",
		"FOR i = 0 TO 5",
		"  a(i) = i * i",
		"NEXT i",
		"IF a(3) > 4 THEN PRINT \"yes\" ELSE PRINT \"no\"",
		"DATA 1, 2, 3",
	}, "\n")
	d1 := &DiagSink{}
	d2 := &DiagSink{}
	m1 := Parse(src, d1)
	m2 := Parse(src, d2)
	if DumpAST(m1) != DumpAST(m2) {
		t.Errorf("parse is not deterministic")
	}
	if len(m1.Stmts) != len(m2.Stmts) {
		t.Errorf("statement counts differ")
	}
	for i := range m1.Stmts {
		if m1.Stmts[i].GetSpan() != m2.Stmts[i].GetSpan() {
			t.Errorf("span of statement %d differs", i)
		}
	}
}

func TestParserErrorRecovery(t *testing.T) {
	diags := &DiagSink{}
	m := Parse("X = = 1\nY = 2", diags)
	if !diags.HasErrors() {
		t.Fatal("expected diagnostics")
	}
	// the second line must still parse
	found := false
	for _, s := range m.Stmts {
		if a, ok := s.(*AssignStmt); ok {
			if ref, ok := a.Target.(*NameRef); ok && ref.Name == "Y" {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("parser did not recover to the next line")
	}
}
