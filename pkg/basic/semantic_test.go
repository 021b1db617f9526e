package basic

import (
	"strings"
	"testing"
)

func analyze(t *testing.T, src string) (*Analysis, *DiagSink) {
	t.Helper()
	diags := &DiagSink{}
	m := Parse(src, diags)
	if diags.HasErrors() {
		t.Fatalf("parse diagnostics: %v", diags.Diags)
	}
	return Analyze(m, diags), diags
}

func hasDiag(diags *DiagSink, code DiagCode) bool {
	for _, d := range diags.Diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestSemanticDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code DiagCode
	}{
		{"string into numeric", `x% = "hi"`, DiagTypeMismatch},
		{"numeric into string op", `x$ = 1 + "a"`, DiagTypeMismatch},
		{"unknown sub", "CALL Nope(1)", DiagUndeclared},
		{"unknown array", "x = a(1, 2)", DiagUndeclared},
		{"array arity", "DIM a(5)\nx = a(1, 2)", DiagArityMismatch},
		{"const assign", "CONST N = 3\nN = 4", DiagConstAssign},
		{"redeclared const", "CONST N = 3\nCONST N = 4", DiagRedeclared},
		{"non-const in const", "x = 1\nCONST N = x + 1", DiagNonConstInConst},
		{"duplicate label", "L: PRINT\nL: PRINT", DiagDuplicateLabel},
		{"unknown goto", "GOTO Missing", DiagUnknownLabel},
		{"unknown restore", "RESTORE Missing", DiagUnknownLabel},
		{"unknown field", "TYPE P\n x AS INTEGER\nEND TYPE\nDIM p AS P\ny = p.z", DiagRecordFieldUnknown},
		{"case type mismatch", "SELECT CASE 1\nCASE \"a\"\nEND SELECT", DiagBadCaseRange},
		{"sub arity", "SUB S (a)\nEND SUB\nCALL S(1, 2)", DiagArityMismatch},
		{"line input numeric", "LINE INPUT x%", DiagTypeMismatch},
		{"swap mixed", "a% = 1 : b$ = \"x\"\nSWAP a%, b$", DiagTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := analyze(t, tt.src)
			if !hasDiag(diags, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, diags.Diags)
			}
		})
	}
}

func TestSemanticStepZeroWarns(t *testing.T) {
	_, diags := analyze(t, "FOR i = 1 TO 10 STEP 0\nNEXT i")
	found := false
	for _, d := range diags.Diags {
		if d.Code == DiagInvalidForStep && d.Warning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected InvalidForStep warning, got %v", diags.Diags)
	}
	if diags.HasErrors() {
		t.Errorf("STEP 0 must stay a warning")
	}
}

func TestSemanticSigilTypes(t *testing.T) {
	an, diags := analyze(t, "a% = 1\nb& = 2\nc! = 3\nd# = 4\ne$ = \"x\"\nf&& = 5\nplain = 1.5")
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.Diags)
	}
	wants := map[string]Kind{
		"A%": KindInt16, "B&": KindInt32, "C!": KindSingle,
		"D#": KindDouble, "E$": KindString, "F&&": KindInt64,
		"PLAIN": KindSingle,
	}
	for _, g := range an.Globals {
		if want, ok := wants[g.Name]; ok && g.Type.Kind != want {
			t.Errorf("%s: kind %v, want %v", g.Name, g.Type.Kind, want)
		}
	}
}

func TestSemanticDimAsType(t *testing.T) {
	an, diags := analyze(t, "DIM n AS _INTEGER64\nDIM u AS _UNSIGNED LONG\nDIM s AS STRING * 10\nn = 1\nu = 2\ns = \"x\"")
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.Diags)
	}
	kinds := map[string]Kind{}
	for _, g := range an.Globals {
		kinds[g.Name] = g.Type.Kind
	}
	if kinds["N"] != KindInt64 || kinds["U"] != KindUInt32 || kinds["S"] != KindFixedString {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestSemanticConstFolding(t *testing.T) {
	_, diags := analyze(t, "CONST A = 2 + 3 * 4\nCONST B$ = \"x\" + \"y\"\nCONST C = A * 2")
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.Diags)
	}
	// the fold is observable through the emitted constant pool
	prog, _, cdiags := Compile("CONST A = 2 + 3 * 4\nPRINT A")
	if cdiags.HasErrors() {
		t.Fatalf("compile diagnostics: %v", cdiags.Diags)
	}
	found := false
	for _, c := range prog.Consts {
		if c.Kind.IsInteger() && c.Int == 14 {
			found = true
		}
	}
	if !found {
		t.Errorf("folded constant 14 not in pool: %v", prog.Consts)
	}
}

func TestSemanticRecordLayout(t *testing.T) {
	an, diags := analyze(t, strings.Join([]string{
		"TYPE Vec",
		"  x AS DOUBLE",
		"  y AS DOUBLE",
		"  tag AS STRING * 4",
		"END TYPE",
		"DIM v AS Vec",
		"v.x = 1.5",
	}, "\n"))
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.Diags)
	}
	if len(an.Records) != 1 {
		t.Fatalf("records = %d", len(an.Records))
	}
	rt := an.Records[0]
	if rt.Size != 20 {
		t.Errorf("size = %d, want 20", rt.Size)
	}
	if rt.Fields[1].Offset != 8 || rt.Fields[2].Offset != 16 {
		t.Errorf("offsets = %d, %d", rt.Fields[1].Offset, rt.Fields[2].Offset)
	}
}

func TestSemanticDataLabels(t *testing.T) {
	an, diags := analyze(t, strings.Join([]string{
		"READ a, b",
		"DATA 10, 20",
		"L2:",
		"DATA 100, 200",
	}, "\n"))
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.Diags)
	}
	if len(an.Data) != 4 {
		t.Fatalf("data pool = %d items", len(an.Data))
	}
	if an.DataLabels["L2"] != 2 {
		t.Errorf("L2 index = %d, want 2", an.DataLabels["L2"])
	}
}

func TestSemanticProcLabelsAreScoped(t *testing.T) {
	// a GOTO inside a SUB cannot see module labels
	_, diags := analyze(t, strings.Join([]string{
		"Top:",
		"SUB S",
		"  GOTO Top",
		"END SUB",
	}, "\n"))
	if !hasDiag(diags, DiagUnknownLabel) {
		t.Errorf("expected UnknownLabel for cross-scope GOTO, got %v", diags.Diags)
	}
}

func TestSemanticByRefKindCheck(t *testing.T) {
	_, diags := analyze(t, strings.Join([]string{
		"SUB S (x AS INTEGER)",
		"END SUB",
		"d# = 1",
		"CALL S(d#)",
	}, "\n"))
	if !hasDiag(diags, DiagTypeMismatch) {
		t.Errorf("by-ref argument of wrong kind must be rejected, got %v", diags.Diags)
	}
}
