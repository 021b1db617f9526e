package basic

import (
	"strings"
	"testing"
)

func compileOK(t *testing.T, src string) *Program {
	t.Helper()
	prog, _, diags := Compile(src)
	if diags.HasErrors() {
		t.Fatalf("compile diagnostics:\n%s", diagText(diags))
	}
	return prog
}

// Every JMP/GOSUB target must be a valid pc within the emitted image.
func TestLabelClosure(t *testing.T) {
	sources := []string{
		"L1: GOTO L2\nL2: GOSUB L3\nEND\nL3: RETURN",
		"FOR i = 1 TO 3\n IF i = 2 THEN EXIT FOR\nNEXT i",
		"SELECT CASE 2\nCASE 1\nPRINT 1\nCASE 2\nPRINT 2\nCASE ELSE\nPRINT 3\nEND SELECT",
		"DO\n EXIT DO\nLOOP",
		"10 GOTO 20\n20 GOTO 10",
		"DECLARE SUB S\nCALL S\nSUB S\n GOSUB L\n EXIT SUB\nL: RETURN\nEND SUB",
	}
	for _, src := range sources {
		prog := compileOK(t, src)
		for pc, inst := range prog.Instructions {
			switch inst.Op {
			case OP_JMP, OP_JMP_IF_FALSE, OP_JMP_IF_TRUE, OP_GOSUB:
				if inst.A < 0 || int(inst.A) > len(prog.Instructions) {
					t.Errorf("pc %d: %s target %d out of range (source %q)", pc, inst.Op, inst.A, src)
				}
			case OP_FOR_INIT, OP_FOR_STEP:
				if inst.B < 0 || int(inst.B) > len(prog.Instructions) {
					t.Errorf("pc %d: %s target %d out of range (source %q)", pc, inst.Op, inst.B, src)
				}
			case OP_PUSH_CONST:
				if int(inst.A) >= len(prog.Consts) {
					t.Errorf("pc %d: constant index %d out of range", pc, inst.A)
				}
			case OP_CALL:
				if int(inst.A) >= len(prog.Procs) {
					t.Errorf("pc %d: procedure index %d out of range", pc, inst.A)
				}
			}
		}
	}
}

func TestConstantPoolDeduplicates(t *testing.T) {
	prog := compileOK(t, `PRINT "x"; "x"; "x"; 7; 7; 7`)
	strs, ints := 0, 0
	for _, c := range prog.Consts {
		if c.Kind.IsString() && c.Str == "x" {
			strs++
		}
		if c.Kind.IsInteger() && c.Int == 7 {
			ints++
		}
	}
	if strs != 1 || ints != 1 {
		t.Errorf("duplicated pool entries: %d strings, %d ints", strs, ints)
	}
}

func TestLabelTableRecordsPCs(t *testing.T) {
	prog := compileOK(t, "Start:\nPRINT 1\nMid: PRINT 2\nGOTO Start")
	if _, ok := prog.Labels["START"]; !ok {
		t.Errorf("label START missing from table: %v", prog.Labels)
	}
	if _, ok := prog.Labels["MID"]; !ok {
		t.Errorf("label MID missing from table: %v", prog.Labels)
	}
}

func TestProcedureTable(t *testing.T) {
	prog := compileOK(t, strings.Join([]string{
		"DECLARE FUNCTION Twice% (n AS INTEGER)",
		"PRINT Twice%(4)",
		"FUNCTION Twice% (n AS INTEGER)",
		"  Twice% = n * 2",
		"END FUNCTION",
	}, "\n"))
	if len(prog.Procs) != 1 {
		t.Fatalf("procs = %d", len(prog.Procs))
	}
	proc := prog.Procs[0]
	if !proc.IsFunction || proc.Name != "TWICE%" {
		t.Errorf("proc row = %+v", proc)
	}
	if len(proc.Params) != 1 || proc.Params[0].Kind != KindInt16 || proc.Params[0].ByVal {
		t.Errorf("param descs = %+v", proc.Params)
	}
	if proc.Entry <= 0 || proc.Entry > len(prog.Instructions) {
		t.Errorf("entry pc %d out of range", proc.Entry)
	}
	// function return slot sits after the parameter slots
	if proc.LocalCount < 2 {
		t.Errorf("local count %d, want at least 2", proc.LocalCount)
	}
}

// The main body must end in a HALT before the first procedure entry.
func TestMainEndsWithHalt(t *testing.T) {
	prog := compileOK(t, "PRINT 1\nSUB S\nEND SUB")
	mainEnd := len(prog.Instructions)
	for _, proc := range prog.Procs {
		if proc.Entry < mainEnd {
			mainEnd = proc.Entry
		}
	}
	if prog.Instructions[mainEnd-1].Op != OP_HALT {
		t.Errorf("instruction before procedures is %s, want HALT", prog.Instructions[mainEnd-1].Op)
	}
}

func TestDisassembleStable(t *testing.T) {
	src := "FOR i = 1 TO 2\nPRINT i\nNEXT i"
	p1 := compileOK(t, src)
	p2 := compileOK(t, src)
	if p1.Disassemble() != p2.Disassemble() {
		t.Errorf("disassembly is not deterministic")
	}
	if !strings.Contains(p1.Disassemble(), "FOR_INIT") {
		t.Errorf("disassembly missing FOR_INIT:\n%s", p1.Disassemble())
	}
}
