package repl_test

import (
	"context"
	"strings"
	"testing"

	"github.com/antibyte/retrobasic/pkg/host"
	"github.com/antibyte/retrobasic/pkg/repl"
)

func step(t *testing.T, e *repl.Engine, line string) {
	t.Helper()
	diags, rerr := e.Step(context.Background(), line)
	for _, d := range diags {
		if !d.Warning {
			t.Fatalf("diagnostics on %q: %v", line, diags)
		}
	}
	if rerr != nil {
		t.Fatalf("runtime failure on %q: %v", line, rerr)
	}
}

func TestReplKeepsVariables(t *testing.T) {
	h := host.NewMemHost()
	e := repl.New(h, nil)
	step(t, e, "x = 41")
	step(t, e, "x = x + 1")
	step(t, e, "PRINT x")
	if got := strings.TrimRight(h.Output(), "\n"); got != " 42 " {
		t.Errorf("output = %q, want %q", got, " 42 ")
	}
}

func TestReplDoesNotRerunOldStatements(t *testing.T) {
	h := host.NewMemHost()
	e := repl.New(h, nil)
	step(t, e, `PRINT "once"`)
	step(t, e, `PRINT "twice"`)
	want := "once\ntwice"
	if got := strings.TrimRight(h.Output(), "\n"); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestReplCollectsBlocks(t *testing.T) {
	h := host.NewMemHost()
	e := repl.New(h, nil)
	step(t, e, "FOR i = 1 TO 3")
	if !e.NeedsMore() {
		t.Fatal("engine should wait for NEXT")
	}
	step(t, e, "  PRINT i;")
	step(t, e, "NEXT i")
	if e.NeedsMore() {
		t.Fatal("block should be closed")
	}
	if got := h.Output(); got != " 1  2  3 " {
		t.Errorf("output = %q", got)
	}
}

func TestReplProceduresPersist(t *testing.T) {
	h := host.NewMemHost()
	e := repl.New(h, nil)
	step(t, e, "FUNCTION Twice% (n AS INTEGER)")
	step(t, e, "  Twice% = n * 2")
	step(t, e, "END FUNCTION")
	step(t, e, "PRINT Twice%(21)")
	if got := strings.TrimRight(h.Output(), "\n"); got != " 42 " {
		t.Errorf("output = %q, want %q", got, " 42 ")
	}
}

func TestReplReportsDiagnostics(t *testing.T) {
	h := host.NewMemHost()
	e := repl.New(h, nil)
	diags, _ := e.Step(context.Background(), "PRINT +")
	if len(diags) == 0 {
		t.Fatal("expected diagnostics")
	}
	// the bad line must not poison the session
	step(t, e, "PRINT 1")
	if got := strings.TrimRight(h.Output(), "\n"); got != " 1 " {
		t.Errorf("output = %q", got)
	}
}

func TestReplRuntimeFailureKeepsSession(t *testing.T) {
	h := host.NewMemHost()
	e := repl.New(h, nil)
	step(t, e, "x = 5")
	_, rerr := e.Step(context.Background(), "y% = 0\nPRINT 1 \\ y%")
	if rerr == nil {
		t.Fatal("expected a runtime failure")
	}
	step(t, e, "PRINT x")
	out := h.Output()
	if !strings.Contains(out, " 5 ") {
		t.Errorf("session state lost after failure: %q", out)
	}
}
