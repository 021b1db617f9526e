// Package repl implements the interactive engine: it accumulates
// definitions across input lines, recompiles the augmented module and
// executes only the newly appended statements, carrying module slot
// values from step to step.
package repl

import (
	"context"
	"strings"

	"github.com/antibyte/retrobasic/pkg/basic"
	"github.com/antibyte/retrobasic/pkg/history"
	"github.com/antibyte/retrobasic/pkg/logger"

	"github.com/google/uuid"
)

// Engine is one interactive session.
type Engine struct {
	host basic.Host
	opts basic.VMOptions

	SessionID string
	hist      *history.Store

	source  strings.Builder // accepted lines so far
	pending strings.Builder // open multi-line block
	globals []basic.Value
}

// New creates a session over a host. The history store may be nil.
func New(host basic.Host, hist *history.Store) *Engine {
	return &Engine{
		host:      host,
		opts:      basic.DefaultVMOptions(),
		SessionID: uuid.NewString(),
		hist:      hist,
	}
}

// NeedsMore reports whether the engine is collecting an open block
// (FOR without NEXT, SUB without END SUB, ...) and wants continuation
// lines.
func (e *Engine) NeedsMore() bool { return e.pending.Len() > 0 }

// Step feeds one input line. It returns the diagnostics of the
// recompile (warnings only when the new statements ran) and the
// runtime failure of running them, if any.
func (e *Engine) Step(ctx context.Context, input string) ([]basic.Diagnostic, *basic.RuntimeError) {
	if strings.TrimSpace(input) == "" && e.pending.Len() == 0 {
		return nil, nil
	}
	e.pending.WriteString(input)
	e.pending.WriteByte('\n')
	if blockOpen(e.pending.String()) {
		return nil, nil
	}
	chunk := e.pending.String()
	e.pending.Reset()

	candidate := e.source.String() + chunk
	prog, an, diags := basic.Compile(candidate)
	if diags.HasErrors() {
		return diags.Diags, nil
	}

	// the new statements begin at the old source length; run from the
	// first instruction emitted for them
	startPC := e.startPC(prog, e.source.Len())
	e.source.WriteString(chunk)
	if e.hist != nil {
		if err := e.hist.Append(e.SessionID, strings.TrimRight(chunk, "\n")); err != nil {
			logger.Warn(logger.AreaRepl, "history append failed: %v", err)
		}
	}

	vm := basic.NewVM(prog, e.host, e.opts)
	if len(e.globals) > 0 {
		vm.SetGlobals(e.globals)
	}
	rerr := vm.RunFrom(ctx, startPC)
	// keep only the named module slots: hidden scratch slots sit past
	// them and their positions shift on the next recompile
	named := len(an.Globals)
	if named > len(vm.Globals()) {
		named = len(vm.Globals())
	}
	e.globals = append(e.globals[:0], vm.Globals()[:named]...)
	return diags.Diags, rerr
}

// startPC finds the pc of the first main-body instruction emitted for
// source at or after the byte offset. Procedure bodies sit after the
// main HALT and are excluded, so label and procedure identity is
// preserved across steps while old statements do not rerun.
func (e *Engine) startPC(prog *basic.Program, offset int) int {
	mainEnd := len(prog.Instructions)
	for _, proc := range prog.Procs {
		if proc.Entry < mainEnd {
			mainEnd = proc.Entry
		}
	}
	for pc := 0; pc < mainEnd; pc++ {
		span := prog.SpanAt(pc)
		if span.Start >= offset && span.End > span.Start {
			return pc
		}
	}
	// nothing new to execute: land on the main HALT
	if mainEnd > 0 {
		return mainEnd - 1
	}
	return 0
}

// Source returns the accumulated session program.
func (e *Engine) Source() string { return e.source.String() }

// blockOpen counts block openers and closers to decide whether the
// buffer still waits for a terminator.
func blockOpen(src string) bool {
	diags := &basic.DiagSink{}
	toks := basic.Tokenize(src, diags)
	depth := 0
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.Kind != basic.TokKeyword {
			continue
		}
		switch t.Upper() {
		case "FOR":
			// OPEN ... FOR INPUT/OUTPUT/... is not a loop opener
			switch toks[i+1].Upper() {
			case "INPUT", "OUTPUT", "APPEND", "BINARY", "RANDOM":
				continue
			}
			depth++
		case "WHILE", "SUB", "FUNCTION", "TYPE", "DO", "SELECT":
			depth++
		case "IF":
			if blockIf(toks, i) {
				depth++
			}
		case "NEXT", "WEND", "LOOP":
			depth--
		case "END":
			if i+1 < len(toks) {
				switch toks[i+1].Upper() {
				case "IF", "SUB", "FUNCTION", "TYPE", "SELECT":
					depth--
					i++
				}
			}
		}
	}
	return depth > 0
}

// blockIf reports whether the IF at index i is the block form: THEN
// directly followed by end of line.
func blockIf(toks []basic.Token, i int) bool {
	for j := i + 1; j < len(toks); j++ {
		if toks[j].Kind == basic.TokEOL || toks[j].Kind == basic.TokEOF {
			return false
		}
		if toks[j].IsKw("THEN") {
			next := toks[j+1]
			return next.Kind == basic.TokEOL || next.Kind == basic.TokEOF
		}
	}
	return false
}
