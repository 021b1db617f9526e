package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/antibyte/retrobasic/pkg/basic"
	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/history"
	"github.com/antibyte/retrobasic/pkg/host"
	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/antibyte/retrobasic/pkg/repl"
	"github.com/antibyte/retrobasic/pkg/terminal"
)

// exit codes of the run command
const (
	exitOK          = 0
	exitDiagnostics = 1
	exitRuntime     = 2
	exitInterrupted = 130
)

func main() {
	if err := configuration.Initialize("settings.cfg"); err != nil {
		fmt.Fprintf(os.Stderr, "error initializing configuration: %v\n", err)
		os.Exit(exitRuntime)
	}
	if err := logger.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "error initializing logger: %v\n", err)
		os.Exit(exitRuntime)
	}
	defer logger.Close()

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitDiagnostics)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		os.Exit(cmdRun(args))
	case "build":
		os.Exit(cmdBuild(args))
	case "check":
		os.Exit(cmdCheck(args))
	case "tokenize":
		os.Exit(cmdTokenize(args))
	case "parse":
		os.Exit(cmdParse(args))
	case "repl":
		os.Exit(cmdRepl())
	case "serve":
		os.Exit(cmdServe())
	default:
		usage()
		os.Exit(exitDiagnostics)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: retrobasic <command> [arguments]

commands:
  run <file>             compile and execute a program
  build <file> [-o out]  write a bytecode image
  check <file>           report diagnostics without executing
  tokenize <file>        dump the token stream
  parse <file>           dump the syntax tree
  repl                   start an interactive session
  serve                  serve the REPL over websocket`)
}

func readSource(args []string) (string, string, bool) {
	if len(args) < 1 {
		usage()
		return "", "", false
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot read %s: %v\n", args[0], err)
		return "", "", false
	}
	return args[0], string(data), true
}

// expandIncludes splices $INCLUDE:"file" lines in place. Nesting is
// bounded to keep include cycles from recursing forever.
func expandIncludes(dir, src string, depth int) (string, error) {
	if depth > 8 {
		return "", fmt.Errorf("$INCLUDE nesting too deep")
	}
	var sb strings.Builder
	for _, line := range strings.SplitAfter(src, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		if strings.HasPrefix(upper, "$INCLUDE:") {
			rest := trimmed[len("$INCLUDE:"):]
			name := strings.Trim(strings.TrimSpace(rest), "\"'")
			path := name
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, name)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("$INCLUDE %s: %w", name, err)
			}
			expanded, err := expandIncludes(filepath.Dir(path), string(data), depth+1)
			if err != nil {
				return "", err
			}
			sb.WriteString(expanded)
			if !strings.HasSuffix(expanded, "\n") {
				sb.WriteByte('\n')
			}
			continue
		}
		sb.WriteString(line)
	}
	return sb.String(), nil
}

// readExpandedSource reads a program and resolves its includes.
func readExpandedSource(args []string) (string, string, bool) {
	name, src, ok := readSource(args)
	if !ok {
		return "", "", false
	}
	expanded, err := expandIncludes(filepath.Dir(name), src, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		return "", "", false
	}
	return name, expanded, true
}

func reportDiags(diags []basic.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintln(os.Stderr, d.String())
	}
}

func vmOptions() basic.VMOptions {
	opts := basic.DefaultVMOptions()
	opts.StackSize = configuration.GetInt("VM", "stack_size", opts.StackSize)
	opts.MaxFrames = configuration.GetInt("VM", "max_call_depth", opts.MaxFrames)
	opts.MaxGosub = configuration.GetInt("VM", "max_gosub_depth", opts.MaxGosub)
	return opts
}

func cmdRun(args []string) int {
	name, src, ok := readExpandedSource(args)
	if !ok {
		return exitDiagnostics
	}
	var prog *basic.Program
	if strings.HasSuffix(name, ".qbc") {
		f, err := os.Open(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot read %s: %v\n", name, err)
			return exitDiagnostics
		}
		defer f.Close()
		var rerr *basic.RuntimeError
		prog, rerr = basic.ReadImage(f)
		if rerr != nil {
			fmt.Fprintln(os.Stderr, rerr.Error())
			return exitRuntime
		}
	} else {
		var diags *basic.DiagSink
		prog, _, diags = basic.Compile(src)
		reportDiags(diags.Diags)
		if prog == nil {
			return exitDiagnostics
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(logger.AreaVM, "running %s (%d instructions)", name, len(prog.Instructions))
	vm := basic.NewVM(prog, host.NewStdHost(), vmOptions())
	if rerr := vm.Run(ctx); rerr != nil {
		fmt.Fprintln(os.Stderr, rerr.Error())
		if rerr.Code == basic.ErrInterrupted {
			return exitInterrupted
		}
		return exitRuntime
	}
	return exitOK
}

func cmdBuild(args []string) int {
	var out string
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] == "-o" && i+1 < len(args) {
			out = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	name, src, ok := readExpandedSource(rest)
	if !ok {
		return exitDiagnostics
	}
	prog, _, diags := basic.Compile(src)
	reportDiags(diags.Diags)
	if prog == nil {
		return exitDiagnostics
	}
	if out == "" {
		out = strings.TrimSuffix(name, ".bas") + ".qbc"
	}
	f, err := os.Create(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot write %s: %v\n", out, err)
		return exitRuntime
	}
	defer f.Close()
	if err := basic.WriteImage(f, prog); err != nil {
		fmt.Fprintf(os.Stderr, "cannot write %s: %v\n", out, err)
		return exitRuntime
	}
	logger.Info(logger.AreaEmitter, "image written to %s", out)
	return exitOK
}

func cmdCheck(args []string) int {
	_, src, ok := readExpandedSource(args)
	if !ok {
		return exitDiagnostics
	}
	diags := basic.Check(src)
	reportDiags(diags.Diags)
	if diags.HasErrors() {
		return exitDiagnostics
	}
	return exitOK
}

func cmdTokenize(args []string) int {
	_, src, ok := readSource(args)
	if !ok {
		return exitDiagnostics
	}
	dump, diags := basic.DumpTokens(src)
	fmt.Print(dump)
	reportDiags(diags.Diags)
	if diags.HasErrors() {
		return exitDiagnostics
	}
	return exitOK
}

func cmdParse(args []string) int {
	_, src, ok := readSource(args)
	if !ok {
		return exitDiagnostics
	}
	diags := &basic.DiagSink{}
	module := basic.Parse(src, diags)
	fmt.Print(basic.DumpAST(module))
	reportDiags(diags.Diags)
	if diags.HasErrors() {
		return exitDiagnostics
	}
	return exitOK
}

func openHistory() *history.Store {
	if !configuration.GetBool("REPL", "history", true) {
		return nil
	}
	path := configuration.GetString("REPL", "history_db", "retrobasic.db")
	hist, err := history.Open(path)
	if err != nil {
		logger.Warn(logger.AreaDatabase, "history unavailable: %v", err)
		return nil
	}
	return hist
}

func cmdRepl() int {
	hist := openHistory()
	if hist != nil {
		defer hist.Close()
		if recent, err := hist.Recent(configuration.GetInt("REPL", "history_recall", 10)); err == nil && len(recent) > 0 {
			fmt.Printf("(%d lines of history in %s)\n", len(recent), configuration.GetString("REPL", "history_db", "retrobasic.db"))
		}
	}

	engine := repl.New(host.NewStdHost(), hist)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("retrobasic REPL - a block runs once its closing line is entered, Ctrl-D exits")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if engine.NeedsMore() {
			fmt.Print("... ")
		} else {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			fmt.Println()
			return exitOK
		}
		diags, rerr := engine.Step(ctx, scanner.Text())
		reportDiags(diags)
		if rerr != nil {
			fmt.Fprintln(os.Stderr, rerr.Error())
			if rerr.Code == basic.ErrInterrupted {
				return exitInterrupted
			}
		}
	}
}

func cmdServe() int {
	hist := openHistory()
	if hist != nil {
		defer hist.Close()
	}
	srv := terminal.NewServer(hist)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
		return exitRuntime
	}
	return exitOK
}
