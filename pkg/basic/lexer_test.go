package basic

import (
	"strings"
	"testing"
)

func lexAll(t *testing.T, src string) ([]Token, *DiagSink) {
	t.Helper()
	diags := &DiagSink{}
	return Tokenize(src, diags), diags
}

func TestLexerBasics(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		kinds []TokenKind
	}{
		{
			name:  "print statement",
			src:   `PRINT "hi"`,
			kinds: []TokenKind{TokKeyword, TokString, TokEOF},
		},
		{
			name:  "assignment with sigil",
			src:   `A% = 1 + 2`,
			kinds: []TokenKind{TokIdent, TokEq, TokNumber, TokPlus, TokNumber, TokEOF},
		},
		{
			name:  "colon separates statements",
			src:   `A = 1 : B = 2`,
			kinds: []TokenKind{TokIdent, TokEq, TokNumber, TokColon, TokIdent, TokEq, TokNumber, TokEOF},
		},
		{
			name:  "line structure",
			src:   "A = 1\nB = 2",
			kinds: []TokenKind{TokIdent, TokEq, TokNumber, TokEOL, TokIdent, TokEq, TokNumber, TokEOF},
		},
		{
			name:  "comment to end of line",
			src:   "A = 1 ' ignored\nB = 2",
			kinds: []TokenKind{TokIdent, TokEq, TokNumber, TokEOL, TokIdent, TokEq, TokNumber, TokEOF},
		},
		{
			name:  "rem comment",
			src:   "REM whole line\nPRINT",
			kinds: []TokenKind{TokEOL, TokKeyword, TokEOF},
		},
		{
			name:  "relational operators",
			src:   `<> <= >= < > =`,
			kinds: []TokenKind{TokNe, TokLe, TokGe, TokLt, TokGt, TokEq, TokEOF},
		},
		{
			name:  "metacommand at line start",
			src:   "$CONSOLE\nPRINT",
			kinds: []TokenKind{TokMeta, TokEOL, TokKeyword, TokEOF},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, diags := lexAll(t, tt.src)
			if diags.HasErrors() {
				t.Fatalf("unexpected diagnostics: %v", diags.Diags)
			}
			if len(toks) != len(tt.kinds) {
				t.Fatalf("got %d tokens, want %d (%v)", len(toks), len(tt.kinds), toks)
			}
			for i, k := range tt.kinds {
				if toks[i].Kind != k {
					t.Errorf("token %d: got kind %d (%q), want %d", i, toks[i].Kind, toks[i].Text, k)
				}
			}
		})
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		src  string
		kind Kind
		i    int64
		f    float64
	}{
		{"42", KindInt16, 42, 0},
		{"32767", KindInt16, 32767, 0},
		{"32768", KindInt32, 32768, 0},
		{"2147483648", KindInt64, 2147483648, 0},
		{"9223372036854775807&&", KindInt64, 9223372036854775807, 0},
		{"7%", KindInt16, 7, 0},
		{"7&", KindInt32, 7, 0},
		{"1.5", KindSingle, 0, 1.5},
		{".25", KindSingle, 0, 0.25},
		{"1.5#", KindDouble, 0, 1.5},
		{"3!", KindSingle, 0, 3},
		{"1E3", KindSingle, 0, 1000},
		{"1D3", KindDouble, 0, 1000},
		{"2.5E-1", KindSingle, 0, 0.25},
		{"&HFF", KindInt32, 255, 0},
		{"&H7FFF%", KindInt16, 32767, 0},
		{"&O17", KindInt32, 15, 0},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks, diags := lexAll(t, tt.src)
			if diags.HasErrors() {
				t.Fatalf("unexpected diagnostics: %v", diags.Diags)
			}
			tok := toks[0]
			if tok.Kind != TokNumber {
				t.Fatalf("not a number token: %v", tok)
			}
			if tok.NumKind != tt.kind {
				t.Errorf("kind = %v, want %v", tok.NumKind, tt.kind)
			}
			if tt.kind.IsInteger() && tok.IntVal != tt.i {
				t.Errorf("int value = %d, want %d", tok.IntVal, tt.i)
			}
			if !tt.kind.IsInteger() && tok.FloatVal != tt.f {
				t.Errorf("float value = %g, want %g", tok.FloatVal, tt.f)
			}
		})
	}
}

func TestLexerStrings(t *testing.T) {
	toks, diags := lexAll(t, `PRINT "say ""hi"" now"`)
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.Diags)
	}
	if toks[1].StrVal != `say "hi" now` {
		t.Errorf("embedded quote: got %q", toks[1].StrVal)
	}

	_, diags = lexAll(t, `PRINT "no end`)
	if !diags.HasErrors() || diags.Diags[0].Code != DiagUnterminatedString {
		t.Errorf("expected UnterminatedString, got %v", diags.Diags)
	}
}

func TestLexerIllegalCharacter(t *testing.T) {
	_, diags := lexAll(t, "A = 1 @ 2")
	found := false
	for _, d := range diags.Diags {
		if d.Code == DiagIllegalCharacter {
			found = true
		}
	}
	if !found {
		t.Errorf("expected IllegalCharacter, got %v", diags.Diags)
	}
}

func TestLexerIdentifierSigils(t *testing.T) {
	toks, _ := lexAll(t, "NAME$ COUNT% TOTAL& RATE! AVG# BIG&&")
	want := []string{"NAME$", "COUNT%", "TOTAL&", "RATE!", "AVG#", "BIG&&"}
	for i, w := range want {
		if toks[i].Kind != TokIdent || toks[i].Text != w {
			t.Errorf("token %d = %q (kind %d), want ident %q", i, toks[i].Text, toks[i].Kind, w)
		}
	}
}

func TestLexerLineContinuation(t *testing.T) {
	toks, diags := lexAll(t, "A = 1 + _\n    2")
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.Diags)
	}
	for _, tok := range toks {
		if tok.Kind == TokEOL {
			t.Fatalf("continuation did not swallow the line end: %v", toks)
		}
	}
}

// Concatenating token slices with the inter-token gaps restored from
// spans must reproduce the source byte for byte.
func TestLexerRoundTrip(t *testing.T) {
	sources := []string{
		"PRINT \"Hello, World!\"\nEND",
		"FOR i = 10 TO 0 STEP -2\n  PRINT i;\nNEXT i",
		"DIM s AS INTEGER : s = 85\nSELECT CASE s\n CASE IS >= 90: PRINT \"A\"\nEND SELECT",
		"READ a,b : PRINT a;b\nDATA 10,20\nL2: DATA 100,200",
		"x# = &HFF + 1.5E2 ' with a comment\n  PRINT x#",
	}
	for _, src := range sources {
		toks, diags := lexAll(t, src)
		if diags.HasErrors() {
			t.Fatalf("unexpected diagnostics for %q: %v", src, diags.Diags)
		}
		var sb strings.Builder
		prevEnd := 0
		for _, tok := range toks {
			if tok.Kind == TokEOF {
				break
			}
			sb.WriteString(src[prevEnd:tok.Span.Start])
			sb.WriteString(src[tok.Span.Start:tok.Span.End])
			prevEnd = tok.Span.End
		}
		sb.WriteString(src[prevEnd:])
		if sb.String() != src {
			t.Errorf("round trip mismatch:\n got %q\nwant %q", sb.String(), src)
		}
	}
}
