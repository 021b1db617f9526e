package basic

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestImageRoundTrip(t *testing.T) {
	src := strings.Join([]string{
		"TYPE Point",
		"  x AS INTEGER",
		"  y AS DOUBLE",
		"END TYPE",
		"DIM pts(4) AS Point",
		"DIM total AS _INTEGER64",
		"CONST GREETING$ = \"hello\"",
		"FOR i = 0 TO 4",
		"  pts(i).x = i",
		"NEXT i",
		"PRINT GREETING$; pts(2).x",
		"DATA 1, 2.5, \"three\"",
		"READ a, b, c$",
		"L1: GOSUB L2",
		"END",
		"L2: RETURN",
		"SUB Tally (n AS _INTEGER64)",
		"  total = total + n",
		"END SUB",
	}, "\n")
	prog, _, diags := Compile(src)
	if diags.HasErrors() {
		t.Fatalf("compile diagnostics: %v", diags.Diags)
	}

	var buf bytes.Buffer
	if err := WriteImage(&buf, prog); err != nil {
		t.Fatalf("write image: %v", err)
	}
	got, rerr := ReadImage(bytes.NewReader(buf.Bytes()))
	if rerr != nil {
		t.Fatalf("read image: %v", rerr)
	}

	if !reflect.DeepEqual(got.Instructions, prog.Instructions) {
		t.Errorf("instruction streams differ")
	}
	if !reflect.DeepEqual(got.Consts, prog.Consts) {
		t.Errorf("constant pools differ:\n got %v\nwant %v", got.Consts, prog.Consts)
	}
	if !reflect.DeepEqual(got.Data, prog.Data) {
		t.Errorf("DATA pools differ")
	}
	if !reflect.DeepEqual(got.Procs, prog.Procs) {
		t.Errorf("procedure tables differ:\n got %+v\nwant %+v", got.Procs, prog.Procs)
	}
	if !reflect.DeepEqual(got.GlobalDescs, prog.GlobalDescs) {
		t.Errorf("global layouts differ")
	}
	if !reflect.DeepEqual(got.ArrayDescs, prog.ArrayDescs) {
		t.Errorf("array descriptors differ")
	}
	if !reflect.DeepEqual(got.Labels, prog.Labels) {
		t.Errorf("label tables differ")
	}
	if !reflect.DeepEqual(got.Spans, prog.Spans) {
		t.Errorf("source maps differ")
	}
	if len(got.Records) != len(prog.Records) {
		t.Fatalf("record tables differ in length")
	}
	for i := range got.Records {
		if got.Records[i].Name != prog.Records[i].Name || got.Records[i].Size != prog.Records[i].Size {
			t.Errorf("record %d differs", i)
		}
	}
	if got.Flags != prog.Flags {
		t.Errorf("flags differ: %x vs %x", got.Flags, prog.Flags)
	}
}

func TestImageRejectsGarbage(t *testing.T) {
	_, rerr := ReadImage(strings.NewReader("not an image"))
	if rerr == nil || rerr.Code != ErrUnsupportedImage {
		t.Errorf("expected UnsupportedImage, got %v", rerr)
	}
}

func TestImageRejectsNewerVersion(t *testing.T) {
	prog, _, diags := Compile("PRINT 1")
	if diags.HasErrors() {
		t.Fatal("compile failed")
	}
	var buf bytes.Buffer
	if err := WriteImage(&buf, prog); err != nil {
		t.Fatalf("write image: %v", err)
	}
	raw := buf.Bytes()
	raw[4] = 0xFF // bump the version field
	raw[5] = 0xFF
	_, rerr := ReadImage(bytes.NewReader(raw))
	if rerr == nil || rerr.Code != ErrUnsupportedImage {
		t.Errorf("expected UnsupportedImage, got %v", rerr)
	}
}

// An image round trip must execute identically.
func TestImageExecutesAfterRoundTrip(t *testing.T) {
	src := "FOR i = 1 TO 3\n  PRINT i;\nNEXT i"
	prog, _, diags := Compile(src)
	if diags.HasErrors() {
		t.Fatal("compile failed")
	}
	var buf bytes.Buffer
	if err := WriteImage(&buf, prog); err != nil {
		t.Fatalf("write image: %v", err)
	}
	loaded, rerr := ReadImage(bytes.NewReader(buf.Bytes()))
	if rerr != nil {
		t.Fatalf("read image: %v", rerr)
	}
	h := newTestHost()
	vm := NewVM(loaded, h, DefaultVMOptions())
	if rerr := vm.Run(context.Background()); rerr != nil {
		t.Fatalf("runtime failure: %v", rerr)
	}
	if got := h.out.String(); got != " 1  2  3 " {
		t.Errorf("output = %q", got)
	}
}
