package host

import (
	"io"
	"testing"

	"github.com/antibyte/retrobasic/pkg/basic"
)

func TestMemHostScriptedInput(t *testing.T) {
	h := NewMemHost("one", "two")
	if line, _ := h.StdinReadLine(); line != "one" {
		t.Errorf("first line = %q", line)
	}
	if line, _ := h.StdinReadLine(); line != "two" {
		t.Errorf("second line = %q", line)
	}
	if _, err := h.StdinReadLine(); err != io.EOF {
		t.Errorf("exhausted input should return EOF, got %v", err)
	}
}

func TestMemHostFiles(t *testing.T) {
	h := NewMemHost()
	f, err := h.Open("out.txt", basic.ModeOutput)
	if err != nil {
		t.Fatalf("open for output: %v", err)
	}
	f.Write([]byte("hello\n"))
	f.Close()

	content, ok := h.FileContent("out.txt")
	if !ok || content != "hello\n" {
		t.Errorf("content = %q, ok=%v", content, ok)
	}

	if _, err := h.Open("missing.txt", basic.ModeInput); err == nil {
		t.Error("opening a missing file for input must fail")
	}

	h.PutFile("in.txt", "line\n")
	r, err := h.Open("in.txt", basic.ModeInput)
	if err != nil {
		t.Fatalf("open for input: %v", err)
	}
	buf := make([]byte, 16)
	n, _ := r.Read(buf)
	if string(buf[:n]) != "line\n" {
		t.Errorf("read = %q", buf[:n])
	}
}

func TestMemHostAppend(t *testing.T) {
	h := NewMemHost()
	f, _ := h.Open("log.txt", basic.ModeAppend)
	f.Write([]byte("a"))
	f.Close()
	f, _ = h.Open("log.txt", basic.ModeAppend)
	f.Write([]byte("b"))
	f.Close()
	if content, _ := h.FileContent("log.txt"); content != "ab" {
		t.Errorf("append content = %q", content)
	}
}
