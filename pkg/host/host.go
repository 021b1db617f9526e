// Package host provides the standard implementation of the VM host
// surface: real standard streams, the OS clock and the OS file
// system. A scripted in-memory host lives alongside it for tests and
// the websocket terminal.
package host

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/antibyte/retrobasic/pkg/basic"
)

// StdHost serves a VM from the process's standard streams and the
// real file system.
type StdHost struct {
	in  *bufio.Reader
	out io.Writer
}

// NewStdHost builds the default host over os.Stdin/os.Stdout.
func NewStdHost() *StdHost {
	return &StdHost{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// StdinReadLine blocks for one line of console input.
func (h *StdHost) StdinReadLine() (string, error) {
	line, err := h.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return trimLineEnd(line), nil
}

// StdoutWrite emits console output.
func (h *StdHost) StdoutWrite(s string) {
	io.WriteString(h.out, s)
}

// NowTicks returns seconds since local midnight, the TIMER value.
func (h *StdHost) NowTicks() float64 {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return now.Sub(midnight).Seconds()
}

// Open opens a real file in the requested mode.
func (h *StdHost) Open(path string, mode basic.FileMode) (basic.HostFile, error) {
	switch mode {
	case basic.ModeInput:
		return os.Open(path)
	case basic.ModeOutput:
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	case basic.ModeAppend:
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	default: // BINARY and RANDOM read and write in place
		return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	}
}

func trimLineEnd(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
