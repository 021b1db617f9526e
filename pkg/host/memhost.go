package host

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/antibyte/retrobasic/pkg/basic"
)

// MemHost is a scripted host with an in-memory file system. Tests
// feed it an input transcript and read back the output transcript;
// the terminal server uses it with a live input queue.
type MemHost struct {
	mu     sync.Mutex
	inputs []string
	out    strings.Builder
	files  map[string]*memFile
	Ticks  float64

	// ReadLineFunc, when set, replaces the scripted input queue.
	ReadLineFunc func() (string, error)
	// WriteFunc, when set, receives output instead of the buffer.
	WriteFunc func(s string)
}

// NewMemHost builds an empty scripted host.
func NewMemHost(inputs ...string) *MemHost {
	return &MemHost{inputs: inputs, files: make(map[string]*memFile)}
}

// StdinReadLine pops the next scripted line.
func (h *MemHost) StdinReadLine() (string, error) {
	if h.ReadLineFunc != nil {
		return h.ReadLineFunc()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.inputs) == 0 {
		return "", io.EOF
	}
	line := h.inputs[0]
	h.inputs = h.inputs[1:]
	return line, nil
}

// StdoutWrite appends to the output transcript.
func (h *MemHost) StdoutWrite(s string) {
	if h.WriteFunc != nil {
		h.WriteFunc(s)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.out.WriteString(s)
}

// Output returns the collected transcript.
func (h *MemHost) Output() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out.String()
}

// NowTicks returns the scripted clock.
func (h *MemHost) NowTicks() float64 { return h.Ticks }

// Open opens an in-memory file.
func (h *MemHost) Open(path string, mode basic.FileMode) (basic.HostFile, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.files[path]
	switch mode {
	case basic.ModeInput:
		if !ok {
			return nil, errors.New("file not found: " + path)
		}
		return &memHandle{file: f, r: bytes.NewReader(f.data)}, nil
	case basic.ModeOutput:
		f = &memFile{}
		h.files[path] = f
		return &memHandle{file: f}, nil
	case basic.ModeAppend:
		if !ok {
			f = &memFile{}
			h.files[path] = f
		}
		return &memHandle{file: f}, nil
	default:
		if !ok {
			f = &memFile{}
			h.files[path] = f
		}
		return &memHandle{file: f, r: bytes.NewReader(f.data)}, nil
	}
}

// FileContent returns a stored file's bytes, for assertions.
func (h *MemHost) FileContent(path string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.files[path]
	if !ok {
		return "", false
	}
	return string(f.data), true
}

// PutFile seeds a file before a run.
func (h *MemHost) PutFile(path, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[path] = &memFile{data: []byte(content)}
}

type memFile struct {
	data []byte
}

type memHandle struct {
	file *memFile
	r    *bytes.Reader
	pos  int64
}

func (m *memHandle) Read(p []byte) (int, error) {
	if m.r == nil {
		return 0, io.EOF
	}
	return m.r.Read(p)
}

func (m *memHandle) Write(p []byte) (int, error) {
	m.file.data = append(m.file.data, p...)
	return len(p), nil
}

func (m *memHandle) Seek(offset int64, whence int) (int64, error) {
	if m.r != nil {
		return m.r.Seek(offset, whence)
	}
	m.pos = offset
	return m.pos, nil
}

func (m *memHandle) Close() error { return nil }
