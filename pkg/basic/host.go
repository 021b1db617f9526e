package basic

// FileMode is the OPEN mode of a channel.
type FileMode uint8

const (
	ModeInput FileMode = iota
	ModeOutput
	ModeAppend
	ModeBinary
	ModeRandom
)

func (m FileMode) String() string {
	switch m {
	case ModeInput:
		return "INPUT"
	case ModeOutput:
		return "OUTPUT"
	case ModeAppend:
		return "APPEND"
	case ModeBinary:
		return "BINARY"
	case ModeRandom:
		return "RANDOM"
	}
	return "?"
}

// HostFile is an open file handle provided by the host.
type HostFile interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Close() error
}

// Host is the minimal external surface the VM runs against: standard
// input/output, a clock and a file system. The optional audio/video
// entry points live on AVHost.
type Host interface {
	// StdinReadLine blocks for one line of input, without the
	// terminator.
	StdinReadLine() (string, error)
	// StdoutWrite emits output bytes.
	StdoutWrite(s string)
	// NowTicks returns seconds since midnight with sub-second
	// precision (the TIMER value).
	NowTicks() float64
	// Open opens a file in the given mode.
	Open(path string, mode FileMode) (HostFile, error)
}

// AVHost is the optional graphics/sound surface. A host that does not
// implement it turns the corresponding intrinsics into
// FeatureUnavailable failures.
type AVHost interface {
	Cls()
	Beep()
	Sound(freq, duration float64)
	Play(melody string)
	Screen(mode int)
}
