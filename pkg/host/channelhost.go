package host

import (
	"io"
	"time"
)

// ChannelHost adapts a VM host onto a channel-fed input queue and an
// output callback, for transports like the websocket terminal.
type ChannelHost struct {
	*MemHost
	inputs <-chan string
}

// NewChannelHost builds a host whose console input arrives on a
// channel and whose output goes to the sink callback.
func NewChannelHost(inputs <-chan string, sink func(string)) *ChannelHost {
	m := NewMemHost()
	m.WriteFunc = sink
	h := &ChannelHost{MemHost: m, inputs: inputs}
	m.ReadLineFunc = h.readLine
	return h
}

func (h *ChannelHost) readLine() (string, error) {
	line, ok := <-h.inputs
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

// NowTicks uses the wall clock; the scripted Ticks field is not used
// for live sessions.
func (h *ChannelHost) NowTicks() float64 {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return now.Sub(midnight).Seconds()
}
