// Package console turns the hub's notify-channel packets into text and
// keeps the caller-visible output history.
package console

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Sink receives decoded text fragments in arrival order.
type Sink interface {
	Append(text string)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(text string)

func (f SinkFunc) Append(text string) { f(text) }

// Receiver decodes inbound packets as UTF-8 and forwards them to a Sink.
// Invalid bytes are replaced with U+FFFD. A multi-byte sequence cut by a
// packet boundary is held back until the next packet completes it.
type Receiver struct {
	mu      sync.Mutex
	sink    Sink
	pending []byte
}

// NewReceiver creates a Receiver writing to sink.
func NewReceiver(sink Sink) *Receiver {
	return &Receiver{sink: sink}
}

// OnPacket decodes one notification packet.
func (r *Receiver) OnPacket(p []byte) {
	if len(p) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data := append(r.pending, p...)
	cut := completePrefix(data)
	r.pending = append([]byte(nil), data[cut:]...)

	if cut == 0 {
		return
	}
	r.sink.Append(strings.ToValidUTF8(string(data[:cut]), string(utf8.RuneError)))
}

// Flush emits any held-back partial sequence as a replacement character.
// Call it when the link goes away.
func (r *Receiver) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return
	}
	r.pending = nil
	r.sink.Append(string(utf8.RuneError))
}

// completePrefix returns the length of data without a trailing incomplete
// UTF-8 sequence. At most utf8.UTFMax-1 bytes are ever held back.
func completePrefix(data []byte) int {
	n := len(data)
	for i := n - 1; i >= 0 && i >= n-(utf8.UTFMax-1); i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if utf8.FullRune(data[i:]) {
			return n
		}
		return i
	}
	return n
}
