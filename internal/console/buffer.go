package console

import (
	"strings"
	"sync"
)

// Buffer is the append-only console history. It is only emptied by Clear;
// connecting or disconnecting never touches it.
type Buffer struct {
	mu    sync.RWMutex
	frags []string
	size  int
	subs  map[*subscriber]struct{}
}

// subscriber holds a buffered channel for one live output consumer.
type subscriber struct {
	ch chan string
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{subs: make(map[*subscriber]struct{})}
}

// Append adds a fragment and fans it out to subscribers.
func (b *Buffer) Append(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frags = append(b.frags, text)
	b.size += len(text)
	for s := range b.subs {
		select {
		case s.ch <- text:
		default:
			// Slow consumer. The history still has the fragment.
		}
	}
}

// String returns the whole history as one string.
func (b *Buffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var sb strings.Builder
	sb.Grow(b.size)
	for _, f := range b.frags {
		sb.WriteString(f)
	}
	return sb.String()
}

// Fragments returns a copy of the fragments in arrival order.
func (b *Buffer) Fragments() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.frags))
	copy(out, b.frags)
	return out
}

// Len returns the history size in bytes.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear empties the history. Subscriptions stay open.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frags = nil
	b.size = 0
}

// Subscribe registers a live consumer of newly appended fragments.
// The returned function unsubscribes and closes the channel.
func (b *Buffer) Subscribe() (<-chan string, func()) {
	s := &subscriber{ch: make(chan string, 64)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, unsub
}
