package hub

import (
	"sync"

	"github.com/chaz8081/hubload/internal/ble"
)

// stateBus fans connection states out to subscribers across sessions.
type stateBus struct {
	mu   sync.RWMutex
	subs map[chan ble.State]struct{}
}

func newStateBus() *stateBus {
	return &stateBus{subs: make(map[chan ble.State]struct{})}
}

func (b *stateBus) subscribe() (<-chan ble.State, func()) {
	ch := make(chan ble.State, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// publish never blocks. A subscriber whose buffer is full misses st and
// can read State() to catch up.
func (b *stateBus) publish(st ble.State) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- st:
		default:
		}
	}
}
