package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chaz8081/hubload/internal/ble"
)

func TestStateBusSlowSubscriber(t *testing.T) {
	bus := newStateBus()
	slow, unsubSlow := bus.subscribe()
	defer unsubSlow()

	for i := 0; i < 20; i++ {
		bus.publish(ble.State{Status: ble.StatusConnecting})
	}
	assert.Len(t, slow, 16, "publish must not block on a full subscriber")
}

func TestStateBusUnsubscribe(t *testing.T) {
	bus := newStateBus()
	ch, unsub := bus.subscribe()
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
	bus.publish(ble.State{Status: ble.StatusConnected})
}
