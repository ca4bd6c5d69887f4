package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiverDecodesASCII(t *testing.T) {
	buf := NewBuffer()
	r := NewReceiver(buf)

	r.OnPacket([]byte(">>> Connection Test Started\n"))
	r.OnPacket([]byte("Blink 1/5\n"))

	assert.Equal(t, ">>> Connection Test Started\nBlink 1/5\n", buf.String())
	assert.Equal(t, []string{">>> Connection Test Started\n", "Blink 1/5\n"}, buf.Fragments())
}

func TestReceiverReplacesInvalidBytes(t *testing.T) {
	buf := NewBuffer()
	r := NewReceiver(buf)

	require.NotPanics(t, func() {
		r.OnPacket([]byte{'o', 'k', 0xff, 0xfe, '!'})
	})
	assert.Equal(t, "ok�!", buf.String())
}

func TestReceiverJoinsSplitRune(t *testing.T) {
	buf := NewBuffer()
	r := NewReceiver(buf)

	check := []byte("✓") // 3 bytes
	r.OnPacket(append([]byte("done "), check[:2]...))
	assert.Equal(t, "done ", buf.String(), "partial rune must be held back")

	r.OnPacket(append(check[2:], '\n'))
	assert.Equal(t, "done ✓\n", buf.String())
}

func TestReceiverSplitAcrossThreePackets(t *testing.T) {
	buf := NewBuffer()
	r := NewReceiver(buf)

	emoji := []byte("\U0001F600") // 4 bytes
	r.OnPacket(emoji[:1])
	r.OnPacket(emoji[1:3])
	assert.Equal(t, 0, buf.Len())
	r.OnPacket(emoji[3:])
	assert.Equal(t, "\U0001F600", buf.String())
}

func TestReceiverFlushEmitsReplacement(t *testing.T) {
	buf := NewBuffer()
	r := NewReceiver(buf)

	r.OnPacket([]byte{'a', 0xe2, 0x9c})
	r.Flush()
	assert.Equal(t, "a�", buf.String())

	// Nothing pending: Flush is a no-op.
	r.Flush()
	assert.Equal(t, "a�", buf.String())
}

func TestReceiverEmptyPacket(t *testing.T) {
	var got []string
	r := NewReceiver(SinkFunc(func(text string) { got = append(got, text) }))
	r.OnPacket(nil)
	r.OnPacket([]byte{})
	assert.Empty(t, got)
}
