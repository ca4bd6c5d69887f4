// internal/ble/protocol/chunk.go
package protocol

// MaxChunkBytes is the payload bytes per NUS write. 20 is the ATT payload
// of the minimum 23-byte MTU, so it fits every link a hub negotiates.
const MaxChunkBytes = 20

// Chunk splits payload into consecutive slices of at most size bytes.
// Splits are byte-exact: a multi-byte UTF-8 sequence may straddle two
// chunks, which the firmware reassembles in its input buffer. The returned
// slices alias payload. Returns nil for an empty payload or size <= 0.
func Chunk(payload []byte, size int) [][]byte {
	if len(payload) == 0 || size <= 0 {
		return nil
	}

	chunks := make([][]byte, 0, ChunkCount(len(payload), size))
	for off := 0; off < len(payload); off += size {
		end := off + size
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[off:end:end])
	}
	return chunks
}

// ChunkCount returns how many writes Chunk produces for n bytes.
func ChunkCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
