package resources

import (
	"math/rand"
	"sync"
	"time"
)

// ChunkSize is the size of the shared download payload and the upper bound of
// a single download write.
const ChunkSize = 64 * 1024

var (
	payloadOnce sync.Once
	payload     []byte
)

// Payload returns the process wide random chunk. It is generated on first use
// and must be treated as read-only by every caller.
func Payload() []byte {
	payloadOnce.Do(func() {
		payload = NewPayload(ChunkSize, rand.New(rand.NewSource(time.Now().UnixNano())))
	})

	return payload
}

// NewPayload fills a new buffer of the given size from source. The bytes only
// need to defeat compression on the path, they are not meant to be secret.
func NewPayload(size int, source *rand.Rand) []byte {
	buf := make([]byte, size)
	//nolint:gosec
	_, _ = source.Read(buf)
	return buf
}
