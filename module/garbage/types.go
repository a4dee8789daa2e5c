package garbage

import (
	"math"
	"strconv"
	"strings"
)

// Request describes one download test. A zero Size streams until the client
// goes away.
type Request struct {
	Size uint64 `json:"size"`
}

func (r Request) Bounded() bool {
	return r.Size > 0
}

// ParseSize reads the size query parameter. Anything that is not a positive
// integer selects the unbounded mode instead of being rejected. Sizes above
// math.MaxInt64 cannot be announced in Content-Length and are streamed
// unbounded as well.
func ParseSize(raw string) uint64 {
	size, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || size > math.MaxInt64 {
		return 0
	}

	return size
}
