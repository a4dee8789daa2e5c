package client

import (
	"time"

	"github.com/juyss/librespeed-vue/module/config"
)

type PingResult struct {
	Samples []time.Duration
	Average time.Duration
	Jitter  time.Duration
}

type Throughput struct {
	Bytes   uint64
	Elapsed time.Duration
}

// Mbps is the rate in megabits per second.
func (t Throughput) Mbps() float64 {
	seconds := t.Elapsed.Seconds()
	if seconds <= 0 {
		return 0
	}

	return float64(t.Bytes) * 8 / seconds / 1e6
}

type Report struct {
	IP       string
	Config   config.TestConfig
	Ping     PingResult
	Download Throughput
	Upload   Throughput
}
