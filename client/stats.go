package client

import (
	"math"
	"time"
)

// pingStats returns the mean of the samples and their population standard
// deviation, which is what is reported as jitter.
func pingStats(samples []time.Duration) (time.Duration, time.Duration) {
	if len(samples) == 0 {
		return 0, 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	mean := sum / float64(len(samples))

	var variance float64
	for _, s := range samples {
		d := float64(s) - mean
		variance += d * d
	}
	variance /= float64(len(samples))

	return time.Duration(mean), time.Duration(math.Sqrt(variance))
}
