package config

// TestConfig holds the parameters every client runs its measurement with.
type TestConfig struct {
	DownloadSize uint32 `json:"downloadSize"`
	UploadSize   uint32 `json:"uploadSize"`
	PingCount    uint32 `json:"pingCount"`
	DurationMs   uint32 `json:"durationMs"`
}

const (
	DefaultDownloadSize uint32 = 25 * 1024 * 1024
	DefaultUploadSize   uint32 = 8 * 1024 * 1024
	DefaultPingCount    uint32 = 10
	DefaultDurationMs   uint32 = 10000
)

func DefaultTestConfig() TestConfig {
	return TestConfig{
		DownloadSize: DefaultDownloadSize,
		UploadSize:   DefaultUploadSize,
		PingCount:    DefaultPingCount,
		DurationMs:   DefaultDurationMs,
	}
}
