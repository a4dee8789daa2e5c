package main

import (
	"time"
)

type config struct {
	Log       logConfig
	Server    serverConfig
	Speedtest speedtestConfig
	Download  streamConfig
	Upload    streamConfig
	Location  locationConfig
	Metrics   metricsConfig
}

type logConfig struct {
	Pretty bool
	Level  string
}

type serverConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ForwardedHeader string
	StaticDir       string
	CORS            bool
}

type speedtestConfig struct {
	DownloadSize uint32
	UploadSize   uint32
	PingCount    uint32
	DurationMs   uint32
}

type streamConfig struct {
	MaxDuration time.Duration
}

type locationConfig struct {
	GeoLite2Path  string
	IPInfoToken   string
	LookupTimeout time.Duration
}

type metricsConfig struct {
	Enabled   bool
	Route     string
	Namespace string
}
