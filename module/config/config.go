package config

import (
	"net/http"

	"github.com/juyss/librespeed-vue/module"

	"github.com/labstack/echo/v4"
)

const Route = "/config"

// Publisher hands out the same TestConfig for the life of the process.
type Publisher struct {
	config TestConfig
}

// NewPublisher fixes the published values. Zero fields fall back to the
// defaults.
func NewPublisher(config TestConfig) Publisher {
	defaults := DefaultTestConfig()
	if config.DownloadSize == 0 {
		config.DownloadSize = defaults.DownloadSize
	}
	if config.UploadSize == 0 {
		config.UploadSize = defaults.UploadSize
	}
	if config.PingCount == 0 {
		config.PingCount = defaults.PingCount
	}
	if config.DurationMs == 0 {
		config.DurationMs = defaults.DurationMs
	}

	return Publisher{config: config}
}

func (p Publisher) Config() TestConfig {
	return p.config
}

type Module struct {
	publisher Publisher
}

func NewModule(publisher Publisher) Module {
	return Module{publisher: publisher}
}

func (Module) Type() module.Type {
	return module.ConfigType
}

func (Module) Method() string {
	return http.MethodGet
}

func (Module) Route() string {
	return Route
}

func (m Module) Handle(c echo.Context) error {
	return c.JSON(http.StatusOK, m.publisher.Config())
}
