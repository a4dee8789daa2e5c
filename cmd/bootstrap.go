package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/juyss/librespeed-vue/metrics"
	"github.com/juyss/librespeed-vue/module"
	config_module "github.com/juyss/librespeed-vue/module/config"
	"github.com/juyss/librespeed-vue/module/garbage"
	"github.com/juyss/librespeed-vue/module/ip"
	"github.com/juyss/librespeed-vue/module/upload"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log2 "github.com/labstack/gommon/log"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	log3 "github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/ziflex/lecho/v3"
	"go.uber.org/dig"
	"gopkg.in/yaml.v3"
)

func defaultConfig() config {
	defaults := config_module.DefaultTestConfig()

	//nolint:gomnd
	return config{
		Log: logConfig{
			Pretty: true,
			Level:  "info",
		},
		Server: serverConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: 10 * time.Second,
			ForwardedHeader: ip.ForwardedForHeader,
		},
		Speedtest: speedtestConfig{
			DownloadSize: defaults.DownloadSize,
			UploadSize:   defaults.UploadSize,
			PingCount:    defaults.PingCount,
			DurationMs:   defaults.DurationMs,
		},
		Location: locationConfig{
			LookupTimeout: 2 * time.Second,
		},
		Metrics: metricsConfig{
			Enabled:   true,
			Route:     "/metrics",
			Namespace: "speedtest",
		},
	}
}

func setConfig(ctx context.Context, configPath string) (*config, error) {
	log := log3.With().Str("role", "main").Caller().Logger()
	cfg := defaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Warn().Str("config_path", configPath).Msg("config file does not exist, writing defaults")

		cfgStr, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "cannot marshal config to yaml")
		}

		err = os.WriteFile(configPath, cfgStr, 0o600)
		if err != nil {
			return nil, errors.Wrap(err, "cannot create config file")
		}
	}

	viper.SetConfigFile(configPath)
	log.Debug().Str("config_path", configPath).Msg("reading config file")

	err := viper.ReadInConfig()
	if err != nil {
		return nil, errors.Wrap(err, "cannot read config file")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err = viper.Unmarshal(&cfg)
	if err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal config")
	}

	return &cfg, nil
}

func setupLogging(cfg logConfig) error {
	if cfg.Pretty {
		log3.Logger = log3.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return errors.Wrap(err, "cannot parse log level")
	}

	zerolog.SetGlobalLevel(level)
	return nil
}

func newLocationResolver(cfg locationConfig) (module.LocationResolver, error) {
	if cfg.GeoLite2Path != "" {
		path, err := homedir.Expand(cfg.GeoLite2Path)
		if err != nil {
			return nil, errors.Wrap(err, "cannot expand geolite2 path")
		}

		resolver, err := module.NewGeoLite2Resolver(path)
		if err != nil {
			return nil, err
		}

		return resolver, nil
	}

	if cfg.IPInfoToken != "" {
		return module.NewIPInfoResolver(cfg.IPInfoToken), nil
	}

	return nil, nil
}

type speedtestModuleResult struct {
	dig.Out
	Module module.Module `group:"speedtest_module"`
}

type apiParams struct {
	dig.In
	Config    *config
	Collector *metrics.TransferCollector
	Modules   []module.Module `group:"speedtest_module"`
}

//nolint:funlen
func setupDependencies(container *dig.Container, cfg *config) error {
	log := log3.With().Str("role", "main").Caller().Logger()

	err := container.Provide(func() *config { return cfg })
	if err != nil {
		return errors.Wrap(err, "cannot provide config")
	}

	// DI: metrics
	err = container.Provide(
		func() *metrics.TransferCollector {
			return metrics.NewTransferCollector(cfg.Metrics.Namespace)
		},
	)
	if err != nil {
		return errors.Wrap(err, "cannot provide transfer collector")
	}

	err = container.Provide(
		func(collector *metrics.TransferCollector) metrics.Recorder {
			if !cfg.Metrics.Enabled {
				return metrics.Noop{}
			}
			return collector
		},
	)
	if err != nil {
		return errors.Wrap(err, "cannot provide metrics recorder")
	}

	// DI: location
	err = container.Provide(
		func() (module.LocationResolver, error) {
			return newLocationResolver(cfg.Location)
		},
	)
	if err != nil {
		return errors.Wrap(err, "cannot provide location resolver")
	}

	err = container.Provide(garbage.DefaultGenerator)
	if err != nil {
		return errors.Wrap(err, "cannot provide payload generator")
	}

	// DI: ip module
	err = container.Provide(
		func(locator module.LocationResolver) speedtestModuleResult {
			return speedtestModuleResult{
				Module: ip.NewModule(
					ip.Config{
						Header:        cfg.Server.ForwardedHeader,
						Locator:       locator,
						LookupTimeout: cfg.Location.LookupTimeout,
					},
				),
			}
		},
	)
	if err != nil {
		return errors.Wrap(err, "cannot provide ip module")
	}

	// DI: garbage module
	err = container.Provide(
		func(generator garbage.Generator, recorder metrics.Recorder) speedtestModuleResult {
			return speedtestModuleResult{
				Module: garbage.NewModule(
					garbage.Config{
						Generator:   generator,
						Recorder:    recorder,
						MaxDuration: cfg.Download.MaxDuration,
					},
				),
			}
		},
	)
	if err != nil {
		return errors.Wrap(err, "cannot provide garbage module")
	}

	// DI: upload module
	err = container.Provide(
		func(recorder metrics.Recorder) speedtestModuleResult {
			return speedtestModuleResult{
				Module: upload.NewModule(
					upload.Config{
						Recorder:    recorder,
						MaxDuration: cfg.Upload.MaxDuration,
					},
				),
			}
		},
	)
	if err != nil {
		return errors.Wrap(err, "cannot provide upload module")
	}

	// DI: config module
	err = container.Provide(
		func() speedtestModuleResult {
			publisher := config_module.NewPublisher(
				config_module.TestConfig{
					DownloadSize: cfg.Speedtest.DownloadSize,
					UploadSize:   cfg.Speedtest.UploadSize,
					PingCount:    cfg.Speedtest.PingCount,
					DurationMs:   cfg.Speedtest.DurationMs,
				},
			)
			return speedtestModuleResult{Module: config_module.NewModule(publisher)}
		},
	)
	if err != nil {
		return errors.Wrap(err, "cannot provide config module")
	}

	// DI: echo API
	err = container.Provide(newAPI)
	if err != nil {
		return errors.Wrap(err, "cannot provide api")
	}

	log.Debug().Msg("dependencies ready")
	return nil
}

func newAPI(params apiParams) (*echo.Echo, error) {
	cfg := params.Config

	api := echo.New()
	api.HideBanner = true
	api.HidePort = true

	echoLogger := lecho.From(
		log3.Logger,
		lecho.WithLevel(log2.INFO),
		lecho.WithField("role", "http_api"),
		lecho.WithTimestamp(),
	)
	api.Logger = echoLogger
	api.Use(lecho.Middleware(lecho.Config{Logger: echoLogger}))
	api.Use(middleware.Recover())
	api.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))

	if cfg.Server.CORS {
		api.Use(middleware.CORS())
	}

	err := module.Register(api, params.Modules...)
	if err != nil {
		return nil, errors.Wrap(err, "cannot register modules")
	}

	if cfg.Metrics.Enabled {
		handler := promhttp.HandlerFor(params.Collector.Registry(), promhttp.HandlerOpts{})
		api.GET(cfg.Metrics.Route, echo.WrapHandler(handler))
	}

	if cfg.Server.StaticDir != "" {
		api.Static("/", cfg.Server.StaticDir)
	}

	api.Server.ReadTimeout = cfg.Server.ReadTimeout
	api.Server.WriteTimeout = cfg.Server.WriteTimeout
	api.Server.IdleTimeout = cfg.Server.IdleTimeout

	return api, nil
}

func serve(ctx context.Context, api *echo.Echo, cfg serverConfig) error {
	log := log3.With().Str("role", "main").Caller().Logger()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen_addr", cfg.ListenAddr).Msg("starting speedtest api")
		errCh <- api.Start(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "cannot start speedtest api")
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Unbounded downloads never go idle, so they are cut once the grace period is over.
	err := api.Shutdown(shutdownCtx)
	if err != nil {
		log.Warn().Err(err).Msg("graceful shutdown did not complete, closing connections")
		return errors.Wrap(api.Close(), "cannot close speedtest api")
	}

	return nil
}

func run(ctx context.Context, configPath string) error {
	container := dig.New()

	cfg, err := setConfig(ctx, configPath)
	if err != nil {
		return errors.Wrap(err, "cannot set config")
	}

	err = setupLogging(cfg.Log)
	if err != nil {
		return err
	}

	err = setupDependencies(container, cfg)
	if err != nil {
		return errors.Wrap(err, "cannot setup dependencies")
	}

	err = container.Invoke(
		func(api *echo.Echo, locator module.LocationResolver) error {
			if closer, ok := locator.(interface{ Close() error }); ok {
				defer closer.Close()
			}

			return serve(ctx, api, cfg.Server)
		},
	)

	return errors.Wrap(err, "cannot run speedtest api")
}
