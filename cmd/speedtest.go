package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juyss/librespeed-vue/client"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

type measureOptions struct {
	Server    string
	ChunkSize int
	Parallel  int
	Retries   int
}

func measure(ctx context.Context, w io.Writer, options measureOptions) error {
	//nolint:gomnd
	speedtest := client.NewClient(
		client.Config{
			BaseURL:      options.Server,
			RetryCount:   options.Retries,
			RetryWait:    time.Second,
			RetryWaitMax: 10 * time.Second,
		},
	)

	report, err := speedtest.Run(
		ctx, client.RunOptions{
			ChunkSize: options.ChunkSize,
			Parallel:  options.Parallel,
		},
	)
	if err != nil {
		return errors.Wrap(err, "measurement failed")
	}

	return printReport(w, report)
}

func printReport(w io.Writer, report *client.Report) error {
	_, err := fmt.Fprintf(
		w,
		"ip:        %s\n"+
			"ping:      %s (jitter %s, %d samples)\n"+
			"download:  %s Mbps (%s in %s)\n"+
			"upload:    %s Mbps (%s in %s)\n",
		report.IP,
		report.Ping.Average.Round(time.Microsecond),
		report.Ping.Jitter.Round(time.Microsecond),
		len(report.Ping.Samples),
		humanize.FormatFloat("#,###.##", report.Download.Mbps()),
		humanize.Bytes(report.Download.Bytes),
		report.Download.Elapsed.Round(time.Millisecond),
		humanize.FormatFloat("#,###.##", report.Upload.Mbps()),
		humanize.Bytes(report.Upload.Bytes),
		report.Upload.Elapsed.Round(time.Millisecond),
	)

	return errors.Wrap(err, "cannot print report")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var configPath string
	var options measureOptions
	app := &cli.App{
		Name:  "speedtest",
		Usage: "bandwidth and latency measurement server",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "start serving speed test endpoints",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "config",
						Aliases:     []string{"c"},
						Usage:       "path to the config file",
						Value:       "./config.yaml",
						Destination: &configPath,
					},
				},
				Action: func(c *cli.Context) error {
					return run(c.Context, configPath)
				},
			},
			{
				Name:  "measure",
				Usage: "run a measurement against a speed test server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "server",
						Aliases:     []string{"s"},
						Usage:       "base url of the speed test server",
						Value:       "http://localhost:8080",
						Destination: &options.Server,
					},
					&cli.IntFlag{
						Name:        "chunk-size",
						Usage:       "bytes sent by each upload request",
						Value:       client.DefaultChunkSize,
						Destination: &options.ChunkSize,
					},
					&cli.IntFlag{
						Name:        "parallel",
						Aliases:     []string{"p"},
						Usage:       "number of concurrent upload streams",
						Value:       client.DefaultParallel,
						Destination: &options.Parallel,
					},
					&cli.IntFlag{
						Name:        "retries",
						Usage:       "retries for failed control requests",
						Value:       3,
						Destination: &options.Retries,
					},
				},
				Action: func(c *cli.Context) error {
					return measure(c.Context, c.App.Writer, options)
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}
