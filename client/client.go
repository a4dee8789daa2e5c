package client

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/juyss/librespeed-vue/module/config"
	"github.com/juyss/librespeed-vue/module/garbage"
	"github.com/juyss/librespeed-vue/module/ip"
	"github.com/juyss/librespeed-vue/module/upload"
	"github.com/juyss/librespeed-vue/resources"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	log2 "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSize = 1024 * 1024
	DefaultParallel  = 2

	cacheBusterParam = "x"
)

type Config struct {
	BaseURL      string
	RetryCount   int
	RetryWait    time.Duration
	RetryWaitMax time.Duration
}

type RunOptions struct {
	ChunkSize int
	Parallel  int
}

// Client runs the measurement flow against a speed test server: address,
// parameters, latency, download and upload.
type Client struct {
	client *resty.Client
	log    zerolog.Logger
}

func NewClient(cfg Config) *Client {
	log := log2.With().Str("role", "client").Caller().Logger()
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetLogger(RestyLogger{Log: log}).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryWaitMax).
		AddRetryCondition(
			func(r *resty.Response, err error) bool {
				return r != nil && (r.StatusCode() >= 500 || r.StatusCode() == 429)
			},
		)

	return &Client{
		client: client,
		log:    log,
	}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetQueryParam(cacheBusterParam, uuid.NewString()).
		SetHeader("Cache-Control", "no-store")
}

func (c *Client) Config(ctx context.Context) (*config.TestConfig, error) {
	var result config.TestConfig

	resp, err := c.request(ctx).SetResult(&result).Get(config.Route)
	if err != nil {
		return nil, errors.Wrap(err, "cannot fetch test config")
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, errors.Errorf("cannot fetch test config: status %d", resp.StatusCode())
	}

	return &result, nil
}

func (c *Client) IP(ctx context.Context) (*ip.Address, error) {
	var result ip.Address

	resp, err := c.request(ctx).SetResult(&result).Get(ip.Route)
	if err != nil {
		return nil, errors.Wrap(err, "cannot fetch client address")
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, errors.Errorf("cannot fetch client address: status %d", resp.StatusCode())
	}

	return &result, nil
}

// Ping times count sequential round trips to the address endpoint.
func (c *Client) Ping(ctx context.Context, count int) (*PingResult, error) {
	samples := make([]time.Duration, 0, count)
	for i := 0; i < count; i++ {
		start := time.Now()
		resp, err := c.request(ctx).Get(ip.Route)
		if err != nil {
			return nil, errors.Wrap(err, "ping request failed")
		}

		if resp.StatusCode() != http.StatusOK {
			return nil, errors.Errorf("ping request failed: status %d", resp.StatusCode())
		}

		samples = append(samples, time.Since(start))
	}

	average, jitter := pingStats(samples)
	return &PingResult{
		Samples: samples,
		Average: average,
		Jitter:  jitter,
	}, nil
}

// Download reads an unbounded stream for the given duration. Hitting the
// deadline is how the test ends, it is not reported as an error.
func (c *Client) Download(ctx context.Context, duration time.Duration) (*Throughput, error) {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	start := time.Now()
	resp, err := c.request(ctx).SetDoNotParseResponse(true).Get(garbage.Route)
	if err != nil {
		if ctx.Err() != nil {
			return &Throughput{Elapsed: time.Since(start)}, nil
		}
		return nil, errors.Wrap(err, "download request failed")
	}

	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return nil, errors.Errorf("download request failed: status %d", resp.StatusCode())
	}

	buf := make([]byte, resources.ChunkSize)
	var received uint64
	for {
		n, err := body.Read(buf)
		received += uint64(n)
		if errors.Is(err, io.EOF) || (err != nil && ctx.Err() != nil) {
			break
		}

		if err != nil {
			return nil, errors.Wrap(err, "download stream failed")
		}
	}

	throughput := Throughput{Bytes: received, Elapsed: time.Since(start)}
	c.log.Debug().Uint64("bytes", received).Dur("elapsed", throughput.Elapsed).Msg("download finished")
	return &throughput, nil
}

// Upload keeps parallel workers posting chunkSize random bytes until the
// duration is over and sums what the server reports as received.
func (c *Client) Upload(ctx context.Context, duration time.Duration, chunkSize int, parallel int) (*Throughput, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	if parallel <= 0 {
		parallel = DefaultParallel
	}

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	//nolint:gosec
	payload := resources.NewPayload(chunkSize, rand.New(rand.NewSource(time.Now().UnixNano())))

	var received atomic.Uint64
	start := time.Now()
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < parallel; i++ {
		group.Go(func() error {
			for groupCtx.Err() == nil {
				var result upload.Result
				resp, err := c.request(groupCtx).
					SetHeader("Content-Type", "application/octet-stream").
					SetBody(payload).
					SetResult(&result).
					Post(upload.Route)
				if err != nil {
					if groupCtx.Err() != nil {
						return nil
					}
					return errors.Wrap(err, "upload request failed")
				}

				if resp.StatusCode() != http.StatusOK {
					return errors.Errorf("upload request failed: status %d", resp.StatusCode())
				}

				received.Add(result.Received)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	throughput := Throughput{Bytes: received.Load(), Elapsed: time.Since(start)}
	c.log.Debug().Uint64("bytes", throughput.Bytes).Dur("elapsed", throughput.Elapsed).Msg("upload finished")
	return &throughput, nil
}

// Run performs the full measurement using the parameters published by the
// server.
func (c *Client) Run(ctx context.Context, options RunOptions) (*Report, error) {
	address, err := c.IP(ctx)
	if err != nil {
		return nil, err
	}

	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(cfg.DurationMs) * time.Millisecond
	c.log.Info().Str("ip", address.IP).Uint32("ping_count", cfg.PingCount).Dur("duration", duration).
		Msg("starting measurement")

	ping, err := c.Ping(ctx, int(cfg.PingCount))
	if err != nil {
		return nil, err
	}

	download, err := c.Download(ctx, duration)
	if err != nil {
		return nil, err
	}

	up, err := c.Upload(ctx, duration, options.ChunkSize, options.Parallel)
	if err != nil {
		return nil, err
	}

	return &Report{
		IP:       address.IP,
		Config:   *cfg,
		Ping:     *ping,
		Download: *download,
		Upload:   *up,
	}, nil
}
