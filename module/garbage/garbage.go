package garbage

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/juyss/librespeed-vue/metrics"
	"github.com/juyss/librespeed-vue/module"
	"github.com/juyss/librespeed-vue/resources"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	log2 "github.com/rs/zerolog/log"
)

const Route = "/garbage"

type flusher interface {
	Flush()
}

// Generator writes the shared payload chunk to download clients. The chunk is
// never modified, so one Generator serves every request concurrently.
type Generator struct {
	chunk []byte
}

func NewGenerator(chunk []byte) (Generator, error) {
	if len(chunk) == 0 || len(chunk) > resources.ChunkSize {
		return Generator{}, errors.Errorf("payload chunk must be between 1 and %d bytes, got %d",
			resources.ChunkSize, len(chunk))
	}

	return Generator{chunk: chunk}, nil
}

func DefaultGenerator() Generator {
	return Generator{chunk: resources.Payload()}
}

// Stream writes exactly size bytes to w, or keeps writing until w fails or ctx
// is done when size is zero. In the unbounded mode the end of the stream is the
// expected outcome and no error is returned.
func (g Generator) Stream(ctx context.Context, w io.Writer, size uint64) (uint64, error) {
	if size == 0 {
		return g.streamUnbounded(ctx, w), nil
	}

	return g.streamBounded(ctx, w, size)
}

func (g Generator) streamUnbounded(ctx context.Context, w io.Writer) uint64 {
	var written uint64
	for {
		n, err := w.Write(g.chunk)
		written += uint64(n)
		if err != nil || ctx.Err() != nil {
			return written
		}
	}
}

func (g Generator) streamBounded(ctx context.Context, w io.Writer, size uint64) (uint64, error) {
	var written uint64
	chunkLen := uint64(len(g.chunk))

	for written < size {
		if err := ctx.Err(); err != nil {
			return written, errors.Wrap(err, "download cancelled")
		}

		n := chunkLen
		if remaining := size - written; remaining < n {
			n = remaining
		}

		m, err := w.Write(g.chunk[:n])
		written += uint64(m)
		if err != nil {
			return written, errors.Wrap(err, "cannot write payload")
		}

		if uint64(m) != n {
			return written, errors.Wrap(io.ErrShortWrite, "cannot write payload")
		}
	}

	if f, ok := w.(flusher); ok {
		f.Flush()
	}

	return written, nil
}

type Config struct {
	Generator Generator
	Recorder  metrics.Recorder

	// MaxDuration caps a single stream, zero leaves it to the transport
	MaxDuration time.Duration
}

type Module struct {
	log         zerolog.Logger
	generator   Generator
	recorder    metrics.Recorder
	maxDuration time.Duration
}

func NewModule(config Config) Module {
	recorder := config.Recorder
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	generator := config.Generator
	if len(generator.chunk) == 0 {
		generator = DefaultGenerator()
	}

	return Module{
		log:         log2.With().Str("role", "garbage_module").Caller().Logger(),
		generator:   generator,
		recorder:    recorder,
		maxDuration: config.MaxDuration,
	}
}

func (Module) Type() module.Type {
	return module.GarbageType
}

func (Module) Method() string {
	return http.MethodGet
}

func (Module) Route() string {
	return Route
}

func (m Module) Handle(c echo.Context) error {
	req := Request{Size: ParseSize(c.QueryParam("size"))}
	ctx := c.Request().Context()
	res := c.Response()

	if m.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.maxDuration)
		defer cancel()

		err := http.NewResponseController(res).SetWriteDeadline(time.Now().Add(m.maxDuration))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			m.log.Debug().Err(err).Msg("cannot set write deadline")
		}
	}

	mode := metrics.ModeUnbounded
	header := res.Header()
	header.Set(echo.HeaderContentType, echo.MIMEOctetStream)
	header.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	if req.Bounded() {
		mode = metrics.ModeBounded
		header.Set(echo.HeaderContentLength, strconv.FormatUint(req.Size, 10))
	}

	res.WriteHeader(http.StatusOK)
	m.recorder.StreamStarted("download")

	written, err := m.generator.Stream(ctx, res, req.Size)
	if err != nil {
		m.recorder.ObserveDownload(mode, metrics.OutcomeFailed, written)
		m.log.Warn().Err(err).Uint64("size", req.Size).Uint64("written", written).Msg("download stream failed")
		return errors.Wrap(err, "download stream failed")
	}

	outcome := metrics.OutcomeCompleted
	if !req.Bounded() {
		outcome = metrics.OutcomeClosed
	}

	m.recorder.ObserveDownload(mode, outcome, written)
	m.log.Debug().Str("mode", mode).Uint64("written", written).Msg("download stream finished")
	return nil
}
