package upload

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/juyss/librespeed-vue/metrics"
	"github.com/juyss/librespeed-vue/module"
	"github.com/juyss/librespeed-vue/resources"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	log2 "github.com/rs/zerolog/log"
)

const Route = "/upload"

var scratch = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, resources.ChunkSize)
		return &buf
	},
}

// Sink counts and discards an inbound stream. Timing relies on the monotonic
// reading carried by time.Now, so wall clock steps do not skew it.
type Sink struct {
	now func() time.Time
}

func NewSink() Sink {
	return Sink{now: time.Now}
}

func NewSinkWithClock(now func() time.Time) Sink {
	return Sink{now: now}
}

// Consume reads r until EOF. Any read error aborts the measurement and no
// result is returned; the error is a *TransferError holding the bytes read so
// far.
func (s Sink) Consume(r io.Reader) (*Result, error) {
	now := s.now
	if now == nil {
		now = time.Now
	}

	bufPtr, _ := scratch.Get().(*[]byte)
	defer scratch.Put(bufPtr)
	buf := *bufPtr

	var received uint64
	start := now()
	for {
		n, err := r.Read(buf)
		received += uint64(n)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, &TransferError{
				Received: received,
				Elapsed:  now().Sub(start),
				Err:      errors.Wrap(err, "cannot read upload body"),
			}
		}
	}

	result := newResult(received, now().Sub(start))
	return &result, nil
}

type Config struct {
	Recorder metrics.Recorder

	// MaxDuration caps reading a single body, zero leaves it to the transport
	MaxDuration time.Duration
}

type Module struct {
	log         zerolog.Logger
	sink        Sink
	recorder    metrics.Recorder
	maxDuration time.Duration
}

func NewModule(config Config) Module {
	recorder := config.Recorder
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	return Module{
		log:         log2.With().Str("role", "upload_module").Caller().Logger(),
		sink:        NewSink(),
		recorder:    recorder,
		maxDuration: config.MaxDuration,
	}
}

func (Module) Type() module.Type {
	return module.UploadType
}

func (Module) Method() string {
	return http.MethodPost
}

func (Module) Route() string {
	return Route
}

func (m Module) Handle(c echo.Context) error {
	req := c.Request()

	if m.maxDuration > 0 {
		err := http.NewResponseController(c.Response()).SetReadDeadline(time.Now().Add(m.maxDuration))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			m.log.Debug().Err(err).Msg("cannot set read deadline")
		}
	}

	m.recorder.StreamStarted("upload")

	result, err := m.sink.Consume(req.Body)
	if err != nil {
		var received uint64
		var transferErr *TransferError
		if errors.As(err, &transferErr) {
			received = transferErr.Received
			m.recorder.ObserveUpload(metrics.OutcomeFailed, received, transferErr.Elapsed)
		}

		m.log.Warn().Err(err).Uint64("received", received).Msg("upload stream failed")
		return errors.Wrap(err, "upload stream failed")
	}

	m.recorder.ObserveUpload(metrics.OutcomeCompleted, result.Received, result.Duration())
	m.log.Debug().Uint64("received", result.Received).Uint64("duration_ms", result.DurationMs).Msg("upload consumed")

	return c.JSON(http.StatusOK, result)
}
