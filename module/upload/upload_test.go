package upload

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/juyss/librespeed-vue/metrics"
	"github.com/juyss/librespeed-vue/module"
	"github.com/juyss/librespeed-vue/test"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestSink_Consume_ExactCount(t *testing.T) {
	sink := NewSink()
	for _, size := range []int64{0, 1, 65535, 65536, 65537, 8 * 1024 * 1024} {
		assert := assert.New(t)
		result, err := sink.Consume(io.LimitReader(zeroReader{}, size))
		assert.Nil(err)
		assert.Equal(uint64(size), result.Received)
	}
}

func TestSink_Consume_SmallReads(t *testing.T) {
	assert := assert.New(t)
	payload := bytes.Repeat([]byte("x"), 4099)
	result, err := NewSink().Consume(iotest.OneByteReader(bytes.NewReader(payload)))
	assert.Nil(err)
	assert.Equal(uint64(4099), result.Received)
}

func TestSink_Consume_DataWithEOF(t *testing.T) {
	assert := assert.New(t)
	result, err := NewSink().Consume(iotest.DataErrReader(strings.NewReader("hello world")))
	assert.Nil(err)
	assert.Equal(uint64(11), result.Received)
}

func TestSink_Consume_ReadError(t *testing.T) {
	assert := assert.New(t)
	result, err := NewSink().Consume(&test.BrokenReader{Size: 100000})
	assert.Nil(result)
	assert.ErrorIs(err, test.ErrPeerGone)

	var transferErr *TransferError
	assert.ErrorAs(err, &transferErr)
	assert.Equal(uint64(100000), transferErr.Received)
}

func TestSink_Consume_Timing(t *testing.T) {
	assert := assert.New(t)
	base := time.Now()
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 1500 * time.Millisecond)
	}

	reads := 0
	reader := readerFunc(func(p []byte) (int, error) {
		// the start timestamp is taken before the first read
		assert.Equal(1, calls)
		reads++
		if reads > 3 {
			return 0, io.EOF
		}
		return 10, nil
	})

	result, err := NewSinkWithClock(clock).Consume(reader)
	assert.Nil(err)
	assert.Equal(uint64(30), result.Received)
	assert.Equal(uint64(1500), result.DurationMs)
	assert.Equal(2, calls)
}

func TestNewResult_NegativeElapsed(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(Result{Received: 5, DurationMs: 0}, newResult(5, -time.Second))
}

func TestModule_Handle(t *testing.T) {
	assert := assert.New(t)
	recorder := test.NewRecorder()
	m := NewModule(Config{Recorder: recorder})
	e := echo.New()
	body := bytes.Repeat([]byte{0xFF}, 12345)
	req := httptest.NewRequest(http.MethodPost, Route, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEOctetStream)
	rec := httptest.NewRecorder()
	err := m.Handle(e.NewContext(req, rec))
	assert.Nil(err)
	assert.Equal(http.StatusOK, rec.Code)

	var result Result
	assert.Nil(json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(uint64(12345), result.Received)
	assert.Contains(rec.Body.String(), `"durationMs":`)

	obs := <-recorder.Observations
	assert.Equal(metrics.OutcomeCompleted, obs.Outcome)
	assert.Equal(uint64(12345), obs.Bytes)
}

func TestModule_Handle_BrokenBody(t *testing.T) {
	assert := assert.New(t)
	recorder := test.NewRecorder()
	m := NewModule(Config{Recorder: recorder})
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, Route, &test.BrokenReader{Size: 70000})
	rec := httptest.NewRecorder()
	err := m.Handle(e.NewContext(req, rec))
	assert.ErrorIs(err, test.ErrPeerGone)
	assert.Equal(0, rec.Body.Len())

	obs := <-recorder.Observations
	assert.Equal(metrics.OutcomeFailed, obs.Outcome)
	assert.Equal(uint64(70000), obs.Bytes)
}

func TestModule_ConcurrentUploads(t *testing.T) {
	assert := assert.New(t)
	e := echo.New()
	assert.NoError(module.Register(e, NewModule(Config{})))
	server := httptest.NewServer(e)
	defer server.Close()

	sizes := []int64{0, 1, 1 << 20, 3<<20 + 7}
	var wg sync.WaitGroup
	for _, size := range sizes {
		wg.Add(1)
		go func(size int64) {
			defer wg.Done()
			resp, err := http.Post(server.URL+Route, echo.MIMEOctetStream, io.LimitReader(zeroReader{}, size))
			if !assert.Nil(err) {
				return
			}
			defer resp.Body.Close()
			var result Result
			assert.Nil(json.NewDecoder(resp.Body).Decode(&result))
			assert.Equal(uint64(size), result.Received)
		}(size)
	}
	wg.Wait()
}

func TestModule_MaxDurationFailsStalledUpload(t *testing.T) {
	assert := assert.New(t)
	recorder := test.NewRecorder()
	e := echo.New()
	assert.NoError(module.Register(e, NewModule(Config{Recorder: recorder, MaxDuration: 200 * time.Millisecond})))
	server := httptest.NewServer(e)
	defer server.Close()

	body, writer := io.Pipe()
	defer writer.Close()
	go func() {
		_, _ = writer.Write(make([]byte, 1000))
	}()

	go func() {
		resp, err := http.Post(server.URL+Route, echo.MIMEOctetStream, body)
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case obs := <-recorder.Observations:
		assert.Equal(metrics.OutcomeFailed, obs.Outcome)
		assert.Equal(uint64(1000), obs.Bytes)
	case <-time.After(5 * time.Second):
		t.Fatal("stalled upload was not cut by the deadline")
	}
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	return f(p)
}
