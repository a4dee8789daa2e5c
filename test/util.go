package test

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrPeerGone = errors.New("peer gone")

// RecordingWriter counts what is written to it and optionally starts failing
// after FailAfter writes.
type RecordingWriter struct {
	mu        sync.Mutex
	FailAfter int
	OnWrite   func(writes int)
	Written   uint64
	Writes    int
	MaxWrite  int
	Flushed   int
}

func (w *RecordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.FailAfter > 0 && w.Writes >= w.FailAfter {
		w.mu.Unlock()
		return 0, ErrPeerGone
	}

	w.Writes++
	w.Written += uint64(len(p))
	if len(p) > w.MaxWrite {
		w.MaxWrite = len(p)
	}
	writes := w.Writes
	w.mu.Unlock()

	if w.OnWrite != nil {
		w.OnWrite(writes)
	}

	return len(p), nil
}

func (w *RecordingWriter) Flush() {
	w.mu.Lock()
	w.Flushed++
	w.mu.Unlock()
}

// BrokenReader yields Size zero bytes and then fails instead of returning EOF.
type BrokenReader struct {
	Size int
	read int
}

func (r *BrokenReader) Read(p []byte) (int, error) {
	if r.read >= r.Size {
		return 0, ErrPeerGone
	}

	n := len(p)
	if remaining := r.Size - r.read; n > remaining {
		n = remaining
	}

	for i := range p[:n] {
		p[i] = 0
	}

	r.read += n
	return n, nil
}

type Observation struct {
	Direction string
	Mode      string
	Outcome   string
	Bytes     uint64
	Elapsed   time.Duration
}

// Recorder hands every finished stream to the Observations channel.
type Recorder struct {
	Observations chan Observation
}

func NewRecorder() *Recorder {
	return &Recorder{Observations: make(chan Observation, 64)}
}

func (r *Recorder) StreamStarted(string) {}

func (r *Recorder) ObserveDownload(mode string, outcome string, bytes uint64) {
	r.push(Observation{Direction: "download", Mode: mode, Outcome: outcome, Bytes: bytes})
}

func (r *Recorder) ObserveUpload(outcome string, bytes uint64, elapsed time.Duration) {
	r.push(Observation{Direction: "upload", Outcome: outcome, Bytes: bytes, Elapsed: elapsed})
}

func (r *Recorder) push(o Observation) {
	select {
	case r.Observations <- o:
	default:
	}
}
