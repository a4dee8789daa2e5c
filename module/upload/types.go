package upload

import (
	"time"
)

// Result is only produced once the whole body has been consumed.
type Result struct {
	Received   uint64 `json:"received"`
	DurationMs uint64 `json:"durationMs"`
}

func newResult(received uint64, elapsed time.Duration) Result {
	if elapsed < 0 {
		elapsed = 0
	}

	return Result{
		Received:   received,
		DurationMs: uint64(elapsed.Milliseconds()),
	}
}

func (r Result) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// TransferError is returned when the body could not be read to the end.
type TransferError struct {
	Received uint64
	Elapsed  time.Duration
	Err      error
}

func (e *TransferError) Error() string {
	return e.Err.Error()
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
